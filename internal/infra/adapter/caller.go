package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"zend/internal/domain"
	"zend/internal/infra/transport"
)

// Doer sends a native request to a service.
type Doer interface {
	Do(ctx context.Context, svc domain.ServiceDescriptor, req transport.Request) (transport.Response, error)
}

// Caller performs the two protocol paths against a resolved service.
type Caller struct {
	doer     Doer
	adapters map[string]Adapter
	logger   *zap.Logger
}

// NewCaller binds adapters from set to services.
func NewCaller(doer Doer, set *Set, services []domain.ServiceDescriptor, logger *zap.Logger) (*Caller, error) {
	if doer == nil {
		return nil, fmt.Errorf("adapter caller requires a transport")
	}
	if set == nil {
		set = DefaultSet()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	adapters, err := set.Build(services)
	if err != nil {
		return nil, err
	}
	return &Caller{doer: doer, adapters: adapters, logger: logger.Named("adapter")}, nil
}

// HasFallback reports whether a native adapter is bound to the service.
func (c *Caller) HasFallback(serviceID string) bool {
	_, ok := c.adapters[serviceID]
	return ok
}

// Primary sends the generic call envelope.
func (c *Caller) Primary(ctx context.Context, svc domain.ServiceDescriptor, call domain.CallRequest) (json.RawMessage, error) {
	resp, err := c.doer.Do(ctx, svc, envelopeCall(svc, call))
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(svc, resp)
}

// Fallback translates the call through the service's native adapter.
// Adapter panics and translation failures surface as AdapterMismatch.
func (c *Caller) Fallback(ctx context.Context, svc domain.ServiceDescriptor, call domain.CallRequest) (result json.RawMessage, err error) {
	op := "fallback " + svc.ID
	adapter, ok := c.adapters[svc.ID]
	if !ok {
		return nil, domain.E(domain.KindAdapterMismatch, op, domain.ErrNoAdapter.Error(), errors.Join(domain.ErrNotTranslated, domain.ErrNoAdapter))
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("adapter panicked",
				zap.String("service", svc.ID),
				zap.String("tool", call.Tool),
				zap.Any("panic", r),
			)
			result = nil
			err = domain.E(domain.KindAdapterMismatch, op, fmt.Sprintf("adapter panicked: %v", r), nil)
		}
	}()

	req, err := adapter.TranslateRequest(call)
	if err != nil {
		return nil, notTranslated(op, err)
	}
	resp, err := c.doer.Do(ctx, svc, req)
	if err != nil {
		return nil, err
	}
	result, err = adapter.TranslateResponse(call, resp)
	if err != nil {
		return nil, domain.Wrap(domain.KindAdapterMismatch, op, err)
	}
	return result, nil
}

// notTranslated keeps the adapter's message and marks that nothing reached
// the backend.
func notTranslated(op string, err error) error {
	kind, ok := domain.KindFrom(err)
	if !ok {
		kind = domain.KindAdapterMismatch
	}
	return domain.E(kind, op, domain.MessageFrom(err), errors.Join(domain.ErrNotTranslated, err))
}
