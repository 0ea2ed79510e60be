// Package adapter translates the generic call envelope into the native REST
// dialect of each backend service and maps native replies back.
package adapter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"zend/internal/domain"
	"zend/internal/infra/transport"
)

// Adapter is the two-operation translation capability of one backend shape.
type Adapter interface {
	TranslateRequest(call domain.CallRequest) (transport.Request, error)
	TranslateResponse(call domain.CallRequest, resp transport.Response) (json.RawMessage, error)
}

// Factory builds an adapter bound to one service descriptor.
type Factory func(svc domain.ServiceDescriptor) (Adapter, error)

// Set holds adapter factories by name. Adding a backend shape means
// registering a factory here.
type Set struct {
	factories map[string]Factory
}

func NewSet() *Set {
	return &Set{factories: make(map[string]Factory)}
}

// DefaultSet returns the built-in adapters.
func DefaultSet() *Set {
	set := NewSet()
	set.Register("memory", func(domain.ServiceDescriptor) (Adapter, error) { return memoryAdapter{}, nil })
	set.Register("filesystem", func(domain.ServiceDescriptor) (Adapter, error) { return filesystemAdapter{}, nil })
	set.Register("research", func(domain.ServiceDescriptor) (Adapter, error) { return researchAdapter{}, nil })
	set.Register("rest", newRESTAdapter)
	return set
}

func (s *Set) Register(name string, factory Factory) {
	s.factories[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (s *Set) Lookup(name string) (Factory, bool) {
	factory, ok := s.factories[strings.ToLower(strings.TrimSpace(name))]
	return factory, ok
}

// Names lists registered adapters.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.factories))
	for name := range s.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build binds an adapter to every service that names one. Services that
// do not speak the envelope must resolve to an adapter.
func (s *Set) Build(services []domain.ServiceDescriptor) (map[string]Adapter, error) {
	out := make(map[string]Adapter, len(services))
	for _, svc := range services {
		factory, ok := s.Lookup(svc.AdapterName())
		if !ok {
			if !svc.Envelope {
				return nil, fmt.Errorf("service %q: adapter %q is not registered and the service does not accept the call envelope", svc.ID, svc.AdapterName())
			}
			continue
		}
		adapter, err := factory(svc)
		if err != nil {
			return nil, fmt.Errorf("service %q: build adapter %q: %w", svc.ID, svc.AdapterName(), err)
		}
		out[svc.ID] = adapter
	}
	return out, nil
}
