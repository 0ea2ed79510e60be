package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	KindUnknownTool        ErrorKind = "UnknownTool"
	KindServiceUnreachable ErrorKind = "ServiceUnreachable"
	KindAdapterMismatch    ErrorKind = "AdapterMismatch"
	KindBackendError       ErrorKind = "BackendError"
	KindTimeout            ErrorKind = "Timeout"

	// Internal kinds never reach callers.
	KindAuditWriteFailure ErrorKind = "AuditWriteFailure"
	KindCacheUnavailable  ErrorKind = "CacheUnavailable"
)

// Internal reports whether the kind is recovered locally and hidden from callers.
func (k ErrorKind) Internal() bool {
	return k == KindAuditWriteFailure || k == KindCacheUnavailable
}

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrNoAdapter   = errors.New("no adapter registered")
	// ErrNotTranslated marks a fallback that failed before any request was sent.
	ErrNotTranslated  = errors.New("request not translated")
	ErrNoLiveness     = errors.New("no liveness endpoint declared")
	ErrUnknownService = errors.New("unknown service")
	ErrQueueFull      = errors.New("audit queue full")
	ErrWriterClosed   = errors.New("audit writer closed")
)

type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Kind)
		}
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(kind ErrorKind, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

func Wrap(kind ErrorKind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Kind:    existing.Kind,
			Op:      op,
			Message: existing.Message,
			Cause:   existing.Cause,
		}
	}
	return E(kind, op, "", err)
}

func KindFrom(err error) (ErrorKind, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Kind != "" {
		return domainErr.Kind, true
	}
	switch {
	case errors.Is(err, ErrUnknownTool):
		return KindUnknownTool, true
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout, true
	case errors.Is(err, ErrNoAdapter):
		return KindAdapterMismatch, true
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrWriterClosed):
		return KindAuditWriteFailure, true
	default:
		return "", false
	}
}

// MessageFrom extracts the human readable part of err.
func MessageFrom(err error) string {
	if err == nil {
		return ""
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		if domainErr.Message != "" {
			return domainErr.Message
		}
		if domainErr.Cause != nil {
			return domainErr.Cause.Error()
		}
		return string(domainErr.Kind)
	}
	return err.Error()
}
