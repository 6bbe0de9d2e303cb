package upstream

import (
	"errors"
	"fmt"
)

// ErrorKind classifies upstream failures for the propagation policy.
type ErrorKind int

const (
	// KindTransient covers timeouts, rate limits, 5xx and an open breaker.
	// Retried with backoff, then degraded to an empty result.
	KindTransient ErrorKind = iota
	// KindPermanent covers other 4xx responses and undecodable envelopes.
	KindPermanent
	// KindConfig covers missing endpoints and malformed URLs.
	KindConfig
)

// String returns the metric label of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error is a classified upstream failure.
type Error struct {
	Kind    ErrorKind
	Service string
	Status  int // HTTP status, 0 when no response was received
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s upstream %s error (status %d): %v", e.Service, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s upstream %s error: %v", e.Service, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err. Errors that are not *Error are transient.
func KindOf(err error) ErrorKind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindTransient
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}

func transient(service string, status int, err error) *Error {
	return &Error{Kind: KindTransient, Service: service, Status: status, Err: err}
}

func permanent(service string, status int, err error) *Error {
	return &Error{Kind: KindPermanent, Service: service, Status: status, Err: err}
}

// NewTransient returns a KindTransient error; the client fills in service and status.
func NewTransient(err error) *Error {
	return &Error{Kind: KindTransient, Err: err}
}

// NewPermanent returns a KindPermanent error; the client fills in service and status.
func NewPermanent(err error) *Error {
	return &Error{Kind: KindPermanent, Err: err}
}

// ConfigError returns a KindConfig error for service.
func ConfigError(service string, err error) *Error {
	return &Error{Kind: KindConfig, Service: service, Err: err}
}
