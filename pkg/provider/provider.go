// Package provider defines the Provider interface for DNS backends and the
// error taxonomy the update engine uses to decide between retry and disable.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// Provider is implemented by every DNS backend.
type Provider interface {
	// Name returns the registry name of the provider (e.g. "cloudflare").
	Name() string

	// Publish sets the A or AAAA record of domain to ip with the given TTL.
	// Failures should be returned as *Error so the caller can classify them;
	// anything else is treated as KindTransient.
	Publish(ctx context.Context, domain string, ip netip.Addr, ttl int64) error
}

// Kind classifies a provider failure.
type Kind int

const (
	// KindTransient covers network failures, timeouts and 5xx responses.
	KindTransient Kind = iota
	// KindRateLimited means the provider asked us to slow down.
	KindRateLimited
	// KindAuth means the credentials were rejected. Retrying cannot help.
	KindAuth
	// KindNotFound means the domain or its zone does not exist at the provider.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Fatal reports whether errors of this kind should disable the domain.
func (k Kind) Fatal() bool {
	return k == KindAuth || k == KindNotFound
}

// Error is a classified provider failure.
type Error struct {
	Kind   Kind
	Domain string
	// RetryAfter is the provider-supplied backoff hint. Zero if none was given.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Domain == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Domain, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf returns an *Error of the given kind with a formatted cause.
func Errorf(kind Kind, domain, format string, args ...any) *Error {
	return &Error{Kind: kind, Domain: domain, Err: fmt.Errorf(format, args...)}
}

// KindOf classifies err. Unclassified errors, including timeouts, are
// KindTransient.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// RetryAfter returns the backoff hint carried by err, or zero.
func RetryAfter(err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}
