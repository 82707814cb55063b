// Package resolver discovers the host's current public IP address from an
// ordered list of sources.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"
)

// Address is a resolved public IP address.
type Address struct {
	IP         netip.Addr
	ResolvedAt time.Time
	// Source is the Name of the source that produced IP.
	Source string
}

// Resolver returns the current public IP address.
type Resolver interface {
	Resolve(ctx context.Context) (Address, error)
}

// Source is a single address-discovery method.
type Source interface {
	Name() string
	Lookup(ctx context.Context) (netip.Addr, error)
}

// Error is returned when no source produced a usable address.
type Error struct {
	Errs []error
}

func (e *Error) Error() string {
	if len(e.Errs) == 0 {
		return "no address sources configured"
	}
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("all %d address sources failed: %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *Error) Unwrap() []error { return e.Errs }

// Chain tries its sources in order and returns the first usable address.
// There is no retry and no voting: the first success wins.
type Chain struct {
	sources []Source
	log     *slog.Logger
	now     func() time.Time
}

// NewChain returns a Chain over sources.
func NewChain(log *slog.Logger, sources ...Source) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{sources: sources, log: log, now: time.Now}
}

// Sources returns the names of the configured sources, in order.
func (c *Chain) Sources() []string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return names
}

// Resolve implements Resolver.
func (c *Chain) Resolve(ctx context.Context) (Address, error) {
	var errs []error
	for _, s := range c.sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ip, err := s.Lookup(ctx)
		if err == nil {
			err = usable(ip)
		}
		if err != nil {
			c.log.Debug("address source failed", "source", s.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		return Address{IP: ip.Unmap(), ResolvedAt: c.now(), Source: s.Name()}, nil
	}
	return Address{}, &Error{Errs: errs}
}

// usable rejects addresses that can never be a host's public address.
func usable(ip netip.Addr) error {
	switch {
	case !ip.IsValid():
		return errors.New("invalid address")
	case ip.IsUnspecified(), ip.IsLoopback(), ip.IsMulticast():
		return fmt.Errorf("unusable address %s", ip)
	}
	return nil
}

// Func adapts a plain function to the Source interface.
type Func struct {
	Label string
	Fn    func(ctx context.Context) (netip.Addr, error)
}

func (f Func) Name() string { return f.Label }

func (f Func) Lookup(ctx context.Context) (netip.Addr, error) { return f.Fn(ctx) }
