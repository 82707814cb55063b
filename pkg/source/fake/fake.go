// Package fake provides an in-memory Source implementation for testing.
package fake

import (
	"context"
	"sync"
)

// Source is a fake implementation of source.Source that returns a fixed list
// of domains and supports manually triggering event handlers.
type Source struct {
	mu       sync.Mutex
	domains  []string
	err      error
	handlers []func()
}

// New returns a fake Source pre-loaded with the given domains.
func New(domains ...string) *Source {
	return &Source{domains: domains}
}

// Domains returns the configured domain list, or the error set by SetError.
func (s *Source) Domains(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]string, len(s.domains))
	copy(out, s.domains)
	return out, nil
}

// AddEventHandler registers a handler to be called by TriggerEvent.
func (s *Source) AddEventHandler(_ context.Context, handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// TriggerEvent calls all registered event handlers, simulating a Docker event.
func (s *Source) TriggerEvent() {
	s.mu.Lock()
	handlers := make([]func(), len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

// SetDomains replaces the domain list returned by Domains.
func (s *Source) SetDomains(domains ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domains = domains
}

// SetError makes Domains fail with err until cleared with nil.
func (s *Source) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
