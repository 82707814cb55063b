// Package fake provides an in-memory Provider implementation for testing.
package fake

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/bkero/dyndns-updater/pkg/provider"
)

func init() {
	provider.Register("fake", func(_ *slog.Logger, _ provider.Settings) (provider.Provider, error) {
		return New(), nil
	})
}

// Call is a snapshot of a single Publish call, kept for test assertions.
type Call struct {
	Domain string
	IP     netip.Addr
	TTL    int64
	Err    error
}

// Provider is an in-memory DNS provider for testing. Responses can be
// scripted per domain with Script; unscripted calls succeed.
type Provider struct {
	mu        sync.Mutex
	records   map[string]netip.Addr
	scripts   map[string][]error
	fallback  map[string]error
	history   []Call
	onPublish func(ctx context.Context, domain string) error
}

// New returns an empty Provider.
func New() *Provider {
	return &Provider{
		records:  make(map[string]netip.Addr),
		scripts:  make(map[string][]error),
		fallback: make(map[string]error),
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "fake" }

// Script queues responses for domain. Each Publish call for domain consumes
// one entry; a nil entry means success. Once the queue is drained calls
// succeed again unless FailAlways was set.
func (p *Provider) Script(domain string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[domain] = append(p.scripts[domain], errs...)
}

// FailAlways makes every unscripted Publish for domain return err.
func (p *Provider) FailAlways(domain string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback[domain] = err
}

// OnPublish installs a hook that runs before each Publish is recorded. A
// non-nil return value is used as the call's result.
func (p *Provider) OnPublish(fn func(ctx context.Context, domain string) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPublish = fn
}

// Publish implements provider.Provider.
func (p *Provider) Publish(ctx context.Context, domain string, ip netip.Addr, ttl int64) error {
	p.mu.Lock()
	hook := p.onPublish
	p.mu.Unlock()

	var err error
	if hook != nil {
		err = hook(ctx, domain)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		if q := p.scripts[domain]; len(q) > 0 {
			err, p.scripts[domain] = q[0], q[1:]
		} else {
			err = p.fallback[domain]
		}
	}
	p.history = append(p.history, Call{Domain: domain, IP: ip, TTL: ttl, Err: err})
	if err != nil {
		return err
	}
	p.records[domain] = ip
	return nil
}

// Calls returns every Publish call made so far, oldest first.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.history))
	copy(out, p.history)
	return out
}

// CallCount returns the number of Publish calls made for domain.
func (p *Provider) CallCount(domain string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.history {
		if c.Domain == domain {
			n++
		}
	}
	return n
}

// Record returns the address currently published for domain.
func (p *Provider) Record(domain string) (netip.Addr, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ip, ok := p.records[domain]
	return ip, ok
}
