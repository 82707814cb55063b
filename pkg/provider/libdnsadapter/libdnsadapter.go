// Package libdnsadapter publishes records through any libdns provider, so
// the many libdns-compatible DNS backends can drive the update engine.
package libdnsadapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/libdns/libdns"
	"github.com/miekg/dns"

	"github.com/bkero/dyndns-updater/pkg/provider"
)

// Provider adapts a libdns.RecordSetter to provider.Provider.
type Provider struct {
	name   string
	setter libdns.RecordSetter
	zones  []string // FQDNs, longest first
	log    *slog.Logger
}

// New returns a Provider named name that writes into the given zones.
func New(name string, setter libdns.RecordSetter, zones []string, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	zs := make([]string, 0, len(zones))
	for _, z := range zones {
		if z = strings.ToLower(strings.TrimSpace(z)); z != "" {
			zs = append(zs, dns.Fqdn(z))
		}
	}
	sort.SliceStable(zs, func(i, j int) bool { return len(zs[i]) > len(zs[j]) })
	return &Provider{name: name, setter: setter, zones: zs, log: log}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return p.name }

// Publish replaces the A or AAAA record of domain with ip.
func (p *Provider) Publish(ctx context.Context, domain string, ip netip.Addr, ttl int64) error {
	fqdn := dns.Fqdn(strings.ToLower(domain))
	zone, ok := p.zoneFor(fqdn)
	if !ok {
		return provider.Errorf(provider.KindNotFound, domain, "no configured zone contains %s", domain)
	}
	name := "@"
	if fqdn != zone {
		name = libdns.RelativeName(fqdn, zone)
	}
	rec := libdns.Address{
		Name: name,
		TTL:  time.Duration(ttl) * time.Second,
		IP:   ip.Unmap(),
	}
	p.log.Debug("setting record", "domain", domain, "zone", zone, "name", rec.Name, "ip", rec.IP.String())
	if _, err := p.setter.SetRecords(ctx, zone, []libdns.Record{rec}); err != nil {
		return &provider.Error{Kind: provider.KindOf(err), Domain: domain, RetryAfter: provider.RetryAfter(err),
			Err: fmt.Errorf("set records in %s: %w", zone, err)}
	}
	return nil
}

func (p *Provider) zoneFor(fqdn string) (string, bool) {
	for _, z := range p.zones {
		if fqdn == z || strings.HasSuffix(fqdn, "."+z) {
			return z, true
		}
	}
	return "", false
}
