// Package rfc2136 implements a DNS provider using RFC2136 dynamic updates.
package rfc2136

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/bkero/dyndns-updater/pkg/provider"
)

func init() {
	provider.Register("rfc2136", func(log *slog.Logger, s provider.Settings) (provider.Provider, error) {
		cfg, err := ConfigFromSettings(s)
		if err != nil {
			return nil, err
		}
		return New(cfg, log), nil
	}, provider.Credentials{KeyID: true, Secret: true})
}

// dnsExchanger abstracts dns.Client.ExchangeContext for testability.
type dnsExchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error)
}

// defaultTimeout is the DNS operation timeout applied when none is configured.
const defaultTimeout = 10 * time.Second

// Config holds all RFC2136 provider configuration.
type Config struct {
	Host          string
	Port          int
	Zones         []string
	TSIGKeyName   string
	TSIGSecret    string
	TSIGSecretAlg string        // e.g. "hmac-sha256" (trailing dot optional)
	Timeout       time.Duration // DNS operation timeout; 0 uses defaultTimeout (10s)
}

// ConfigFromSettings maps generic provider settings onto Config. The TSIG
// key name and secret come from the access key credentials.
func ConfigFromSettings(s provider.Settings) (Config, error) {
	cfg := Config{
		Host:          s.Option("host", ""),
		TSIGKeyName:   s.AccessKeyID,
		TSIGSecret:    s.AccessKeySecret,
		TSIGSecretAlg: s.Option("tsig-alg", "hmac-sha256"),
	}
	if cfg.Host == "" {
		return Config{}, errors.New("missing required setting 'host'")
	}
	for _, z := range strings.Split(s.Option("zones", ""), ",") {
		if z = strings.TrimSpace(z); z != "" {
			cfg.Zones = append(cfg.Zones, z)
		}
	}
	if len(cfg.Zones) == 0 {
		return Config{}, errors.New("missing required setting 'zones'")
	}
	if cfg.TSIGKeyName == "" {
		return Config{}, errors.New("TSIG key name (access key id) is required")
	}
	port, err := strconv.Atoi(s.Option("port", "53"))
	if err != nil || port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid port %q", s.Option("port", ""))
	}
	cfg.Port = port
	if v := s.Option("timeout", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid timeout %q: %w", v, err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// Provider implements provider.Provider against an RFC2136-capable DNS server.
type Provider struct {
	cfg       Config
	server    string // "host:port"
	tsigAlg   string // normalised algorithm name (with trailing dot)
	zones     zoneSet
	log       *slog.Logger
	exchanger dnsExchanger
}

// New returns a configured RFC2136 Provider.
func New(cfg Config, log *slog.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	tsigSecret := map[string]string{
		dns.Fqdn(cfg.TSIGKeyName): cfg.TSIGSecret,
	}
	return newWithDeps(cfg, log, &dns.Client{
		Net:        "tcp",
		TsigSecret: tsigSecret,
		Timeout:    cfg.Timeout,
	})
}

// newWithDeps constructs a Provider with an injected transport for testing.
func newWithDeps(cfg Config, log *slog.Logger, e dnsExchanger) *Provider {
	if cfg.Port == 0 {
		cfg.Port = 53
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		cfg:       cfg,
		server:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		tsigAlg:   normaliseTSIGAlg(cfg.TSIGSecretAlg),
		zones:     newZoneSet(cfg.Zones),
		log:       log,
		exchanger: e,
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "rfc2136" }

// Preflight validates connectivity and TSIG credentials by sending a SOA query
// for every configured zone. Returns an error if the server is unreachable
// or responds with a non-success rcode (e.g. NOTAUTH on bad TSIG).
func (p *Provider) Preflight(ctx context.Context) error {
	for _, zone := range p.zones {
		m := new(dns.Msg)
		m.SetQuestion(zone, dns.TypeSOA)
		p.sign(m)
		r, _, err := p.exchanger.ExchangeContext(ctx, m, p.server)
		if err != nil {
			return fmt.Errorf("preflight SOA query for %s to %s failed: %w", zone, p.server, err)
		}
		if r.Rcode != dns.RcodeSuccess {
			return fmt.Errorf("preflight SOA query for %s failed: rcode %s (%d)",
				zone, dns.RcodeToString[r.Rcode], r.Rcode)
		}
	}
	return nil
}

// Publish replaces the A or AAAA RRset of domain with a single record in one
// UPDATE message.
func (p *Provider) Publish(ctx context.Context, domain string, ip netip.Addr, ttl int64) error {
	zone, ok := p.zones.zoneFor(domain)
	if !ok {
		return provider.Errorf(provider.KindNotFound, domain, "no configured zone contains %s", domain)
	}

	rr, err := addrToRR(domain, ip, ttl)
	if err != nil {
		return provider.Errorf(provider.KindNotFound, domain, "%v", err)
	}

	m := new(dns.Msg)
	m.SetUpdate(zone)
	m.RemoveRRset([]dns.RR{&dns.ANY{Hdr: dns.RR_Header{
		Name:   dns.Fqdn(domain),
		Rrtype: rr.Header().Rrtype,
		Class:  dns.ClassINET,
	}}})
	m.Insert([]dns.RR{rr})
	p.sign(m)

	p.log.Debug("sending dns update", "domain", domain, "zone", zone, "server", p.server, "rr", rr.String())
	r, _, err := p.exchanger.ExchangeContext(ctx, m, p.server)
	if err != nil {
		return classifyExchangeError(domain, err)
	}
	return classifyRcode(domain, r.Rcode)
}

func (p *Provider) sign(m *dns.Msg) {
	if p.cfg.TSIGKeyName != "" {
		m.SetTsig(dns.Fqdn(p.cfg.TSIGKeyName), p.tsigAlg, 300, time.Now().Unix())
	}
}

// classifyExchangeError maps transport-level failures onto provider kinds.
func classifyExchangeError(domain string, err error) error {
	switch {
	case errors.Is(err, dns.ErrSig), errors.Is(err, dns.ErrSecret), errors.Is(err, dns.ErrTime):
		return &provider.Error{Kind: provider.KindAuth, Domain: domain, Err: fmt.Errorf("dns update exchange: %w", err)}
	default:
		return &provider.Error{Kind: provider.KindTransient, Domain: domain, Err: fmt.Errorf("dns update exchange: %w", err)}
	}
}

// classifyRcode maps an UPDATE response code onto provider kinds.
func classifyRcode(domain string, rcode int) error {
	if rcode == dns.RcodeSuccess {
		return nil
	}
	kind := provider.KindTransient
	switch rcode {
	case dns.RcodeNotAuth, dns.RcodeRefused, dns.RcodeBadSig, dns.RcodeBadKey, dns.RcodeBadTime:
		kind = provider.KindAuth
	case dns.RcodeNameError, dns.RcodeNotZone, dns.RcodeNXRrset:
		kind = provider.KindNotFound
	}
	return provider.Errorf(kind, domain, "dns update failed: rcode %s (%d)", dns.RcodeToString[rcode], rcode)
}

// addrToRR builds the A or AAAA record for ip.
func addrToRR(domain string, ip netip.Addr, ttl int64) (dns.RR, error) {
	hdr := dns.RR_Header{
		Name:  dns.Fqdn(domain),
		Class: dns.ClassINET,
		Ttl:   uint32(ttl),
	}
	switch {
	case ip.Is4() || ip.Is4In6():
		hdr.Rrtype = dns.TypeA
		return &dns.A{Hdr: hdr, A: net.IP(ip.Unmap().AsSlice())}, nil
	case ip.Is6():
		hdr.Rrtype = dns.TypeAAAA
		return &dns.AAAA{Hdr: hdr, AAAA: net.IP(ip.AsSlice())}, nil
	default:
		return nil, fmt.Errorf("invalid address %v", ip)
	}
}

// normaliseTSIGAlg ensures the algorithm name has a trailing dot as required
// by miekg/dns. Accepts both "hmac-sha256" and "hmac-sha256.".
func normaliseTSIGAlg(alg string) string {
	if alg == "" {
		return dns.HmacSHA256
	}
	if !strings.HasSuffix(alg, ".") {
		alg += "."
	}
	return strings.ToLower(alg)
}
