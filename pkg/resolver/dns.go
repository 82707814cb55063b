package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const dnsLookupTimeout = 5 * time.Second

// dnsExchanger abstracts dns.Client.ExchangeContext for testability.
type dnsExchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error)
}

// DNS returns a source that queries server directly for name and reads the
// caller's address from the answer. qtype is A, AAAA or TXT. Services such
// as myip.opendns.com answer with an address record; o-o.myaddr.l.google.com
// answers with a TXT record holding the address.
func DNS(name, server string, qtype uint16) Source {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &dnsSource{
		name:   dns.Fqdn(name),
		server: server,
		qtype:  qtype,
		client: &dns.Client{Net: "udp", Timeout: dnsLookupTimeout},
	}
}

type dnsSource struct {
	name   string
	server string
	qtype  uint16
	client dnsExchanger
}

func (s *dnsSource) Name() string {
	return fmt.Sprintf("dns:%s@%s/%s", strings.TrimSuffix(s.name, "."), s.server, dns.TypeToString[s.qtype])
}

func (s *dnsSource) Lookup(ctx context.Context) (netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(s.name, s.qtype)
	m.RecursionDesired = false

	r, _, err := s.client.ExchangeContext(ctx, m, s.server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("dns query to %s failed: %w", s.server, err)
	}
	if r.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("dns query for %s failed: rcode %s", s.name, dns.RcodeToString[r.Rcode])
	}
	for _, rr := range r.Answer {
		switch v := rr.(type) {
		case *dns.A:
			if ip, ok := netip.AddrFromSlice(v.A); ok {
				return ip.Unmap(), nil
			}
		case *dns.AAAA:
			if ip, ok := netip.AddrFromSlice(v.AAAA); ok {
				return ip, nil
			}
		case *dns.TXT:
			for _, txt := range v.Txt {
				if ip, err := netip.ParseAddr(strings.TrimSpace(txt)); err == nil {
					return ip, nil
				}
			}
		}
	}
	return netip.Addr{}, fmt.Errorf("no %s answer for %s", dns.TypeToString[s.qtype], s.name)
}
