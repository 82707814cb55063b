package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// Interface returns a source that reports the first global unicast address
// of the named network interface. Loopback and link-local addresses are
// skipped.
func Interface(name string) Source {
	return ifaceSource{name: name, lookup: net.InterfaceByName}
}

type ifaceSource struct {
	name   string
	lookup func(string) (*net.Interface, error)
}

func (s ifaceSource) Name() string { return "iface:" + s.name }

func (s ifaceSource) Lookup(context.Context) (netip.Addr, error) {
	iface, err := s.lookup(s.name)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error getting interface %s by name: %w", s.name, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error looking up addresses for interface %s: %w", s.name, err)
	}
	return firstGlobal(addrs)
}

// firstGlobal picks the first global unicast address from interface
// addresses such as "192.168.86.253/24" or "fe80::2cc9:801b:3551:9a43/64".
func firstGlobal(addrs []net.Addr) (netip.Addr, error) {
	for _, addr := range addrs {
		p, err := netip.ParsePrefix(addr.String())
		if err != nil {
			continue
		}
		ip := p.Addr()
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || !ip.IsGlobalUnicast() {
			continue
		}
		return ip.Unmap(), nil
	}
	return netip.Addr{}, fmt.Errorf("no global unicast address among %d interface addresses", len(addrs))
}
