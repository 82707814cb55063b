package resolver

import (
	"context"
	"fmt"
	"net/netip"
)

// Static returns a source that always reports addr.
func Static(addr string) (Source, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse IP: %w", err)
	}
	return staticSource(ip), nil
}

type staticSource netip.Addr

func (s staticSource) Name() string { return "static:" + netip.Addr(s).String() }

func (s staticSource) Lookup(context.Context) (netip.Addr, error) { return netip.Addr(s), nil }
