package rfc2136

import (
	"sort"
	"strings"

	"github.com/miekg/dns"
)

// zoneSet holds normalised zone FQDNs, longest first.
type zoneSet []string

func newZoneSet(zones []string) zoneSet {
	zs := make(zoneSet, 0, len(zones))
	seen := make(map[string]bool, len(zones))
	for _, z := range zones {
		fq := dns.Fqdn(strings.ToLower(strings.TrimSpace(z)))
		if fq == "." || seen[fq] {
			continue
		}
		seen[fq] = true
		zs = append(zs, fq)
	}
	sort.SliceStable(zs, func(i, j int) bool { return len(zs[i]) > len(zs[j]) })
	return zs
}

// zoneFor returns the zone whose FQDN is the longest suffix match for
// dnsName. A zone matches itself (apex records) and any name below it.
func (zs zoneSet) zoneFor(dnsName string) (string, bool) {
	name := dns.Fqdn(strings.ToLower(dnsName))
	for _, z := range zs {
		if name == z || strings.HasSuffix(name, "."+z) {
			return z, true
		}
	}
	return "", false
}
