package resolver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/miekg/dns"
)

// DefaultSources are used when no sources are configured.
var DefaultSources = []string{
	"http:https://checkip.amazonaws.com/",
	"http:https://api.ipify.org",
	"dns:myip.opendns.com@resolver1.opendns.com",
}

// ParseSource builds a Source from a spec of the form
//
//	http:URL
//	dns:NAME@SERVER[/TYPE]
//	iface:NAME
//	static:IP
//
// A bare http:// or https:// URL is accepted as an http source.
func ParseSource(spec string, client *http.Client) (Source, error) {
	spec = strings.TrimSpace(spec)
	if strings.HasPrefix(spec, "http://") || strings.HasPrefix(spec, "https://") {
		return HTTP(spec, client)
	}
	kind, arg, ok := strings.Cut(spec, ":")
	if !ok || arg == "" {
		return nil, fmt.Errorf("invalid address source %q", spec)
	}
	switch strings.ToLower(kind) {
	case "http":
		return HTTP(arg, client)
	case "dns":
		return parseDNS(arg)
	case "iface":
		return Interface(arg), nil
	case "static":
		return Static(arg)
	default:
		return nil, fmt.Errorf("unknown address source kind %q in %q", kind, spec)
	}
}

// ParseSources parses each spec in order.
func ParseSources(specs []string, client *http.Client) ([]Source, error) {
	out := make([]Source, 0, len(specs))
	for _, s := range specs {
		src, err := ParseSource(s, client)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func parseDNS(arg string) (Source, error) {
	name, rest, ok := strings.Cut(arg, "@")
	if !ok || name == "" || rest == "" {
		return nil, fmt.Errorf("dns source %q must be NAME@SERVER[/TYPE]", arg)
	}
	server, typ, _ := strings.Cut(rest, "/")
	qtype := dns.TypeA
	if typ != "" {
		t, ok := dns.StringToType[strings.ToUpper(typ)]
		if !ok || (t != dns.TypeA && t != dns.TypeAAAA && t != dns.TypeTXT) {
			return nil, fmt.Errorf("unsupported dns query type %q", typ)
		}
		qtype = t
	}
	return DNS(name, server, qtype), nil
}
