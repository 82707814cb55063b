package resolver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

const httpLookupTimeout = 15 * time.Second

// HTTP returns a source that asks a web service for the caller's address.
// The service must answer "200 OK" with an IPv4 or IPv6 address on the first
// line of the body. A nil client uses http.DefaultClient.
func HTTP(serviceURL string, client *http.Client) (Source, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &httpSource{url: u, client: client}, nil
}

type httpSource struct {
	url    *url.URL
	client *http.Client
}

func (s *httpSource) Name() string { return "http:" + s.url.String() }

func (s *httpSource) Lookup(ctx context.Context) (netip.Addr, error) {
	// Bounds the call even when the caller's context has no deadline and
	// the client has no timeout.
	ctx, cancel := context.WithTimeout(ctx, httpLookupTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url.String(), nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("http request returned %s", resp.Status)
	}

	line, err := bufio.NewReader(io.LimitReader(resp.Body, 512)).ReadString('\n')
	if err != nil && err != io.EOF {
		return netip.Addr{}, fmt.Errorf("error reading response body: %w", err)
	}
	ip, err := netip.ParseAddr(strings.TrimSpace(line))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address from response body: %w", err)
	}
	return ip, nil
}
