// Package cloudflare implements provider.Provider on top of the Cloudflare
// v4 API.
package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"

	"github.com/cloudflare/cloudflare-go"

	"github.com/bkero/dyndns-updater/pkg/provider"
)

const defaultComment = "managed by dyndns-updater"

func init() {
	provider.Register("cloudflare", func(log *slog.Logger, s provider.Settings) (provider.Provider, error) {
		if s.AccessKeySecret == "" {
			return nil, errors.New("an API token (access key secret) is required")
		}
		var opts []cloudflare.Option
		if u := s.Option("base-url", ""); u != "" {
			opts = append(opts, cloudflare.BaseURL(u))
		}
		return New(s.AccessKeySecret, log, nil, opts...)
	}, provider.Credentials{Secret: true})
}

// Provider implements provider.Provider.
//
// Zone IDs are looked up once per zone and cached for the life of the process.
type Provider struct {
	api     *cloudflare.API
	log     *slog.Logger
	comment string

	mu    sync.Mutex
	zones map[string]string // domain -> zone ID
}

// New creates a Cloudflare provider authenticated with an API token. The
// SDK's own retries are disabled; retry and backoff belong to the caller.
func New(token string, log *slog.Logger, httpClient *http.Client, opts ...cloudflare.Option) (*Provider, error) {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	hc := *httpClient
	hc.Transport = &statusTransport{base: httpClient.Transport}

	opts = append([]cloudflare.Option{
		cloudflare.HTTPClient(&hc),
		cloudflare.UsingRetryPolicy(0, 0, 0),
	}, opts...)
	api, err := cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	return &Provider{
		api:     api,
		log:     log,
		comment: defaultComment,
		zones:   make(map[string]string),
	}, nil
}

// Name implements provider.Provider.
func (cf *Provider) Name() string { return "cloudflare" }

// Publish makes ip the only record of its type for domain.
func (cf *Provider) Publish(ctx context.Context, domain string, ip netip.Addr, ttl int64) error {
	ctx, status := withCallStatus(ctx)
	ip = ip.Unmap()

	zid, err := cf.zoneID(ctx, domain)
	if err != nil {
		return classify(domain, status, fmt.Errorf("unable to get zone ID for %s: %w", domain, err))
	}
	rc := cloudflare.ZoneIdentifier(zid)
	rtype := recordType(ip)

	records, _, err := cf.api.ListDNSRecords(ctx, rc, cloudflare.ListDNSRecordsParams{
		Type: rtype,
		Name: domain,
	})
	if err != nil {
		return classify(domain, status, fmt.Errorf("error listing %s records: %w", rtype, err))
	}
	cf.log.Debug("found existing records", "domain", domain, "type", rtype, "count", len(records))

	keep := false
	for _, r := range records {
		a, err := netip.ParseAddr(r.Content)
		if err == nil && a == ip && int64(r.TTL) == ttl && !keep {
			keep = true
			continue
		}
		cf.log.Debug("deleting stale record", "domain", domain, "content", r.Content, "id", r.ID)
		if err := cf.api.DeleteDNSRecord(ctx, rc, r.ID); err != nil {
			return classify(domain, status, fmt.Errorf("unable to delete DNS record %s: %w", r.ID, err))
		}
	}
	if keep {
		return nil
	}

	_, err = cf.api.CreateDNSRecord(ctx, rc, cloudflare.CreateDNSRecordParams{
		Type:    rtype,
		Name:    domain,
		Content: ip.String(),
		ZoneID:  zid,
		TTL:     int(ttl),
		Comment: cf.comment,
	})
	if err != nil {
		return classify(domain, status, fmt.Errorf("error creating DNS record: %w", err))
	}
	return nil
}

// Preflight verifies that the API token is valid and active.
func (cf *Provider) Preflight(ctx context.Context) error {
	ctx, status := withCallStatus(ctx)
	result, err := cf.api.VerifyAPIToken(ctx)
	if err != nil {
		return classify("", status, fmt.Errorf("unable to verify api token: %w", err))
	}
	if result.Status != "active" {
		return &provider.Error{Kind: provider.KindAuth,
			Err: fmt.Errorf("expected api token status to be \"active\"; got %q", result.Status)}
	}
	cf.log.Debug("api token verified")
	return nil
}

// zoneID returns the ID of the zone with the longest name that contains domain.
func (cf *Provider) zoneID(ctx context.Context, domain string) (string, error) {
	cf.mu.Lock()
	zid, ok := cf.zones[domain]
	cf.mu.Unlock()
	if ok {
		return zid, nil
	}

	zones, err := cf.api.ListZones(ctx)
	if err != nil {
		return "", fmt.Errorf("error listing zones: %w", err)
	}
	best := 0
	for _, z := range zones {
		if (domain == z.Name || strings.HasSuffix(domain, "."+z.Name)) && len(z.Name) > best {
			best, zid = len(z.Name), z.ID
		}
	}
	if best == 0 {
		return "", &provider.Error{Kind: provider.KindNotFound, Domain: domain,
			Err: fmt.Errorf("unable to find a zone matching %q", domain)}
	}

	cf.mu.Lock()
	cf.zones[domain] = zid
	cf.mu.Unlock()
	return zid, nil
}

func recordType(a netip.Addr) string {
	if a.Is4() {
		return "A"
	}
	return "AAAA"
}
