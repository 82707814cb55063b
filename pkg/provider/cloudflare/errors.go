package cloudflare

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bkero/dyndns-updater/pkg/provider"
)

// callStatus records the last failing HTTP response seen while serving one
// Publish call. The SDK's error values do not carry a stable status code, so
// classification reads it off the wire instead.
type callStatus struct {
	mu         sync.Mutex
	code       int
	retryAfter time.Duration
}

type callStatusKey struct{}

func withCallStatus(ctx context.Context) (context.Context, *callStatus) {
	s := &callStatus{}
	return context.WithValue(ctx, callStatusKey{}, s), s
}

func (s *callStatus) get() (int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.retryAfter
}

// statusTransport notes non-2xx responses on the request's callStatus.
type statusTransport struct {
	base http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil || resp.StatusCode < 300 {
		return resp, err
	}
	if s, ok := req.Context().Value(callStatusKey{}).(*callStatus); ok {
		s.mu.Lock()
		s.code = resp.StatusCode
		s.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		s.mu.Unlock()
	}
	return resp, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// classify turns an SDK failure into a *provider.Error using the HTTP status
// of the failing response.
func classify(domain string, status *callStatus, err error) error {
	var pe *provider.Error
	if errors.As(err, &pe) {
		return err
	}
	code, retryAfter := status.get()
	kind := provider.KindTransient
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		kind = provider.KindAuth
	case code == http.StatusNotFound:
		kind = provider.KindNotFound
	case code == http.StatusTooManyRequests:
		kind = provider.KindRateLimited
	}
	return &provider.Error{Kind: kind, Domain: domain, RetryAfter: retryAfter, Err: err}
}
