package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bkero/dyndns-updater/pkg/record"
)

type fakeEngine struct {
	ready   bool
	pending int
	store   *record.Store
}

func (f *fakeEngine) Ready() bool          { return f.ready }
func (f *fakeEngine) PendingRetries() int  { return f.pending }
func (f *fakeEngine) Store() *record.Store { return f.store }

func newFakeEngine() *fakeEngine {
	return &fakeEngine{store: record.NewStore()}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz_AlwaysOK(t *testing.T) {
	rec := get(t, New(newFakeEngine(), "fake", nil).Handler(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	eng := newFakeEngine()
	h := New(eng, "fake", nil).Handler()
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before ready = %d, want 503", rec.Code)
	}
	eng.ready = true
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("/readyz after ready = %d, want 200", rec.Code)
	}
}

func TestStatus_JSONSnapshot(t *testing.T) {
	eng := newFakeEngine()
	eng.ready, eng.pending = true, 1
	eng.store.Update("b.example.com", netip.MustParseAddr("1.2.3.4"), true)
	eng.store.Disable("a.example.com", "auth: invalid token")

	rec := get(t, New(eng, "cloudflare", nil).Handler(), "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("/status = %d", rec.Code)
	}
	var body Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Ready || body.Provider != "cloudflare" || body.PendingRetries != 1 {
		t.Errorf("body = %+v", body)
	}
	if len(body.Domains) != 2 || body.Domains[0].Domain != "a.example.com" || !body.Domains[0].Disabled {
		t.Fatalf("domains = %+v", body.Domains)
	}
	if body.Domains[1].LastPublished != netip.MustParseAddr("1.2.3.4") {
		t.Errorf("LastPublished = %v", body.Domains[1].LastPublished)
	}
}

func TestCORS_AllowedOrigin(t *testing.T) {
	h := New(newFakeEngine(), "fake", nil, "https://dash.example.com").Handler()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("disallowed origin: status = %d, want 403", rec.Code)
	}
}

func TestCORS_DisabledByDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	New(newFakeEngine(), "fake", nil).Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want none", got)
	}
}

func TestMetrics_Exposed(t *testing.T) {
	rec := get(t, New(newFakeEngine(), "fake", nil).Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("/metrics body missing default collectors")
	}
}

func TestStart_ZeroPortDisabled(t *testing.T) {
	if err := New(newFakeEngine(), "fake", nil).Start(context.Background(), 0); err != nil {
		t.Errorf("Start(0) error = %v", err)
	}
}

func TestStart_ServesAndShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := New(newFakeEngine(), "fake", nil).Start(ctx, port); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/healthz"
	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get(url)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz = %d", resp.StatusCode)
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port
	if err := New(newFakeEngine(), "fake", nil).Start(context.Background(), port); err == nil {
		t.Error("expected listen error for a port in use")
	}
}
