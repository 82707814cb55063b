package libdnsadapter

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/libdns/libdns"

	"github.com/bkero/dyndns-updater/pkg/provider"
)

type setCall struct {
	zone string
	recs []libdns.Record
}

type fakeSetter struct {
	calls []setCall
	err   error
}

func (f *fakeSetter) SetRecords(_ context.Context, zone string, recs []libdns.Record) ([]libdns.Record, error) {
	f.calls = append(f.calls, setCall{zone: zone, recs: recs})
	if f.err != nil {
		return nil, f.err
	}
	return recs, nil
}

func TestPublish_SetsAddressInLongestZone(t *testing.T) {
	fs := &fakeSetter{}
	p := New("porkbun", fs, []string{"example.com", "Dyn.Example.com."}, nil)

	if err := p.Publish(context.Background(), "home.dyn.example.com", netip.MustParseAddr("::ffff:1.2.3.4"), 300); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(fs.calls) != 1 {
		t.Fatalf("got %d SetRecords calls, want 1", len(fs.calls))
	}
	c := fs.calls[0]
	if c.zone != "dyn.example.com." {
		t.Errorf("zone = %q, want dyn.example.com.", c.zone)
	}
	a, ok := c.recs[0].(libdns.Address)
	if !ok {
		t.Fatalf("record is %T, want libdns.Address", c.recs[0])
	}
	if a.Name != "home" || a.TTL != 300*time.Second || a.IP != netip.MustParseAddr("1.2.3.4") {
		t.Errorf("record = %+v", a)
	}
}

func TestPublish_Apex(t *testing.T) {
	fs := &fakeSetter{}
	if err := New("x", fs, []string{"example.com"}, nil).Publish(context.Background(), "example.com", netip.MustParseAddr("2001:db8::1"), 60); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if a := fs.calls[0].recs[0].(libdns.Address); a.Name != "@" {
		t.Errorf("Name = %q, want @", a.Name)
	}
}

func TestPublish_NoZone_NotFound(t *testing.T) {
	fs := &fakeSetter{}
	err := New("x", fs, []string{"example.com"}, nil).Publish(context.Background(), "host.example.org", netip.MustParseAddr("1.2.3.4"), 60)
	if provider.KindOf(err) != provider.KindNotFound {
		t.Errorf("kind = %v, want not_found (err=%v)", provider.KindOf(err), err)
	}
	if len(fs.calls) != 0 {
		t.Error("SetRecords called for an unknown zone")
	}
}

func TestPublish_ErrorClassification(t *testing.T) {
	fs := &fakeSetter{err: errors.New("connection reset")}
	p := New("x", fs, []string{"example.com"}, nil)
	err := p.Publish(context.Background(), "home.example.com", netip.MustParseAddr("1.2.3.4"), 60)
	if provider.KindOf(err) != provider.KindTransient {
		t.Errorf("kind = %v, want transient", provider.KindOf(err))
	}

	fs.err = &provider.Error{Kind: provider.KindRateLimited, RetryAfter: time.Minute, Err: errors.New("slow down")}
	err = p.Publish(context.Background(), "home.example.com", netip.MustParseAddr("1.2.3.4"), 60)
	if provider.KindOf(err) != provider.KindRateLimited || provider.RetryAfter(err) != time.Minute {
		t.Errorf("kind = %v, hint = %v", provider.KindOf(err), provider.RetryAfter(err))
	}
}

func TestName(t *testing.T) {
	if got := New("porkbun", &fakeSetter{}, nil, nil).Name(); got != "porkbun" {
		t.Errorf("Name() = %q", got)
	}
}
