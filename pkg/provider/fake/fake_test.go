package fake

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/bkero/dyndns-updater/pkg/provider"
)

var ip1 = netip.MustParseAddr("1.2.3.4")

func TestPublish_StoresRecord(t *testing.T) {
	p := New()
	if err := p.Publish(context.Background(), "a.example.com", ip1, 600); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	got, ok := p.Record("a.example.com")
	if !ok || got != ip1 {
		t.Errorf("Record() = %v, %v; want %v, true", got, ok, ip1)
	}
	if n := p.CallCount("a.example.com"); n != 1 {
		t.Errorf("CallCount = %d, want 1", n)
	}
}

func TestPublish_ScriptConsumedInOrder(t *testing.T) {
	p := New()
	rl := &provider.Error{Kind: provider.KindRateLimited}
	p.Script("a.example.com", rl, nil)

	if err := p.Publish(context.Background(), "a.example.com", ip1, 600); !errors.Is(err, rl) {
		t.Fatalf("first Publish() error = %v, want scripted rate limit", err)
	}
	if _, ok := p.Record("a.example.com"); ok {
		t.Error("failed publish must not store a record")
	}
	if err := p.Publish(context.Background(), "a.example.com", ip1, 600); err != nil {
		t.Fatalf("second Publish() error = %v", err)
	}
	if err := p.Publish(context.Background(), "a.example.com", ip1, 600); err != nil {
		t.Fatalf("drained script should succeed, got %v", err)
	}
	if n := len(p.Calls()); n != 3 {
		t.Errorf("got %d calls, want 3", n)
	}
}

func TestPublish_FailAlways(t *testing.T) {
	p := New()
	boom := errors.New("boom")
	p.FailAlways("a.example.com", boom)
	for i := 0; i < 3; i++ {
		if err := p.Publish(context.Background(), "a.example.com", ip1, 600); !errors.Is(err, boom) {
			t.Fatalf("Publish() #%d error = %v, want boom", i, err)
		}
	}
	if err := p.Publish(context.Background(), "b.example.com", ip1, 600); err != nil {
		t.Errorf("other domain should succeed, got %v", err)
	}
}

func TestPublish_HookOverridesResult(t *testing.T) {
	p := New()
	p.OnPublish(func(ctx context.Context, _ string) error { return ctx.Err() })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, "a.example.com", ip1, 600); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish() error = %v, want context.Canceled", err)
	}
}

func TestRegistered(t *testing.T) {
	p, err := provider.New("fake", nil, provider.Settings{})
	if err != nil {
		t.Fatalf("provider.New(fake) error = %v", err)
	}
	if p.Name() != "fake" {
		t.Errorf("Name() = %q, want fake", p.Name())
	}
}
