package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"auth", &Error{Kind: KindAuth}, KindAuth},
		{"wrapped not found", fmt.Errorf("publish: %w", &Error{Kind: KindNotFound}), KindNotFound},
		{"rate limited", &Error{Kind: KindRateLimited}, KindRateLimited},
		{"plain error", errors.New("connection reset"), KindTransient},
		{"deadline", context.DeadlineExceeded, KindTransient},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("%s: KindOf() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestKind_Fatal(t *testing.T) {
	for k, want := range map[Kind]bool{
		KindAuth:        true,
		KindNotFound:    true,
		KindRateLimited: false,
		KindTransient:   false,
	} {
		if got := k.Fatal(); got != want {
			t.Errorf("%v.Fatal() = %v, want %v", k, got, want)
		}
	}
}

func TestRetryAfter(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &Error{Kind: KindRateLimited, RetryAfter: 30 * time.Second})
	if got := RetryAfter(err); got != 30*time.Second {
		t.Errorf("RetryAfter() = %v, want 30s", got)
	}
	if got := RetryAfter(errors.New("x")); got != 0 {
		t.Errorf("RetryAfter(plain) = %v, want 0", got)
	}
}

func TestError_Message(t *testing.T) {
	err := Errorf(KindAuth, "a.example.com", "rcode %s", "NOTAUTH")
	if got, want := err.Error(), "a.example.com: auth: rcode NOTAUTH"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

type nopProvider struct{}

func (nopProvider) Name() string { return "nop" }
func (nopProvider) Publish(context.Context, string, netip.Addr, int64) error {
	return nil
}

func TestRegistry_NewAndNames(t *testing.T) {
	Register("nop-test", func(_ *slog.Logger, s Settings) (Provider, error) {
		if s.Option("fail", "") == "yes" {
			return nil, errors.New("asked to fail")
		}
		return nopProvider{}, nil
	})

	if !Registered("nop-test") {
		t.Fatal("nop-test not registered")
	}
	if _, err := New("nop-test", nil, Settings{}); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := New("nop-test", nil, Settings{Options: map[string]string{"fail": "yes"}}); err == nil {
		t.Error("expected factory error to propagate")
	}
	if _, err := New("does-not-exist", nil, Settings{}); err == nil {
		t.Error("expected error for unknown provider")
	}

	found := false
	for _, n := range Names() {
		if n == "nop-test" {
			found = true
		}
	}
	if !found {
		t.Errorf("Names() = %v, missing nop-test", Names())
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	Register("dup-test", func(*slog.Logger, Settings) (Provider, error) { return nopProvider{}, nil })
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	Register("dup-test", func(*slog.Logger, Settings) (Provider, error) { return nopProvider{}, nil })
}

func TestRegister_RequiredCredentials(t *testing.T) {
	Register("creds-test", func(*slog.Logger, Settings) (Provider, error) { return nopProvider{}, nil },
		Credentials{Secret: true})
	if got := RequiredCredentials("creds-test"); got.KeyID || !got.Secret {
		t.Errorf("RequiredCredentials() = %+v, want secret only", got)
	}
	if got := RequiredCredentials("nop-test"); got.KeyID || got.Secret {
		t.Errorf("RequiredCredentials(no declaration) = %+v, want none", got)
	}
}
