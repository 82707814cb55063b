package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	_ "github.com/bkero/dyndns-updater/pkg/provider/fake"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

// ---- newLogger ----

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"trace", slog.LevelInfo},
	}
	for _, tt := range tests {
		log := newLogger(tt.input, io.Discard)
		if !log.Enabled(context.TODO(), tt.want) {
			t.Errorf("newLogger(%q): level %v not enabled", tt.input, tt.want)
		}
		if tt.want < slog.LevelError && log.Enabled(context.TODO(), tt.want-1) {
			t.Errorf("newLogger(%q): level below threshold (%v) should not be enabled", tt.input, tt.want-1)
		}
	}
}

// ---- run ----

func TestRun_Help(t *testing.T) {
	if code := run(context.Background(), []string{"-h"}, envMap(nil), io.Discard); code != 0 {
		t.Errorf("run(-h) = %d, want 0", code)
	}
}

func TestRun_ConfigError(t *testing.T) {
	var buf bytes.Buffer
	code := run(context.Background(), []string{"--provider", "fake"}, envMap(nil), &buf)
	if code != 1 {
		t.Errorf("run() = %d, want 1", code)
	}
	if !strings.Contains(buf.String(), "configuration error") {
		t.Errorf("expected configuration error in log, got %q", buf.String())
	}
}

func TestRun_BadFlag(t *testing.T) {
	if code := run(context.Background(), []string{"--ttl", "x"}, envMap(nil), io.Discard); code != 1 {
		t.Errorf("run() = %d, want 1", code)
	}
}

func TestRun_Once_Success(t *testing.T) {
	var buf bytes.Buffer
	code := run(context.Background(), []string{
		"--once",
		"--provider", "fake",
		"--domain", "home.example.com",
		"--ip-source", "static:203.0.113.7",
		"--access-key-secret", "hunter2",
	}, envMap(nil), &buf)
	if code != 0 {
		t.Fatalf("run() = %d, want 0; log:\n%s", code, buf.String())
	}
	out := buf.String()
	if !strings.Contains(out, "published address") || !strings.Contains(out, "203.0.113.7") {
		t.Errorf("expected publish in log, got:\n%s", out)
	}
	if strings.Contains(out, "hunter2") {
		t.Error("secret leaked into log")
	}
}

func TestRun_Once_ResolveFailure(t *testing.T) {
	code := run(context.Background(), []string{
		"--once",
		"--provider", "fake",
		"--domain", "home.example.com",
		"--ip-source", "iface:nonexistent-if0",
	}, envMap(nil), io.Discard)
	if code != 1 {
		t.Errorf("run() = %d, want 1", code)
	}
}

func TestRun_ManagedMode(t *testing.T) {
	var buf bytes.Buffer
	code := run(context.Background(), nil, envMap(map[string]string{
		"DYNDNS_MODE":       "docker",
		"DYNDNS_PROVIDER":   "fake",
		"DYNDNS_DOMAIN":     "a.example.com,b.example.com",
		"DYNDNS_IP_SOURCES": "static:2001:db8::7",
		"DYNDNS_ONCE":       "true",
		"DYNDNS_DRY_RUN":    "true",
	}), &buf)
	if code != 0 {
		t.Fatalf("run() = %d, want 0; log:\n%s", code, buf.String())
	}
	if n := strings.Count(buf.String(), "dry-run: would publish"); n != 2 {
		t.Errorf("got %d dry-run lines, want 2:\n%s", n, buf.String())
	}
}

func TestRun_CancelledExitsCleanly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code := run(ctx, []string{
		"--provider", "fake",
		"--domain", "home.example.com",
		"--ip-source", "static:203.0.113.7",
		"--status-port", "0",
	}, envMap(nil), io.Discard)
	if code != 0 {
		t.Errorf("run() = %d, want 0", code)
	}
}
