// Package config builds the single validated configuration the updater runs
// with. Sources are applied once, in order: defaults, an optional YAML file,
// flags that were set explicitly and, in managed mode, environment variables.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/bkero/dyndns-updater/pkg/provider"
	"github.com/bkero/dyndns-updater/pkg/resolver"
	"github.com/bkero/dyndns-updater/pkg/source"
)

// Mode selects where configuration comes from.
type Mode string

const (
	// ModeCLI reads flags (and an optional file). Environment is ignored.
	ModeCLI Mode = "cli"
	// ModeEnv lets environment variables override everything else.
	ModeEnv Mode = "env"
	// ModeDocker is ModeEnv for containerized deployments.
	ModeDocker Mode = "docker"
)

// Managed reports whether environment variables take precedence.
func (m Mode) Managed() bool { return m == ModeEnv || m == ModeDocker }

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeCLI, ModeEnv, ModeDocker:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want cli, env or docker)", s)
	}
}

// Config is the complete runtime configuration. Build it with Parse, then
// call Validate.
type Config struct {
	AccessKeyID         string
	AccessKeySecret     string
	AccessKeySecretFile string
	Region              string
	Domains             []string
	// Period is the sweep interval in seconds.
	Period int64
	// TTL is the published record TTL in seconds.
	TTL  int64
	Mode Mode

	Provider         string
	ProviderSettings map[string]string
	// IPSources are resolver source specs. Empty means resolver.DefaultSources.
	IPSources []string

	PublishTimeout      time.Duration
	BackoffFloor        time.Duration
	BackoffMax          time.Duration
	BackoffPeriodFactor int
	Concurrency         int

	DockerLabels     bool
	DockerHost       string
	DebounceDuration time.Duration

	StatusPort int
	// StatusCORSOrigins lists browser origins allowed to read the status
	// endpoints. Empty disables CORS.
	StatusCORSOrigins []string

	LogLevel        string
	DryRun          bool
	Once            bool
	ShutdownTimeout time.Duration
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Region:              "cn-hangzhou",
		Period:              600,
		TTL:                 600,
		Mode:                ModeCLI,
		Provider:            "cloudflare",
		PublishTimeout:      30 * time.Second,
		BackoffFloor:        5 * time.Second,
		BackoffMax:          30 * time.Minute,
		BackoffPeriodFactor: 2,
		Concurrency:         4,
		DebounceDuration:    5 * time.Second,
		StatusPort:          8080,
		LogLevel:            "info",
		ShutdownTimeout:     30 * time.Second,
	}
}

// PeriodDuration returns Period as a time.Duration.
func (c Config) PeriodDuration() time.Duration {
	return time.Duration(c.Period) * time.Second
}

// Sources returns the configured IP source specs, or the defaults.
func (c Config) Sources() []string {
	if len(c.IPSources) == 0 {
		return resolver.DefaultSources
	}
	return c.IPSources
}

// ProviderConfig returns the settings handed to the provider factory.
func (c Config) ProviderConfig() provider.Settings {
	return provider.Settings{
		AccessKeyID:     c.AccessKeyID,
		AccessKeySecret: c.AccessKeySecret,
		Region:          c.Region,
		Options:         c.ProviderSettings,
	}
}

// LogValue implements slog.LogValuer. Secrets are redacted.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("mode", string(c.Mode)),
		slog.String("provider", c.Provider),
		slog.String("region", c.Region),
		slog.Any("domains", c.Domains),
		slog.Int64("period", c.Period),
		slog.Int64("ttl", c.TTL),
		slog.Any("ip_sources", c.Sources()),
		slog.String("access_key_id", c.AccessKeyID),
		slog.String("access_key_secret", redact(c.AccessKeySecret)),
		slog.Bool("docker_labels", c.DockerLabels),
		slog.Int("status_port", c.StatusPort),
		slog.Bool("dry_run", c.DryRun),
		slog.Bool("once", c.Once),
	)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// Error is a configuration validation failure. It is fatal at startup.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration: %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(field, format string, args ...any) *Error {
	return &Error{Field: field, Err: fmt.Errorf(format, args...)}
}

// Parse builds a Config from command-line args and the environment looked
// up through getenv. It does not validate; call Validate on the result.
func Parse(args []string, getenv func(string) string) (Config, error) {
	return parse(args, getenv, os.Stderr)
}

func parse(args []string, getenv func(string) string, usage io.Writer) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	fs, fc, configPath := newFlagSet()
	fs.SetOutput(usage)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Config{}, err
		}
		return Config{}, &Error{Field: "flags", Err: err}
	}
	if fs.NArg() > 0 {
		return Config{}, errorf("flags", "unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg := Defaults()

	path := *configPath
	if path == "" {
		path = getenv("DYNDNS_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		if set, ok := flagSetters[f.Name]; ok {
			set(&cfg, fc)
		}
	})

	if v := getenv("DYNDNS_MODE"); v != "" {
		m, err := ParseMode(v)
		if err != nil {
			return Config{}, &Error{Field: "DYNDNS_MODE", Err: err}
		}
		cfg.Mode = m
	}
	if cfg.Mode.Managed() {
		if err := applyEnv(&cfg, getenv); err != nil {
			return Config{}, err
		}
	}

	if err := resolveSecretFile(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Domains = source.Dedupe(cfg.Domains)
	return cfg, nil
}

func resolveSecretFile(cfg *Config) error {
	if cfg.AccessKeySecretFile == "" {
		return nil
	}
	if cfg.AccessKeySecret != "" {
		return errorf("access-key-secret", "access key secret and secret file are mutually exclusive")
	}
	b, err := os.ReadFile(cfg.AccessKeySecretFile)
	if err != nil {
		return &Error{Field: "access-key-secret-file", Err: err}
	}
	cfg.AccessKeySecret = strings.TrimSpace(string(b))
	cfg.AccessKeySecretFile = ""
	return nil
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration and returns an *Error for the first
// problem found.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return &Error{Field: "mode", Err: err}
	}
	if len(c.Domains) == 0 && !c.DockerLabels {
		return errorf("domain", "at least one domain is required")
	}
	for _, d := range c.Domains {
		if !validDomain(d) {
			return errorf("domain", "invalid domain name %q", d)
		}
	}
	if c.Period <= 0 {
		return errorf("period", "must be positive, got %d", c.Period)
	}
	if c.TTL <= 0 {
		return errorf("ttl", "must be positive, got %d", c.TTL)
	}
	if c.Provider == "" {
		return errorf("provider", "a provider is required")
	}
	if !provider.Registered(c.Provider) {
		return errorf("provider", "unknown provider %q (available: %s)", c.Provider, strings.Join(provider.Names(), ", "))
	}
	creds := provider.RequiredCredentials(c.Provider)
	if creds.KeyID && c.AccessKeyID == "" {
		return errorf("access-key-id", "required by provider %s", c.Provider)
	}
	if creds.Secret && c.AccessKeySecret == "" {
		return errorf("access-key-secret", "required by provider %s", c.Provider)
	}
	if _, err := resolver.ParseSources(c.IPSources, nil); err != nil {
		return &Error{Field: "ip-source", Err: err}
	}
	if c.PublishTimeout <= 0 {
		return errorf("publish-timeout", "must be positive")
	}
	if c.BackoffFloor <= 0 || c.BackoffMax < c.BackoffFloor {
		return errorf("backoff", "floor %s must be positive and not above max %s", c.BackoffFloor, c.BackoffMax)
	}
	if c.BackoffPeriodFactor <= 0 {
		return errorf("backoff-period-factor", "must be positive")
	}
	if c.Concurrency <= 0 {
		return errorf("concurrency", "must be positive")
	}
	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return errorf("status-port", "out of range: %d", c.StatusPort)
	}
	for _, o := range c.StatusCORSOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return errorf("status-cors-origin", "origin %q must be * or start with http:// or https://", o)
		}
	}
	if !logLevels[strings.ToLower(c.LogLevel)] {
		return errorf("log-level", "unknown level %q", c.LogLevel)
	}
	return nil
}

// validDomain accepts fully-qualified, non-wildcard host names.
func validDomain(d string) bool {
	if strings.Contains(d, "*") || !strings.Contains(d, ".") {
		return false
	}
	_, ok := dns.IsDomainName(d)
	return ok
}
