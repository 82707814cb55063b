package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/bkero/dyndns-updater/pkg/source"
)

// fileConfig is the YAML layout of a configuration file. Pointer fields
// distinguish "absent" from a zero value.
type fileConfig struct {
	AccessKeyID         string            `yaml:"access-key-id"`
	AccessKeySecret     string            `yaml:"access-key-secret"`
	AccessKeySecretFile string            `yaml:"access-key-secret-file"`
	Region              string            `yaml:"region"`
	Domains             []string          `yaml:"domains"`
	Period              *int64            `yaml:"period"`
	TTL                 *int64            `yaml:"ttl"`
	Mode                string            `yaml:"mode"`
	Provider            string            `yaml:"provider"`
	ProviderSettings    map[string]string `yaml:"provider-settings"`
	IPSources           []string          `yaml:"ip-sources"`
	PublishTimeout      string            `yaml:"publish-timeout"`
	BackoffFloor        string            `yaml:"backoff-floor"`
	BackoffMax          string            `yaml:"backoff-max"`
	BackoffPeriodFactor *int              `yaml:"backoff-period-factor"`
	Concurrency         *int              `yaml:"concurrency"`
	DockerLabels        *bool             `yaml:"docker-labels"`
	DockerHost          string            `yaml:"docker-host"`
	Debounce            string            `yaml:"debounce"`
	StatusPort          *int              `yaml:"status-port"`
	StatusCORSOrigins   []string          `yaml:"status-cors-origins"`
	LogLevel            string            `yaml:"log-level"`
	DryRun              *bool             `yaml:"dry-run"`
	ShutdownTimeout     string            `yaml:"shutdown-timeout"`
}

// loadFile reads the YAML file at path and overlays its values onto cfg.
// Unknown keys are rejected.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Error{Field: "config", Err: err}
	}
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return &Error{Field: "config", Err: fmt.Errorf("parsing %s: %w", path, err)}
	}
	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	setStr(&cfg.AccessKeyID, fc.AccessKeyID)
	setStr(&cfg.AccessKeySecret, fc.AccessKeySecret)
	setStr(&cfg.AccessKeySecretFile, fc.AccessKeySecretFile)
	setStr(&cfg.Region, fc.Region)
	if len(fc.Domains) > 0 {
		cfg.Domains = source.SplitDomains(strings.Join(fc.Domains, ","))
	}
	setPtr(&cfg.Period, fc.Period)
	setPtr(&cfg.TTL, fc.TTL)
	if fc.Mode != "" {
		m, err := ParseMode(fc.Mode)
		if err != nil {
			return &Error{Field: "mode", Err: err}
		}
		cfg.Mode = m
	}
	setStr(&cfg.Provider, fc.Provider)
	if len(fc.ProviderSettings) > 0 {
		cfg.ProviderSettings = mergeSettings(cfg.ProviderSettings, fc.ProviderSettings)
	}
	if len(fc.IPSources) > 0 {
		cfg.IPSources = fc.IPSources
	}
	setPtr(&cfg.BackoffPeriodFactor, fc.BackoffPeriodFactor)
	setPtr(&cfg.Concurrency, fc.Concurrency)
	setPtr(&cfg.DockerLabels, fc.DockerLabels)
	setStr(&cfg.DockerHost, fc.DockerHost)
	setPtr(&cfg.StatusPort, fc.StatusPort)
	if len(fc.StatusCORSOrigins) > 0 {
		cfg.StatusCORSOrigins = fc.StatusCORSOrigins
	}
	setStr(&cfg.LogLevel, fc.LogLevel)
	setPtr(&cfg.DryRun, fc.DryRun)

	for _, d := range []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"publish-timeout", fc.PublishTimeout, &cfg.PublishTimeout},
		{"backoff-floor", fc.BackoffFloor, &cfg.BackoffFloor},
		{"backoff-max", fc.BackoffMax, &cfg.BackoffMax},
		{"debounce", fc.Debounce, &cfg.DebounceDuration},
		{"shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout},
	} {
		if d.val == "" {
			continue
		}
		v, err := time.ParseDuration(d.val)
		if err != nil {
			return &Error{Field: d.key, Err: err}
		}
		*d.dst = v
	}
	return nil
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
