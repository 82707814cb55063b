package config

import (
	"flag"
	"fmt"
	"strings"

	"github.com/bkero/dyndns-updater/pkg/source"
)

// flagSetters copies an explicitly set flag from the staging config into the
// merged one. Flags left at their defaults never override a file value.
var flagSetters = map[string]func(dst, src *Config){
	"access-key-id":          func(d, s *Config) { d.AccessKeyID = s.AccessKeyID },
	"access-key-secret":      func(d, s *Config) { d.AccessKeySecret = s.AccessKeySecret },
	"access-key-secret-file": func(d, s *Config) { d.AccessKeySecretFile = s.AccessKeySecretFile },
	"region":                 func(d, s *Config) { d.Region = s.Region },
	"domain":                 func(d, s *Config) { d.Domains = s.Domains },
	"period":                 func(d, s *Config) { d.Period = s.Period },
	"ttl":                    func(d, s *Config) { d.TTL = s.TTL },
	"mode":                   func(d, s *Config) { d.Mode = s.Mode },
	"provider":               func(d, s *Config) { d.Provider = s.Provider },
	"provider-setting":       func(d, s *Config) { d.ProviderSettings = mergeSettings(d.ProviderSettings, s.ProviderSettings) },
	"ip-source":              func(d, s *Config) { d.IPSources = s.IPSources },
	"publish-timeout":        func(d, s *Config) { d.PublishTimeout = s.PublishTimeout },
	"backoff-floor":          func(d, s *Config) { d.BackoffFloor = s.BackoffFloor },
	"backoff-max":            func(d, s *Config) { d.BackoffMax = s.BackoffMax },
	"backoff-period-factor":  func(d, s *Config) { d.BackoffPeriodFactor = s.BackoffPeriodFactor },
	"concurrency":            func(d, s *Config) { d.Concurrency = s.Concurrency },
	"docker-labels":          func(d, s *Config) { d.DockerLabels = s.DockerLabels },
	"docker-host":            func(d, s *Config) { d.DockerHost = s.DockerHost },
	"debounce":               func(d, s *Config) { d.DebounceDuration = s.DebounceDuration },
	"status-port":            func(d, s *Config) { d.StatusPort = s.StatusPort },
	"status-cors-origin":     func(d, s *Config) { d.StatusCORSOrigins = s.StatusCORSOrigins },
	"log-level":              func(d, s *Config) { d.LogLevel = s.LogLevel },
	"dry-run":                func(d, s *Config) { d.DryRun = s.DryRun },
	"once":                   func(d, s *Config) { d.Once = s.Once },
	"shutdown-timeout":       func(d, s *Config) { d.ShutdownTimeout = s.ShutdownTimeout },
}

// newFlagSet binds every flag to a staging Config and returns the path
// given with --config.
func newFlagSet() (*flag.FlagSet, *Config, *string) {
	fs := flag.NewFlagSet("dyndns-updater", flag.ContinueOnError)
	d := Defaults()
	c := &Config{}

	fs.StringVar(&c.AccessKeyID, "access-key-id", "", "Provider access key ID (TSIG key name for rfc2136)")
	fs.StringVar(&c.AccessKeySecret, "access-key-secret", "", "Provider access key secret or API token")
	fs.StringVar(&c.AccessKeySecretFile, "access-key-secret-file", "", "Read the access key secret from this file")
	fs.StringVar(&c.Region, "region", d.Region, "Provider region")
	fs.Var((*domainList)(&c.Domains), "domain", "Domain to keep updated; comma-separated or repeated")
	fs.Int64Var(&c.Period, "period", d.Period, "Seconds between update sweeps")
	fs.Int64Var(&c.TTL, "ttl", d.TTL, "TTL in seconds of published records")
	fs.Var((*modeValue)(&c.Mode), "mode", "Configuration mode: cli, env or docker")
	fs.StringVar(&c.Provider, "provider", d.Provider, "DNS provider")
	fs.Var((*settingsValue)(&c.ProviderSettings), "provider-setting", "Provider option as key=value; repeatable")
	fs.Var((*stringList)(&c.IPSources), "ip-source", "Public address source; repeatable (url, dns:NAME@SERVER, iface:NAME, static:IP)")
	fs.DurationVar(&c.PublishTimeout, "publish-timeout", d.PublishTimeout, "Timeout for a single publish call")
	fs.DurationVar(&c.BackoffFloor, "backoff-floor", d.BackoffFloor, "Minimum retry delay after a failure")
	fs.DurationVar(&c.BackoffMax, "backoff-max", d.BackoffMax, "Maximum retry delay")
	fs.IntVar(&c.BackoffPeriodFactor, "backoff-period-factor", d.BackoffPeriodFactor, "Cap retry delay at this multiple of the period")
	fs.IntVar(&c.Concurrency, "concurrency", d.Concurrency, "Domains published in parallel")
	fs.BoolVar(&c.DockerLabels, "docker-labels", false, "Also update domains from dyndns.domain container labels")
	fs.StringVar(&c.DockerHost, "docker-host", "", "Docker daemon socket (default: DOCKER_HOST)")
	fs.DurationVar(&c.DebounceDuration, "debounce", d.DebounceDuration, "Debounce window for container events")
	fs.IntVar(&c.StatusPort, "status-port", d.StatusPort, "Status and metrics port (0 disables)")
	fs.Var((*stringList)(&c.StatusCORSOrigins), "status-cors-origin", "Browser origin allowed to read the status endpoints; repeatable")
	fs.StringVar(&c.LogLevel, "log-level", d.LogLevel, "Log level: debug, info, warn or error")
	fs.BoolVar(&c.DryRun, "dry-run", false, "Log intended publishes without calling the provider")
	fs.BoolVar(&c.Once, "once", false, "Run a single sweep and exit")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", d.ShutdownTimeout, "Grace period for in-flight work on shutdown")
	configPath := fs.String("config", "", "YAML configuration file (env: DYNDNS_CONFIG)")
	return fs, c, configPath
}

// mergeSettings overlays src onto a copy of dst.
func mergeSettings(dst, src map[string]string) map[string]string {
	out := make(map[string]string, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

// parseSettings parses comma-separated key=value pairs.
func parseSettings(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid provider setting %q (want key=value)", kv)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

type domainList []string

func (l *domainList) String() string { return strings.Join(*l, ",") }

func (l *domainList) Set(s string) error {
	*l = append(*l, source.SplitDomains(s)...)
	return nil
}

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(s string) error {
	if s = strings.TrimSpace(s); s != "" {
		*l = append(*l, s)
	}
	return nil
}

type modeValue Mode

func (m *modeValue) String() string { return string(*m) }

func (m *modeValue) Set(s string) error {
	v, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = modeValue(v)
	return nil
}

type settingsValue map[string]string

func (v *settingsValue) String() string {
	if v == nil {
		return ""
	}
	parts := make([]string, 0, len(*v))
	for k, val := range *v {
		parts = append(parts, k+"="+val)
	}
	return strings.Join(parts, ",")
}

func (v *settingsValue) Set(s string) error {
	kv, err := parseSettings(s)
	if err != nil {
		return err
	}
	if *v == nil {
		*v = make(settingsValue)
	}
	for k, val := range kv {
		(*v)[k] = val
	}
	return nil
}
