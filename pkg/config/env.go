package config

import (
	"strconv"
	"time"

	"github.com/bkero/dyndns-updater/pkg/source"
)

// envReader reads typed values from the environment. Unset or empty
// variables leave the destination untouched. The first malformed value is
// kept in err and later reads become no-ops.
type envReader struct {
	getenv func(string) string
	err    *Error
}

func (e *envReader) lookup(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v := e.getenv(key)
	return v, v != ""
}

func (e *envReader) fail(key string, err error) {
	e.err = &Error{Field: key, Err: err}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) int64(key string, dst *int64) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) bool(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = d
	}
}

// applyEnv overlays DYNDNS_* variables onto cfg. Used in managed mode only,
// where the environment wins over every other source.
func applyEnv(cfg *Config, getenv func(string) string) error {
	e := &envReader{getenv: getenv}

	e.str("DYNDNS_ACCESS_KEY_ID", &cfg.AccessKeyID)
	e.str("DYNDNS_ACCESS_KEY_SECRET", &cfg.AccessKeySecret)
	e.str("DYNDNS_ACCESS_KEY_SECRET_FILE", &cfg.AccessKeySecretFile)
	e.str("DYNDNS_REGION", &cfg.Region)
	if v, ok := e.lookup("DYNDNS_DOMAIN"); ok {
		cfg.Domains = source.SplitDomains(v)
	}
	e.int64("DYNDNS_PERIOD", &cfg.Period)
	e.int64("DYNDNS_TTL", &cfg.TTL)
	e.str("DYNDNS_PROVIDER", &cfg.Provider)
	if v, ok := e.lookup("DYNDNS_PROVIDER_SETTINGS"); ok {
		kv, err := parseSettings(v)
		if err != nil {
			e.fail("DYNDNS_PROVIDER_SETTINGS", err)
		} else {
			cfg.ProviderSettings = mergeSettings(cfg.ProviderSettings, kv)
		}
	}
	if v, ok := e.lookup("DYNDNS_IP_SOURCES"); ok {
		cfg.IPSources = splitList(v)
	}
	e.duration("DYNDNS_PUBLISH_TIMEOUT", &cfg.PublishTimeout)
	e.duration("DYNDNS_BACKOFF_FLOOR", &cfg.BackoffFloor)
	e.duration("DYNDNS_BACKOFF_MAX", &cfg.BackoffMax)
	e.int("DYNDNS_BACKOFF_PERIOD_FACTOR", &cfg.BackoffPeriodFactor)
	e.int("DYNDNS_CONCURRENCY", &cfg.Concurrency)
	e.bool("DYNDNS_DOCKER_LABELS", &cfg.DockerLabels)
	e.str("DYNDNS_DOCKER_HOST", &cfg.DockerHost)
	e.duration("DYNDNS_DEBOUNCE", &cfg.DebounceDuration)
	e.int("DYNDNS_STATUS_PORT", &cfg.StatusPort)
	if v, ok := e.lookup("DYNDNS_STATUS_CORS_ORIGINS"); ok {
		cfg.StatusCORSOrigins = splitList(v)
	}
	e.str("DYNDNS_LOG_LEVEL", &cfg.LogLevel)
	e.bool("DYNDNS_DRY_RUN", &cfg.DryRun)
	e.bool("DYNDNS_ONCE", &cfg.Once)
	e.duration("DYNDNS_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if e.err != nil {
		return e.err
	}
	return nil
}
