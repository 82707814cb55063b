// Package scheduler drives the update engine: one sweep at startup, then one
// per period, plus debounced sweeps requested by domain sources.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bkero/dyndns-updater/pkg/engine"
)

var sweepsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dyndns_sweeps_skipped_total",
	Help: "Total number of sweeps skipped because the previous one was still running.",
})

// ErrSweepFailed is returned by Run in Once mode when the sweep did not
// complete cleanly.
var ErrSweepFailed = errors.New("sweep finished with errors")

// Sweeper runs one pass over all domains.
type Sweeper interface {
	Sweep(ctx context.Context) engine.Result
}

// Config holds scheduler tuning parameters.
type Config struct {
	// Period is the sweep interval. Default: 600s.
	Period time.Duration
	// DebounceDuration is the quiet period after a Trigger before the sweep
	// starts. Default: 5s.
	DebounceDuration time.Duration
	// Once causes Run to perform exactly one sweep and return.
	Once bool
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Period <= 0 {
		c.Period = 600 * time.Second
	}
	if c.DebounceDuration <= 0 {
		c.DebounceDuration = 5 * time.Second
	}
}

// Scheduler runs sweeps on a fixed period. At most one sweep runs at a
// time; a tick that finds a sweep in progress is dropped, not queued.
type Scheduler struct {
	sweeper Sweeper
	log     *slog.Logger
	cfg     Config

	running  atomic.Bool
	inflight sync.WaitGroup
	trigger  chan struct{}

	mu       sync.Mutex
	debounce *time.Timer
}

// New returns a Scheduler for sw.
func New(sw Sweeper, log *slog.Logger, cfg Config) *Scheduler {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		sweeper: sw,
		log:     log,
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
	}
}

// Run sweeps immediately and then every Period until ctx is cancelled. It
// waits for an in-flight sweep to return before returning ctx.Err().
// When cfg.Once is true it runs a single sweep and returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.Once {
		if res := s.sweeper.Sweep(ctx); !res.OK() {
			return ErrSweepFailed
		}
		return nil
	}

	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()
	defer s.inflight.Wait()
	defer s.stopDebounce()

	s.start(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.start(ctx, "tick")
		case <-s.trigger:
			s.start(ctx, "trigger")
		}
	}
}

// Trigger requests a sweep after DebounceDuration. Calls within the
// debounce window collapse into one sweep. Safe to call from any goroutine.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.cfg.DebounceDuration, func() {
		select {
		case s.trigger <- struct{}{}:
		default:
		}
	})
}

// Running reports whether a sweep is in progress.
func (s *Scheduler) Running() bool { return s.running.Load() }

func (s *Scheduler) stopDebounce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
}

// start launches a sweep unless one is already running.
func (s *Scheduler) start(ctx context.Context, reason string) bool {
	if !s.running.CompareAndSwap(false, true) {
		sweepsSkippedTotal.Inc()
		s.log.Warn("previous sweep still running, skipping", "reason", reason)
		return false
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.running.Store(false)
		s.log.Debug("starting sweep", "reason", reason)
		s.sweeper.Sweep(ctx)
	}()
	return true
}
