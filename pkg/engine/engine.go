// Package engine implements the per-domain update state machine: resolve the
// public address, compare it with what was last published, publish when
// needed and retry recoverable failures with capped exponential backoff.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bkero/dyndns-updater/pkg/provider"
	"github.com/bkero/dyndns-updater/pkg/record"
	"github.com/bkero/dyndns-updater/pkg/resolver"
	"github.com/bkero/dyndns-updater/pkg/source"
)

// Config holds engine tuning parameters.
type Config struct {
	// Domains are processed first, in this order.
	Domains []string
	// TTL is published with every record, in seconds. Default: 600.
	TTL int64
	// Period is the sweep interval. It only bounds backoff here. Default: 600s.
	Period time.Duration
	// PublishTimeout bounds every provider call. Default: 30s.
	PublishTimeout time.Duration
	// BackoffFloor is the first retry delay when the provider gives no hint.
	// Default: 5s.
	BackoffFloor time.Duration
	// BackoffMax is the ceiling for the retry delay. Default: 30m.
	BackoffMax time.Duration
	// BackoffPeriodFactor further caps the retry delay at Period times this
	// value. Default: 2.
	BackoffPeriodFactor int
	// Concurrency is the number of domains processed in parallel. Default: 4.
	Concurrency int
	// DryRun logs planned publishes without calling the provider.
	DryRun bool
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.TTL <= 0 {
		c.TTL = 600
	}
	if c.Period <= 0 {
		c.Period = 600 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 30 * time.Second
	}
	if c.BackoffFloor <= 0 {
		c.BackoffFloor = 5 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Minute
	}
	if c.BackoffPeriodFactor <= 0 {
		c.BackoffPeriodFactor = 2
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	c.Domains = source.Dedupe(c.Domains)
}

// Outcome is the result of processing one domain.
type Outcome int

const (
	// OutcomeNoChange means the address was already published.
	OutcomeNoChange Outcome = iota
	// OutcomePublished means the provider accepted the new address.
	OutcomePublished
	// OutcomeRetrying means a recoverable failure; a retry is scheduled.
	OutcomeRetrying
	// OutcomeDisabled means the domain is disabled, now or earlier.
	OutcomeDisabled
	// OutcomeResolveFailed means no public address was available.
	OutcomeResolveFailed
	// OutcomeAbandoned means shutdown interrupted the attempt; nothing was
	// recorded.
	OutcomeAbandoned
	// OutcomeDryRun means a publish was due but DryRun is set.
	OutcomeDryRun
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoChange:
		return "no_change"
	case OutcomePublished:
		return "published"
	case OutcomeRetrying:
		return "retrying"
	case OutcomeDisabled:
		return "disabled"
	case OutcomeResolveFailed:
		return "resolve_failed"
	case OutcomeAbandoned:
		return "abandoned"
	case OutcomeDryRun:
		return "dry_run"
	default:
		return "unknown"
	}
}

// DomainResult describes what happened to one domain.
type DomainResult struct {
	Domain  string
	Outcome Outcome
	IP      netip.Addr
	Err     error
	// RetryIn is the scheduled retry delay when Outcome is OutcomeRetrying.
	RetryIn time.Duration
}

// Result describes one sweep.
type Result struct {
	Address    resolver.Address
	ResolveErr error
	Domains    []DomainResult
}

// Count returns the number of domains with outcome o.
func (r Result) Count(o Outcome) int {
	n := 0
	for _, d := range r.Domains {
		if d.Outcome == o {
			n++
		}
	}
	return n
}

// OK reports whether the sweep resolved an address and no domain failed.
func (r Result) OK() bool {
	if r.ResolveErr != nil {
		return false
	}
	for _, d := range r.Domains {
		if d.Err != nil {
			return false
		}
	}
	return true
}

type pendingRetry struct {
	timer *time.Timer
	ctx   context.Context
	delay time.Duration
}

// Engine keeps every domain's record in sync with the host's public address.
type Engine struct {
	cfg      Config
	resolver resolver.Resolver
	provider provider.Provider
	store    *record.Store
	log      *slog.Logger
	sources  []source.Source

	afterFunc func(time.Duration, func()) *time.Timer

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	retries map[string]*pendingRetry
	delays  map[string]time.Duration // last retry delay per domain
	stopped bool

	running    sync.WaitGroup // retries in flight
	stopCtx    context.Context
	stopCancel context.CancelFunc
	ready      atomic.Bool
}

// New returns an Engine. A nil store gets a fresh one.
func New(res resolver.Resolver, prov provider.Provider, store *record.Store, log *slog.Logger, cfg Config) *Engine {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		store = record.NewStore()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        cfg,
		resolver:   res,
		provider:   prov,
		store:      store,
		log:        log,
		afterFunc:  time.AfterFunc,
		locks:      make(map[string]*sync.Mutex),
		retries:    make(map[string]*pendingRetry),
		delays:     make(map[string]time.Duration),
		stopCtx:    ctx,
		stopCancel: cancel,
	}
}

// AddSource adds a source of extra domains, consulted at every sweep.
func (e *Engine) AddSource(src source.Source) {
	e.sources = append(e.sources, src)
}

// Store returns the record store the engine writes to.
func (e *Engine) Store() *record.Store { return e.store }

// Ready reports whether a sweep has completed with a resolved address.
// Used by the status server to gate the readiness endpoint.
func (e *Engine) Ready() bool { return e.ready.Load() }

// PendingRetries returns the number of scheduled retries.
func (e *Engine) PendingRetries() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.retries)
}

// Stop cancels pending retries and waits for running ones to return.
// Sweeps are not affected; cancel their context instead.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	for d, r := range e.retries {
		r.timer.Stop()
		delete(e.retries, d)
	}
	e.mu.Unlock()
	e.stopCancel()
	e.running.Wait()
}

// Domains returns the configured domains followed by source domains.
// Source errors are logged and the source is skipped for this sweep.
func (e *Engine) Domains(ctx context.Context) []string {
	var extra []string
	for _, src := range e.sources {
		ds, err := src.Domains(ctx)
		if err != nil {
			e.log.Warn("domain source failed", "err", err)
			continue
		}
		extra = append(extra, ds...)
	}
	return source.Merge(e.cfg.Domains, extra)
}

// Sweep resolves the public address once and processes every domain.
func (e *Engine) Sweep(ctx context.Context) Result {
	start := time.Now()
	domains := e.Domains(ctx)

	var res Result
	res.Address, res.ResolveErr = e.resolver.Resolve(ctx)
	if res.ResolveErr != nil && ctx.Err() == nil {
		resolutionFailuresTotal.Inc()
		e.log.Warn("address resolution failed", "err", res.ResolveErr)
	} else if res.ResolveErr == nil {
		e.log.Debug("resolved public address", "ip", res.Address.IP, "source", res.Address.Source)
	}

	res.Domains = make([]DomainResult, len(domains))
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, d := range domains {
		g.Go(func() error {
			res.Domains[i] = e.process(ctx, d, res.Address, res.ResolveErr, true)
			return nil
		})
	}
	_ = g.Wait()

	sweepDuration.Observe(time.Since(start).Seconds())
	domainsDisabled.Set(float64(e.store.DisabledCount()))
	if res.OK() {
		sweepsTotal.WithLabelValues("success").Inc()
	} else {
		sweepsTotal.WithLabelValues("error").Inc()
	}
	if res.ResolveErr == nil {
		e.ready.Store(true)
	}
	e.log.Info("sweep finished",
		"domains", len(domains),
		"published", res.Count(OutcomePublished),
		"unchanged", res.Count(OutcomeNoChange),
		"retrying", res.Count(OutcomeRetrying),
		"disabled", res.Count(OutcomeDisabled),
		"duration", time.Since(start).String(),
	)
	return res
}

func (e *Engine) domainLock(domain string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[domain]
	if !ok {
		l = new(sync.Mutex)
		e.locks[domain] = l
	}
	return l
}

// process runs one domain through Comparing and Publishing. A sweep takes
// over from any retry still pending for the domain.
func (e *Engine) process(ctx context.Context, domain string, addr resolver.Address, resolveErr error, fromSweep bool) DomainResult {
	l := e.domainLock(domain)
	l.Lock()
	defer l.Unlock()

	if fromSweep {
		e.cancelRetry(domain)
	}
	out := DomainResult{Domain: domain, IP: addr.IP}
	log := e.log.With("domain", domain)

	rec := e.store.Get(domain)
	if rec.Disabled {
		out.Outcome = OutcomeDisabled
		return out
	}

	if resolveErr != nil {
		if ctx.Err() != nil {
			out.Outcome = OutcomeAbandoned
			return out
		}
		e.store.Update(domain, netip.Addr{}, false)
		e.store.SetError(domain, resolveErr)
		out.Outcome, out.Err = OutcomeResolveFailed, resolveErr
		return out
	}

	if rec.Synced(addr.IP) {
		out.Outcome = OutcomeNoChange
		return out
	}

	if e.cfg.DryRun {
		log.Info("dry-run: would publish", "old_ip", addrString(rec.LastPublished), "new_ip", addr.IP.String())
		out.Outcome = OutcomeDryRun
		return out
	}

	pctx, cancel := context.WithTimeout(ctx, e.cfg.PublishTimeout)
	err := e.provider.Publish(pctx, domain, addr.IP, e.cfg.TTL)
	cancel()

	if err == nil {
		publishesTotal.WithLabelValues("success").Inc()
		e.store.Update(domain, addr.IP, true)
		e.resetDelay(domain)
		log.Info("published address", "old_ip", addrString(rec.LastPublished), "new_ip", addr.IP.String(), "source", addr.Source)
		out.Outcome = OutcomePublished
		return out
	}

	if ctx.Err() != nil {
		log.Warn("publish abandoned on shutdown", "ip", addr.IP.String(), "err", err)
		out.Outcome, out.Err = OutcomeAbandoned, err
		return out
	}

	kind := provider.KindOf(err)
	if errors.Is(err, context.DeadlineExceeded) {
		kind = provider.KindTransient
	}
	publishesTotal.WithLabelValues(kind.String()).Inc()
	rec = e.store.Update(domain, addr.IP, false)
	e.store.SetError(domain, err)
	out.Err = err

	if kind.Fatal() {
		e.store.Disable(domain, err.Error())
		log.Error("domain disabled", "kind", kind.String(), "ip", addr.IP.String(), "err", err)
		out.Outcome = OutcomeDisabled
		return out
	}

	delay := e.nextDelay(domain, rec.Failures, provider.RetryAfter(err))
	log.Warn("publish failed",
		"kind", kind.String(),
		"ip", addr.IP.String(),
		"failures", rec.Failures,
		"retry_in", delay.String(),
		"err", err,
	)
	e.scheduleRetry(ctx, domain, delay)
	out.Outcome, out.RetryIn = OutcomeRetrying, delay
	return out
}

func (e *Engine) nextDelay(domain string, failures int, hint time.Duration) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := backoffDuration(failures, hint, e.cfg.BackoffFloor, e.delays[domain], e.cfg.backoffLimit())
	e.delays[domain] = d
	return d
}

func (e *Engine) resetDelay(domain string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.delays, domain)
}

// scheduleRetry arms the single pending retry for domain, replacing any
// earlier one.
func (e *Engine) scheduleRetry(ctx context.Context, domain string, delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	if old, ok := e.retries[domain]; ok {
		old.timer.Stop()
	}
	backoffSeconds.Observe(delay.Seconds())
	r := &pendingRetry{ctx: ctx, delay: delay}
	r.timer = e.afterFunc(delay, func() { e.runRetry(domain, r) })
	e.retries[domain] = r
}

func (e *Engine) cancelRetry(domain string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.retries[domain]; ok {
		r.timer.Stop()
		delete(e.retries, domain)
	}
}

// runRetry re-resolves and re-processes one domain out of band. It is a
// no-op if the retry was cancelled or replaced after its timer fired.
func (e *Engine) runRetry(domain string, r *pendingRetry) {
	e.mu.Lock()
	if e.stopped || e.retries[domain] != r {
		e.mu.Unlock()
		return
	}
	delete(e.retries, domain)
	e.running.Add(1)
	e.mu.Unlock()
	defer e.running.Done()

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()
	stop := context.AfterFunc(e.stopCtx, cancel)
	defer stop()
	if ctx.Err() != nil {
		return
	}

	e.log.Debug("retrying domain", "domain", domain, "after", r.delay.String())
	addr, err := e.resolver.Resolve(ctx)
	if err != nil && ctx.Err() == nil {
		resolutionFailuresTotal.Inc()
	}
	res := e.process(ctx, domain, addr, err, false)
	domainsDisabled.Set(float64(e.store.DisabledCount()))
	e.log.Debug("retry finished", "domain", domain, "outcome", res.Outcome.String())
}

func addrString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}
