// Command dyndns-updater keeps DNS A and AAAA records pointed at the public
// address of the host it runs on.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	dockerclient "github.com/docker/docker/client"

	"github.com/bkero/dyndns-updater/pkg/config"
	"github.com/bkero/dyndns-updater/pkg/engine"
	"github.com/bkero/dyndns-updater/pkg/provider"
	_ "github.com/bkero/dyndns-updater/pkg/provider/all"
	"github.com/bkero/dyndns-updater/pkg/record"
	"github.com/bkero/dyndns-updater/pkg/resolver"
	"github.com/bkero/dyndns-updater/pkg/scheduler"
	"github.com/bkero/dyndns-updater/pkg/source"
	"github.com/bkero/dyndns-updater/pkg/status"
)

// preflighter is implemented by providers that can check credentials and
// connectivity before the first sweep.
type preflighter interface {
	Preflight(ctx context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stderr)
	stop()
	os.Exit(code)
}

// run is the whole program. It returns the process exit code.
func run(ctx context.Context, args []string, getenv func(string) string, stderr io.Writer) int {
	cfg, err := config.Parse(args, getenv)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	log := newLogger(cfg.LogLevel, stderr)

	if err := config.PromptSecret(&cfg, os.Stdin, stderr); err != nil {
		log.Error("failed to read secret", "err", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		log.Error("configuration error", "err", err)
		return 1
	}

	// ---- Build provider ----
	prov, err := provider.New(cfg.Provider, log, cfg.ProviderConfig())
	if err != nil {
		log.Error("failed to create provider", "provider", cfg.Provider, "err", err)
		return 1
	}
	if p, ok := prov.(preflighter); ok && !cfg.DryRun {
		pctx, cancel := context.WithTimeout(ctx, cfg.PublishTimeout)
		err := p.Preflight(pctx)
		cancel()
		if err != nil {
			log.Error("provider preflight failed", "provider", prov.Name(), "err", err)
			return 1
		}
	}

	// ---- Build resolver ----
	sources, err := resolver.ParseSources(cfg.Sources(), nil)
	if err != nil {
		log.Error("invalid address source", "err", err)
		return 1
	}
	res := resolver.NewChain(log, sources...)

	// ---- Build engine and scheduler ----
	eng := engine.New(res, prov, record.NewStore(), log, engine.Config{
		Domains:             cfg.Domains,
		TTL:                 cfg.TTL,
		Period:              cfg.PeriodDuration(),
		PublishTimeout:      cfg.PublishTimeout,
		BackoffFloor:        cfg.BackoffFloor,
		BackoffMax:          cfg.BackoffMax,
		BackoffPeriodFactor: cfg.BackoffPeriodFactor,
		Concurrency:         cfg.Concurrency,
		DryRun:              cfg.DryRun,
	})
	defer eng.Stop()

	sched := scheduler.New(eng, log, scheduler.Config{
		Period:           cfg.PeriodDuration(),
		DebounceDuration: cfg.DebounceDuration,
		Once:             cfg.Once,
	})

	// ---- Docker label source ----
	var watchWg sync.WaitGroup
	if cfg.DockerLabels {
		var opts []dockerclient.Opt
		if cfg.DockerHost != "" {
			opts = append(opts, dockerclient.WithHost(cfg.DockerHost))
		}
		src, err := source.NewDockerSource(log, opts...)
		if err != nil {
			log.Error("failed to create Docker source", "err", err)
			return 1
		}
		defer func() {
			if cerr := src.Close(); cerr != nil {
				log.Warn("error closing Docker client", "err", cerr)
			}
		}()
		eng.AddSource(src)
		if !cfg.Once {
			src.AddEventHandler(ctx, sched.Trigger)
			watchWg.Add(1)
			go func() {
				defer watchWg.Done()
				src.Watch(ctx)
			}()
		}
	}

	// ---- Status server ----
	if !cfg.Once {
		if err := status.New(eng, prov.Name(), log, cfg.StatusCORSOrigins...).Start(ctx, cfg.StatusPort); err != nil {
			log.Error("failed to start status server", "err", err)
			return 1
		}
	}

	// ---- Run ----
	log.Info("starting dyndns-updater", "config", cfg)

	code := 0
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("scheduler exited with error", "err", err)
		code = 1
	}

	// Wait for the Watch goroutine to exit, bounded by the shutdown timeout.
	watchDone := make(chan struct{})
	go func() {
		watchWg.Wait()
		close(watchDone)
	}()
	select {
	case <-watchDone:
		log.Info("shutdown complete")
	case <-time.After(cfg.ShutdownTimeout):
		log.Warn("shutdown timeout exceeded, forcing exit", "timeout", cfg.ShutdownTimeout.String())
	}
	return code
}

// newLogger returns a JSON logger writing to w at the given level.
func newLogger(level string, w io.Writer) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: l}))
}
