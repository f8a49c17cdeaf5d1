package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/offersplus/backend/internal/api"
	"github.com/offersplus/backend/internal/config"
	"github.com/offersplus/backend/internal/errorreporting"
	"github.com/offersplus/backend/internal/logger"
	"github.com/offersplus/backend/internal/metrics"
	"github.com/offersplus/backend/internal/middleware"
	"github.com/offersplus/backend/internal/prefetch"
	"github.com/offersplus/backend/internal/scheduler"
	"github.com/offersplus/backend/internal/server"
	"github.com/offersplus/backend/internal/service"
	"github.com/offersplus/backend/internal/tracing"
)

const serviceName = "offersplus-h1b"

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error("server exited with error", "error", err)
		errorreporting.Flush(2 * time.Second)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Info("starting H1B API", "config", cfg)

	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		Enabled:     cfg.OTELEnabled,
		ServiceName: serviceName,
		Version:     cfg.SentryRelease,
		Endpoint:    cfg.OTELEndpoint,
		SampleRate:  cfg.OTELSampleRate,
	})
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}
	if err := errorreporting.Init(errorreporting.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.SentryRelease,
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		log.Warn("error reporting disabled", "error", err)
	}

	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	src, closeSource, err := server.OpenSource(ctx, cfg)
	if err != nil {
		store.Close()
		return err
	}
	svc := server.NewService(cfg, store, src)

	collector := metrics.NewCollector()
	collector.Register("cache", store)
	sched := scheduler.NewService()
	for _, job := range []scheduler.Job{
		scheduler.CleanupJob(cfg.CleanupSchedule, svc),
		scheduler.MetricsJob(cfg.MetricsRefreshSchedule, collector),
	} {
		if err := sched.Add(job); err != nil {
			store.Close()
			closeSource()
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}

	// Canceled once the HTTP server has drained so live sessions and the
	// warm-up pass stop with it.
	appCtx, cancelApp := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelApp()

	var prefetcher *prefetch.Prefetcher
	if cfg.PrefetchEnabled {
		targets, err := prefetchTargets(cfg, svc)
		if err != nil {
			store.Close()
			closeSource()
			return err
		}
		prefetcher = prefetch.New(store, targets, prefetch.Options{Delay: cfg.PrefetchDelay})
	}

	var limiter *middleware.RateLimiter
	if cfg.EnableRateLimit {
		limiter = middleware.NewRateLimiter(cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst, cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst)
	}
	deps := api.Deps{
		Service:     svc,
		Config:      cfg,
		RateLimiter: limiter,
		BaseContext: appCtx,
	}
	if prefetcher != nil {
		deps.Prefetcher = prefetcher
	}

	srv := server.New(api.NewRouter(deps), server.DefaultOptions(net.JoinHostPort("", cfg.Port)), appCtx)
	srv.OnShutdown("source", func(context.Context) error { return closeSource() })
	srv.OnShutdown("cache", func(context.Context) error { return store.Close() })
	srv.OnShutdown("tracing", shutdownTracing)
	srv.OnShutdown("scheduler", sched.Stop)
	if prefetcher != nil {
		srv.OnShutdown("prefetch", func(context.Context) error { prefetcher.Stop(); return nil })
	}
	if limiter != nil {
		srv.OnShutdown("rate_limiter", func(context.Context) error { limiter.Stop(); return nil })
	}
	srv.OnShutdown("live_sessions", func(context.Context) error { cancelApp(); return nil })

	if err := sched.RunNow(ctx, scheduler.JobCacheCleanup); err != nil {
		log.Warn("startup cache sweep failed", "error", err)
	}
	sched.Start()
	if prefetcher != nil {
		prefetcher.Start(appCtx)
	}
	return srv.Run(ctx)
}

func prefetchTargets(cfg *config.Config, svc *service.Service) ([]prefetch.Target, error) {
	if cfg.PrefetchTargetsFile == "" {
		return svc.PrefetchTargets(), nil
	}
	specs, err := prefetch.LoadSpecs(cfg.PrefetchTargetsFile)
	if err != nil {
		return nil, err
	}
	return svc.PageTargets(specs), nil
}
