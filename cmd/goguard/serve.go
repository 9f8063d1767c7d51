package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/config"
	"github.com/MrEthical07/goGuard/httpapi"
	promexport "github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/store/pgstore"
)

func serve(s *config.Settings, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := s.EngineConfig()
	if err != nil {
		return err
	}

	var cl closers
	defer cl.run()

	rdb := redisClient(s)
	cl.add(func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	store, pool, err := openStore(ctx, s, rdb, &cl)
	if err != nil {
		return err
	}

	sink, err := auditSink(s, log, &cl)
	if err != nil {
		return err
	}

	queue := notify.NewQueue(asynqOpt(s), notify.QueueConfig{
		Queue:    s.Notify.Queue,
		MaxRetry: s.Notify.MaxRetry,
		Timeout:  s.Notify.Timeout,
	}, log)
	cl.add(func() { _ = queue.Close() })

	builder := goGuard.New().
		WithConfig(cfg).
		WithStore(store).
		WithRedis(rdb).
		WithNotifier(queue).
		WithAuditSink(sink).
		WithLogger(log).
		WithMetricsEnabled(s.Metrics.Enabled).
		WithLatencyHistograms(s.Metrics.Latency)
	if s.Postgres.Counters {
		if pool == nil {
			return errors.New("postgres.counters requires postgres.url")
		}
		counter := pgstore.NewCounter(pool)
		builder = builder.WithAttemptCounter(counter)
		go runPruner(ctx, counter, s.Postgres.PruneInterval, s.AttemptRetention(cfg), log.With().Str("component", "pruner").Logger())
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	cl.add(engine.Close)

	for _, w := range cfg.Lint().BySeverity(goGuard.LintWarn) {
		log.Warn().Str("code", w.Code).Str("severity", w.Severity.String()).Msg(w.Message)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		promexport.NewCollector(engine),
	)

	health := map[string]httpapi.HealthCheck{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	if pool != nil {
		health["postgres"] = pool.Ping
	}

	handler, err := httpapi.NewRouter(httpapi.RouterConfig{
		Engine:      engine,
		Log:         log,
		Registerer:  reg,
		Gatherer:    reg,
		Health:      health,
		RateLimit:   s.HTTP.RateLimit,
		TrustProxy:  s.HTTP.TrustProxy,
		Development: s.HTTP.Development,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv := &http.Server{
		Addr:         s.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  s.HTTP.ReadTimeout,
		WriteTimeout: s.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
