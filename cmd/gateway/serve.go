package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func runServe(ctx context.Context, cfg config) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.Error(err), zap.String("path", r.URL.Path))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	persister, closePersister, err := openPersister(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closePersister() }()

	bans := infra.NewBanStore(persister, infra.WithBanLogger(logger.Named("bans")))
	loaded := bans.Load()

	tracker := infra.NewWindowTracker(infra.WithTrackerLogger(logger.Named("reaper")))
	tracker.StartReaper(ctx, cfg.cleanupInterval, cfg.window)

	audit := infra.NewFileAuditLog(cfg.auditLogPath, cfg.auditLogMaxMB, infra.WithAuditLogger(logger.Named("audit")))
	defer func() { _ = audit.Close() }()

	gate := &application.Gate{Tracker: tracker, Bans: bans, Audit: audit}

	var stats infra.FanoutStats
	mux := http.NewServeMux()

	if cfg.metricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		stats = append(stats, infra.NewPrometheusStatsStore(registry))
		infra.RegisterStateGauges(registry, tracker, bans)
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	}

	if cfg.rateStatsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.rateStatsRedisAddr,
			Password: cfg.rateStatsRedisPassword,
			DB:       cfg.rateStatsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return fmt.Errorf("redis stats ping error: %w", err)
		}

		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.rateStatsPrefix),
			infra.WithStatsTTL(cfg.rateStatsTTL),
			infra.WithStatsBucket(cfg.rateStatsBucket),
			infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		))
	}

	// /admin fica fora do gate: o operador nunca se bane ao desbanir alguém
	mux.Handle("/admin/", admission.AdminHandler(admission.AdminOptions{
		Service: application.AdminService{Secret: cfg.adminSecret, Bans: bans, Audit: audit},
		RPS:     cfg.adminRPS,
		Burst:   cfg.adminBurst,
		Logger:  logger.Named("admin"),
	}))

	var statsStore domain.StatsStore
	if len(stats) > 0 {
		statsStore = stats
	}
	mux.Handle("/", admission.Middleware(admission.Options{
		Gate:                gate,
		Limits:              cfg.limits(),
		Stats:               statsStore,
		KeyHeader:           cfg.rateKeyHeader,
		TrustXForwardedFor:  cfg.trustXFF,
		AddRateLimitHeaders: cfg.addHeaders,
		Logger:              logger.Named("gate"),
	})(proxy))

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", target.String()),
		zap.Int("maxRequests", cfg.maxRequests),
		zap.Duration("window", cfg.window),
		zap.Duration("cleanupInterval", cfg.cleanupInterval),
		zap.String("keyHeader", cfg.rateKeyHeader),
		zap.Bool("trustXFF", cfg.trustXFF),
	)
	logger.Info("ban store",
		zap.String("backend", cfg.banStoreBackend),
		zap.String("path", cfg.banStorePath),
		zap.Int("loaded", loaded),
		zap.String("auditLog", cfg.auditLogPath),
	)
	if cfg.adminSecret == "" {
		logger.Warn("ADMIN_SECRET not set; /admin endpoints will answer misconfigured")
	}
	logger.Info("stats",
		zap.Bool("metrics", cfg.metricsEnabled),
		zap.Bool("redis", cfg.rateStatsEnabled),
		zap.String("redisAddr", cfg.rateStatsRedisAddr),
		zap.String("bucket", cfg.rateStatsBucket),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("gateway stopped")
	return nil
}

// openPersister devolve o persister configurado e a função que o fecha.
func openPersister(cfg config) (domain.BanPersister, func() error, error) {
	switch cfg.banStoreBackend {
	case backendSQLite:
		p, err := infra.NewSQLitePersister(cfg.banStorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite ban store: %w", err)
		}
		return p, p.Close, nil
	default:
		return infra.NewFilePersister(cfg.banStorePath), func() error { return nil }, nil
	}
}
