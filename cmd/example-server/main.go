package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"go.uber.org/zap"
)

func main() {
	// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy).
	// Banimentos ficam só em memória e a auditoria vai para stdout.
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	limits := domain.Limits{MaxRequests: 5, Window: 10 * time.Second}

	tracker := infra.NewWindowTracker(infra.WithTrackerLogger(logger))
	bans := infra.NewBanStore(nil, infra.WithBanLogger(logger))
	audit := infra.NewAuditLog(os.Stdout, infra.WithAuditLogger(logger))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	tracker.StartReaper(ctx, domain.DefaultCleanupInterval, limits.Window)

	app := http.NewServeMux()
	app.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux := http.NewServeMux()
	mux.Handle("/admin/", admission.AdminHandler(admission.AdminOptions{
		Service: application.AdminService{Secret: os.Getenv("ADMIN_SECRET"), Bans: bans, Audit: audit},
		Logger:  logger,
	}))
	mux.Handle("/", admission.Middleware(admission.Options{
		Gate:                &application.Gate{Tracker: tracker, Bans: bans, Audit: audit},
		Limits:              limits,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
		Logger:              logger,
	})(app))

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr), zap.Int("maxRequests", limits.MaxRequests), zap.Duration("window", limits.Window))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
