package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/spf13/cobra"
)

const (
	backendFile   = "file"
	backendSQLite = "sqlite"
)

type config struct {
	listenAddr      string
	upstreamURL     string
	maxRequests     int
	window          time.Duration
	cleanupInterval time.Duration
	rateKeyHeader   string
	trustXFF        bool
	addHeaders      bool
	logLevel        string

	adminSecret string
	adminRPS    float64
	adminBurst  int

	banStoreBackend string
	banStorePath    string
	auditLogPath    string
	auditLogMaxMB   int

	metricsEnabled bool

	rateStatsEnabled       bool
	rateStatsRedisAddr     string
	rateStatsRedisPassword string
	rateStatsRedisDB       int
	rateStatsPrefix        string
	rateStatsTTL           time.Duration
	rateStatsBucket        string
	rateStatsTrackKeys     bool
}

// defaultConfig lê o ambiente; as flags usam esses valores como padrão.
func defaultConfig() config {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.maxRequests = getenvIntDefault("MAX_REQUESTS", domain.DefaultMaxRequests)
	cfg.window = getenvDurationDefault("WINDOW", domain.DefaultWindow)
	cfg.cleanupInterval = getenvDurationDefault("CLEANUP_INTERVAL", domain.DefaultCleanupInterval)
	cfg.rateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)
	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")

	cfg.adminSecret = os.Getenv("ADMIN_SECRET")
	cfg.adminRPS = getenvFloatDefault("ADMIN_RPS", 1)
	cfg.adminBurst = getenvIntDefault("ADMIN_BURST", 5)

	cfg.banStoreBackend = getenvDefault("BAN_STORE_BACKEND", backendFile)
	cfg.banStorePath = getenvDefault("BAN_STORE_PATH", "data/banned.json")
	cfg.auditLogPath = getenvDefault("AUDIT_LOG_PATH", "data/audit.log")
	cfg.auditLogMaxMB = getenvIntDefault("AUDIT_LOG_MAX_SIZE_MB", 100)

	cfg.metricsEnabled = getenvBoolDefault("METRICS_ENABLED", true)

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsRedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", "")
	cfg.rateStatsRedisPassword = os.Getenv("RATE_STATS_REDIS_PASSWORD")
	cfg.rateStatsRedisDB = getenvIntDefault("RATE_STATS_REDIS_DB", 0)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "admission:stats")
	cfg.rateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)
	return cfg
}

func bindServeFlags(cmd *cobra.Command, cfg *config) {
	f := cmd.Flags()
	f.StringVar(&cfg.listenAddr, "listen", cfg.listenAddr, "listen address (LISTEN_ADDR)")
	f.StringVar(&cfg.upstreamURL, "upstream", cfg.upstreamURL, "upstream URL to proxy to (UPSTREAM_URL)")
	f.IntVar(&cfg.maxRequests, "max-requests", cfg.maxRequests, "requests allowed per window before ban (MAX_REQUESTS)")
	f.DurationVar(&cfg.window, "window", cfg.window, "sliding window length (WINDOW)")
	f.DurationVar(&cfg.cleanupInterval, "cleanup-interval", cfg.cleanupInterval, "reaper period (CLEANUP_INTERVAL)")
	f.StringVar(&cfg.rateKeyHeader, "key-header", cfg.rateKeyHeader, "header used as client identifier (RATE_KEY_HEADER)")
	f.BoolVar(&cfg.trustXFF, "trust-xff", cfg.trustXFF, "use first X-Forwarded-For entry as identifier (TRUST_XFF)")
	f.BoolVar(&cfg.addHeaders, "ratelimit-headers", cfg.addHeaders, "add X-RateLimit-* headers (ADD_RATELIMIT_HEADERS)")
	f.StringVar(&cfg.logLevel, "log-level", cfg.logLevel, "debug|info|warn|error (LOG_LEVEL)")
	f.StringVar(&cfg.adminSecret, "admin-secret", cfg.adminSecret, "shared secret for /admin endpoints (ADMIN_SECRET)")
	f.Float64Var(&cfg.adminRPS, "admin-rps", cfg.adminRPS, "admin endpoint attempts per second, 0 disables (ADMIN_RPS)")
	f.IntVar(&cfg.adminBurst, "admin-burst", cfg.adminBurst, "admin endpoint burst (ADMIN_BURST)")
	f.StringVar(&cfg.auditLogPath, "audit-log", cfg.auditLogPath, "audit log file (AUDIT_LOG_PATH)")
	f.IntVar(&cfg.auditLogMaxMB, "audit-log-max-mb", cfg.auditLogMaxMB, "audit log size before rotation (AUDIT_LOG_MAX_SIZE_MB)")
	f.BoolVar(&cfg.metricsEnabled, "metrics", cfg.metricsEnabled, "expose /metrics (METRICS_ENABLED)")
	bindStoreFlags(cmd, cfg)
}

func bindStoreFlags(cmd *cobra.Command, cfg *config) {
	f := cmd.PersistentFlags()
	f.StringVar(&cfg.banStoreBackend, "ban-store", cfg.banStoreBackend, "file|sqlite (BAN_STORE_BACKEND)")
	f.StringVar(&cfg.banStorePath, "ban-store-path", cfg.banStorePath, "ban store file or sqlite database (BAN_STORE_PATH)")
}

func (cfg config) limits() domain.Limits {
	return domain.Limits{MaxRequests: cfg.maxRequests, Window: cfg.window}
}

func (cfg config) validate() error {
	if cfg.upstreamURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	if cfg.maxRequests <= 0 {
		return errors.New("MAX_REQUESTS must be > 0")
	}
	if cfg.window <= 0 {
		return errors.New("WINDOW must be > 0")
	}
	if cfg.cleanupInterval <= 0 {
		return errors.New("CLEANUP_INTERVAL must be > 0")
	}
	if cfg.adminRPS < 0 {
		return errors.New("ADMIN_RPS must be >= 0")
	}
	if err := cfg.validateStore(); err != nil {
		return err
	}
	if cfg.rateStatsEnabled && strings.TrimSpace(cfg.rateStatsRedisAddr) == "" {
		return errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	return nil
}

func (cfg config) validateStore() error {
	switch cfg.banStoreBackend {
	case backendFile, backendSQLite:
	default:
		return fmt.Errorf("BAN_STORE_BACKEND must be %q or %q, got %q", backendFile, backendSQLite, cfg.banStoreBackend)
	}
	if strings.TrimSpace(cfg.banStorePath) == "" {
		return errors.New("BAN_STORE_PATH is required")
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getenvDurationDefault aceita "10s" e também milissegundos puros ("10000").
func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
