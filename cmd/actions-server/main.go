package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/voxlane/actions/internal/auth"
	"github.com/voxlane/actions/internal/binding"
	"github.com/voxlane/actions/internal/config"
	"github.com/voxlane/actions/internal/engine"
	"github.com/voxlane/actions/internal/metrics"
	"github.com/voxlane/actions/internal/oauth"
	"github.com/voxlane/actions/internal/secret"
	"github.com/voxlane/actions/internal/server"
	"github.com/voxlane/actions/internal/storage"
	"github.com/voxlane/actions/internal/tool"
	"github.com/voxlane/actions/internal/tools/calendar"
	"github.com/voxlane/actions/internal/tools/email"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting actions server",
		zap.String("http_port", cfg.HTTPPort),
		zap.Duration("call_timeout", cfg.CallTimeout),
		zap.Duration("refresh_timeout", cfg.RefreshTimeout),
		zap.Bool("dev_auth", cfg.DevAuth),
	)

	// Vault key
	if cfg.VaultKey == "" {
		logger.Fatal("ACTIONS_VAULT_KEY is required")
	}
	key, err := secret.KeyFromBase64(cfg.VaultKey)
	if err != nil {
		logger.Fatal("invalid vault key", zap.Error(err))
	}
	vault, err := secret.NewVault(key)
	if err != nil {
		logger.Fatal("vault init failed", zap.Error(err))
	}

	// Postgres pool
	if cfg.PostgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	logger.Info("postgres connected")

	bindings := binding.NewPostgresStore(binding.PostgresStoreConfig{
		DB:     db,
		Logger: logger,
	})

	// Event writer — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Built-in tools
	catalog := tool.NewCatalog()
	catalog.MustRegister(calendar.New(calendar.Config{BaseURL: cfg.Tools["Calendar"].BaseURL}))
	catalog.MustRegister(email.New(email.Config{BaseURL: cfg.Tools["Email"].BaseURL}))

	// Token refresher from configured endpoints
	var tokens engine.TokenRefresher
	if len(cfg.OAuth) > 0 {
		endpoints := make(map[string]oauth.Endpoint, len(cfg.OAuth))
		for name, ep := range cfg.OAuth {
			endpoints[name] = oauth.Endpoint{
				TokenURL:     ep.TokenURL,
				ClientID:     ep.ClientID,
				ClientSecret: ep.ClientSecret(),
			}
		}
		tokens = oauth.NewRefresher(endpoints, logger)
		logger.Info("token refresh enabled", zap.Int("endpoints", len(endpoints)))
	} else {
		logger.Info("no oauth endpoints configured, automatic refresh disabled")
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	eng := engine.New(engine.Config{
		Catalog:        catalog,
		Bindings:       bindings,
		Vault:          vault,
		Tokens:         tokens,
		Writer:         writer,
		Metrics:        m,
		CallTimeout:    cfg.CallTimeout,
		RefreshTimeout: cfg.RefreshTimeout,
		Logger:         logger,
	})

	// API key authentication
	var authenticator auth.Authenticator
	if cfg.DevAuth {
		authenticator = auth.NewStaticAuthenticator()
		logger.Warn("dev auth enabled, any well-formed key is accepted")
	} else {
		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       db,
			CacheTTL: cfg.AuthCacheTTL,
			Logger:   logger,
		})
	}

	deps := &server.Dependencies{
		Bindings: bindings,
		Catalog:  catalog,
		Engine:   eng,
		Auth:     authenticator,
		Gatherer: registry,
		Logger:   logger,
	}
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      server.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("actions server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
