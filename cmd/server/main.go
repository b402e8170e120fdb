package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kasirinaja/stockledger/internal/cache"
	"kasirinaja/stockledger/internal/config"
	"kasirinaja/stockledger/internal/httpapi"
	"kasirinaja/stockledger/internal/logger"
	"kasirinaja/stockledger/internal/observability"
	"kasirinaja/stockledger/internal/service"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/store/memory"
	pgstore "kasirinaja/stockledger/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.AppEnv, Level: cfg.LogLevel})
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, pgstore.Options{LockTimeout: cfg.LockTimeout})
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set, refusing to start with in-memory fallback")
		}
		if cfg.MigrateOnStart {
			if err := pg.Migrate(ctx); err != nil {
				log.Fatal().Err(err).Msg("migrate schema")
			}
		}
		if err := pg.SeedUsers(ctx, memory.SeedAccounts()); err != nil {
			log.Fatal().Err(err).Msg("seed user accounts")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Str("repository", "postgres").Msg("storage ready")
	} else {
		repo = memory.NewSeeded()
		log.Info().Str("repository", "memory").Msg("storage ready")
	}

	deps := service.Deps{
		Metrics:        observability.NewMetrics(),
		Logger:         log,
		TxMaxAttempts:  cfg.TxMaxAttempts,
		ReportCacheTTL: cfg.ReportCacheTTL,
	}
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		reports := cache.NewRedisReportCache(client)
		if err := reports.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using noop report cache and in-process locking only")
			_ = client.Close()
		} else {
			deps.Reports = reports
			deps.Locker = cache.NewRedisLocker(client, cfg.DocumentLockTTL, cfg.DocumentLockTry)
			closers = append(closers, reports.Close)
			log.Info().Str("addr", cfg.RedisAddr).Msg("redis cache and document locks enabled")
		}
	}

	svc := service.New(repo, deps)
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL, repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Metrics:       deps.Metrics,
		Logger:        log,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("env", cfg.AppEnv).Msg("stock ledger listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}
	log.Info().Msg("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.IsProduction() {
		if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
			return fmt.Errorf("SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD must be set in production")
		}
		if cfg.AllowedOrigin == "*" {
			return fmt.Errorf("ALLOWED_ORIGIN must not be * in production")
		}
	}
	if cfg.TxMaxAttempts < 1 {
		return fmt.Errorf("TX_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
