package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"moatgate.org/internal/audit"
	"moatgate.org/internal/auth"
	"moatgate.org/internal/config"
	"moatgate.org/internal/guard"
	"moatgate.org/internal/httpapi"
	"moatgate.org/internal/moat"
	"moatgate.org/internal/obs"
	"moatgate.org/internal/ratelimit"
	"moatgate.org/internal/store"
	"moatgate.org/internal/store/memory"
	"moatgate.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLog := obs.NewLogger("error", false)
		errLog.Fatal().Err(err).Msg("configuration")
	}
	log := obs.NewLogger(cfg.LogLevel, cfg.DevMode)

	guardCfg := guard.ExecutorConfig{
		Timeout:     cfg.QueryTimeout,
		MaxRows:     cfg.MaxRows,
		PoolMaxOpen: cfg.PoolMaxOpen,
		PoolMaxIdle: cfg.PoolMaxIdle,
	}
	// Without a DSN the gateway still serves auth and schema metadata;
	// query execution answers not_connected until a database is configured.
	executor := guard.NewExecutor(nil, guardCfg)
	if cfg.DatabaseDSN != "" {
		executor, err = guard.Open(cfg.DatabaseDSN, guardCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("open guarded database")
		}
	}
	defer func() { _ = executor.Close() }()

	// Shared-state backends when a state DSN is configured, in-memory
	// otherwise. Single choice made once; everything downstream sees only
	// the interfaces.
	var (
		revocations store.RevocationStore
		rates       store.RateStore
	)
	if cfg.StateDSN != "" {
		state, err := pg.Open(cfg.StateDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open state store")
		}
		defer func() { _ = state.Close() }()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := state.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatal().Err(err).Msg("ensure state schema")
		}
		cancel()
		go pruneLoop(state, cfg.RateWindow, log)
		revocations, rates = state, state
	} else {
		revocations, rates = memory.NewRevocationStore(), memory.NewRateStore()
	}

	users, err := auth.LoadUsers(cfg.UsersPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load user registry")
	}
	issuer, err := auth.NewTokenIssuer([]byte(cfg.AuthSecret), cfg.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("token issuer")
	}
	authSvc, err := auth.NewService(users, issuer, revocations)
	if err != nil {
		log.Fatal().Err(err).Msg("auth service")
	}

	registry, err := moat.LoadRegistry(cfg.SchemaPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load schema registry")
	}

	auditLog, err := audit.NewLogger(cfg.AuditDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("audit logger")
	}
	defer func() { _ = auditLog.Close() }()

	metrics := obs.NewMetrics()
	api := httpapi.New(httpapi.Options{
		Log:            log,
		Metrics:        metrics,
		Auth:           authSvc,
		Executor:       executor,
		Filter:         moat.NewFilter(registry),
		Registry:       registry,
		Limiter:        ratelimit.NewLimiter(rates, cfg.RateWindow, cfg.RequestsPerWindow, cfg.AuthReqsPerWindow),
		Audit:          auditLog,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		BurstPerSecond: cfg.BurstPerSecond,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      cfg.QueryTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("version", version).Msg("moatgate listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("stopped")
}

// pruneLoop periodically clears expired revocations and stale rate events
// from the shared state store.
func pruneLoop(state *pg.Store, window time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := state.Prune(ctx, window); err != nil {
			log.Warn().Err(err).Msg("state prune failed")
		}
		cancel()
	}
}
