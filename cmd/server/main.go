// main is the entry point for the tutormarket API server.
//
// It loads configuration, opens the SQLite database, builds the
// marketplace core, starts the live hub and the idle reaper, registers
// all HTTP routes, and serves until SIGINT/SIGTERM.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — how this file fits into the project
// ────────────────────────────────────────────────────────────────────
// This file is the "composition root" — the single place where all the
// independent packages (db, market, live, jobs, handlers) are wired
// together. Keeping this wiring in main.go means every other package
// stays easy to test in isolation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/Elizabethomito/tutormarket/internal/config"
	"github.com/Elizabethomito/tutormarket/internal/db"
	"github.com/Elizabethomito/tutormarket/internal/handlers"
	"github.com/Elizabethomito/tutormarket/internal/jobs"
	"github.com/Elizabethomito/tutormarket/internal/live"
	"github.com/Elizabethomito/tutormarket/internal/logging"
	"github.com/Elizabethomito/tutormarket/internal/market"
	"github.com/Elizabethomito/tutormarket/internal/metrics"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the YAML config file (optional)")
	addr := pflag.String("addr", "", "listen address, overrides server.addr")
	seed := pflag.Bool("seed", false, "mount POST /api/admin/seed, overrides server.seed_enabled")
	pflag.Parse()

	if err := run(*configPath, *addr, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "tutormarket: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addrFlag string, seedFlag bool) error {
	// ── Configuration ────────────────────────────────────────────────
	// Defaults < config file < .env < process environment < flags.
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}
	if seedFlag {
		cfg.Server.SeedEnabled = true
	}

	log := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Database ─────────────────────────────────────────────────────
	// db.Open creates the file if it doesn't exist and runs all CREATE
	// TABLE IF NOT EXISTS migrations automatically.
	database, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	// ── Live hub ─────────────────────────────────────────────────────
	// Every committed mutation is published here. With redis configured,
	// events also travel to the other server instances.
	hub := live.NewHub(log, 0)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("redis close", "err", err)
			}
		}()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		if err := live.NewRedisBridge(rdb, cfg.Redis.Channel, hub, log).Start(ctx); err != nil {
			return err
		}
		log.Info("live fan-out over redis", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}

	// ── Core ─────────────────────────────────────────────────────────
	m := metrics.New()
	svc := market.New(db.NewStore(database), market.PolicyFromConfig(cfg), log,
		market.WithPublisher(hub), market.WithMetrics(m))

	if err := jobs.StartIdleReaper(ctx, cfg.Presence.SweepSchedule, 0, svc, log); err != nil {
		return err
	}

	// ── HTTP ─────────────────────────────────────────────────────────
	srv := &handlers.Server{
		Market:      svc,
		Hub:         hub,
		Upgrader:    live.NewUpgrader(cfg.Server.CORSOrigin),
		Metrics:     m,
		Log:         log,
		Secret:      cfg.Auth.JWTSecret,
		Issuer:      cfg.Auth.JWTIssuer,
		CORSOrigin:  cfg.Server.CORSOrigin,
		SeedEnabled: cfg.Server.SeedEnabled,
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("tutormarket API listening", "addr", cfg.Server.Addr, "seed", cfg.Server.SeedEnabled)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// Websocket connections are hijacked and not tracked by Shutdown;
	// they end when the process exits.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
