// Package main is the entry point for the trip dispatch API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okonek/trip-dispatch/backend/internal/cache"
	"github.com/okonek/trip-dispatch/backend/internal/config"
	"github.com/okonek/trip-dispatch/backend/internal/handler"
	"github.com/okonek/trip-dispatch/backend/internal/hub"
	"github.com/okonek/trip-dispatch/backend/internal/middleware"
	"github.com/okonek/trip-dispatch/backend/internal/notify"
	"github.com/okonek/trip-dispatch/backend/internal/repo"
	"github.com/okonek/trip-dispatch/backend/internal/scheduler"
	"github.com/okonek/trip-dispatch/backend/internal/service"
)

// maxBodySize caps incoming request bodies. Location fixes and dispatch
// payloads are small; anything near this limit is malformed or hostile.
const maxBodySize = 1 << 20 // 1 MiB

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		// Use plain stderr before the logger is configured.
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	// log/slog is the stdlib structured logger introduced in Go 1.21.
	// JSON handler writes machine-readable output suitable for log aggregators.
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Database ---------------------------------------------------------
	// pgxpool manages a pool of Postgres connections.
	// New() does not open connections immediately — the first query does.
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(context.Background()); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connection established")

	// --- Redis ------------------------------------------------------------
	// Backs the last-known-location cache. A dead Redis degrades the cache
	// endpoints but must not block startup, so only log on ping failure.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		slog.Warn("redis unreachable, location cache degraded", "addr", cfg.RedisAddr, "error", err)
	}

	// --- Outbound events --------------------------------------------------
	// Notifications and invoice requests go out over RabbitMQ. With no
	// AMQP_URL configured the no-op emitter keeps local development broker-free.
	var emitter interface {
		service.Notifier
		service.InvoiceRequester
		Close() error
	}
	if cfg.AMQPURL != "" {
		amqpEmitter, err := notify.NewAMQPEmitter(cfg.AMQPURL, logger)
		if err != nil {
			slog.Error("failed to connect to broker", "error", err)
			os.Exit(1)
		}
		emitter = amqpEmitter
	} else {
		slog.Info("AMQP_URL not set, outbound events disabled")
		emitter = notify.Nop{}
	}
	defer emitter.Close()

	// --- Wiring -----------------------------------------------------------
	trips := repo.NewTripRepo(pool)
	requests := repo.NewRequestRepo(pool)
	dispatchRepo := repo.NewDispatchRepo(pool)
	drivers := repo.NewDriverRepo(pool)
	tracking := repo.NewTrackingRepo(pool)

	locations := cache.NewLocationCache(rdb)
	locationHub := hub.New(logger)
	defer locationHub.Close()

	dispatchSvc := service.NewDispatchService(trips, requests, dispatchRepo, drivers, emitter, cfg.DispatchTTL)
	tripSvc := service.NewTripService(trips, requests, emitter, emitter, logger)
	trackingSvc := service.NewTrackingService(tracking, trips, locations, locationHub, logger)

	// --- Expiration sweep -------------------------------------------------
	// Runs for the life of the process; the sweep itself is stateless and
	// idempotent, so a crashed run is simply retried next interval.
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sweeper := scheduler.NewSweeper(dispatchSvc.ExpireOverdue, cfg.SweepInterval, logger)
	go sweeper.Run(sweepCtx)

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer.
	// RequestID generates a unique trace ID per request.
	// RealIP sets r.RemoteAddr from X-Forwarded-For / X-Real-IP (safe behind a proxy).
	// SlogLogger writes one structured JSON log line per request.
	// Recoverer catches panics and returns HTTP 500 instead of crashing.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(maxBodySize))

	srvHandler := handler.NewServer(dispatchSvc, tripSvc, trackingSvc, locationHub, logger)
	r.Group(srvHandler.Routes)

	// --- HTTP Server ------------------------------------------------------
	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	// WriteTimeout stays zero because the websocket endpoint holds its
	// connection open indefinitely; per-message deadlines guard it instead.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	// Stop background work first so no new notifications race the shutdown,
	// then drain HTTP. Hub close disconnects websocket subscribers cleanly.
	stopSweeper()
	locationHub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
