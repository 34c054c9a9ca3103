package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/backend"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/database"
	"github.com/stemsi/exstem-player/internal/handler"
	"github.com/stemsi/exstem-player/internal/logger"
	"github.com/stemsi/exstem-player/internal/middleware"
	"github.com/stemsi/exstem-player/internal/router"
	"github.com/stemsi/exstem-player/internal/service"
	"github.com/stemsi/exstem-player/internal/session"
	"github.com/stemsi/exstem-player/internal/store"
	"github.com/stemsi/exstem-player/internal/validator"
	"github.com/stemsi/exstem-player/internal/worker"
	"golang.org/x/sync/errgroup"
)

// joinRate bounds session creation per client IP.
const joinRate = 30

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("device_store", cfg.DeviceStore).
		Bool("audit", cfg.AuditEnabled).
		Msg("Starting ExStem Player")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	policy, err := config.LoadPolicy(cfg.IntegrityPolicyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load integrity policy")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Connections (Redis and/or PostgreSQL, per config) ─────────────
	conns, err := database.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer conns.Close()
	rdb := conns.Redis

	// ─── Device Store ──────────────────────────────────────────────────
	device, closeDevice, err := store.Open(cfg.DeviceStore, cfg.DeviceStorePath, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open device store")
	}
	defer closeDevice()

	g, gctx := errgroup.WithContext(ctx)

	// ─── Audit Trail ───────────────────────────────────────────────────
	var recorder session.Recorder
	if cfg.AuditEnabled {
		rec := worker.NewRedisRecorder(rdb, log)
		integrityWorker := worker.NewIntegrityWorker(conns.Postgres, rdb, log)
		submissionWorker := worker.NewSubmissionWorker(conns.Postgres, rdb, log)

		g.Go(func() error { rec.Run(gctx); return nil })
		g.Go(func() error { integrityWorker.Start(gctx); return nil })
		g.Go(func() error { submissionWorker.Start(gctx); return nil })
		recorder = rec
	}

	// ─── Initialize Services ──────────────────────────────────────────
	quizBackend := backend.NewClient(cfg.QuizBackendURL, cfg.QuizAPIKey, cfg.BackendTimeout, nil)
	tokens := service.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	sessionService := service.NewSessionService(service.SessionDeps{
		Backend:     quizBackend,
		Store:       device,
		Recorder:    recorder,
		Policy:      &policy,
		SectionSize: cfg.SectionSize,
		IdleTTL:     cfg.SessionIdleTTL,
	}, tokens, log)
	g.Go(func() error { sessionService.Run(gctx); return nil })

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(sessionService, log),
		WS:      handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(rdb, sessionService, log),
	}

	joinLimiter := middleware.NewRateLimiter(joinRate, time.Minute)
	defer joinLimiter.Stop()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(tokens, handlers, joinLimiter, cfg, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
