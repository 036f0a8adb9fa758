package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"vibetunes/internal/http/handlers"
	httpapi "vibetunes/internal/http/httpapi"
	"vibetunes/internal/infra"
	"vibetunes/internal/providers/emotion"
	"vibetunes/internal/realtime"
	"vibetunes/internal/session"
	"vibetunes/internal/submission"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	strategy, err := submission.ParseStrategy(cfg.Strategy)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid recommendation strategy")
	}
	backend, err := emotion.NewClient(emotion.Options{
		BaseURL:        cfg.BackendBaseURL,
		Logger:         &logger,
		RequestTimeout: cfg.BackendTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build backend client")
	}

	hub := realtime.NewHub(&logger)
	sessions := session.NewRegistry(session.Options{
		Recommender:    submission.NewRecommender(backend, strategy),
		DelayThreshold: cfg.DelayWarning,
		FrameMaxAge:    cfg.CameraFrameMaxAge,
		IdleTTL:        cfg.SessionIdleTTL,
		Publisher:      hub,
		Logger:         &logger,
	})

	app := handlers.NewApp(sessions, hub, &logger, cfg.MaxUploadBytes, cfg.CORSAllowedOrigins)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		SubmitPerMinute: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return sessions.Run(ctx) })
	g.Go(func() error {
		logger.Info().
			Str("addr", server.Addr()).
			Str("backend", cfg.BackendBaseURL).
			Str("strategy", string(strategy)).
			Msg("API listening")
		return server.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
