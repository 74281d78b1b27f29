// botkit - NLU training/prediction server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/botkit/internal/api"
	"github.com/ashureev/botkit/internal/config"
	"github.com/ashureev/botkit/internal/events"
	"github.com/ashureev/botkit/internal/healthcheck"
	"github.com/ashureev/botkit/internal/nlu"
	"github.com/ashureev/botkit/internal/service"
	"github.com/ashureev/botkit/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func openRepository(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	if cfg.UsePostgres() {
		slog.Info("Using Postgres model store")
		return store.NewPostgres(ctx, cfg.DatabaseURL)
	}
	slog.Info("Using SQLite model store", "path", cfg.DBPath)
	return store.NewSQLite(cfg.DBPath)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server", "port", cfg.Port, "version", version)

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Database connected")

	engineOpts := nlu.Options{Logger: logger}
	if cfg.FallbackEnabled() {
		engineOpts.Fallback = nlu.NewOpenAIFallback(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
		engineOpts.FallbackThreshold = cfg.LLM.Threshold
		slog.Info("LLM fallback enabled", "model", cfg.LLM.Model, "threshold", cfg.LLM.Threshold)
	}
	engine := nlu.NewEngine(engineOpts)

	bus := events.NewBus(events.Options{Logger: logger})
	defer bus.Close()

	models := service.NewModelService(repo, engine, logger)
	sessions := service.NewTrainSessionService(bus, logger)
	trainer := service.NewTrainService(engine, models, sessions, cfg.Training.MaxTraining, logger)
	defer trainer.Shutdown()

	service.StartJanitor(ctx, sessions, cfg.Training.SessionTTL)
	slog.Info("Session janitor started", "session_ttl", cfg.Training.SessionTTL)

	info := api.Info{
		Version:   version,
		Specs:     api.Specs{EngineVersion: engine.Version(), SpecHash: engine.SpecificationHash()},
		Languages: cfg.Training.Languages,
	}
	router := api.NewRouter(ctx, cfg.HTTP,
		api.NewHealthHandler(repo),
		api.NewNLUHandler(models, trainer, sessions, info),
		api.NewRenderHandler(cfg.BotURL),
		api.NewEventsHandler(bus, cfg.HTTP.AllowedOrigins),
	)

	// SSE and websocket streams need WriteTimeout disabled.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return err
		}
		hs := healthcheck.NewServer(repo, 0, logger)
		g.Go(func() error { return hs.Serve(gctx, lis) })
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		// Cancel trainings first so their final status reaches live streams,
		// then end the streams so Shutdown does not wait on them.
		trainer.Shutdown()
		bus.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
