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

	"github.com/joho/godotenv"

	"github.com/aero-pet/companion/internal/config"
	"github.com/aero-pet/companion/internal/handler"
	"github.com/aero-pet/companion/internal/logging"
	"github.com/aero-pet/companion/internal/model/persona"
	"github.com/aero-pet/companion/internal/service/ai"
	moodservice "github.com/aero-pet/companion/internal/service/mood"
	"github.com/aero-pet/companion/internal/service/thought"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if _, err := logging.Init(cfg.Log); err != nil {
		slog.Warn("log file unavailable, logging to stdout only", slog.Any("error", err))
	}
	if envErr != nil {
		slog.Info("no .env file loaded, using process environment", slog.Any("error", envErr))
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	if cfg.Persona.File != "" {
		p, err := persona.LoadFile(cfg.Persona.File)
		if err != nil {
			slog.Error("failed to load persona file", slog.String("path", cfg.Persona.File), slog.Any("error", err))
			os.Exit(1)
		}
		personaStore.Replace(p)
	}
	companion := persona.Default(personaStore)

	if !cfg.AI.HasCredential() {
		slog.Warn("no upstream API key configured; mood falls back to neutral and chat/think calls will be rejected upstream",
			slog.String("provider", cfg.AI.Provider))
	}

	aiService, err := ai.NewService(ctx, personaStore, cfg.AI)
	if err != nil {
		slog.Error("failed to initialize AI service", slog.Any("error", err))
		os.Exit(1)
	}
	chatModel := aiService.GetChatModel()

	moodSvc, err := moodservice.NewService(ctx, chatModel, companion, moodservice.Config{
		Credentialed: cfg.AI.HasCredential(),
		Model:        cfg.AI.ClassifierModel,
	})
	if err != nil {
		slog.Error("failed to initialize mood service", slog.Any("error", err))
		os.Exit(1)
	}

	thoughtSvc, err := thought.NewService(ctx, chatModel, companion, cfg.AI.ClassifierModel)
	if err != nil {
		slog.Error("failed to initialize thought service", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("AI services initialized",
		slog.String("provider", cfg.AI.Provider),
		slog.String("chat_model", cfg.AI.ChatModel),
		slog.String("classifier_model", cfg.AI.ClassifierModel),
		slog.String("persona", companion.ID),
	)

	router := handler.NewRouter(personaStore, aiService, moodSvc, thoughtSvc, cfg.Server.AllowedOrigin)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("Aero backend listening", slog.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		slog.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
