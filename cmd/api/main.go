package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aisouls/backend/internal/config"
	"github.com/aisouls/backend/internal/handler"
	"github.com/aisouls/backend/internal/model/persona"
	"github.com/aisouls/backend/internal/service/ai"
	"github.com/aisouls/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	zerolog.SetGlobalLevel(cfg.Log.Level)
	zerolog.DefaultContextLogger = &logger
	log.Logger = logger
	ctx = logger.WithContext(ctx)

	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file loaded, using system environment only")
	}

	personaStore := persona.NewRegistry(persona.Seed())

	completer, err := ai.NewCompleter(ctx, cfg.AI)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize completion service, completions will fail")
		completer = ai.Unconfigured{Reason: err.Error()}
	}

	chatService := chat.NewService(personaStore, ai.NewPromptAssembler(), completer, chat.Options{
		TurnLimit:      cfg.Chat.TurnLimit,
		ResetPolicy:    cfg.Chat.ResetPolicy,
		DefaultPersona: cfg.Chat.DefaultPersona,
	})

	if cfg.Chat.DefaultPersona != "" {
		if _, ok := personaStore.Find(cfg.Chat.DefaultPersona); !ok {
			logger.Fatal().Str("persona", cfg.Chat.DefaultPersona).Msg("SOULS_DEFAULT_PERSONA is not a known persona")
		}
	}

	go sweepSessions(ctx, chatService, cfg.Chat.SessionTTL)

	router := handler.NewRouter(personaStore, chatService, logger)

	startServer(ctx, cfg.Server, router)
}

// sweepSessions evicts idle sessions until ctx is cancelled.
func sweepSessions(ctx context.Context, chatService *chat.Service, ttl time.Duration) {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			chatService.Sweep(ctx, ttl)
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zerolog.Ctx(ctx).Info().Str("addr", addr).Msg("AI Souls backend listening")
	if err := runServer(ctx, srv); err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("server error")
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
