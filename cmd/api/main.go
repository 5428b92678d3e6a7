package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/calegria/mindpanel/backend/internal/config"
	"github.com/calegria/mindpanel/backend/internal/handler"
	panelmodel "github.com/calegria/mindpanel/backend/internal/model/panel"
	"github.com/calegria/mindpanel/backend/internal/model/persona"
	"github.com/calegria/mindpanel/backend/internal/service/ai"
	panelservice "github.com/calegria/mindpanel/backend/internal/service/panel"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	personaStore, err := persona.LoadFile(cfg.Panel.PersonasPath)
	if err != nil {
		logger.Fatal("failed to load personas", zap.String("path", cfg.Panel.PersonasPath), zap.Error(err))
	}

	registry, err := panelmodel.LoadRegistry(cfg.Panel.ConfigsPath, personaStore)
	if err != nil {
		logger.Fatal("failed to load panel configs", zap.String("path", cfg.Panel.ConfigsPath), zap.Error(err))
	}

	var completion panelservice.CompletionService
	if cfg.AI.Enabled() {
		aiSvc, err := ai.NewService(ctx, cfg.AI, logger)
		if err != nil {
			logger.Warn("failed to initialize AI service, panel will answer with fallbacks", zap.Error(err))
			completion = ai.Unavailable{}
		} else {
			logger.Info("AI service initialized", zap.String("model", cfg.AI.Model))
			completion = aiSvc
		}
	} else {
		logger.Warn("Ark credentials not configured, panel will answer with fallbacks")
		completion = ai.Unavailable{}
	}

	store := panelservice.NewSessionStore(personaStore, cfg.Panel.SessionTTL, logger)
	builder := panelservice.NewContextBuilder(personaStore, cfg.Panel.MaxPriorExchanges, cfg.Panel.TokenBudget)
	generator := panelservice.NewGenerator(completion, personaStore, builder, store, cfg.AI.CallTimeout, logger)
	moderator := panelservice.NewModerator(completion, registry, personaStore, store, cfg.Panel.SummaryThreshold, cfg.AI.CallTimeout, logger)
	orchestrator := panelservice.NewOrchestrator(store, registry, personaStore, generator, moderator, logger)

	router := handler.NewRouter(personaStore, orchestrator, logger)

	startServer(ctx, cfg.Server, router, logger)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("mindpanel backend listening", zap.String("addr", serverCfg.Addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
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
