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

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"

	"github.com/mwarrick/payguard/backend/internal/config"
	"github.com/mwarrick/payguard/backend/internal/handler"
	"github.com/mwarrick/payguard/backend/internal/service/assess"
	chatservice "github.com/mwarrick/payguard/backend/internal/service/chat"
	"github.com/mwarrick/payguard/backend/internal/service/relevance"
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

	// The two AI capabilities share one chat model. When credentials are
	// missing the service still runs: validation degrades to local checks
	// and assessments report a retryable failure.
	var chatModel model.ChatModel
	if cfg.AI.Enabled() {
		chatModel, err = cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize chat model: %v", err)
			log.Println("continuing with degraded AI functionality - check the Ark environment variables")
		} else {
			log.Println("AI chat model initialized successfully")
		}
	} else {
		log.Println("Ark credentials not configured, AI capabilities degraded")
	}

	validator, err := relevance.NewService(ctx, chatModel, relevance.Config{
		MinAnswerLength: cfg.Chat.MinAnswerLength,
	})
	if err != nil {
		log.Fatalf("failed to initialize relevance validator: %v", err)
	}

	assessor, err := assess.NewService(ctx, chatModel)
	if err != nil {
		log.Fatalf("failed to initialize risk assessor: %v", err)
	}

	store := chatservice.NewMemoryStore(cfg.Chat.SessionTTL)
	go store.RunSweeper(ctx, cfg.Chat.SweepInterval)

	engine := chatservice.NewEngine(store, validator, assessor, chatservice.Options{
		MaxAttempts: cfg.Chat.MaxAttempts,
		CallTimeout: cfg.AI.Timeout,
	})

	router := handler.NewRouter(engine)

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

	log.Printf("payment safety assistant listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
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
