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

	"github.com/zhouzirui/sanatani-gyan/backend/internal/config"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/events"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/handler"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/chat"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/identity"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/prompt"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/observability"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/service/ai"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/service/auth"
	chatService "github.com/zhouzirui/sanatani-gyan/backend/internal/service/chat"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/service/narration"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	observability.Setup(os.Stdout, cfg.Log.Format, cfg.Log.Level)
	if envErr != nil {
		slog.Warn("failed to load .env file, continuing with system environment variables only", "error", envErr)
	}

	store, closeStore, err := storage.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeStore(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}()
	slog.Info("store opened", "driver", cfg.Store.Driver)

	answers := newAnswerClient(ctx, cfg.AI)

	defaultLang, ok := chat.ParseLanguage(cfg.Session.DefaultLanguage)
	if !ok {
		slog.Warn("unknown default language, using English", "language", cfg.Session.DefaultLanguage)
		defaultLang = chat.LanguageEnglish
	}

	hub := events.NewHub(events.DefaultBuffer)
	manager := chatService.NewManager(ctx, store, answers, chatService.Options{
		IdleDelay:       cfg.Session.IdleDelay,
		Publisher:       hub,
		DefaultLanguage: defaultLang,
	})

	provider := auth.NewProvider(ctx, store)
	provider.Subscribe(func(ctx context.Context, id identity.Identity) {
		manager.OnIdentityChanged(ctx, id)
	})
	manager.OnIdentityChanged(ctx, provider.Current())

	narrator := narration.NewNarrator(events.NewPlayer(hub), hub)

	router := handler.NewRouter(handler.Dependencies{
		Manager:        manager,
		Auth:           provider,
		Narrator:       narrator,
		Hub:            hub,
		Prompts:        prompt.NewMemoryStore(prompt.SeedTopics(), prompt.SeedStarters()),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		GuestLimit:     cfg.Session.GuestLimit,
		StarterCount:   cfg.Session.StarterCount,
	})

	startServer(ctx, cfg.Server, router)
}

// newAnswerClient 在模型未配置或初始化失败时退化为始终失败的客户端，使会话仍可用
func newAnswerClient(ctx context.Context, cfg config.AIConfig) chatService.AnswerClient {
	if !cfg.Enabled() {
		slog.Warn("Ark 凭证未配置，所有提问将返回兜底回复")
		return ai.Unavailable{}
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		slog.Warn("failed to create chat model, continuing without AI functionality", "error", err)
		return ai.Unavailable{}
	}

	svc, err := ai.NewService(ctx, chatModel)
	if err != nil {
		slog.Warn("failed to initialize AI service, continuing without AI functionality", "error", err)
		return ai.Unavailable{}
	}

	slog.Info("AI service initialized successfully", "model", cfg.Model)
	return svc
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("Sanatani Gyan backend listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		slog.Error("server error", "error", err)
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
