package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	chatrelay "github.com/set-night/chatrelay"
	"github.com/set-night/chatrelay/internal/config"
	"github.com/set-night/chatrelay/internal/domain"
	"github.com/set-night/chatrelay/internal/handler"
	"github.com/set-night/chatrelay/internal/llm"
	"github.com/set-night/chatrelay/internal/logging"
	"github.com/set-night/chatrelay/internal/middleware"
	"github.com/set-night/chatrelay/internal/repository"
	"github.com/set-night/chatrelay/internal/repository/sqlc"
	"github.com/set-night/chatrelay/internal/service"
	"github.com/set-night/chatrelay/internal/telegram"
	"github.com/set-night/chatrelay/internal/vectorstore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	if _, err := logging.Init(cfg); err != nil {
		slog.Warn("log file unavailable, logging to stdout", "error", err)
	}

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Run migrations
	migrationsFS, err := fs.Sub(chatrelay.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize sqlc queries
	queries := sqlc.New(pool)

	// Ops alerts
	var alerter *telegram.Alerter
	if cfg.AlertsEnabled() {
		alerter, err = telegram.NewAlerter(cfg.BotToken, cfg.AlertChatID, cfg.AlertTopicID)
		if err != nil {
			slog.Error("failed to create alerter", "error", err)
			os.Exit(1)
		}
		defer alerter.Close()
	}

	// Providers
	dispatcher := llm.NewDispatcher()
	var catalog handler.ModelCatalog

	if cfg.OpenAIKey != "" {
		p, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.ProviderTimeout,
		})
		if err != nil {
			slog.Error("failed to create openai provider", "error", err)
			os.Exit(1)
		}
		dispatcher.Register(domain.ProviderOpenAI, p)
	}

	if cfg.GeminiKey != "" {
		p, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{
			APIKey:  cfg.GeminiKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.ProviderTimeout,
		})
		if err != nil {
			slog.Error("failed to create gemini provider", "error", err)
			os.Exit(1)
		}
		dispatcher.Register(domain.ProviderGemini, p)
	}

	if cfg.OpenRouterKey != "" {
		p, err := llm.NewOpenRouterProvider(llm.OpenRouterConfig{
			APIKey:  cfg.OpenRouterKey,
			BaseURL: cfg.OpenRouterBaseURL,
			Model:   cfg.OpenRouterModel,
			Referer: cfg.OpenRouterReferer,
			Title:   cfg.OpenRouterTitle,
			Timeout: cfg.ProviderTimeout,
		})
		if err != nil {
			slog.Error("failed to create openrouter provider", "error", err)
			os.Exit(1)
		}
		dispatcher.Register(domain.ProviderOpenRouter, p)
		catalog = p
	}

	if len(dispatcher.Available()) == 0 {
		slog.Warn("no provider credentials configured, chat requests will fail with 503")
	}

	// Vector documents
	var documents handler.Documents
	if cfg.VectorEnabled() {
		store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			URL:    cfg.QdrantURL,
			APIKey: cfg.QdrantAPIKey,
		})
		if err != nil {
			slog.Error("failed to connect to qdrant", "error", err)
			os.Exit(1)
		}
		defer store.Close()

		embedder, err := llm.NewEmbedder(llm.OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.ProviderTimeout,
		}, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
		if err != nil {
			slog.Error("failed to create embedder", "error", err)
			os.Exit(1)
		}
		documents = service.NewDocumentService(store, embedder, cfg.QdrantCollectionPrefix, embedder.Dimensions())
	} else if cfg.QdrantURL != "" {
		slog.Warn("QDRANT_URL set without OPENAI_API_KEY, document routes disabled")
	}

	// Rate limit counter
	var counter middleware.Counter = middleware.NewMemoryCounter()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			slog.Warn("redis unreachable, using in-memory rate limiting", "error", err)
		} else {
			counter = middleware.NewRedisCounter(rdb, "chatrelay:ratelimit")
		}
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		slog.Error("invalid TRUSTED_PROXIES", "error", err)
		os.Exit(1)
	}

	// Initialize services
	historyService := service.NewHistoryService(pool, queries)
	chatService := service.NewChatService(historyService, dispatcher, alerter, cfg.ChatRequestTimeout)

	// Initialize handler
	h := handler.New(handler.Deps{
		Chat:            chatService,
		History:         historyService,
		Models:          catalog,
		Documents:       documents,
		Providers:       dispatcher,
		DefaultProvider: domain.ProviderType(config.DefaultProvider),
	})

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: middleware.Chain(h.Routes(),
			middleware.RequestID(),
			middleware.RealIP(proxies),
			middleware.Recover(),
			middleware.Logging(),
			middleware.SecurityHeaders(),
			middleware.CORS(cfg.CORSOrigins, config.CORSMaxAge),
			middleware.RateLimit(counter, cfg.RateLimitPerMinute, config.RateLimitWindow),
			middleware.BodyLimit(cfg.MaxRequestBytes),
		),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	go func() {
		slog.Info("starting server",
			"addr", srv.Addr,
			"providers", dispatcher.Available(),
			"documents", documents != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	slog.Info("server stopped gracefully")
}
