package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/osnovaresurs/leadbot/internal/api/router"
	"github.com/osnovaresurs/leadbot/internal/assistant"
	"github.com/osnovaresurs/leadbot/internal/config"
	"github.com/osnovaresurs/leadbot/internal/handoff"
	"github.com/osnovaresurs/leadbot/internal/intake"
	"github.com/osnovaresurs/leadbot/internal/notify"
	"github.com/osnovaresurs/leadbot/internal/observability/metrics"
	"github.com/osnovaresurs/leadbot/internal/session"
	"github.com/osnovaresurs/leadbot/internal/telegram"
	"github.com/osnovaresurs/leadbot/pkg/logging"
)

func main() {
	// .env is optional; real deployments set variables directly
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting leadbot",
		"env", cfg.Env,
		"port", cfg.Port,
		"assistant", cfg.AssistantProvider,
		"session_backend", cfg.SessionBackend,
	)

	if cfg.TelegramToken == "" {
		logger.Error("TELEGRAM_BOT_TOKEN is required")
		os.Exit(1)
	}
	if cfg.OperatorChatID == 0 {
		logger.Error("OPERATOR_CHAT_ID is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tgClient, err := telegram.New(telegram.Config{
		Token:      cfg.TelegramToken,
		BaseURL:    cfg.TelegramBaseURL,
		MaxRetries: 2,
		Logger:     logger.Logger,
	})
	if err != nil {
		logger.Error("failed to create telegram client", "error", err)
		os.Exit(1)
	}
	messenger := telegram.NewBotMessenger(tgClient)

	var redisClient *redis.Client
	if cfg.SessionBackend == "redis" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	var store session.Store
	if redisClient != nil {
		store = session.NewRedisStore(redisClient)
	} else {
		store = session.NewMemoryStore()
	}

	asst := buildAssistant(cfg, redisClient, logger)

	var emailSender notify.EmailSender
	if s := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); s != nil {
		emailSender = s
	}

	var archive *handoff.Archive
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		pingCancel()
		if err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		archive = handoff.NewArchive(db)
	}

	notifierOpts := []handoff.NotifierOption{handoff.WithLogger(logger)}
	if emailSender != nil && len(cfg.HandoffEmailCopyTo) > 0 {
		notifierOpts = append(notifierOpts, handoff.WithEmailCopies(emailSender, cfg.HandoffEmailCopyTo))
	}
	if archive != nil {
		notifierOpts = append(notifierOpts, handoff.WithArchive(archive))
	}
	notifier, err := handoff.NewNotifier(messenger, cfg.OperatorChatID, notifierOpts...)
	if err != nil {
		logger.Error("failed to create handoff notifier", "error", err)
		os.Exit(1)
	}

	botMetrics := metrics.NewBotMetrics(nil)
	ctrlOpts := []intake.Option{intake.WithMetrics(botMetrics), intake.WithLogger(logger)}
	if asst != nil {
		ctrlOpts = append(ctrlOpts, intake.WithAssistant(asst, cfg.AssistantProvider))
	}
	controller := intake.NewController(store, messenger, notifier, ctrlOpts...)
	dispatcher := intake.NewDispatcher(controller)
	poller := telegram.NewPoller(tgClient, dispatcher, cfg.TelegramPollSecs, logger)

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("poller stopped", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(&router.Config{Logger: logger, MetricsHandler: promhttp.Handler()}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	cancel()
	<-pollerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("leadbot stopped")
}

func buildAssistant(cfg *config.Config, redisClient *redis.Client, logger *logging.Logger) assistant.Client {
	switch cfg.AssistantProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" || cfg.OpenAIAssistantID == "" {
			logger.Error("OPENAI_API_KEY and OPENAI_ASSISTANT_ID are required for the openai provider")
			os.Exit(1)
		}
		var threads assistant.ThreadStore
		if redisClient != nil {
			threads = assistant.NewRedisThreadStore(redisClient)
		} else {
			threads = assistant.NewMemoryThreadStore()
		}
		client, err := assistant.NewOpenAIClient(openai.NewClient(cfg.OpenAIAPIKey), threads, assistant.OpenAIConfig{
			AssistantID:  cfg.OpenAIAssistantID,
			RunTimeout:   cfg.AssistantTimeout,
			PollInterval: cfg.AssistantPollInterval,
		}, logger)
		if err != nil {
			logger.Error("failed to create openai assistant", "error", err)
			os.Exit(1)
		}
		return client

	case "gigachat":
		client, err := assistant.NewGigaChatClient(assistant.GigaChatConfig{
			Credentials: cfg.GigaChatCredentials,
			AuthURL:     cfg.GigaChatAuthURL,
			BaseURL:     cfg.GigaChatBaseURL,
			Scope:       cfg.GigaChatScope,
			Timeout:     cfg.AssistantTimeout,
			Logger:      logger,
		})
		if err != nil {
			logger.Error("failed to create gigachat assistant", "error", err)
			os.Exit(1)
		}
		return client

	case "", "none":
		logger.Info("no assistant provider configured, free-text fallback will hint /start")
		return nil

	default:
		logger.Error("unknown assistant provider", "provider", cfg.AssistantProvider)
		os.Exit(1)
		return nil
	}
}
