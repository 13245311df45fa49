package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/rmoreira/leadqual-ai/internal/config"
	"github.com/rmoreira/leadqual-ai/internal/http/handlers"
	"github.com/rmoreira/leadqual-ai/internal/http/router"
	"github.com/rmoreira/leadqual-ai/internal/leads"
	"github.com/rmoreira/leadqual-ai/internal/observability/metrics"
	"github.com/rmoreira/leadqual-ai/internal/provider"
	"github.com/rmoreira/leadqual-ai/internal/qualification"
	"github.com/rmoreira/leadqual-ai/pkg/logging"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting leadqual-ai API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"provider", cfg.AIProvider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	aiProvider, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build AI provider", "error", err)
		os.Exit(1)
	}

	// CRM lead storage: Postgres when configured, in-memory otherwise.
	var leadsRepo leads.Repository = leads.NewInMemoryRepository()
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		leadsRepo = leads.NewPostgresRepository(pool)
		logger.Info("lead storage: postgres")
	} else {
		logger.Info("lead storage: in-memory")
	}
	leadsService := leads.NewService(leadsRepo, logger)

	// Transcript mirror is optional.
	var transcripts *qualification.TranscriptStore
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer client.Close()
		transcripts = qualification.NewTranscriptStore(client, cfg.TranscriptTTL)
		logger.Info("transcript mirror enabled", "addr", cfg.RedisAddr)
	}

	registry := prometheus.NewRegistry()
	engineMetrics := metrics.NewQualificationMetrics(registry)

	engine := qualification.NewEngine(qualification.EngineParams{
		Provider: aiProvider,
		Criteria: qualification.Criteria{
			RequiredFields: cfg.RequiredFields,
			MinScore:       cfg.MinScore,
			MaxAttempts:    cfg.MaxAttempts,
			TimeoutMinutes: cfg.TimeoutMinutes,
			BusinessType:   cfg.BusinessType,
		},
		Logger:      logger,
		Metrics:     engineMetrics,
		Transcripts: transcripts,
		Sink: qualification.HandoffSinkFunc(func(ctx context.Context, result *qualification.Result) error {
			_, err := leadsService.CreateFromQualification(ctx, result.CRMData)
			return err
		}),
		MaxConcurrentCalls: cfg.ProviderMaxConcurrent,
		CallTimeout:        cfg.ProviderTimeout,
		PhoneRegion:        cfg.DefaultPhoneRegion,
	})

	go engine.RunReaper(ctx, cfg.ReaperInterval)

	aiHandler := handlers.NewAIWebhookHandler(engine, aiProvider, logger)
	r := router.New(&router.Config{
		Logger:         logger,
		AIHandler:      aiHandler,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildProvider constructs the configured backend, wraps it with the retry
// and fallback layer, and returns it as the engine's provider.
func buildProvider(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (provider.AIProvider, error) {
	primary, err := buildBackend(ctx, cfg, cfg.AIProvider)
	if err != nil {
		return nil, fmt.Errorf("primary provider %q: %w", cfg.AIProvider, err)
	}

	var fallback provider.AIProvider
	if cfg.AIFallbackProvider != "" && cfg.AIFallbackProvider != cfg.AIProvider {
		fallback, err = buildBackend(ctx, cfg, cfg.AIFallbackProvider)
		if err != nil {
			return nil, fmt.Errorf("fallback provider %q: %w", cfg.AIFallbackProvider, err)
		}
		logger.Info("provider fallback enabled",
			"primary", cfg.AIProvider,
			"fallback", cfg.AIFallbackProvider,
		)
	}

	return provider.NewResilient(primary, fallback, cfg.ProviderRetryDelay, logger), nil
}

func buildBackend(ctx context.Context, cfg *appconfig.Config, name string) (provider.AIProvider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return provider.NewOpenAIProviderFromKey(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	case "gemini":
		return provider.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return provider.NewBedrockProvider(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
