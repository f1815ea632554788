package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/adapters/cache"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/adapters/database"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/adapters/events"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/adapters/llm"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/adapters/templates"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/api/handlers"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/api/routes"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/application/services"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/providers"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/repositories"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/observability"
	"github.com/zatekoja/RadiologyOrderIntake/backend/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Env, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	checks := map[string]routes.HealthCheck{"postgres": pgClient.Ping}

	// Redis is optional: without it reference lookups are uncached and no
	// order events are published
	var cacheProvider providers.CacheProvider
	var eventBus providers.EventBus
	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, running without cache and event bus")
	} else {
		defer redisClient.Close()
		cacheProvider = cache.NewRedisAdapter(redisClient, "intake:")
		bus := events.NewRedisEventBus(redisClient)
		defer bus.Close()
		eventBus = bus
		checks["redis"] = redisClient.Ping
	}

	gateway, err := llm.NewGatewayFromConfig(cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build LLM provider chain")
	}

	templateRepo, err := buildTemplates(pgClient, cfg.Validation.TemplatesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load prompt templates")
	}

	txManager := database.NewTxManager(pgClient)
	notifier := services.NewNotificationService(eventBus, 5*time.Second)
	defer notifier.Wait()

	contextService := services.NewContextService(
		database.NewReferenceCodeAdapter(pgClient),
		cacheProvider,
		cfg.Validation.ReferenceCacheTTL,
		cfg.Validation.ReferenceLimit,
	)
	lifecycle := services.NewOrderLifecycleService(
		txManager,
		database.NewOrderReader(pgClient),
		notifier,
		nil,
		cfg.Validation.OverrideMinAttempts,
	)
	validationService := services.NewValidationService(
		gateway,
		templateRepo,
		contextService,
		lifecycle,
		services.NewAttemptTracker(txManager),
		cfg.Validation.WordLimit,
	)

	router := routes.NewRouter(
		handlers.NewValidationHandler(validationService),
		handlers.NewOrderHandler(lifecycle),
		checks,
		cfg.Server.AllowedOrigins,
		metrics,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLM.Timeout*time.Duration(len(cfg.LLM.ProviderOrder)) + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Strs("providers", cfg.LLM.ProviderOrder).Msg("starting order intake API")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}

// buildTemplates prefers active database templates and falls back to the
// YAML file when one is configured
func buildTemplates(pg *postgres.Client, file string) (repositories.TemplateRepository, error) {
	sources := []repositories.TemplateRepository{database.NewTemplateAdapter(pg)}
	if file != "" {
		fileRepo, err := templates.NewFileRepository(file)
		if err != nil {
			return nil, err
		}
		sources = append(sources, fileRepo)
	}
	return templates.NewChain(sources...), nil
}
