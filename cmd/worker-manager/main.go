// cmd/worker-manager/main.go
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

	"go.uber.org/zap"

	"entitlement-workers/internal/common/auth"
	awsclient "entitlement-workers/internal/common/aws"
	"entitlement-workers/internal/common/camunda"
	"entitlement-workers/internal/common/config"
	"entitlement-workers/internal/common/database"
	"entitlement-workers/internal/common/logger"
	"entitlement-workers/internal/common/observability"
	"entitlement-workers/internal/entitlement/audit"
	"entitlement-workers/internal/entitlement/checker"
	"entitlement-workers/internal/entitlement/credits"
	"entitlement-workers/internal/entitlement/identity"
	"entitlement-workers/internal/entitlement/policy"
	"entitlement-workers/internal/entitlement/subscription"
	"entitlement-workers/internal/server"

	cc "entitlement-workers/internal/workers/entitlement/check-credits"
	cs "entitlement-workers/internal/workers/entitlement/check-subscription"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis ---
	// The cache is advisory: an outage at startup is logged and lookups fall through to Postgres.
	redis := database.NewRedis(cfg.Database.Redis)
	if err := retryWithBackoff(func() error { return redis.Ping(ctx) }, 3, time.Second, zapLog, "Redis connection"); err != nil {
		zapLog.Warn("redis unavailable, continuing without a warm cache", zap.Error(err))
	}
	defer redis.Close()

	// --- Elasticsearch (optional audit index) ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled() {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Warn("elasticsearch unavailable, decision audit index disabled", zap.Error(err))
			esClient = nil
		}
	}

	// --- Identity ---
	var resolver identity.Resolver
	switch cfg.Auth.Provider {
	case config.ProviderJWT:
		resolver = identity.NewJWTResolver(cfg.Auth.JWT.Secret, cfg.Auth.JWT.Issuer)
	default:
		resolver = identity.NewKeycloakResolver(auth.NewKeycloakClient(
			cfg.Auth.Keycloak.URL,
			cfg.Auth.Keycloak.Realm,
			cfg.Auth.Keycloak.ClientID,
			cfg.Auth.Keycloak.ClientSecret,
		))
	}
	resolver = identity.NewCachingResolver(resolver, cfg.Entitlement.IdentityCacheTTL)

	// --- Audit ---
	var recorders []audit.Recorder
	var esRecorder *audit.ElasticsearchRecorder
	var alerter *audit.SNSAlerter
	if esClient != nil {
		esRecorder = audit.NewElasticsearchRecorder(esClient.Client, audit.ElasticsearchConfig{
			IndexPrefix: cfg.Audit.IndexPrefix,
		}, log)
		esRecorder.Start()
		recorders = append(recorders, esRecorder)
	}
	if cfg.Audit.SNS.TopicARN != "" {
		snsClient, err := awsclient.NewSNSClient(ctx, cfg.Audit.SNS.Region)
		if err != nil {
			zapLog.Warn("sns client init failed, unavailability alerts disabled", zap.Error(err))
		} else {
			alerter = audit.NewSNSAlerter(snsClient, audit.SNSConfig{
				TopicARN: cfg.Audit.SNS.TopicARN,
				Window:   cfg.Audit.SNS.AlertWindow,
			}, log)
			alerter.Start()
			recorders = append(recorders, alerter)
		}
	}

	// --- Checker ---
	entitlements := checker.New(checker.Dependencies{
		Identity: resolver,
		Subscriptions: subscription.NewCachedRepository(
			subscription.NewPostgresRepository(pg.DB),
			redis.Client,
			cfg.Entitlement.CacheTTL,
			log,
		),
		Policy:        policy.NewEvaluator(),
		Credits:       credits.NewPostgresRepository(pg.DB),
		CreditPolicy:  credits.Evaluator{Limit: cfg.Entitlement.CreditLimit},
		Audit:         audit.Multi(recorders...),
		Observability: obs,
		Logger:        log,
	})

	// --- Zeebe ---
	// The client retries the topology probe itself; no outer retry loop.
	zeebe, err := camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: cfg.Camunda.Plaintext,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		RetryConfig:            camunda.StartupRetryConfig,
	})
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	workers := camunda.NewWorkers(zapLog)

	csHandler, err := cs.NewHandler(cs.HandlerOptions{AppConfig: cfg, Checker: entitlements, Logger: log, Observability: obs})
	if err != nil {
		zapLog.Fatal("failed to create check-subscription handler", zap.Error(err))
	}
	workers.Start(zeebe.GetClient(), cs.TaskType, config.GetWorkerConfig(cfg, cs.TaskType), csHandler.Handle)

	ccHandler, err := cc.NewHandler(cc.HandlerOptions{AppConfig: cfg, Checker: entitlements, Logger: log, Observability: obs})
	if err != nil {
		zapLog.Fatal("failed to create check-credits handler", zap.Error(err))
	}
	workers.Start(zeebe.GetClient(), cc.TaskType, config.GetWorkerConfig(cfg, cc.TaskType), ccHandler.Handle)

	zapLog.Info("Workers registered", zap.Int("count", workers.Count()))

	// --- HTTP ---
	readiness := map[string]server.Pinger{
		"postgres": pg,
		"redis":    redis,
		"zeebe":    server.PingFunc(zeebe.HealthCheck),
	}
	if esClient != nil {
		readiness["elasticsearch"] = esClient
	}

	srv := &http.Server{
		Addr: cfg.Server.Address,
		Handler: server.New(server.Options{
			Checker:        entitlements,
			Readiness:      readiness,
			Locales:        cfg.App.Locales,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Logger:         log,
		}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}

	workers.Close()

	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	if esRecorder != nil {
		esRecorder.Stop(shutdownCtx)
	}
	if alerter != nil {
		alerter.Stop(shutdownCtx)
	}

	zapLog.Info("Worker manager stopped gracefully")
}
