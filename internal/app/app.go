// Package app wires configuration, infrastructure and services into the
// console. The HTTP server and the Lambda webhook entry point share it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/boddenberg/whatsapp-console/internal/config"
	"github.com/boddenberg/whatsapp-console/internal/handler"
	"github.com/boddenberg/whatsapp-console/internal/infra/boltstore"
	"github.com/boddenberg/whatsapp-console/internal/infra/client"
	"github.com/boddenberg/whatsapp-console/internal/infra/dedup"
	"github.com/boddenberg/whatsapp-console/internal/infra/observability"
	"github.com/boddenberg/whatsapp-console/internal/infra/postgres"
	"github.com/boddenberg/whatsapp-console/internal/infra/resilience"
	"github.com/boddenberg/whatsapp-console/internal/infra/supabase"
	"github.com/boddenberg/whatsapp-console/internal/port"
	"github.com/boddenberg/whatsapp-console/internal/service"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// supabaseAudience is the aud claim of Supabase user access tokens.
const supabaseAudience = "authenticated"

// App is the wired console.
type App struct {
	Router  http.Handler
	Ingress *handler.WebhookIngress
	Metrics *observability.Metrics

	closers []func() error
}

// Close releases the store, the Redis connection and the in-memory tracker.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// New builds the console from cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{Metrics: observability.NewMetrics()}

	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Supabase (store and/or remote identity) ---
	var supabaseClient *supabase.Client
	if cfg.SupabaseURL != "" {
		supabaseClient = supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase", supabase.IsBreakerNeutral),
			resilienceCfg,
			logger,
		)
	}

	// --- Store ---
	store, err := a.openStore(ctx, cfg, supabaseClient, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	// --- Identity ---
	var identity port.IdentityResolver
	if cfg.SupabaseJWTSecret != "" {
		identity = service.NewJWTVerifier(cfg.SupabaseJWTSecret, supabaseAudience)
		logger.Info("access tokens verified locally")
	} else {
		identity = supabaseClient
		logger.Info("access tokens resolved against Supabase Auth")
	}

	// --- Delivery tracker ---
	tracker := a.deliveryTracker(ctx, cfg, logger)

	// --- Provider ---
	ycloud := client.NewYCloudClient(
		&http.Client{Timeout: cfg.ProviderTimeout},
		cfg.YCloudAPIURL,
		resilience.NewCircuitBreaker("ycloud", client.IsProviderRejection),
		resilience.NewBulkhead(cfg.MaxConcurrency),
		resilienceCfg,
		cfg.ProviderTimeout,
		logger,
	)

	// --- Services ---
	gate := service.NewGate(identity, store, logger)
	conversations := service.NewConversationService(store, store, store, gate, nil, a.Metrics, logger)
	messages := service.NewMessageService(store, a.Metrics, logger)
	dispatcher := service.NewDispatcher(store, gate, conversations, messages, ycloud,
		service.DispatcherOptions{EnforceWindow: cfg.EnforceMessagingWindow}, a.Metrics, logger)
	webhooks := service.NewWebhookRouter(conversations, messages, store, tracker, nil, a.Metrics, logger)

	a.Ingress = handler.NewWebhookIngress(webhooks, cfg.YCloudWebhookSecret, a.Metrics, logger)
	if cfg.YCloudWebhookSecret == "" {
		logger.Warn("YCLOUD_WEBHOOK_SECRET not set: webhook signatures are not verified")
	}

	a.Router = handler.NewRouter(handler.Deps{
		Dispatcher:     dispatcher,
		Webhooks:       a.Ingress,
		WebhookManager: service.NewWebhookManager(gate, store, ycloud, logger),
		Conversations:  conversations,
		Admin:          service.NewAdminService(gate, store, nil, logger),
		QuickReplies:   service.NewQuickReplyService(gate, store, logger),
		Checks:         map[string]handler.HealthCheck{cfg.StoreBackend: store.Ping},
	}, a.Metrics, logger)

	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, supabaseClient *supabase.Client, logger *zap.Logger) (port.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		logger.Info("using Postgres store")
		return postgres.New(pool, logger), nil

	case config.BackendBolt:
		s, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		logger.Info("using bolt store", zap.String("path", cfg.BoltPath))
		return s, nil

	default:
		logger.Info("using Supabase store", zap.String("supabase_url", cfg.SupabaseURL))
		return supabaseClient, nil
	}
}

// deliveryTracker prefers Redis and falls back to process memory when Redis
// is not configured or not reachable.
func (a *App) deliveryTracker(ctx context.Context, cfg *config.Config, logger *zap.Logger) port.DeliveryTracker {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		logger.Info("webhook de-duplication in memory")
		return a.memoryTracker(cfg)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, webhook de-duplication in memory", zap.Error(err))
		rdb.Close()
		return a.memoryTracker(cfg)
	}
	a.closers = append(a.closers, rdb.Close)
	logger.Info("webhook de-duplication in redis", zap.String("addr", cfg.RedisAddr))
	return dedup.NewRedisTracker(rdb, cfg.DedupTTL)
}

func (a *App) memoryTracker(cfg *config.Config) port.DeliveryTracker {
	t := dedup.NewMemoryTracker(cfg.DedupTTL)
	a.closers = append(a.closers, t.Close)
	return t
}
