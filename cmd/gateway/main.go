// Command gateway starts the HTTP server: it loads configuration, bootstraps
// Postgres and Redis connections, wires every component from C1-C14, and
// serves until an interrupt or SIGTERM triggers a bounded graceful shutdown.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"llmgateway/internal/auth"
	"llmgateway/internal/cache"
	"llmgateway/internal/config"
	"llmgateway/internal/domain"
	"llmgateway/internal/health"
	"llmgateway/internal/httpapi"
	"llmgateway/internal/kv"
	"llmgateway/internal/orchestrator"
	"llmgateway/internal/pricing"
	"llmgateway/internal/provider"
	"llmgateway/internal/quota"
	"llmgateway/internal/ratelimit"
	"llmgateway/internal/resilience"
	"llmgateway/internal/routing"
	"llmgateway/internal/store"
	"llmgateway/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (optional)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.LoadOrDefault(*configPath)

	// Registered on the default registry, which is what /metrics serves.
	metrics := telemetry.New(prometheus.DefaultRegisterer)

	db, err := store.Open(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	bootstrapCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Bootstrap(bootstrapCtx); err != nil {
		cancel()
		logger.Error("failed to bootstrap schema", "error", err)
		os.Exit(1)
	}
	cancel()

	kvClient, err := kv.New(cfg.Redis.URL)
	if err != nil {
		logger.Error("failed to configure redis client", "error", err)
		os.Exit(1)
	}
	defer kvClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := kvClient.Ping(pingCtx); err != nil {
		cancel()
		logger.Error("failed to reach redis", "error", err)
		os.Exit(1)
	}
	cancel()

	tenants := store.NewTenantStore(db)
	apiKeys := store.NewAPIKeyStore(db)
	accounting := store.NewAccountingStore(db)
	adminLog := store.NewAdminActionStore(db)

	if err := bootstrapAdmin(context.Background(), tenants, apiKeys, cfg.Security.AdminAPIKey, cfg.Security.KeySalt, logger); err != nil {
		logger.Error("failed to bootstrap admin tenant", "error", err)
		os.Exit(1)
	}

	healthTracker := health.NewTracker(cfg.Health.WindowSize, cfg.Health.MinSamples)
	routePolicy := routing.NewPolicy(cfg.Health.ErrorThreshold)

	breaker := resilience.NewCircuitBreaker(5, 30*time.Second)
	reliability := resilience.NewWrapper(breaker, resilience.DefaultRetryConfig(), resilience.Callbacks{
		OnError: func(provider string, err error) {
			logger.Warn("provider call failed", "provider", provider, "error", err)
		},
		OnRetry: func(provider string, attempt int) {
			logger.Info("retrying provider call", "provider", provider, "attempt", attempt)
		},
		OnCircuitOpen: func(provider string) {
			logger.Warn("circuit open, rejecting call", "provider", provider)
			metrics.CircuitBreakerState.WithLabelValues(provider).Set(2)
		},
	})

	providers, err := provider.NewManager(cfg)
	if err != nil {
		logger.Error("failed to configure providers", "error", err)
		os.Exit(1)
	}

	respCache := cache.New(kvClient, time.Duration(cfg.Limits.CacheTTLSeconds)*time.Second)
	limiter := ratelimit.New(kvClient, cfg.Limits.RequestsPerMinute, cfg.Limits.TokensPerMinute)
	quotaGuard := quota.New(accounting)
	authMW := auth.NewMiddleware(apiKeys, tenants, cfg.Security.KeySalt, logger)

	engine := &orchestrator.Service{
		Tenants:     tenants,
		Accounting:  accounting,
		Cache:       respCache,
		Router:      routePolicy,
		Health:      healthTracker,
		Providers:   providers,
		Reliability: reliability,
		Pricing:     pricing.Default(),
		Metrics:     metrics,
		Logger:      logger,
	}

	server := httpapi.NewServer(httpapi.Dependencies{
		Auth:     authMW,
		Limiter:  limiter,
		Quota:    quotaGuard,
		Tenants:  tenants,
		APIKeys:  apiKeys,
		AdminLog: adminLog,
		Engine:   engine,
		Metrics:  metrics,
		Logger:   logger,
		KeySalt:  cfg.Security.KeySalt,
	})

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.HTTPPort),
		Handler: server,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("gateway listening", "port", cfg.Server.HTTPPort, "provider_mode", cfg.Provider.Mode)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// bootstrapAdmin ensures the distinguished "admin" tenant exists and, when
// that tenant has no active key, mints one from adminAPIKey so the admin
// HTTP surface is reachable on a fresh deployment. An admin tenant that
// already has an active key is left untouched even if adminAPIKey changes;
// use the key rotation endpoint to issue a new one instead.
func bootstrapAdmin(ctx context.Context, tenants *store.TenantStore, apiKeys *store.APIKeyStore, adminAPIKey, keySalt string, logger *slog.Logger) error {
	if adminAPIKey == "" {
		return nil
	}

	tenant, err := tenants.GetTenantByName(ctx, "admin")
	if err == store.ErrNotFound {
		tenant, err = tenants.CreateTenant(ctx, "admin", domain.TierPro)
		if err != nil {
			return err
		}
		logger.Info("created admin tenant", "tenant_id", tenant.ID)
	} else if err != nil {
		return err
	}

	existing, err := apiKeys.ListByTenant(ctx, tenant.ID)
	if err != nil {
		return err
	}
	for _, k := range existing {
		if k.Active {
			return nil
		}
	}

	hash := auth.HashKey(keySalt, adminAPIKey)
	if _, err := apiKeys.CreateKey(ctx, tenant.ID, "bootstrap", hash, nil); err != nil && err != store.ErrConflict {
		return err
	}
	logger.Info("seeded initial admin key from ADMIN_API_KEY")
	return nil
}

