package main

import (
	"context"
	"crypto/rsa"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/api"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/audit"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/config"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/events"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/exchange"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/identity"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/observability"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/permissions"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/roles"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/secrets"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/sessions"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/tokens"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	security := audit.NewSecurityLogger(os.Stdout)

	if err := run(cfg, logger, security); err != nil {
		logger.WithError(err).Error("service exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger, security *audit.SecurityLogger) error {
	ctx := context.Background()

	// Tracing
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Store
	var store identity.Store
	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		if err := identity.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		store = identity.NewPostgresStore(db)
		logger.Info("postgres identity store initialized")
	} else {
		store = identity.NewMemoryStore()
		logger.Warn("no postgres URL configured, using in-memory identity store")
	}

	// Durable security event backends
	var recorders []audit.Recorder
	if db != nil {
		dbRec, err := audit.NewDBRecorder(db)
		if err != nil {
			return fmt.Errorf("failed to initialize security event recorder: %w", err)
		}
		recorders = append(recorders, dbRec)
	}
	if dir := cfg.Observability.SecurityLogDir; dir != "" {
		fileRec, err := audit.NewFileRecorder(audit.FileRecorderConfig{BasePath: dir})
		if err != nil {
			return fmt.Errorf("failed to initialize security log files: %w", err)
		}
		recorders = append(recorders, fileRec)
	}
	if len(recorders) > 0 {
		recorder := audit.NewMultiRecorder(recorders...)
		defer recorder.Close()
		security.SetRecorder(recorder)
	}

	// Redis for the replay guard and permission cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer redisClient.Close()

	var replay exchange.ReplayGuard
	if err := redisClient.Ping(ctx).Err(); err != nil {
		if cfg.IsProduction() {
			return fmt.Errorf("redis unavailable: %w", err)
		}
		logger.WithError(err).Warn("redis unavailable, using in-process replay guard")
		replay = exchange.NewMemoryReplayGuard()
		redisClient = nil
	} else {
		replay = exchange.NewRedisReplayGuard(redisClient, cfg.Tokens.ReplayWindow)
	}

	// Secrets backend
	var vault secrets.Provider
	switch cfg.Secrets.Backend {
	case "aws":
		vault, err = secrets.NewAWSProvider(ctx, cfg.Secrets.Region, cfg.Secrets.Prefix)
		if err != nil {
			return fmt.Errorf("failed to initialize secrets backend: %w", err)
		}
	default:
		vault = &secrets.EnvProvider{Prefix: cfg.Secrets.Prefix}
	}

	// Signing key and token plumbing
	keys := tokens.NewChainKeyProvider(tokens.KeyConfig{
		VaultSecretName: cfg.Tokens.SigningKeyVaultSecret,
		InlinePEM:       cfg.Tokens.SigningKeyPEM,
		PEMPath:         cfg.Tokens.SigningKeyPEMPath,
		Production:      cfg.IsProduction(),
	}, vault, logger)
	key, err := keys.SigningKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve signing key: %w", err)
	}
	if key.Ephemeral {
		security.Event(audit.EventSigningKeyEphemeral, nil)
	}

	issuerCfg := tokens.IssuerConfig{
		Issuer:          cfg.Tokens.Issuer,
		Audience:        cfg.Tokens.Audience,
		AccessTokenTTL:  cfg.Tokens.AccessTokenTTL,
		RefreshTokenTTL: cfg.Tokens.RefreshTokenTTL,
	}
	issuer := tokens.NewIssuer(issuerCfg, keys)
	verifier := tokens.NewVerifier(issuerCfg, keys)

	validator, err := buildExchangeValidator(ctx, cfg, vault, keys)
	if err != nil {
		return err
	}

	// Permission engine, optionally cached
	registry := roles.NewRegistry()
	engine := permissions.NewEngine(store, registry)

	var calc permissions.Calculator = engine
	var metrics *observability.Metrics
	registryProm := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registryProm)
	}
	var otelMetrics *observability.OTelMetrics
	if providers != nil {
		otelMetrics, err = observability.NewOTelMetrics()
		if err != nil {
			return fmt.Errorf("failed to build telemetry instruments: %w", err)
		}
	}
	if cfg.Cache.Enabled {
		cached, err := permissions.NewCachedEngine(engine, redisClient, cfg.Cache.L1Size, cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("failed to build permission cache: %w", err)
		}
		if hook := cacheMetricsHook(metrics, otelMetrics); hook != nil {
			cached.SetMetrics(hook)
		}
		calc = cached
	}

	// Services
	var sink events.Sink = &events.LogSink{Logger: logger}
	if cfg.Events.WebhookURL != "" {
		sink = events.NewWebhookSink(events.DefaultWebhookConfig(cfg.Events.WebhookURL, cfg.Events.WebhookSecret))
	}
	publisher := events.NewPublisher(sink, logger)
	creds := sessions.NewCredentialIssuer(store, calc, issuer)
	coordinator := exchange.NewCoordinator(validator, replay, store, creds, publisher, security)
	lifecycle := sessions.NewLifecycle(store, creds, publisher, security)
	switcher := sessions.NewOrganizationSwitcher(store, creds, publisher, security)
	rolesSvc := roles.NewService(store, registry, engine, security)

	var limiter *api.RateLimiter
	if redisClient != nil {
		limiter = api.NewRateLimiter(redisClient, api.DefaultRateLimitConfig(), logger)
	}
	apiServer := api.NewServer(coordinator, lifecycle, switcher, rolesSvc, verifier, limiter, logger, metrics)
	if otelMetrics != nil {
		apiServer.SetOTelMetrics(otelMetrics)
	}

	var handler http.Handler = apiServer
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "meridian-identity")
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registryProm)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("identity API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		manager := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
		manager.RegisterShutdownFunc(healthServer.Shutdown)
		manager.RegisterShutdownFunc(func(sctx context.Context) error {
			return observability.ShutdownOTel(sctx, providers, logger)
		})
		return manager.WaitForShutdown()
	})

	<-gctx.Done()
	// Give in-flight shutdown work a bounded window before exiting.
	time.Sleep(100 * time.Millisecond)
	return g.Wait()
}

// cacheMetricsFanout mirrors permission cache hits and misses to every
// configured backend.
type cacheMetricsFanout []permissions.CacheMetrics

func (f cacheMetricsFanout) PermissionCacheHit() {
	for _, m := range f {
		m.PermissionCacheHit()
	}
}

func (f cacheMetricsFanout) PermissionCacheMiss() {
	for _, m := range f {
		m.PermissionCacheMiss()
	}
}

func cacheMetricsHook(metrics *observability.Metrics, otelMetrics *observability.OTelMetrics) permissions.CacheMetrics {
	var targets cacheMetricsFanout
	if metrics != nil {
		targets = append(targets, metrics)
	}
	if otelMetrics != nil {
		targets = append(targets, otelMetrics)
	}
	if len(targets) == 0 {
		return nil
	}
	if len(targets) == 1 {
		return targets[0]
	}
	return targets
}

// buildExchangeValidator picks the assertion-verification strategy: JWKS when
// a URL is configured, otherwise a pinned public key resolved through the
// vault/PEM/file chain, otherwise (development only) the service's own key.
func buildExchangeValidator(ctx context.Context, cfg *config.Config, vault secrets.Provider, keys tokens.KeyProvider) (exchange.Validator, error) {
	validatorCfg := tokens.ExchangeValidatorConfig{
		Issuer:   cfg.Tokens.ExchangeIssuer,
		Audience: cfg.Tokens.ExchangeAudience,
	}

	if cfg.Tokens.ExchangeJWKSURL != "" {
		return tokens.NewJWKSExchangeValidator(ctx, validatorCfg, cfg.Tokens.ExchangeJWKSURL), nil
	}

	pub, err := resolveExchangeKey(ctx, cfg, vault)
	if err != nil {
		return nil, err
	}
	if pub == nil {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("production requires an exchange verification key or JWKS URL")
		}
		// Development fallback: trust assertions signed with our own key.
		key, err := keys.SigningKey(ctx)
		if err != nil {
			return nil, err
		}
		pub = key.Public()
	}
	return tokens.NewExchangeValidator(validatorCfg, pub), nil
}

func resolveExchangeKey(ctx context.Context, cfg *config.Config, vault secrets.Provider) (*rsa.PublicKey, error) {
	if cfg.Tokens.ExchangeKeyVault != "" && vault != nil {
		pemData, err := vault.GetSecret(ctx, cfg.Tokens.ExchangeKeyVault)
		if err != nil {
			if cfg.IsProduction() {
				return nil, fmt.Errorf("failed to fetch exchange key from vault: %w", err)
			}
		} else if pemData != "" {
			return tokens.ParseRSAPublicKeyPEM([]byte(pemData))
		}
	}
	if cfg.Tokens.ExchangeKeyPEM != "" {
		return tokens.ParseRSAPublicKeyPEM([]byte(cfg.Tokens.ExchangeKeyPEM))
	}
	if cfg.Tokens.ExchangeKeyPEMPath != "" {
		pemData, err := os.ReadFile(cfg.Tokens.ExchangeKeyPEMPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read exchange key file: %w", err)
		}
		return tokens.ParseRSAPublicKeyPEM(pemData)
	}
	return nil, nil
}
