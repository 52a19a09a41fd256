package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-api/internal/auth"
	"crm-api/internal/config"
	"crm-api/internal/database"
	"crm-api/internal/entity"
	"crm-api/internal/events"
	httpclient "crm-api/internal/http/client"
	"crm-api/internal/http/handler"
	"crm-api/internal/integrations/baas"
	"crm-api/internal/observability/logger"
	"crm-api/internal/permission"
	"crm-api/internal/ratelimit"
	"crm-api/internal/repo"
	"crm-api/internal/service"
	"crm-api/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Start the CRM API HTTP server with all middlewares and observability`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.OTELServiceName, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info(ctx, "starting crm api",
		logger.Module("main"),
		logger.Action("serve"),
		zap.String("service", cfg.OTELServiceName),
		zap.String("entity_backend", cfg.EntityBackend),
	)

	// Run database migrations
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info(ctx, "migrations completed successfully", logger.Module("main"), logger.Action("migrate"))

	metrics, shutdownTelemetry := initTelemetry(ctx, cfg, log)
	defer shutdownTelemetry()

	// Connect to database
	pool, err := database.NewPool(ctx, cfg.DatabaseURL, database.PoolOptions{
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		SimpleProtocol: cfg.DBSimpleProtocol,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Info(ctx, "database connected", logger.Module("main"), logger.Action("connect"))

	readyChecks := []ReadyCheck{{Name: "database", Check: pool.Ping}}

	// Rate limiter (optional)
	var rateLimiter *ratelimit.RedisRateLimiter
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}

		var rejections metric.Int64Counter
		if metrics != nil {
			rejections = metrics.RateLimitRejections
		}
		rateLimiter = ratelimit.NewRedisRateLimiter(redisClient, rejections)
		readyChecks = append(readyChecks, ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
		log.Info(ctx, "redis connected", logger.Module("main"), logger.Action("connect"))
	} else {
		log.Warn(ctx, "REDIS_URL not set, rate limiting disabled", logger.Module("main"), logger.Action("connect"))
	}

	resolver, err := buildKeyResolver(cfg)
	if err != nil {
		return err
	}
	log.Info(ctx, "JWT authentication initialized",
		logger.Module("main"),
		logger.Action("auth"),
		zap.Strings("allowed_issuers", cfg.GetAllowedIssuers()),
		zap.String("rs256_issuer", cfg.JWTRS256Issuer),
		zap.Int("clock_skew_seconds", cfg.JWTClockSkewSeconds),
	)

	// Event publisher
	var publisher events.Publisher = events.Nop{}
	if brokers := cfg.GetKafkaBrokers(); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, cfg.KafkaEventsTopic, log)
		log.Info(ctx, "kafka publisher enabled",
			logger.Module("main"),
			logger.Action("events"),
			zap.Strings("brokers", brokers),
			zap.String("topic", cfg.KafkaEventsTopic),
		)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error(ctx, "failed to close event publisher", logger.Module("main"), logger.Action("shutdown"), zap.Error(err))
		}
	}()

	// Initialize repositories
	idempotencyRepo := repo.NewIdempotencyRepo(pool)
	auditRepo := repo.NewAuditRepo(pool)
	userRepo := repo.NewUserRepo(pool)
	overrideRepo := repo.NewOverrideRepo(pool)
	store := entityStore(cfg, pool, log)

	// Sessions
	permResolver := permission.NewResolver(userRepo, overrideRepo, permission.DefaultRoleTable(), cfg.GetSuperuserEmails(), log)
	sessions := permission.NewLoader(permResolver, cfg.SessionCacheSize, cfg.SessionCacheTTL)

	// Initialize services
	entityService := service.NewEntityService(store, publisher, auditRepo, log)
	workflowService := service.NewWorkflowService(store, publisher, auditRepo, log)
	accountService := service.NewAccountService(userRepo, cfg.PasswordPolicy(), auditRepo, log)
	permissionService := service.NewPermissionService(userRepo, overrideRepo, permResolver, sessions, publisher, auditRepo, log)

	deps := RouterDeps{
		Cfg:               cfg,
		Log:               log,
		Resolver:          resolver,
		Sessions:          sessions,
		Idempotency:       idempotencyRepo,
		Metrics:           metrics,
		ReadyChecks:       readyChecks,
		SessionHandler:    handler.NewSessionHandler(permissionService, accountService),
		PermissionHandler: handler.NewPermissionHandler(permissionService),
		EntityHandler:     handler.NewEntityHandler(entityService),
		WorkflowHandler:   handler.NewWorkflowHandler(workflowService),
	}
	if rateLimiter != nil {
		deps.RateLimiter = rateLimiter
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      buildRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // cascades run inside the request
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting http server", logger.Module("main"), logger.Action("listen"), zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		log.Info(ctx, "shutdown signal received, starting graceful shutdown", logger.Module("main"), logger.Action("shutdown"))
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown error", logger.Module("main"), logger.Action("shutdown"), zap.Error(err))
	}

	log.Info(shutdownCtx, "shutdown complete", logger.Module("main"), logger.Action("shutdown"))
	return nil
}

// initTelemetry starts tracing and metrics export when enabled. Failures are
// logged and the server keeps running without them.
func initTelemetry(ctx context.Context, cfg *config.Config, log *logger.Logger) (*telemetry.Metrics, func()) {
	if !cfg.TelemetryEnabled() {
		log.Info(ctx, "telemetry disabled", logger.Module("main"), logger.Action("telemetry"))
		return nil, func() {}
	}

	var shutdowns []func(context.Context) error
	opts := telemetry.Options{
		ServiceName:   cfg.OTELServiceName,
		Environment:   cfg.AppEnv,
		Endpoint:      cfg.OTELExporterEndpoint,
		SamplingRatio: cfg.OTELSamplingRatio,
	}

	tp, err := telemetry.InitTracer(ctx, opts)
	if err != nil {
		log.Warn(ctx, "failed to initialize tracer, continuing without tracing", logger.Module("main"), logger.Action("telemetry"), zap.Error(err))
	} else {
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	var metrics *telemetry.Metrics
	mp, m, err := telemetry.InitMetrics(ctx, opts)
	if err != nil {
		log.Warn(ctx, "failed to initialize metrics, continuing without metrics", logger.Module("main"), logger.Action("telemetry"), zap.Error(err))
	} else {
		metrics = m
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	log.Info(ctx, "telemetry initialized",
		logger.Module("main"),
		logger.Action("telemetry"),
		zap.Bool("tracing", tp != nil),
		zap.Bool("metrics", metrics != nil),
	)

	return metrics, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, shutdown := range shutdowns {
			if err := shutdown(shutdownCtx); err != nil {
				log.Error(shutdownCtx, "failed to shutdown telemetry provider", logger.Module("main"), logger.Action("shutdown"), zap.Error(err))
			}
		}
	}
}

// buildKeyResolver registers one validator per allowed issuer. Every issuer
// shares the HS256 secret except JWT_RS256_ISSUER, which is checked against
// the configured public key.
func buildKeyResolver(cfg *config.Config) (*auth.KeyResolver, error) {
	secret, err := base64.StdEncoding.DecodeString(cfg.JWTHS256Secret)
	if err != nil {
		return nil, fmt.Errorf("JWT_HS256_SECRET must be valid Base64-encoded: %w", err)
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("JWT_HS256_SECRET decoded bytes must be at least 32 bytes (256 bits), got %d bytes", len(secret))
	}

	keyStore := auth.NewKeyStore()
	clockSkew := time.Duration(cfg.JWTClockSkewSeconds) * time.Second
	resolver := auth.NewKeyResolver(cfg.GetAllowedIssuers(), []string{cfg.JWTAudience})

	for _, issuer := range cfg.GetAllowedIssuers() {
		if issuer == cfg.JWTRS256Issuer {
			if err := keyStore.LoadRS256Key(issuer, "v1", cfg.JWTPublicKeyRS256); err != nil {
				return nil, fmt.Errorf("failed to load RS256 public key: %w", err)
			}
			resolver.RegisterValidator(issuer, auth.NewRS256Validator(keyStore, issuer, clockSkew))
			continue
		}
		keyStore.LoadHS256Key(issuer, "v1", secret)
		resolver.RegisterValidator(issuer, auth.NewHS256Validator(keyStore, issuer, clockSkew))
	}
	return resolver, nil
}

// entityStore picks the record backend: our own postgres tables or the
// hosted BaaS.
func entityStore(cfg *config.Config, pool *pgxpool.Pool, log *logger.Logger) entity.Client {
	if cfg.EntityBackend == config.EntityBackendBaaS {
		httpClient := httpclient.New(cfg.BaaSTimeout, httpclient.WithBearer(cfg.BaaSAPIKey))
		return baas.NewClientWithHTTP(cfg.BaaSURL, httpClient, log)
	}
	return repo.NewEntityRepo(pool)
}
