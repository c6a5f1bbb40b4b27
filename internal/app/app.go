// Package app wires the auth service's dependency graph and manages its
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medusa2112/HealiosHealth-sub005/internal/config"
	"github.com/medusa2112/HealiosHealth-sub005/internal/csrf"
	"github.com/medusa2112/HealiosHealth-sub005/internal/domain"
	"github.com/medusa2112/HealiosHealth-sub005/internal/event"
	handler "github.com/medusa2112/HealiosHealth-sub005/internal/handler/http"
	"github.com/medusa2112/HealiosHealth-sub005/internal/notify"
	"github.com/medusa2112/HealiosHealth-sub005/internal/pin"
	"github.com/medusa2112/HealiosHealth-sub005/internal/ratelimit"
	"github.com/medusa2112/HealiosHealth-sub005/internal/repository/postgres"
	"github.com/medusa2112/HealiosHealth-sub005/internal/service"
	"github.com/medusa2112/HealiosHealth-sub005/internal/session"
	"github.com/medusa2112/HealiosHealth-sub005/migrations"
	"github.com/medusa2112/HealiosHealth-sub005/pkg/database"
	"github.com/medusa2112/HealiosHealth-sub005/pkg/health"
	"github.com/medusa2112/HealiosHealth-sub005/pkg/httpclient"
	pkgkafka "github.com/medusa2112/HealiosHealth-sub005/pkg/kafka"
	"github.com/medusa2112/HealiosHealth-sub005/pkg/middleware"
	"github.com/medusa2112/HealiosHealth-sub005/pkg/tracing"
)

const sweepInterval = 5 * time.Minute

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redisClient    *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	// sweepCancel stops the background sweepers before the stores close.
	sweepCancel context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "auth",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, &database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	var redisClient *redis.Client
	if cfg.SessionBackend == "redis" || cfg.PinBackend == "redis" {
		redisClient, err = database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))
	}

	var producer *pkgkafka.Producer
	var publisher event.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = producer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Warn("no kafka brokers configured, audit events disabled")
	}
	audit := event.NewAuditProducer(publisher, logger)

	// Session stores, one per realm. The realms never share a keyspace,
	// whichever backend carries them.
	sweepCtx, sweepCancel := context.WithCancel(context.Background())

	custStore := newSessionStore(cfg, redisClient, domain.DomainCustomer)
	adminStore := newSessionStore(cfg, redisClient, domain.DomainAdmin)

	custSessions, err := session.NewManager(custStore, session.Config{
		Domain:      domain.DomainCustomer,
		Secret:      cfg.SessionSecret,
		IdleTTL:     cfg.SessionIdleTTL,
		AbsoluteTTL: cfg.SessionAbsoluteTTL,
		Secure:      cfg.CookieSecure,
	}, logger)
	if err != nil {
		sweepCancel()
		pool.Close()
		return nil, fmt.Errorf("customer session manager: %w", err)
	}
	adminSessions, err := session.NewManager(adminStore, session.Config{
		Domain:      domain.DomainAdmin,
		Secret:      cfg.SessionSecret,
		IdleTTL:     cfg.AdminSessionIdleTTL,
		AbsoluteTTL: cfg.AdminSessionAbsoluteTTL,
		Secure:      cfg.CookieSecure,
	}, logger)
	if err != nil {
		sweepCancel()
		pool.Close()
		return nil, fmt.Errorf("admin session manager: %w", err)
	}
	if cfg.SessionBackend == "memory" {
		custSessions.StartSweeper(sweepCtx, sweepInterval)
		adminSessions.StartSweeper(sweepCtx, sweepInterval)
	}

	// PIN verifier.
	var pinStore pin.Store
	if cfg.PinBackend == "redis" {
		pinStore = pin.NewRedisStore(redisClient)
	} else {
		memStore := pin.NewMemoryStore()
		memStore.StartSweeper(sweepCtx, sweepInterval)
		pinStore = memStore
	}
	pins := pin.NewVerifier(pinStore, cfg.PinTTL, logger)

	// Failed-attempt tracking.
	limits := ratelimit.NewTracker(ratelimit.DefaultPolicies(), logger)
	limits.StartSweeper(sweepCtx, sweepInterval)

	// PIN delivery.
	var sender notify.Sender
	if cfg.NotifyURL != "" {
		client := httpclient.New(httpclient.DefaultConfig())
		breaker := httpclient.NewBreakerClient(client, httpclient.DefaultCircuitBreakerConfig("notify"), logger)
		sender = notify.NewHTTPSender(breaker, cfg.NotifyURL, logger)
	} else {
		logger.Warn("NOTIFY_URL not set, PIN codes will be logged instead of delivered")
		sender = notify.NewLogSender(logger)
	}

	// Business services.
	userRepo := postgres.NewUserRepository(pool)
	custSvc := service.NewCustomerService(userRepo, pins, sender, limits, audit, logger)
	adminSvc := service.NewAdminService(userRepo, pins, sender, limits, audit,
		cfg.AdminAllowlist, cfg.AdminSecondFactorRequired, logger)

	custCSRF := csrf.NewProtector(domain.DomainCustomer, cfg.CookieSecure, cfg.CSRFTokenTTL, logger)
	adminCSRF := csrf.NewProtector(domain.DomainAdmin, cfg.CookieSecure, cfg.CSRFTokenTTL, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	if producer != nil {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
	}

	router := handler.NewRouter(handler.RouterDeps{
		Customer:     handler.NewCustomerHandler(custSvc, custSessions, custCSRF, logger),
		Admin:        handler.NewAdminHandler(adminSvc, adminSessions, adminCSRF, logger),
		CustomerCSRF: handler.NewCSRFHandler(custCSRF, logger),
		AdminCSRF:    handler.NewCSRFHandler(adminCSRF, logger),
		Gate:         handler.NewGate(custSessions, adminSessions, audit, logger),
		Limiter:      limits,
		Health:       healthHandler,
		Logger:       logger,
		SecurityHeaders: middleware.SecurityHeadersConfig{
			Environment:  cfg.Environment,
			CSPReportURI: cfg.CSPReportURI,
		},
		CORS:             middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins},
		APIThrottleRPS:   cfg.APIThrottleRPS,
		APIThrottleBurst: cfg.APIThrottleBurst,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redisClient:    redisClient,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
		sweepCancel:    sweepCancel,
	}, nil
}

func newSessionStore(cfg *config.Config, client *redis.Client, d domain.AuthDomain) session.Store {
	if cfg.SessionBackend == "redis" {
		return session.NewRedisStore(client, d)
	}
	return session.NewMemoryStore()
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Background sweepers
// 3. Tracer (flush spans from drained requests)
// 4. Kafka producer
// 5. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.sweepCancel()

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
