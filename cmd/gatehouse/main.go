package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opsgate/gatehouse/pkg/api"
	"github.com/opsgate/gatehouse/pkg/appopen"
	"github.com/opsgate/gatehouse/pkg/audit"
	"github.com/opsgate/gatehouse/pkg/auth"
	"github.com/opsgate/gatehouse/pkg/config"
	"github.com/opsgate/gatehouse/pkg/middleware"
	"github.com/opsgate/gatehouse/pkg/observability"
	"github.com/opsgate/gatehouse/pkg/orgs"
	"github.com/opsgate/gatehouse/pkg/policy"
	"github.com/opsgate/gatehouse/pkg/storage"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional; environment applies on top)")
	rateLimit := flag.Int("rate-limit", 300, "Requests per minute per caller")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadConfigFile(*configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logrus.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	db, err := storage.OpenPostgres(ctx, cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := policy.RunMigrations(ctx, db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("database migrations applied")

	redisClient, err := storage.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logrus.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	// Audit pipeline
	var auditLogger audit.Logger
	var auditSearch *audit.DBLogger
	if cfg.Audit.Enabled {
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			logrus.Fatalf("Failed to initialize audit logger: %v", err)
		}
		auditLogger = dbLogger
		auditSearch = dbLogger
	}

	// Core services
	policyService := policy.NewService(db, logger, metrics, auditLogger)
	resolver := policy.NewResolver(db)
	appOpens := appopen.NewStore(db, metrics)
	directory := orgs.NewDirectory(db)
	sessions := orgs.NewSessionRegistry(redisClient, cfg.Redis.SessionTTL, metrics)

	// OIDC edge
	var authenticator *auth.Authenticator
	if cfg.Auth.Enabled {
		authenticator, err = auth.NewAuthenticator(ctx, auth.OIDCConfig{
			IssuerURL:    cfg.Auth.IssuerURL,
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			RedirectURL:  cfg.Auth.RedirectURL,
		})
		if err != nil {
			logrus.Fatalf("Failed to initialize OIDC authenticator: %v", err)
		}
	}

	server := api.NewServer(api.Deps{
		Policies:      policyService,
		Resolver:      resolver,
		AppOpens:      appOpens,
		Directory:     directory,
		Sessions:      sessions,
		AuditSearch:   auditSearch,
		Authenticator: authenticator,
		Logger:        logger,
		Metrics:       metrics,
	})

	// Middleware chain, outermost first.
	var handler http.Handler = server
	limiter := middleware.NewRateLimiter(redisClient, *rateLimit, time.Minute, logger, metrics)
	handler = limiter.Middleware(handler)
	if authenticator != nil {
		handler = middleware.Authenticate(middleware.AuthConfig{
			Verifier:  authenticator,
			Logger:    logger,
			SkipPaths: []string{"/auth/login", "/auth/callback"},
		})(handler)
	}
	handler = observability.HTTPMetricsMiddleware(metrics)(handler)
	handler = middleware.RequestID(handler)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on their own port for probes and scrapes.
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	var group errgroup.Group
	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	group.Go(shutdown.WaitForShutdown)

	if err := group.Wait(); err != nil {
		logrus.Fatalf("Server error: %v", err)
	}
	logger.Info("gatehouse stopped")
}
