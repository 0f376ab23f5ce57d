package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/opsgate/gatehouse/pkg/audit"
	"github.com/opsgate/gatehouse/pkg/config"
	"github.com/opsgate/gatehouse/pkg/observability"
	"github.com/opsgate/gatehouse/pkg/orgs"
	"github.com/opsgate/gatehouse/pkg/storage"
	"github.com/opsgate/gatehouse/pkg/sweeper"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional; environment applies on top)")
	runOnce := flag.Bool("run-once", false, "Run every job once and exit (for testing)")
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

	db, err := storage.OpenPostgres(ctx, cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	var sessions *orgs.SessionRegistry
	if redisClient, err := storage.NewRedisClient(ctx, cfg.Redis); err != nil {
		logger.WithError(err).Warn("redis unavailable, session gauge disabled")
	} else {
		defer redisClient.Close()
		sessions = orgs.NewSessionRegistry(redisClient, cfg.Redis.SessionTTL, metrics)
	}

	auditLog, err := audit.NewDBLogger(db)
	if err != nil {
		logrus.Fatalf("Failed to initialize audit store: %v", err)
	}

	retention := audit.RetentionPolicy{
		KeepFor: cfg.Audit.RetainFor,
		Archive: cfg.Audit.ArchiveOnPrune,
	}

	var archiver *audit.S3Archiver
	if cfg.Audit.Enabled && cfg.Audit.ArchiveOnPrune {
		archiver, err = audit.NewS3Archiver(ctx, audit.S3Config{
			Endpoint:     cfg.Audit.S3Endpoint,
			Region:       cfg.Audit.S3Region,
			Bucket:       cfg.Audit.S3Bucket,
			AccessKey:    cfg.Audit.S3AccessKey,
			SecretKey:    cfg.Audit.S3SecretKey,
			UsePathStyle: cfg.Audit.S3UsePathStyle,
		}, auditLog)
		if err != nil {
			logrus.Fatalf("Failed to initialize audit archiver: %v", err)
		}
	}

	sw := sweeper.New(db, auditLog, archiver, retention, sessions, logger, metrics)

	if *runOnce {
		if _, err := sw.ReapOrphans(ctx); err != nil {
			logrus.Fatalf("Orphan reap failed: %v", err)
		}
		if _, err := sw.ArchiveAudit(ctx); err != nil {
			logrus.Fatalf("Audit archive failed: %v", err)
		}
		if err := sw.RefreshGauges(ctx); err != nil {
			logrus.Fatalf("Gauge refresh failed: %v", err)
		}
		logger.Info("sweeper run complete")
		return
	}

	c := cron.New()

	if _, err := c.AddFunc(cfg.Sweeper.OrphanSchedule, func() {
		defer observability.RecoverPanic(logger, "orphan reap")
		if _, err := sw.ReapOrphans(context.Background()); err != nil {
			logger.WithError(err).Error("orphan reap failed")
		}
	}); err != nil {
		logrus.Fatalf("Failed to schedule orphan reap: %v", err)
	}

	if _, err := c.AddFunc(cfg.Sweeper.ArchiveSchedule, func() {
		defer observability.RecoverPanic(logger, "audit archive")
		if _, err := sw.ArchiveAudit(context.Background()); err != nil {
			logger.WithError(err).Error("audit archive failed")
		}
	}); err != nil {
		logrus.Fatalf("Failed to schedule audit archive: %v", err)
	}

	if _, err := c.AddFunc(cfg.Sweeper.GaugeSchedule, func() {
		defer observability.RecoverPanic(logger, "gauge refresh")
		if err := sw.RefreshGauges(context.Background()); err != nil {
			logger.WithError(err).Error("gauge refresh failed")
		}
	}); err != nil {
		logrus.Fatalf("Failed to schedule gauge refresh: %v", err)
	}

	c.Start()
	logger.WithFields(map[string]interface{}{
		"orphan_schedule":  cfg.Sweeper.OrphanSchedule,
		"archive_schedule": cfg.Sweeper.ArchiveSchedule,
		"gauge_schedule":   cfg.Sweeper.GaugeSchedule,
	}).Info("gatehouse sweeper started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	<-c.Stop().Done()
	logger.Info("sweeper stopped")
}
