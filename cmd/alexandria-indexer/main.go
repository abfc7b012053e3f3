package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/PolycarpusTack/alexandria-search/pkg/config"
	"github.com/PolycarpusTack/alexandria-search/pkg/observability"
	"github.com/PolycarpusTack/alexandria-search/pkg/search"
)

var (
	dbURL           = flag.String("db-url", getEnv("ALEXANDRIA_POSTGRES_URL", "postgres://localhost/alexandria?sslmode=disable"), "PostgreSQL connection URL")
	reindexSchedule = flag.String("reindex-schedule", "", "Cron schedule for full reindex (default: derived from reindex interval)")
	cleanupSchedule = flag.String("cleanup-schedule", "30 1 * * *", "Cron schedule for analytics cleanup (default: 01:30 UTC)")
	runOnce         = flag.Bool("run-once", false, "Run a full reindex once and exit")
	skipCleanup     = flag.Bool("skip-cleanup", false, "Disable the analytics cleanup job")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.WithError(err).Fatal("Failed to ping database")
	}

	searchCfg := config.DefaultSearchConfig()
	settings := config.NewSettings(searchCfg)
	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)

	indexer := search.NewIndexer(db, settings, logger, nil)
	analytics := search.NewAnalytics(db, logger)

	if *runOnce {
		log.Info("Running full reindex")
		indexed, err := indexer.ReindexAll(context.Background())
		if err != nil {
			log.WithError(err).WithField("indexed", indexed).Fatal("Reindex failed")
		}
		log.WithField("indexed", indexed).Info("Reindex completed successfully")
		return
	}

	schedule := *reindexSchedule
	if schedule == "" {
		schedule = intervalSchedule(searchCfg.ReindexIntervalHours)
	}

	c := cron.New()

	_, err = c.AddFunc(schedule, func() {
		log.Info("Starting scheduled reindex")
		indexed, err := indexer.ReindexAll(context.Background())
		if err != nil {
			log.WithError(err).WithField("indexed", indexed).Error("Scheduled reindex failed")
			return
		}
		log.WithField("indexed", indexed).Info("Scheduled reindex completed")
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to schedule reindex job")
	}

	if !*skipCleanup {
		_, err = c.AddFunc(*cleanupSchedule, func() {
			retention := settings.Snapshot().AnalyticsRetentionDays
			log.WithField("retention_days", retention).Info("Running analytics cleanup")
			deleted, err := analytics.CleanupOldAnalytics(context.Background(), retention)
			if err != nil {
				log.WithError(err).Error("Analytics cleanup failed")
				return
			}
			log.WithField("deleted", deleted).Info("Analytics cleanup completed")
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to schedule cleanup job")
		}
	}

	c.Start()
	log.WithFields(logrus.Fields{
		"reindex_schedule": schedule,
		"cleanup_schedule": *cleanupSchedule,
	}).Info("Alexandria indexer started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Info("Shutting down gracefully...")

	ctx := c.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Minute):
		log.Warn("Timed out waiting for running jobs")
	}

	log.Info("Indexer stopped")
}

// intervalSchedule turns an hour interval into a cron spec. Intervals
// of 24 hours or more run daily at 02:00 UTC.
func intervalSchedule(hours int) string {
	if hours <= 0 || hours >= 24 {
		return "0 2 * * *"
	}
	return fmt.Sprintf("0 */%d * * *", hours)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
