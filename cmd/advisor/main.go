package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	httpadapter "github.com/couchcryptid/crop-advisory-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/crop-advisory-service/internal/adapter/kafka"
	"github.com/couchcryptid/crop-advisory-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/crop-advisory-service/internal/config"
	"github.com/couchcryptid/crop-advisory-service/internal/crop"
	"github.com/couchcryptid/crop-advisory-service/internal/growth"
	"github.com/couchcryptid/crop-advisory-service/internal/notify"
	"github.com/couchcryptid/crop-advisory-service/internal/observability"
	"github.com/couchcryptid/crop-advisory-service/internal/pipeline"
	"github.com/couchcryptid/crop-advisory-service/internal/rules"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	profiles, err := crop.LoadStore(cfg.CropProfilesPath)
	if err != nil {
		logger.Error("failed to load crop profiles", "error", err, "path", cfg.CropProfilesPath)
		os.Exit(1)
	}
	logger.Info("crop profiles loaded", "crops", profiles.Types())

	store, err := sqlstore.Open(cfg.DatabasePath, clock)
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", cfg.DatabasePath)
		os.Exit(1)
	}

	notifications := kafkaadapter.NewNotificationWriter(cfg, logger)
	emails := kafkaadapter.NewEmailWriter(cfg, logger)
	notifier := notify.NewService(notifications, emails, store, clock, logger, metrics, notify.Options{
		TTL:           cfg.DedupTTL,
		Capacity:      cfg.DedupCapacity,
		AckTimeout:    cfg.AckTimeout,
		SweepInterval: cfg.AckSweepInterval,
	})

	engine := rules.NewEngine(logger, metrics, rules.WithSafetyWindLimit(cfg.SafetyWindLimit))
	scheduler := growth.NewScheduler(store, profiles, clock, cfg.Timezone, cfg.GrowthInterval, logger, metrics)

	weatherReader := kafkaadapter.NewReader(cfg, cfg.KafkaWeatherTopic, logger)
	farmReader := kafkaadapter.NewReader(cfg, cfg.KafkaFarmEventsTopic, logger)

	weather := pipeline.New("weather", weatherReader,
		pipeline.NewWeatherHandler(store, store, profiles, engine, notifier, logger, metrics),
		logger, metrics, cfg.BatchSize)
	farmEvents := pipeline.New("farm-events", farmReader,
		pipeline.NewFarmEventHandler(store, notifier, clock, logger, metrics),
		logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.ReadinessChecks{store, weather}, notifier, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	var wg sync.WaitGroup
	for _, p := range []*pipeline.Pipeline{weather, farmEvents} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		notifier.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		scheduler.Start(ctx)
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("workers did not stop before shutdown timeout")
	}

	closers := []struct {
		name string
		c    interface{ Close() error }
	}{
		{"weather reader", weatherReader},
		{"farm events reader", farmReader},
		{"notification writer", notifications},
		{"email writer", emails},
		{"database", store},
	}
	for _, cl := range closers {
		if err := cl.c.Close(); err != nil {
			logger.Error("close error", "component", cl.name, "error", err)
		}
	}

	logger.Info("shutdown complete")
}
