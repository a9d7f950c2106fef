package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"videoOverlay/cache"
	"videoOverlay/storage"
	"videoOverlay/store"
	"videoOverlay/worker/config"
	"videoOverlay/worker/kafka"
	"videoOverlay/worker/overlay"
	"videoOverlay/worker/pipeline"
	"videoOverlay/worker/probe"
	"videoOverlay/worker/scheduler"
	"videoOverlay/worker/transcode"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	logger.Info("Worker service starting",
		zap.Int("concurrency", cfg.Concurrency),
		zap.String("ffmpeg", cfg.FFmpegPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobStore, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer jobStore.Close()

	statusCache, err := cache.Connect(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer statusCache.Close()

	objects, err := storage.NewS3Store(storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Prefix:          cfg.S3Prefix,
		Region:          cfg.S3Region,
		EndpointURL:     cfg.S3EndpointURL,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		ForcePathStyle:  cfg.S3ForcePathStyle,
	})
	if err != nil {
		logger.Fatal("Failed to create object store", zap.Error(err))
	}

	pipe := pipeline.New(
		objects,
		probe.New(cfg.FFmpegPath, logger),
		overlay.New(logger),
		transcode.New(cfg.FFmpegPath, logger),
		cfg.ScratchDir,
		logger,
	)

	sched := scheduler.New(jobStore, pipe, statusCache, scheduler.Config{
		Concurrency:  cfg.Concurrency,
		PollInterval: cfg.PollInterval,
	}, logger)

	// Submission events short-circuit the poll interval; claiming still goes
	// through the store.
	consumer, err := kafka.NewConsumer(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaGroupID)
	if err != nil {
		logger.Warn("Kafka unavailable, relying on polling only", zap.Error(err))
	} else {
		defer consumer.Close()
		go func() {
			for ctx.Err() == nil {
				err := consumer.Consume(ctx, cfg.KafkaTopic, func(ctx context.Context, event *kafka.JobEvent) {
					logger.Debug("Job submitted event", zap.String("job_id", event.JobID))
					sched.Wake()
				})
				if err != nil && ctx.Err() == nil {
					logger.Error("Kafka consume error", zap.Error(err))
					time.Sleep(time.Second)
				}
			}
		}()
	}

	go runCleanup(ctx, jobStore, cfg.CleanupInterval, logger)

	sched.Run(ctx)
	logger.Info("Worker service stopped")
}


func runCleanup(ctx context.Context, jobStore store.Store, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := jobStore.Cleanup(ctx)
			if err != nil {
				logger.Error("Job cleanup failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				logger.Info("Job cleanup removed old records", zap.Int64("deleted", deleted))
			}
		}
	}
}
