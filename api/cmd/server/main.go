package main

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"videoOverlay/api/config"
	"videoOverlay/api/handlers"
	"videoOverlay/api/kafka"
	"videoOverlay/api/middleware"
	"videoOverlay/api/service"
	"videoOverlay/cache"
	"videoOverlay/store"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	logger.Info("API service starting", zap.String("port", cfg.Port))

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

	producer, err := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","))
	if err != nil {
		logger.Warn("Kafka unavailable, submission events disabled", zap.Error(err))
		producer = nil
	} else {
		defer producer.Close()
	}

	jobService := service.NewJobService(jobStore, statusCache, producer, cfg.KafkaTopic, logger)
	jobHandler := handlers.NewJobHandler(jobService, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", jobHandler.Submit)
	mux.HandleFunc("/jobs/", jobHandler.JobByID)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	handler := middleware.TraceID(
		middleware.Logging(logger)(
			middleware.Recovery(logger)(mux),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("address", server.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("API service stopped")
}
