package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/smukkama/tsa/internal/analysis"
	"github.com/smukkama/tsa/internal/database"
	"github.com/smukkama/tsa/internal/logger"
	"github.com/smukkama/tsa/internal/observation"
	"github.com/smukkama/tsa/internal/queue"
	"github.com/smukkama/tsa/internal/results"
	"github.com/smukkama/tsa/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	lg := logger.For(logger.ComponentAnalyzer)

	lg.Info("Starting Analyzer Service...")

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		lg.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	lg.Info("Connected to database")

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		lg.Fatalf("Failed to connect to Redis: %v", err)
	}
	lg.Info("Connected to Redis")

	// Create topics (ignore errors if they already exist)
	for _, topic := range []string{cfg.Kafka.TopicRequests, cfg.Kafka.TopicResults} {
		if err := queue.CreateTopic(cfg.Kafka.Brokers, topic, cfg.Kafka.NumPartitions, 1); err != nil {
			lg.Warnf("Topic %s not created: %v", topic, err)
		}
	}

	// Create result producer
	producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicResults)
	defer producer.Close()
	lg.Info("Result producer initialized")

	// Create consumer for analysis requests
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRequests, cfg.Kafka.GroupID)
	defer consumer.Close()
	lg.Info("Kafka consumer initialized")

	guarded := observation.NewGuarded(db, observation.GuardConfig{
		Timeout:          cfg.Guard.AttemptTimeout,
		MaxRetries:       cfg.Guard.MaxRetries,
		InitialInterval:  cfg.Guard.InitialInterval,
		MaxInterval:      cfg.Guard.MaxInterval,
		FailureThreshold: cfg.Guard.FailureThreshold,
		OpenTimeout:      cfg.Guard.OpenTimeout,
	})
	runner := analysis.NewRunner(guarded, db, analysis.Config{
		Workers:      cfg.Analysis.Workers,
		FetchTimeout: cfg.Analysis.FetchTimeout,
		CacheSize:    cfg.Analysis.CacheSize,
	})

	handler := &requestHandler{
		runner:    runner,
		results:   results.NewStore(redisClient, cfg.Redis.ResultTTL),
		publisher: queue.NewResultPublisher(producer),
		maxGap:    cfg.Analysis.MaxGap,
		logger:    lg,
	}

	// Metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler(guarded.State, consumer.Stats))
	metricsServer := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Errorf("Metrics server failed: %v", err)
		}
	}()
	lg.Infof("Metrics available on %s/metrics", cfg.Metrics.Addr)

	lg.Info("✓ Analyzer Service is running")
	lg.Info("✓ Press Ctrl+C to stop")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, err := consumer.Consume(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				lg.Errorf("Failed to consume message: %v", err)
				continue
			}

			if err := handler.handle(ctx, msg.Value); err != nil {
				if ctx.Err() != nil {
					// Leave the offset uncommitted so the request is redelivered
					return
				}
				lg.Errorf("Failed to handle request: %v", err)
			}

			// Commit offset
			if err := consumer.Commit(ctx, msg); err != nil {
				lg.Errorf("Failed to commit offset: %v", err)
			}
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	lg.Info("Shutting down gracefully...")
	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		lg.Warnf("Metrics server shutdown: %v", err)
	}
}
