package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/annotate"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/recordcache"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/recordstore"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting stager service",
		"context", cfg.Pipeline.Context,
		"annotators", cfg.Pipeline.Annotators,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	checker := health.NewChecker()

	annotators, err := annotate.ByName(cfg.Pipeline.Annotators...)
	if err != nil {
		slog.Error("invalid annotator list", "error", err)
		os.Exit(1)
	}

	opts := pipeline.Options{
		Request:    pipeline.RequestFromConfig(cfg.Pipeline),
		BatchSize:  cfg.Pipeline.BatchSize,
		Timeout:    cfg.Pipeline.StageTimeout,
		Annotators: annotators,
		Metrics:    m,
	}

	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres, resilience.FromConfig(cfg.Retry))
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store := recordstore.New(db, resilience.FromConfig(cfg.Retry))
		if err := store.Migrate(ctx); err != nil {
			slog.Error("failed to migrate record store", "error", err)
			os.Exit(1)
		}
		opts.Sink = store
		checker.Register("postgres", db.Ping, true)
	}

	if cfg.Redis.Enabled {
		rdb, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, running without record cache", "error", err)
		} else {
			defer rdb.Close()
			opts.Cache = recordcache.New(rdb, pkgredis.IsNilError, cfg.Redis.CacheTTL, m).
				WithBreaker(resilience.CircuitBreakerConfig{
					FailureThreshold: cfg.Redis.BreakerThreshold,
					ResetTimeout:     cfg.Redis.BreakerReset,
				})
			checker.Register("redis", rdb.Ping, false)
		}
	}

	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, map[string]http.Handler{
			"/livez":  checker.LiveHandler(),
			"/readyz": checker.ReadyHandler(),
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Records)
	defer producer.Close()
	collector := pipeline.NewBatchCollector(producer, cfg.Pipeline.CollectorBatchSize, cfg.Pipeline.CollectorFlushInterval)
	collector.Start(ctx)
	opts.Out = collector

	stager, err := pipeline.NewStager(opts)
	if err != nil {
		slog.Error("failed to create stager", "error", err)
		os.Exit(1)
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Documents, stager.HandleMessage(),
		kafka.WithRetry(resilience.FromConfig(cfg.Retry)))
	slog.Info("stager service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.Documents,
		"group", cfg.Kafka.ConsumerGroup,
		"records_topic", cfg.Kafka.Topics.Records,
	)

	consumeErr := consumer.Start(ctx)
	if consumeErr != nil {
		slog.Error("consumer stopped on a failing message", "error", consumeErr)
	}

	slog.Info("flushing pending record events before shutdown")
	collector.Close()

	if consumeErr != nil {
		// Exit non-zero so the supervisor restarts the service; the failed
		// message was not committed and is fetched again.
		os.Exit(1)
	}
	slog.Info("stager service stopped")
}
