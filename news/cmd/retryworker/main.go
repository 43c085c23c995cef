package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"news-platform-backend/news/internal/consumer"
	"news-platform-backend/news/internal/repos"
	"news-platform-backend/shared/cachex"
	"news-platform-backend/shared/config"
	"news-platform-backend/shared/events"
	"news-platform-backend/shared/httpx"
	"news-platform-backend/shared/logx"
	"news-platform-backend/shared/metricsx"
	"news-platform-backend/shared/mqx"
	"news-platform-backend/shared/retryx"
	"news-platform-backend/shared/storex"
)

func main() {
	cfg, problems := config.Load("news-retry-worker", 8082)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if cfg.MongoURL == "" {
		problems = append(problems, config.Problem{Field: "MONGO_URL", Message: "MONGO_URL is required"})
	}
	if cfg.AsynqRedisAddr == "" {
		problems = append(problems, config.Problem{Field: "ASYNQ_REDIS_ADDR", Message: "ASYNQ_REDIS_ADDR is required"})
	}
	if len(cfg.KafkaBrokers) == 0 {
		problems = append(problems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	store, err := storex.Connect(context.Background(), cfg)
	if err != nil {
		logger.Error(context.Background(), "mongo_init_failed", "mongodb init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer func() { _ = store.Close(context.Background()) }()

	cache, err := cachex.New(cfg)
	if err != nil {
		logger.Error(context.Background(), "redis_init_failed", "redis init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer func() { _ = cache.Close() }()

	if err := mqx.EnsureTopics(context.Background(), cfg.KafkaBrokers, []mqx.TopicSpec{
		{Name: events.TopicDeadLetter, Partitions: 1, ReplicationFactor: 1},
	}); err != nil {
		logger.Warn(context.Background(), "topic_ensure_failed", "failed to provision topics",
			slog.String("error", err.Error()),
		)
	}
	producer, err := mqx.NewProducer(cfg)
	if err != nil {
		logger.Error(context.Background(), "kafka_init_failed", "kafka producer init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer func() { _ = producer.Close() }()

	applier := consumer.NewApplier(
		repos.NewNewsRepo(store.Database()),
		repos.NewCategoriesRepo(store.Database()),
		cache,
		logger,
	)

	worker, err := retryx.NewWorker(cfg, "news", logger, applier.Apply, producer)
	if err != nil {
		logger.Error(context.Background(), "worker_init_failed", "retry worker init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	metricsx.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.ReportQueueDepth(ctx, 15*time.Second)

	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": cfg.ServiceName})
		})
		mux.Handle("GET /metrics", metricsx.Handler())
		addr := net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error(context.Background(), "health_server_failed", "health server failed",
				slog.String("error", err.Error()),
			)
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
		cancel()
		worker.Shutdown()
	}()

	logger.Info(ctx, "worker_start", "retry worker started",
		slog.String("queue", cfg.AsynqQueue),
		slog.Int("concurrency", cfg.AsynqConcurrency),
	)
	if err := worker.Run(); err != nil {
		logger.Error(context.Background(), "worker_failed", "retry worker failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info(context.Background(), "worker_stop", "retry worker stopped")
}
