package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/smtp"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"news-platform-backend/shared/cachex"
	"news-platform-backend/shared/config"
	"news-platform-backend/shared/events"
	"news-platform-backend/shared/httpx"
	"news-platform-backend/shared/influxx"
	"news-platform-backend/shared/logx"
	"news-platform-backend/shared/metricsx"
	"news-platform-backend/shared/mqx"
	"news-platform-backend/shared/observability"
	"news-platform-backend/shared/retryx"
	"news-platform-backend/shared/storex"
	"news-platform-backend/user/internal/consumer"
	"news-platform-backend/user/internal/mailer"
	"news-platform-backend/user/internal/repos"
)

func main() {
	cfg, problems := config.Load("user-consumer", 8091)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if cfg.MongoURL == "" {
		problems = append(problems, config.Problem{Field: "MONGO_URL", Message: "MONGO_URL is required"})
	}
	if len(cfg.KafkaBrokers) == 0 {
		problems = append(problems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if cfg.KafkaGroupID == "" {
		problems = append(problems, config.Problem{Field: "KAFKA_CONSUMER_GROUP", Message: "KAFKA_CONSUMER_GROUP is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
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
		{Name: events.TopicIdentityMutations, Partitions: 1, ReplicationFactor: 1},
		{Name: events.TopicApplicationMutations, Partitions: 1, ReplicationFactor: 1},
		{Name: events.TopicEmailOutbound, Partitions: 1, ReplicationFactor: 1},
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

	sink, err := retryx.NewSink(cfg, "user")
	if err != nil {
		logger.Error(context.Background(), "retry_sink_init_failed", "retry sink init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer func() { _ = sink.Close() }()

	var influx *influxx.Client
	if cfg.InfluxURL != "" {
		influx, err = influxx.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "influx_init_failed", "influx init failed",
				slog.String("error", err.Error()),
			)
		} else {
			defer influx.Close()
		}
	}

	applier := consumer.NewApplier(
		repos.NewApplicationsRepo(store.Database()),
		repos.NewUsersRepo(store.Database()),
		repos.NewSessionsRepo(store.Database()),
		cache,
		producer,
		logger,
	)
	emailApplier := consumer.NewEmailApplier(newMailer(cfg, logger))

	metricsx.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	go serveHealth(cfg, logger)

	appliers := map[string]applyFn{
		events.TopicIdentityMutations:    applier,
		events.TopicApplicationMutations: applier,
		events.TopicEmailOutbound:        emailApplier,
	}
	var wg sync.WaitGroup
	for topic, topicApplier := range appliers {
		reader, err := mqx.NewConsumer(cfg, topic, cfg.KafkaGroupID)
		if err != nil {
			logger.Error(ctx, "kafka_init_failed", "kafka reader init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("topic", topic),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		wg.Add(1)
		go func(reader *mqx.Consumer, topicApplier applyFn) {
			defer wg.Done()
			defer reader.Close()
			runConsumer(ctx, cfg, logger, reader, topicApplier, sink, influx)
		}(reader, topicApplier)
	}

	logger.Info(ctx, "consumer_start", "user consumer started",
		slog.String("group", cfg.KafkaGroupID),
	)
	wg.Wait()
	logger.Info(context.Background(), "consumer_stop", "user consumer stopped")
}

func newMailer(cfg config.Config, logger logx.Logger) mailer.Mailer {
	if cfg.SMTPHost == "" {
		return mailer.LogMailer{Logger: logger}
	}
	return mailer.SMTPMailer{
		Addr: net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
		From: cfg.SMTPFrom,
		Auth: smtpAuth(cfg),
	}
}

func smtpAuth(cfg config.Config) smtp.Auth {
	user := strings.TrimSpace(os.Getenv("SMTP_USER"))
	pass := os.Getenv("SMTP_PASSWORD")
	if user == "" {
		return nil
	}
	return smtp.PlainAuth("", user, pass, cfg.SMTPHost)
}

type applyFn interface {
	Apply(ctx context.Context, kind string, raw json.RawMessage) error
}

func runConsumer(ctx context.Context, cfg config.Config, logger logx.Logger, reader *mqx.Consumer, applier applyFn, sink *retryx.Sink, influx *influxx.Client) {
	lagTicker := time.NewTicker(15 * time.Second)
	defer lagTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-lagTicker.C:
				metricsx.SetKafkaLag(reader.Topic(), reader.Group(), reader.Lag())
			}
		}
	}()

	handle := func(msgCtx context.Context, msg kafka.Message) error {
		kind := string(msg.Key)
		start := time.Now()
		err := applier.Apply(msgCtx, kind, msg.Value)
		elapsed := time.Since(start)
		metricsx.ObserveEventApplyLatency(reader.Topic(), elapsed)

		if err == nil {
			metricsx.IncEventApplied(reader.Topic(), kind)
			if influx != nil {
				if werr := influx.WriteApply(msgCtx, cfg.ServiceName, reader.Topic(), kind, "ok", elapsed); werr != nil {
					metricsx.IncInfluxWriteFailure()
				}
			}
			return nil
		}

		metricsx.IncEventApplyFailure(reader.Topic(), kind)
		if influx != nil {
			if werr := influx.WriteApply(msgCtx, cfg.ServiceName, reader.Topic(), kind, "error", elapsed); werr != nil {
				metricsx.IncInfluxWriteFailure()
			}
		}

		// a payload we cannot even decode will never apply; skip it
		if errors.Is(err, events.ErrUnknownKind) {
			logger.Warn(msgCtx, "event_skipped", "unknown event kind skipped",
				slog.String("topic", reader.Topic()),
				slog.String("kind", kind),
			)
			return nil
		}

		// hand the event to the retry worker and advance the offset; the
		// partition must not stall behind one bad row
		if enqErr := sink.Enqueue(msgCtx, retryx.Task{
			Service:  cfg.ServiceName,
			Topic:    reader.Topic(),
			Kind:     kind,
			Payload:  msg.Value,
			Error:    err.Error(),
			FailedAt: time.Now().UTC(),
		}); enqErr != nil {
			logger.Error(msgCtx, "retry_enqueue_failed", "failed to enqueue retry task",
				slog.String("topic", reader.Topic()),
				slog.String("kind", kind),
				slog.String("error", enqErr.Error()),
			)
			return enqErr
		}
		logger.Warn(msgCtx, "event_apply_deferred", "apply failed, event queued for retry",
			slog.String("topic", reader.Topic()),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		return nil
	}

	onError := func(stage string, err error) {
		logger.Error(ctx, "kafka_"+stage+"_failed", "kafka "+stage+" failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("topic", reader.Topic()),
			slog.String("error", err.Error()),
		)
	}

	if err := reader.Run(ctx, handle, onError); err != nil {
		logger.Error(ctx, "consumer_failed", "consumer loop failed",
			slog.String("topic", reader.Topic()),
			slog.String("error", err.Error()),
		)
	}
}

func serveHealth(cfg config.Config, logger logx.Logger) {
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
}
