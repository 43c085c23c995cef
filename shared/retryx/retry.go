package retryx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"news-platform-backend/shared/config"
	"news-platform-backend/shared/events"
	"news-platform-backend/shared/logx"
	"news-platform-backend/shared/metricsx"
)

const TaskApplyRetry = "event.apply-retry"

// QueueName scopes the retry queue to one service. Both services share one
// Redis; without the scope a worker could dequeue another service's events,
// fail every attempt on an unknown kind, and dead-letter a recoverable event.
func QueueName(base string, service string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "event-retries"
	}
	service = strings.TrimSpace(service)
	if service == "" {
		return base
	}
	return base + ":" + service
}

// Task carries everything needed to re-apply a failed event outside the
// consumer loop, so the consumer can commit the offset and keep draining the
// partition.
type Task struct {
	Service  string          `json:"service"`
	Topic    string          `json:"topic"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
	Error    string          `json:"error"`
	FailedAt time.Time       `json:"failed_at"`
}

// Sink enqueues failed event applications for retry.
type Sink struct {
	client      *asynq.Client
	queue       string
	maxAttempts int
}

func NewSink(cfg config.Config, service string) (*Sink, error) {
	if cfg.AsynqRedisAddr == "" {
		return nil, fmt.Errorf("ASYNQ_REDIS_ADDR is required")
	}
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	})
	return &Sink{client: client, queue: QueueName(cfg.AsynqQueue, service), maxAttempts: cfg.RetryMaxAttempts}, nil
}

func (s *Sink) Enqueue(ctx context.Context, task Task) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("retry sink not initialized")
	}
	if task.FailedAt.IsZero() {
		task.FailedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal retry task: %w", err)
	}
	_, err = s.client.EnqueueContext(ctx, asynq.NewTask(TaskApplyRetry, payload),
		asynq.Queue(s.queue),
		asynq.MaxRetry(s.maxAttempts),
		asynq.ProcessIn(Backoff(1)),
	)
	if err != nil {
		return fmt.Errorf("enqueue retry task: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Backoff returns the delay before the given retry attempt. It grows
// quadratically and is capped at five minutes.
func Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 5 * time.Second
	}
	delay := time.Duration(attempt*attempt) * 5 * time.Second
	if delay > 5*time.Minute {
		return 5 * time.Minute
	}
	return delay
}

// Applier re-applies one event payload to the store.
type Applier func(ctx context.Context, kind string, payload json.RawMessage) error

// DeadLetterPublisher receives events whose retries are exhausted.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, topic string, kind string, payload any) error
}

// Worker drains the retry queue. Each task is re-applied through apply; when
// an attempt fails with retries remaining the task is returned to asynq, and
// on the final failure the event is published to the dead-letter topic and
// the task is consumed.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	redisOpt asynq.RedisClientOpt
	queue    string
}

// NewWorker builds a worker bound to the queue of the given service; it must
// match the service passed to NewSink by that service's consumer.
func NewWorker(cfg config.Config, service string, logger logx.Logger, apply Applier, deadLetters DeadLetterPublisher) (*Worker, error) {
	if cfg.AsynqRedisAddr == "" {
		return nil, fmt.Errorf("ASYNQ_REDIS_ADDR is required")
	}
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	}
	queue := QueueName(cfg.AsynqQueue, service)
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues: map[string]int{
			queue: 1,
		},
		RetryDelayFunc: func(n int, err error, t *asynq.Task) time.Duration {
			return Backoff(n)
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskApplyRetry, func(ctx context.Context, t *asynq.Task) error {
		ctx, span := otel.Tracer("retryx").Start(ctx, "event.apply-retry")
		defer span.End()

		var task Task
		if err := json.Unmarshal(t.Payload(), &task); err != nil {
			logger.Error(ctx, "retry_task_malformed", "dropping malformed retry task",
				slog.String("error", err.Error()),
			)
			return nil
		}
		span.SetAttributes(
			attribute.String("topic", task.Topic),
			attribute.String("kind", task.Kind),
		)

		applyErr := apply(ctx, task.Kind, task.Payload)
		if applyErr == nil {
			metricsx.IncEventApplied(task.Topic, task.Kind)
			logger.Info(ctx, "retry_apply_ok", "event applied on retry",
				slog.String("topic", task.Topic),
				slog.String("kind", task.Kind),
			)
			return nil
		}

		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		if retried >= maxRetry {
			dead := events.DeadLetterPayload{
				Service:  task.Service,
				Topic:    task.Topic,
				Kind:     task.Kind,
				Payload:  task.Payload,
				Error:    applyErr.Error(),
				FailedAt: time.Now().UTC(),
			}
			if err := deadLetters.Publish(ctx, events.TopicDeadLetter, task.Kind, dead); err != nil {
				logger.Error(ctx, "dead_letter_publish_failed", "failed to publish dead letter",
					slog.String("topic", task.Topic),
					slog.String("kind", task.Kind),
					slog.String("error", err.Error()),
				)
				return applyErr
			}
			metricsx.IncDeadLetteredEvent(task.Topic, task.Kind)
			logger.Warn(ctx, "event_dead_lettered", "event moved to dead-letter topic",
				slog.String("topic", task.Topic),
				slog.String("kind", task.Kind),
				slog.Int("attempts", retried+1),
				slog.String("error", applyErr.Error()),
			)
			return nil
		}

		logger.Warn(ctx, "retry_apply_failed", "event apply failed, will retry",
			slog.String("topic", task.Topic),
			slog.String("kind", task.Kind),
			slog.Int("attempt", retried+1),
			slog.String("error", applyErr.Error()),
		)
		return applyErr
	})

	return &Worker{server: server, mux: mux, redisOpt: redisOpt, queue: queue}, nil
}

func (w *Worker) Run() error {
	return w.server.Run(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// ReportQueueDepth polls the queue size until ctx is cancelled.
func (w *Worker) ReportQueueDepth(ctx context.Context, interval time.Duration) {
	inspector := asynq.NewInspector(w.redisOpt)
	defer inspector.Close()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := inspector.GetQueueInfo(w.queue)
			if err != nil {
				continue
			}
			metricsx.SetAsynqQueueDepth(w.queue, info.Size)
		}
	}
}
