package mqx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"news-platform-backend/shared/config"
	"news-platform-backend/shared/metricsx"
)

var (
	ErrNotConnected = errors.New("kafka producer not initialized")
	ErrPublish      = errors.New("kafka publish failed")
)

// TopicSpec describes a topic to provision at startup. Mutation topics use a
// single partition; consumers rely on that for total ordering.
type TopicSpec struct {
	Name              string
	Partitions        int
	ReplicationFactor int
}

// EnsureTopics provisions the given topics through a short-lived admin
// connection. Creating a topic that already exists is a no-op.
func EnsureTopics(ctx context.Context, brokers []string, specs []TopicSpec) error {
	if len(brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	configs := make([]kafka.TopicConfig, 0, len(specs))
	for _, spec := range specs {
		partitions := spec.Partitions
		if partitions <= 0 {
			partitions = 1
		}
		replication := spec.ReplicationFactor
		if replication <= 0 {
			replication = 1
		}
		configs = append(configs, kafka.TopicConfig{
			Topic:             spec.Name,
			NumPartitions:     partitions,
			ReplicationFactor: replication,
		})
	}

	client := &kafka.Client{Addr: kafka.TCP(brokers...)}
	resp, err := client.CreateTopics(ctx, &kafka.CreateTopicsRequest{Topics: configs})
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for name, topicErr := range resp.Errors {
		if topicErr == nil || errors.Is(topicErr, kafka.TopicAlreadyExists) {
			continue
		}
		return fmt.Errorf("create topic %s: %w", name, topicErr)
	}
	return nil
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg config.Config) (*Producer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		MaxAttempts:  maxInt(cfg.KafkaRetryMax, 1),
		BatchTimeout: time.Duration(cfg.KafkaWriteMS) * time.Millisecond,
		Transport: &kafka.Transport{
			ClientID: cfg.KafkaClientID,
		},
	}
	return &Producer{writer: w}, nil
}

// Publish writes one event: the kind travels as the message key, the JSON
// serialization of payload as the value. The write is synchronous; a failure
// here means no event was published at all.
func (p *Producer) Publish(ctx context.Context, topic string, kind string, payload any) error {
	if p == nil || p.writer == nil {
		return ErrNotConnected
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	ctx, span := otel.Tracer("mqx").Start(ctx, "kafka.produce")
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", topic),
		attribute.String("messaging.kafka.message_key", kind),
	)
	defer span.End()
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(kind),
		Value: value,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	metricsx.IncEventPublished(topic, kind)
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

type Consumer struct {
	reader *kafka.Reader
	topic  string
	group  string
}

func NewConsumer(cfg config.Config, topic string, groupID string) (*Consumer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if groupID == "" {
		groupID = cfg.KafkaGroupID
	}
	if groupID == "" {
		return nil, errors.New("KAFKA_CONSUMER_GROUP is required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{reader: reader, topic: topic, group: groupID}, nil
}

// Run fetches one message at a time in partition order and hands it to
// handle. The offset is committed only after handle returns nil; a handler
// that wants the offset to advance despite a downstream failure must absorb
// the failure itself (log it or push it to a retry sink) and return nil. A
// handler error re-delivers the same message with backoff until it succeeds
// or ctx is cancelled. onError is invoked for fetch/handle/commit faults
// with the failing stage.
func (c *Consumer) Run(ctx context.Context, handle func(context.Context, kafka.Message) error, onError func(stage string, err error)) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if onError != nil {
				onError("fetch", err)
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := handleWithRetry(ctx, c.topic, msg, handle, onError); err != nil {
			// ctx cancelled mid-retry; the uncommitted offset means the
			// message is re-delivered to the next session
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if onError != nil {
				onError("commit", err)
			}
		}
	}
}

// handleWithRetry re-invokes handle on the same message until it returns
// nil. FetchMessage advances the session position whether or not the offset
// is committed, so fetching the next message after a handler error would
// skip this one for the rest of the session.
func handleWithRetry(ctx context.Context, topic string, msg kafka.Message, handle func(context.Context, kafka.Message) error, onError func(stage string, err error)) error {
	for attempt := 1; ; attempt++ {
		spanCtx, span := otel.Tracer("mqx").Start(ctx, "kafka.consume")
		span.SetAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", topic),
			attribute.String("messaging.kafka.message_key", string(msg.Key)),
		)
		err := handle(spanCtx, msg)
		span.End()
		if err == nil {
			return nil
		}
		if onError != nil {
			onError("handle", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(handleBackoff(attempt)):
		}
	}
}

// handleBackoff grows linearly and caps at ten seconds.
func handleBackoff(attempt int) time.Duration {
	delay := time.Duration(attempt) * 500 * time.Millisecond
	if delay > 10*time.Second {
		return 10 * time.Second
	}
	return delay
}

func (c *Consumer) Topic() string { return c.topic }
func (c *Consumer) Group() string { return c.group }

func (c *Consumer) Lag() int64 {
	if c == nil || c.reader == nil {
		return 0
	}
	return c.reader.Stats().Lag
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

func maxInt(a int, b int) int {
	if a > b {
		return a
	}
	return b
}
