package mqx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"news-platform-backend/shared/config"
)

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.Config{})
	if err == nil {
		t.Fatalf("expected error for empty broker list")
	}
}

func TestNewConsumerRequiresGroup(t *testing.T) {
	cfg := config.Config{KafkaBrokers: []string{"localhost:9092"}}
	_, err := NewConsumer(cfg, "content-mutations", "")
	if err == nil {
		t.Fatalf("expected error for empty consumer group")
	}
}

func TestNilProducerPublishFails(t *testing.T) {
	var p *Producer
	if err := p.Publish(nil, "content-mutations", "upload-news", map[string]string{}); err != ErrNotConnected {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
}

func TestPublishWrapsBrokerErrors(t *testing.T) {
	p := &Producer{writer: &kafka.Writer{
		Addr:        kafka.TCP("127.0.0.1:1"),
		MaxAttempts: 1,
	}}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.Publish(ctx, "content-mutations", "upload-news", map[string]string{})
	if err == nil {
		t.Fatalf("expected write failure")
	}
	if !errors.Is(err, ErrPublish) {
		t.Fatalf("got %v, want ErrPublish", err)
	}
	if errors.Is(err, ErrNotConnected) {
		t.Fatalf("broker error must not masquerade as a nil-writer guard: %v", err)
	}
}

func TestHandleWithRetryRedeliversSameMessage(t *testing.T) {
	msg := kafka.Message{Key: []byte("upload-news"), Value: []byte(`{"title":"x"}`)}

	attempts := 0
	handle := func(_ context.Context, got kafka.Message) error {
		attempts++
		if string(got.Value) != string(msg.Value) {
			t.Fatalf("attempt %d saw a different message: %s", attempts, got.Value)
		}
		if attempts < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}

	var handleErrors int
	onError := func(stage string, err error) {
		if stage != "handle" {
			t.Fatalf("unexpected stage %q", stage)
		}
		handleErrors++
	}

	if err := handleWithRetry(context.Background(), "content-mutations", msg, handle, onError); err != nil {
		t.Fatalf("handleWithRetry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("got %d attempts, want 3", attempts)
	}
	if handleErrors != 2 {
		t.Fatalf("got %d handle errors, want 2", handleErrors)
	}
}

func TestHandleWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	handle := func(context.Context, kafka.Message) error {
		cancel()
		return errors.New("store unavailable")
	}

	err := handleWithRetry(ctx, "content-mutations", kafka.Message{}, handle, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestHandleBackoffCaps(t *testing.T) {
	if got := handleBackoff(1); got != 500*time.Millisecond {
		t.Fatalf("attempt 1: got %v", got)
	}
	if got := handleBackoff(1000); got != 10*time.Second {
		t.Fatalf("backoff should cap at 10s, got %v", got)
	}
}
