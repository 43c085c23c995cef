package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestRecordCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "news-api", "test", "", "debug")

	ctx := WithRequestID(context.Background(), "req-123")
	logger.Info(ctx, "cache_set_failed", "failed to cache all news",
		slog.String("key", "all-news"),
	)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("record is not JSON: %v\n%s", err, buf.String())
	}
	if record["event"] != "cache_set_failed" {
		t.Fatalf("got event %v", record["event"])
	}
	if record["request_id"] != "req-123" {
		t.Fatalf("record should carry the request id, got %v", record["request_id"])
	}
	if record["service"] != "news-api" {
		t.Fatalf("got service %v", record["service"])
	}
	if record["key"] != "all-news" {
		t.Fatalf("call-site attrs lost: %v", record)
	}
}

func TestRecordWithoutRequestIDOmitsField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "news-consumer", "test", "", "info")

	logger.Warn(context.Background(), "event_skipped", "unknown event kind skipped")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if _, ok := record["request_id"]; ok {
		t.Fatalf("no request id in ctx, none should be logged: %v", record)
	}
}

func TestWithRequestIDIgnoresBlank(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  ")
	if got := RequestID(ctx); got != "" {
		t.Fatalf("blank id must not be stored, got %q", got)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "news-api", "test", "", "error")

	logger.Debug(context.Background(), "noise", "ignored")
	logger.Info(context.Background(), "noise", "ignored")
	if buf.Len() != 0 {
		t.Fatalf("below-threshold records should be dropped: %s", buf.String())
	}

	logger.Error(context.Background(), "server_failed", "server failed")
	if buf.Len() == 0 {
		t.Fatalf("error records should pass the threshold")
	}
}
