package config

import "testing"

func TestParseCSV(t *testing.T) {
	got := parseCSV("broker-1:9092, broker-2:9092, ,broker-3:9092,,")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0] != "broker-1:9092" || got[2] != "broker-3:9092" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestParseAnyCSV(t *testing.T) {
	raw := []any{"localhost:9092", " ", "localhost:9093"}
	got := parseAnyCSV(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("CONFIG_PATH", "")
	cfg, _ := Load("news-api", 8080)
	if cfg.ServiceName != "news-api" {
		t.Fatalf("unexpected service name %q", cfg.ServiceName)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("unexpected port %d", cfg.HTTPPort)
	}
	if cfg.AsynqQueue != "event-retries" {
		t.Fatalf("unexpected default queue %q", cfg.AsynqQueue)
	}
	if cfg.RetryMaxAttempts != 5 {
		t.Fatalf("unexpected retry max %d", cfg.RetryMaxAttempts)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("MONGO_DATABASE", "news")
	t.Setenv("JWT_TTL_HOURS", "24")
	cfg, _ := Load("news-api", 8080)
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("expected 2 brokers, got %v", cfg.KafkaBrokers)
	}
	if cfg.MongoDatabase != "news" {
		t.Fatalf("unexpected db %q", cfg.MongoDatabase)
	}
	if cfg.JWTTTLHours != 24 {
		t.Fatalf("unexpected ttl %d", cfg.JWTTTLHours)
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("HTTP_PORT", "not-a-port")
	_, problems := Load("news-api", 8080)
	found := false
	for _, p := range problems {
		if p.Field == "HTTP_PORT" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected HTTP_PORT problem, got %v", problems)
	}
}
