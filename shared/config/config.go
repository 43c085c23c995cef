package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env              string
	ServiceName      string
	HTTPPort         int
	LogLevel         string
	ConfigPath       string
	RequestTimeoutMS int
	RequestTimeout   time.Duration
	ServiceBaseURL   string
	MongoURL         string
	MongoDatabase    string
	MongoTimeoutMS   int
	KafkaBrokers     []string
	KafkaClientID    string
	KafkaGroupID     string
	KafkaRetryMax    int
	KafkaWriteMS     int
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	JWTSecret        string
	JWTTTLHours      int
	OIDCJWKSURL      string
	JWKSTTLSeconds   int
	JWTClockSkewSec  int
	AsynqRedisAddr   string
	AsynqRedisPass   string
	AsynqRedisDB     int
	AsynqQueue       string
	AsynqConcurrency int
	RetryMaxAttempts int
	UploadDir        string
	BlobBaseURL      string
	SMTPHost         string
	SMTPPort         int
	SMTPFrom         string
	InfluxURL        string
	InfluxToken      string
	InfluxOrg        string
	InfluxBucket     string
	InfluxTimeoutMS  int
	OtelEnabled      bool
	OtelEndpoint     string
	OtelInsecure     bool
	OtelSampleRatio  float64
}

func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	envRaw := strings.TrimSpace(os.Getenv("ENV"))
	cfg := Config{
		Env:              envRaw,
		ServiceName:      serviceNameDefault,
		HTTPPort:         httpPortDefault,
		LogLevel:         "info",
		ConfigPath:       strings.TrimSpace(os.Getenv("CONFIG_PATH")),
		RequestTimeoutMS: 30000,
		ServiceBaseURL:   strings.TrimSpace(os.Getenv("SERVICE_BASE_URL")),
		MongoURL:         strings.TrimSpace(os.Getenv("MONGO_URL")),
		MongoTimeoutMS:   10000,
		KafkaRetryMax:    5,
		KafkaWriteMS:     5000,
		JWTSecret:        strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTTTLHours:      360,
		OIDCJWKSURL:      strings.TrimSpace(os.Getenv("OIDC_JWKS_URL")),
		JWKSTTLSeconds:   300,
		JWTClockSkewSec:  60,
		AsynqQueue:       "event-retries",
		AsynqConcurrency: 10,
		RetryMaxAttempts: 5,
		UploadDir:        "uploads",
		SMTPPort:         587,
		InfluxTimeoutMS:  5000,
		OtelInsecure:     true,
		OtelSampleRatio:  1.0,
	}

	problems := make([]Problem, 0, 4)
	envProvided := envRaw != ""

	if repoRoot, ok := findRepoRoot(); ok && cfg.Env != "" && cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(repoRoot, "configs", cfg.Env+".json")
	}

	if fileData, fileProblems, ok := loadConfigFile(cfg.ConfigPath, strings.TrimSpace(os.Getenv("CONFIG_PATH")) != ""); ok {
		problems = append(problems, fileProblems...)
		if fileEnv, ok := readStringKey(fileData, "ENV"); ok && strings.TrimSpace(fileEnv) != "" {
			envProvided = true
		}
		applyConfigMap(&cfg, fileData, &problems)
	} else {
		problems = append(problems, fileProblems...)
	}

	applyEnv(&cfg, &problems)

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if !envProvided {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		problems = append(problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	if cfg.RequestTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "REQUEST_TIMEOUT_MS", Message: "REQUEST_TIMEOUT_MS must be > 0"})
		cfg.RequestTimeoutMS = 30000
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	if cfg.MongoTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "MONGO_TIMEOUT_MS", Message: "MONGO_TIMEOUT_MS must be > 0"})
		cfg.MongoTimeoutMS = 10000
	}
	if cfg.KafkaRetryMax < 0 {
		problems = append(problems, Problem{Field: "KAFKA_RETRY_MAX", Message: "KAFKA_RETRY_MAX must be >= 0"})
		cfg.KafkaRetryMax = 5
	}
	if cfg.KafkaWriteMS <= 0 {
		problems = append(problems, Problem{Field: "KAFKA_WRITE_TIMEOUT_MS", Message: "KAFKA_WRITE_TIMEOUT_MS must be > 0"})
		cfg.KafkaWriteMS = 5000
	}
	if cfg.RedisDB < 0 {
		problems = append(problems, Problem{Field: "REDIS_DB", Message: "REDIS_DB must be >= 0"})
		cfg.RedisDB = 0
	}
	if cfg.JWTTTLHours <= 0 {
		problems = append(problems, Problem{Field: "JWT_TTL_HOURS", Message: "JWT_TTL_HOURS must be > 0"})
		cfg.JWTTTLHours = 360
	}
	if cfg.JWKSTTLSeconds <= 0 {
		problems = append(problems, Problem{Field: "JWKS_CACHE_TTL_SECONDS", Message: "JWKS_CACHE_TTL_SECONDS must be > 0"})
		cfg.JWKSTTLSeconds = 300
	}
	if cfg.JWTClockSkewSec < 0 {
		problems = append(problems, Problem{Field: "JWT_CLOCK_SKEW_SECONDS", Message: "JWT_CLOCK_SKEW_SECONDS must be >= 0"})
		cfg.JWTClockSkewSec = 60
	}
	if cfg.AsynqRedisDB < 0 {
		problems = append(problems, Problem{Field: "ASYNQ_REDIS_DB", Message: "ASYNQ_REDIS_DB must be >= 0"})
		cfg.AsynqRedisDB = 0
	}
	if cfg.AsynqConcurrency <= 0 {
		problems = append(problems, Problem{Field: "ASYNQ_CONCURRENCY", Message: "ASYNQ_CONCURRENCY must be > 0"})
		cfg.AsynqConcurrency = 10
	}
	if cfg.RetryMaxAttempts <= 0 {
		problems = append(problems, Problem{Field: "RETRY_MAX_ATTEMPTS", Message: "RETRY_MAX_ATTEMPTS must be > 0"})
		cfg.RetryMaxAttempts = 5
	}
	if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
		problems = append(problems, Problem{Field: "SMTP_PORT", Message: "SMTP_PORT must be 1-65535"})
		cfg.SMTPPort = 587
	}
	if cfg.InfluxTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "INFLUX_TIMEOUT_MS", Message: "INFLUX_TIMEOUT_MS must be > 0"})
		cfg.InfluxTimeoutMS = 5000
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		problems = append(problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be 0-1"})
		cfg.OtelSampleRatio = 1.0
	}

	return cfg, problems
}

func findRepoRoot() (string, bool) {
	start, err := os.Getwd()
	if err != nil {
		return "", false
	}
	dir := start
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, "configs")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func loadConfigFile(path string, explicit bool) (map[string]any, []Problem, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, false
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if explicit && !errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)}}, false
		}
		if explicit && errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not found"}}, false
		}
		return nil, nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("invalid json: %v", err)}}, false
	}
	return raw, nil, true
}

func applyEnv(cfg *Config, problems *[]Problem) {
	if v := strings.TrimSpace(os.Getenv("SERVICE_NAME")); v != "" {
		cfg.ServiceName = v
	}

	portRaw := strings.TrimSpace(os.Getenv("HTTP_PORT"))
	if portRaw == "" {
		portRaw = strings.TrimSpace(os.Getenv("PORT"))
	}
	if portRaw != "" {
		if p, err := strconv.Atoi(portRaw); err != nil || p <= 0 || p > 65535 {
			*problems = append(*problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		} else {
			cfg.HTTPPort = p
		}
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	applyEnvInt(problems, "REQUEST_TIMEOUT_MS", &cfg.RequestTimeoutMS)
	applyEnvString("SERVICE_BASE_URL", &cfg.ServiceBaseURL)
	applyEnvString("MONGO_URL", &cfg.MongoURL)
	applyEnvString("MONGO_DATABASE", &cfg.MongoDatabase)
	applyEnvInt(problems, "MONGO_TIMEOUT_MS", &cfg.MongoTimeoutMS)
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = parseCSV(v)
	}
	applyEnvString("KAFKA_CLIENT_ID", &cfg.KafkaClientID)
	applyEnvString("KAFKA_CONSUMER_GROUP", &cfg.KafkaGroupID)
	applyEnvInt(problems, "KAFKA_RETRY_MAX", &cfg.KafkaRetryMax)
	applyEnvInt(problems, "KAFKA_WRITE_TIMEOUT_MS", &cfg.KafkaWriteMS)
	applyEnvString("REDIS_ADDR", &cfg.RedisAddr)
	applyEnvString("REDIS_PASSWORD", &cfg.RedisPassword)
	applyEnvInt(problems, "REDIS_DB", &cfg.RedisDB)
	applyEnvString("JWT_SECRET", &cfg.JWTSecret)
	applyEnvInt(problems, "JWT_TTL_HOURS", &cfg.JWTTTLHours)
	applyEnvString("OIDC_JWKS_URL", &cfg.OIDCJWKSURL)
	applyEnvInt(problems, "JWKS_CACHE_TTL_SECONDS", &cfg.JWKSTTLSeconds)
	applyEnvInt(problems, "JWT_CLOCK_SKEW_SECONDS", &cfg.JWTClockSkewSec)
	applyEnvString("ASYNQ_REDIS_ADDR", &cfg.AsynqRedisAddr)
	applyEnvString("ASYNQ_REDIS_PASSWORD", &cfg.AsynqRedisPass)
	applyEnvInt(problems, "ASYNQ_REDIS_DB", &cfg.AsynqRedisDB)
	applyEnvString("ASYNQ_QUEUE", &cfg.AsynqQueue)
	applyEnvInt(problems, "ASYNQ_CONCURRENCY", &cfg.AsynqConcurrency)
	applyEnvInt(problems, "RETRY_MAX_ATTEMPTS", &cfg.RetryMaxAttempts)
	applyEnvString("UPLOAD_DIR", &cfg.UploadDir)
	applyEnvString("BLOB_BASE_URL", &cfg.BlobBaseURL)
	applyEnvString("SMTP_HOST", &cfg.SMTPHost)
	applyEnvInt(problems, "SMTP_PORT", &cfg.SMTPPort)
	applyEnvString("SMTP_FROM", &cfg.SMTPFrom)
	applyEnvString("INFLUX_URL", &cfg.InfluxURL)
	applyEnvString("INFLUX_TOKEN", &cfg.InfluxToken)
	applyEnvString("INFLUX_ORG", &cfg.InfluxOrg)
	applyEnvString("INFLUX_BUCKET", &cfg.InfluxBucket)
	applyEnvInt(problems, "INFLUX_TIMEOUT_MS", &cfg.InfluxTimeoutMS)
	applyEnvBool(problems, "OTEL_ENABLED", &cfg.OtelEnabled)
	applyEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OtelEndpoint)
	applyEnvBool(problems, "OTEL_EXPORTER_OTLP_INSECURE", &cfg.OtelInsecure)
	if v := strings.TrimSpace(os.Getenv("OTEL_SAMPLE_RATIO")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil {
			*problems = append(*problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be a number"})
		} else {
			cfg.OtelSampleRatio = f
		}
	}
}

func applyEnvString(name string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func applyEnvInt(problems *[]Problem, name string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			*problems = append(*problems, Problem{Field: name, Message: name + " must be an integer"})
		} else {
			*dst = n
		}
	}
}

func applyEnvBool(problems *[]Problem, name string, dst *bool) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if b, ok := asBool(v); ok {
			*dst = b
		} else {
			*problems = append(*problems, Problem{Field: name, Message: name + " must be a boolean"})
		}
	}
}

func applyConfigMap(cfg *Config, raw map[string]any, problems *[]Problem) {
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		switch key {
		case "ENV":
			if s, ok := v.(string); ok {
				cfg.Env = strings.TrimSpace(s)
			}
		case "SERVICE_NAME":
			applyMapString(v, &cfg.ServiceName)
		case "HTTP_PORT":
			p, ok := asInt(v)
			if !ok || p <= 0 || p > 65535 {
				*problems = append(*problems, Problem{Field: key, Message: "HTTP_PORT must be 1-65535"})
			} else {
				cfg.HTTPPort = p
			}
		case "LOG_LEVEL":
			applyMapString(v, &cfg.LogLevel)
		case "REQUEST_TIMEOUT_MS":
			applyMapInt(problems, key, v, &cfg.RequestTimeoutMS)
		case "SERVICE_BASE_URL":
			applyMapString(v, &cfg.ServiceBaseURL)
		case "MONGO_URL":
			applyMapString(v, &cfg.MongoURL)
		case "MONGO_DATABASE":
			applyMapString(v, &cfg.MongoDatabase)
		case "MONGO_TIMEOUT_MS":
			applyMapInt(problems, key, v, &cfg.MongoTimeoutMS)
		case "KAFKA_BROKERS":
			if s, ok := v.(string); ok {
				cfg.KafkaBrokers = parseCSV(s)
			} else if arr, ok := v.([]any); ok {
				cfg.KafkaBrokers = parseAnyCSV(arr)
			}
		case "KAFKA_CLIENT_ID":
			applyMapString(v, &cfg.KafkaClientID)
		case "KAFKA_CONSUMER_GROUP":
			applyMapString(v, &cfg.KafkaGroupID)
		case "KAFKA_RETRY_MAX":
			applyMapInt(problems, key, v, &cfg.KafkaRetryMax)
		case "KAFKA_WRITE_TIMEOUT_MS":
			applyMapInt(problems, key, v, &cfg.KafkaWriteMS)
		case "REDIS_ADDR":
			applyMapString(v, &cfg.RedisAddr)
		case "REDIS_PASSWORD":
			if s, ok := v.(string); ok {
				cfg.RedisPassword = s
			}
		case "REDIS_DB":
			applyMapInt(problems, key, v, &cfg.RedisDB)
		case "JWT_SECRET":
			if s, ok := v.(string); ok {
				cfg.JWTSecret = s
			}
		case "JWT_TTL_HOURS":
			applyMapInt(problems, key, v, &cfg.JWTTTLHours)
		case "OIDC_JWKS_URL":
			applyMapString(v, &cfg.OIDCJWKSURL)
		case "JWKS_CACHE_TTL_SECONDS":
			applyMapInt(problems, key, v, &cfg.JWKSTTLSeconds)
		case "JWT_CLOCK_SKEW_SECONDS":
			applyMapInt(problems, key, v, &cfg.JWTClockSkewSec)
		case "ASYNQ_REDIS_ADDR":
			applyMapString(v, &cfg.AsynqRedisAddr)
		case "ASYNQ_REDIS_PASSWORD":
			if s, ok := v.(string); ok {
				cfg.AsynqRedisPass = s
			}
		case "ASYNQ_REDIS_DB":
			applyMapInt(problems, key, v, &cfg.AsynqRedisDB)
		case "ASYNQ_QUEUE":
			applyMapString(v, &cfg.AsynqQueue)
		case "ASYNQ_CONCURRENCY":
			applyMapInt(problems, key, v, &cfg.AsynqConcurrency)
		case "RETRY_MAX_ATTEMPTS":
			applyMapInt(problems, key, v, &cfg.RetryMaxAttempts)
		case "UPLOAD_DIR":
			applyMapString(v, &cfg.UploadDir)
		case "BLOB_BASE_URL":
			applyMapString(v, &cfg.BlobBaseURL)
		case "SMTP_HOST":
			applyMapString(v, &cfg.SMTPHost)
		case "SMTP_PORT":
			applyMapInt(problems, key, v, &cfg.SMTPPort)
		case "SMTP_FROM":
			applyMapString(v, &cfg.SMTPFrom)
		case "INFLUX_URL":
			applyMapString(v, &cfg.InfluxURL)
		case "INFLUX_TOKEN":
			if s, ok := v.(string); ok {
				cfg.InfluxToken = s
			}
		case "INFLUX_ORG":
			applyMapString(v, &cfg.InfluxOrg)
		case "INFLUX_BUCKET":
			applyMapString(v, &cfg.InfluxBucket)
		case "INFLUX_TIMEOUT_MS":
			applyMapInt(problems, key, v, &cfg.InfluxTimeoutMS)
		case "OTEL_ENABLED":
			applyMapBool(problems, key, v, &cfg.OtelEnabled)
		case "OTEL_EXPORTER_OTLP_ENDPOINT":
			applyMapString(v, &cfg.OtelEndpoint)
		case "OTEL_EXPORTER_OTLP_INSECURE":
			applyMapBool(problems, key, v, &cfg.OtelInsecure)
		case "OTEL_SAMPLE_RATIO":
			if f, ok := asFloat(v); ok {
				cfg.OtelSampleRatio = f
			} else {
				*problems = append(*problems, Problem{Field: key, Message: "OTEL_SAMPLE_RATIO must be a number"})
			}
		}
	}
}

func applyMapString(v any, dst *string) {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		*dst = strings.TrimSpace(s)
	}
}

func applyMapInt(problems *[]Problem, field string, v any, dst *int) {
	if n, ok := asInt(v); ok {
		*dst = n
	} else {
		*problems = append(*problems, Problem{Field: field, Message: field + " must be an integer"})
	}
}

func applyMapBool(problems *[]Problem, field string, v any, dst *bool) {
	if s, ok := v.(string); ok {
		if b, ok := asBool(s); ok {
			*dst = b
			return
		}
		*problems = append(*problems, Problem{Field: field, Message: field + " must be a boolean"})
		return
	}
	if b, ok := v.(bool); ok {
		*dst = b
		return
	}
	*problems = append(*problems, Problem{Field: field, Message: field + " must be a boolean"})
}

func readStringKey(raw map[string]any, key string) (string, bool) {
	for k, v := range raw {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			s, ok := v.(string)
			return s, ok
		}
	}
	return "", false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	default:
		return 0, false
	}
}

func asBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAnyCSV(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
