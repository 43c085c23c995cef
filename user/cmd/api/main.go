package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"news-platform-backend/shared/authx"
	"news-platform-backend/shared/cachex"
	"news-platform-backend/shared/config"
	"news-platform-backend/shared/events"
	"news-platform-backend/shared/httpx"
	"news-platform-backend/shared/logx"
	"news-platform-backend/shared/metricsx"
	"news-platform-backend/shared/mqx"
	"news-platform-backend/shared/observability"
	"news-platform-backend/shared/storex"
	"news-platform-backend/shared/uploadx"
	"news-platform-backend/user/internal/handlers"
	"news-platform-backend/user/internal/identity"
	"news-platform-backend/user/internal/middleware"
	"news-platform-backend/user/internal/repos"
)

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("user-api", 8090)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if cfg.MongoURL == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "MONGO_URL", Message: "MONGO_URL is required"})
	}
	if len(cfg.KafkaBrokers) == 0 {
		readyProblems = append(readyProblems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if cfg.JWTSecret == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "JWT_SECRET", Message: "JWT_SECRET is required"})
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

	var store *storex.Store
	if cfg.MongoURL != "" {
		var err error
		store, err = storex.Connect(context.Background(), cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "MONGO_URL", Message: "failed to connect to mongodb"})
			logger.Error(context.Background(), "mongo_init_failed", "mongodb init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	cache, err := cachex.New(cfg)
	if err != nil {
		readyProblems = append(readyProblems, config.Problem{Field: "REDIS_ADDR", Message: "failed to connect to redis"})
	}

	var producer *mqx.Producer
	if len(cfg.KafkaBrokers) > 0 {
		if err := mqx.EnsureTopics(context.Background(), cfg.KafkaBrokers, []mqx.TopicSpec{
			{Name: events.TopicIdentityMutations, Partitions: 1, ReplicationFactor: 1},
			{Name: events.TopicApplicationMutations, Partitions: 1, ReplicationFactor: 1},
			{Name: events.TopicEmailOutbound, Partitions: 1, ReplicationFactor: 1},
			{Name: events.TopicDeadLetter, Partitions: 1, ReplicationFactor: 1},
		}); err != nil {
			logger.Warn(context.Background(), "topic_ensure_failed", "failed to provision topics",
				slog.String("error", err.Error()),
			)
		}
		producer, err = mqx.NewProducer(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "KAFKA_BROKERS", Message: "failed to initialize kafka producer"})
		}
	}

	uploader, err := uploadx.NewLocalUploader(cfg.UploadDir, cfg.BlobBaseURL)
	if err != nil {
		readyProblems = append(readyProblems, config.Problem{Field: "UPLOAD_DIR", Message: "failed to initialize upload dir"})
	}

	var (
		issuer    *authx.TokenIssuer
		verifiers authx.ChainVerifier
	)
	if cfg.JWTSecret != "" {
		issuer, err = authx.NewTokenIssuer(cfg.JWTSecret, cfg.ServiceName, time.Duration(cfg.JWTTTLHours)*time.Hour)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "JWT_SECRET", Message: "failed to initialize token issuer"})
		}
		tokenVerifier, err := authx.NewTokenVerifier(cfg.JWTSecret, time.Duration(cfg.JWTClockSkewSec)*time.Second)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "JWT_SECRET", Message: "failed to initialize token verifier"})
		} else {
			verifiers = append(verifiers, tokenVerifier)
		}
	}
	if cfg.OIDCJWKSURL != "" {
		oidcVerifier, err := authx.NewOIDCVerifier(cfg.OIDCJWKSURL, 0, cfg.JWTClockSkewSec)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "OIDC_JWKS_URL", Message: "failed to initialize oidc verifier"})
		} else {
			verifiers = append(verifiers, oidcVerifier)
		}
	}
	var verifier authx.Verifier
	if len(verifiers) > 0 {
		verifier = verifiers
	}

	var (
		usersRepo        *repos.UsersRepo
		applicationsRepo *repos.ApplicationsRepo
		blacklistRepo    *repos.BlacklistRepo
	)
	if store != nil {
		usersRepo = repos.NewUsersRepo(store.Database())
		applicationsRepo = repos.NewApplicationsRepo(store.Database())
		blacklistRepo = repos.NewBlacklistRepo(store.Database())
	}

	metricsx.Register()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems},
			)
			return
		}
		if err := store.Ping(r.Context()); err != nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION",
				"service not ready: mongodb unavailable",
				map[string]any{"problem": "mongo_ping_failed"},
			)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))

	api := handlers.New(producer, cache, usersRepo, applicationsRepo, blacklistRepo,
		identity.SaltedHasher{}, issuer, uploader, logger)
	api.Register(mux)

	skipAuth := func(r *http.Request) bool {
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			return true
		}
		if strings.HasPrefix(r.URL.Path, "/uploads/") {
			return true
		}
		return handlers.PublicPath(r)
	}

	handler := http.Handler(mux)
	// assigning a nil *BlacklistRepo directly would store a typed nil in the
	// interface field and defeat the middleware's nil check
	var blacklist middleware.TokenStore
	if blacklistRepo != nil {
		blacklist = blacklistRepo
	}
	handler = middleware.AuthMiddleware{Verifier: verifier, Blacklist: blacklist, Skip: skipAuth}.Wrap(handler)
	handler = metricsx.Instrument(handler)
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)
	if cfg.OtelEnabled {
		handler = otelhttp.NewHandler(handler, "http")
	}
	handler = httpx.WithRequestID(handler)
	handler = httpx.WithRecover(logger, handler)
	handler = httpx.WithRequestLog(logger, httpx.RequestLogOptions{SkipPaths: map[string]bool{"/healthz": true, "/metrics": true}}, handler)

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "service_start", "starting service",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
			slog.String("log_level", cfg.LogLevel),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	if producer != nil {
		_ = producer.Close()
	}
	if cache != nil {
		_ = cache.Close()
	}
	if store != nil {
		_ = store.Close(shutdownCtx)
	}
	logger.Info(context.Background(), "service_stop", "service stopped")
}
