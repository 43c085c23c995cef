package storex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"news-platform-backend/shared/config"
)

type Store struct {
	client   *mongo.Client
	database *mongo.Database
	timeout  time.Duration
}

func Connect(ctx context.Context, cfg config.Config) (*Store, error) {
	if cfg.MongoURL == "" {
		return nil, errors.New("MONGO_URL is required")
	}
	if cfg.MongoDatabase == "" {
		return nil, errors.New("MONGO_DATABASE is required")
	}
	timeout := time.Duration(cfg.MongoTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.MongoURL).
		SetAppName(cfg.ServiceName).
		SetConnectTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{
		client:   client,
		database: client.Database(cfg.MongoDatabase),
		timeout:  timeout,
	}, nil
}

func (s *Store) Database() *mongo.Database {
	if s == nil {
		return nil
	}
	return s.database
}

func (s *Store) Collection(name string) *mongo.Collection {
	if s == nil || s.database == nil {
		return nil
	}
	return s.database.Collection(name)
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("mongo client not initialized")
	}
	pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(pingCtx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
