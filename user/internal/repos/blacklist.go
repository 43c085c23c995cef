package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"news-platform-backend/user/internal/models"
)

// BlacklistRepo stores tokens revoked by logout. Entries carry the token's
// expiry so a TTL index on expiresAt can reap them once they would no longer
// verify anyway.
type BlacklistRepo struct {
	coll *mongo.Collection
}

func NewBlacklistRepo(db *mongo.Database) *BlacklistRepo {
	return &BlacklistRepo{coll: db.Collection("blacklisted_tokens")}
}

func (r *BlacklistRepo) Insert(ctx context.Context, token string, expiresAt time.Time) error {
	doc := models.BlacklistedToken{
		ID:        bson.NewObjectID(),
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert blacklisted token: %w", err)
	}
	return nil
}

func (r *BlacklistRepo) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	err := r.coll.FindOne(ctx, bson.M{"token": token}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("lookup blacklisted token: %w", err)
	}
	return true, nil
}
