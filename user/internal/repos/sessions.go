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

// SessionsRepo tracks one login session per (user, source IP) pair.
type SessionsRepo struct {
	coll *mongo.Collection
}

func NewSessionsRepo(db *mongo.Database) *SessionsRepo {
	return &SessionsRepo{coll: db.Collection("user_sessions")}
}

func (r *SessionsRepo) Create(ctx context.Context, session models.UserSession) (*models.UserSession, error) {
	if session.ID.IsZero() {
		session.ID = bson.NewObjectID()
	}
	if session.CreatedOn.IsZero() {
		session.CreatedOn = time.Now().UTC()
	}
	if _, err := r.coll.InsertOne(ctx, session); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &session, nil
}

// DeleteByUserAndIP removes the session recorded for the user at the given
// address. A missing session is reported as ErrNotFound so callers can treat
// duplicate logout events as no-ops.
func (r *SessionsRepo) DeleteByUserAndIP(ctx context.Context, userID bson.ObjectID, ip string) (*models.UserSession, error) {
	var session models.UserSession
	err := r.coll.FindOneAndDelete(ctx, bson.M{"userId": userID, "ip": ip}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete session: %w", err)
	}
	return &session, nil
}
