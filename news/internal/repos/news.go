package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"news-platform-backend/news/internal/models"
)

type NewsRepo struct {
	coll *mongo.Collection
}

func NewNewsRepo(db *mongo.Database) *NewsRepo {
	return &NewsRepo{coll: db.Collection("news")}
}

func (r *NewsRepo) Insert(ctx context.Context, item models.News) (*models.News, error) {
	if item.ID.IsZero() {
		item.ID = bson.NewObjectID()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if item.Status == "" {
		item.Status = models.StatusDraft
	}
	if _, err := r.coll.InsertOne(ctx, item); err != nil {
		return nil, fmt.Errorf("insert news: %w", err)
	}
	return &item, nil
}

// UpdateFields applies an editorial update. Only the provided fields change;
// updatedAt always moves.
func (r *NewsRepo) UpdateFields(ctx context.Context, newsID bson.ObjectID, fields bson.M) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range fields {
		set[k] = v
	}
	res, err := r.coll.UpdateByID(ctx, newsID, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update news: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus records a verification decision. Publishing also stamps
// publishedAt and publishedBy.
func (r *NewsRepo) SetStatus(ctx context.Context, newsID bson.ObjectID, status string, verifiedBy *bson.ObjectID) error {
	if !models.ValidStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	now := time.Now().UTC()
	set := bson.M{"status": status, "updatedAt": now}
	if status == models.StatusPublished {
		set["publishedAt"] = now
		if verifiedBy != nil {
			set["publishedBy"] = *verifiedBy
		}
	}
	res, err := r.coll.UpdateByID(ctx, newsID, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("set news status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NewsRepo) Delete(ctx context.Context, newsID bson.ObjectID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": newsID})
	if err != nil {
		return fmt.Errorf("delete news: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NewsRepo) FindByID(ctx context.Context, newsID bson.ObjectID) (*models.News, error) {
	var item models.News
	err := r.coll.FindOne(ctx, bson.M{"_id": newsID}).Decode(&item)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find news: %w", err)
	}
	return &item, nil
}

func (r *NewsRepo) FindAll(ctx context.Context) ([]models.News, error) {
	return r.find(ctx, bson.M{})
}

func (r *NewsRepo) FindByStatus(ctx context.Context, status string) ([]models.News, error) {
	return r.find(ctx, bson.M{"status": status})
}

func (r *NewsRepo) FindPublished(ctx context.Context) ([]models.News, error) {
	return r.find(ctx, bson.M{"status": models.StatusPublished})
}

func (r *NewsRepo) FindByReporter(ctx context.Context, reporterID bson.ObjectID) ([]models.News, error) {
	return r.find(ctx, bson.M{"reportedBy": reporterID})
}

func (r *NewsRepo) FindSystemGenerated(ctx context.Context) ([]models.News, error) {
	return r.find(ctx, bson.M{"isSystemGenerated": true})
}

// FindPublishedByCategories returns published news whose category is any of
// the given ids; callers pass a category subtree resolved via DescendantIDs.
func (r *NewsRepo) FindPublishedByCategories(ctx context.Context, categoryIDs []bson.ObjectID) ([]models.News, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	return r.find(ctx, bson.M{
		"status":   models.StatusPublished,
		"category": bson.M{"$in": categoryIDs},
	})
}

func (r *NewsRepo) find(ctx context.Context, filter bson.M) ([]models.News, error) {
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find news: %w", err)
	}
	defer cursor.Close(ctx)
	var items []models.News
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode news: %w", err)
	}
	return items, nil
}
