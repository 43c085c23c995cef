package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"news-platform-backend/user/internal/models"
)

type ApplicationsRepo struct {
	coll *mongo.Collection
}

func NewApplicationsRepo(db *mongo.Database) *ApplicationsRepo {
	return &ApplicationsRepo{coll: db.Collection("applications")}
}

func (r *ApplicationsRepo) Create(ctx context.Context, app models.Application) (*models.Application, error) {
	if app.ID.IsZero() {
		app.ID = bson.NewObjectID()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if app.Status == "" {
		app.Status = models.ApplicationPending
	}
	if _, err := r.coll.InsertOne(ctx, app); err != nil {
		return nil, fmt.Errorf("insert application: %w", err)
	}
	return &app, nil
}

func (r *ApplicationsRepo) Update(ctx context.Context, applicationID bson.ObjectID, bio string, organization string, documents []string) error {
	set := bson.M{
		"bio":          bio,
		"organization": organization,
		"status":       models.ApplicationPending,
		"updatedAt":    time.Now().UTC(),
	}
	if len(documents) > 0 {
		set["documents"] = documents
	}
	res, err := r.coll.UpdateByID(ctx, applicationID, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ApplicationsRepo) SetVerdict(ctx context.Context, applicationID bson.ObjectID, status string, message string, verifiedBy *bson.ObjectID) error {
	now := time.Now().UTC()
	set := bson.M{
		"status":     status,
		"message":    message,
		"verifiedAt": now,
		"updatedAt":  now,
	}
	if verifiedBy != nil {
		set["verifiedBy"] = *verifiedBy
	}
	res, err := r.coll.UpdateByID(ctx, applicationID, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("set application verdict: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ApplicationsRepo) Delete(ctx context.Context, applicationID bson.ObjectID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": applicationID})
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ApplicationsRepo) FindByID(ctx context.Context, applicationID bson.ObjectID) (*models.Application, error) {
	var app models.Application
	err := r.coll.FindOne(ctx, bson.M{"_id": applicationID}).Decode(&app)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return &app, nil
}

// FindPendingByReporter backs the one-pending-application-per-user rule.
func (r *ApplicationsRepo) FindPendingByReporter(ctx context.Context, reporterID bson.ObjectID) (*models.Application, error) {
	var app models.Application
	err := r.coll.FindOne(ctx, bson.M{
		"reporterId": reporterID,
		"status":     models.ApplicationPending,
	}).Decode(&app)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find pending application: %w", err)
	}
	return &app, nil
}

func (r *ApplicationsRepo) FindByReporter(ctx context.Context, reporterID bson.ObjectID) ([]models.Application, error) {
	return r.find(ctx, bson.M{"reporterId": reporterID})
}

func (r *ApplicationsRepo) FindByStatus(ctx context.Context, status string) ([]models.Application, error) {
	return r.find(ctx, bson.M{"status": status})
}

func (r *ApplicationsRepo) FindAll(ctx context.Context) ([]models.Application, error) {
	return r.find(ctx, bson.M{})
}

func (r *ApplicationsRepo) find(ctx context.Context, filter bson.M) ([]models.Application, error) {
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find applications: %w", err)
	}
	defer cursor.Close(ctx)
	var apps []models.Application
	if err := cursor.All(ctx, &apps); err != nil {
		return nil, fmt.Errorf("decode applications: %w", err)
	}
	return apps, nil
}
