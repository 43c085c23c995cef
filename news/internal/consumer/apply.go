package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"

	"news-platform-backend/news/internal/models"
	"news-platform-backend/news/internal/repos"
	"news-platform-backend/shared/cachex"
	"news-platform-backend/shared/events"
	"news-platform-backend/shared/logx"
)

type NewsWriter interface {
	Insert(ctx context.Context, item models.News) (*models.News, error)
	UpdateFields(ctx context.Context, newsID bson.ObjectID, fields bson.M) error
	SetStatus(ctx context.Context, newsID bson.ObjectID, status string, verifiedBy *bson.ObjectID) error
	Delete(ctx context.Context, newsID bson.ObjectID) error
}

type CategoryWriter interface {
	Create(ctx context.Context, name string, parent *string) (*models.Category, error)
	Rename(ctx context.Context, categoryID bson.ObjectID, name string) error
	Delete(ctx context.Context, categoryID bson.ObjectID) error
}

type Cache interface {
	Delete(ctx context.Context, keys ...string) error
	DeleteFamily(ctx context.Context, pattern string) (int, error)
}

// Applier is the single writer for the news database. Events reach it in
// partition order; applying them sequentially keeps the store consistent
// with the log.
type Applier struct {
	news       NewsWriter
	categories CategoryWriter
	cache      Cache
	logger     logx.Logger
}

func NewApplier(news NewsWriter, categories CategoryWriter, cache Cache, logger logx.Logger) *Applier {
	return &Applier{news: news, categories: categories, cache: cache, logger: logger}
}

// Apply decodes and applies one event, then invalidates the derived cache
// families the event touched. A delete or verify aimed at a row that no
// longer exists is a handled no-op, not a failure.
func (a *Applier) Apply(ctx context.Context, kind string, raw json.RawMessage) error {
	decoded, err := events.Decode(kind, raw)
	if err != nil {
		return err
	}

	switch payload := decoded.(type) {
	case *events.UploadNewsPayload:
		return a.applyUpload(ctx, payload)
	case *events.UpdateNewsPayload:
		return a.applyUpdate(ctx, payload)
	case *events.VerifyNewsPayload:
		return a.applyVerify(ctx, payload)
	case *events.DeleteNewsPayload:
		return a.applyDelete(ctx, payload)
	case *events.CreateCategoryPayload:
		return a.applyCreateCategory(ctx, payload)
	case *events.UpdateCategoryPayload:
		return a.applyUpdateCategory(ctx, payload)
	case *events.DeleteCategoryPayload:
		return a.applyDeleteCategory(ctx, payload)
	default:
		return fmt.Errorf("%w: %q", events.ErrUnknownKind, kind)
	}
}

func (a *Applier) applyUpload(ctx context.Context, payload *events.UploadNewsPayload) error {
	categoryID, err := bson.ObjectIDFromHex(payload.CategoryID)
	if err != nil {
		return fmt.Errorf("upload-news category id: %w", err)
	}
	item := models.News{
		Title:      payload.Title,
		Content:    payload.Content,
		CategoryID: categoryID,
		Status:     models.StatusDraft,
		Language:   payload.Language,
		Tags:       payload.Tags,
		Location:   payload.Location,
		ImageURLs:  payload.ImageURLs,
	}
	if reporterID, err := bson.ObjectIDFromHex(payload.ReportedBy); err == nil {
		item.ReportedBy = &reporterID
		// reporter submissions stay flagged until an admin verifies them
		item.IsFake = true
	}
	if _, err := a.news.Insert(ctx, item); err != nil {
		return err
	}
	return a.invalidateNews(ctx)
}

func (a *Applier) applyUpdate(ctx context.Context, payload *events.UpdateNewsPayload) error {
	newsID, err := bson.ObjectIDFromHex(payload.NewsID)
	if err != nil {
		return fmt.Errorf("update-news id: %w", err)
	}
	fields := bson.M{
		"title":    payload.Title,
		"content":  payload.Content,
		"language": payload.Language,
		"location": payload.Location,
		"isFake":   payload.IsFake,
	}
	if categoryID, err := bson.ObjectIDFromHex(payload.CategoryID); err == nil {
		fields["category"] = categoryID
	}
	if editorID, err := bson.ObjectIDFromHex(payload.EditedBy); err == nil {
		fields["editedBy"] = editorID
	}
	if len(payload.Tags) > 0 {
		fields["tags"] = payload.Tags
	}
	if len(payload.ImageURLs) > 0 {
		fields["imageURL"] = payload.ImageURLs
	}
	if err := a.news.UpdateFields(ctx, newsID, fields); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			a.logNoop(ctx, events.KindUpdateNews, payload.NewsID)
			return nil
		}
		return err
	}
	return a.invalidateNews(ctx)
}

func (a *Applier) applyVerify(ctx context.Context, payload *events.VerifyNewsPayload) error {
	newsID, err := bson.ObjectIDFromHex(payload.NewsID)
	if err != nil {
		return fmt.Errorf("verify-news id: %w", err)
	}
	var verifiedBy *bson.ObjectID
	if id, err := bson.ObjectIDFromHex(payload.VerifiedBy); err == nil {
		verifiedBy = &id
	}
	if err := a.news.SetStatus(ctx, newsID, payload.Status, verifiedBy); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			a.logNoop(ctx, events.KindVerifyNews, payload.NewsID)
			return nil
		}
		return err
	}
	return a.invalidateNews(ctx)
}

func (a *Applier) applyDelete(ctx context.Context, payload *events.DeleteNewsPayload) error {
	newsID, err := bson.ObjectIDFromHex(payload.NewsID)
	if err != nil {
		return fmt.Errorf("delete-news id: %w", err)
	}
	if err := a.news.Delete(ctx, newsID); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			a.logNoop(ctx, events.KindDeleteNews, payload.NewsID)
			return nil
		}
		return err
	}
	return a.invalidateNews(ctx)
}

func (a *Applier) applyCreateCategory(ctx context.Context, payload *events.CreateCategoryPayload) error {
	if _, err := a.categories.Create(ctx, payload.Name, payload.Parent); err != nil {
		return err
	}
	return a.invalidateCategories(ctx)
}

func (a *Applier) applyUpdateCategory(ctx context.Context, payload *events.UpdateCategoryPayload) error {
	categoryID, err := bson.ObjectIDFromHex(payload.CategoryID)
	if err != nil {
		return fmt.Errorf("update-category id: %w", err)
	}
	if err := a.categories.Rename(ctx, categoryID, payload.Name); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			a.logNoop(ctx, events.KindUpdateCategory, payload.CategoryID)
			return nil
		}
		return err
	}
	return a.invalidateCategories(ctx)
}

func (a *Applier) applyDeleteCategory(ctx context.Context, payload *events.DeleteCategoryPayload) error {
	categoryID, err := bson.ObjectIDFromHex(payload.CategoryID)
	if err != nil {
		return fmt.Errorf("delete-category id: %w", err)
	}
	if err := a.categories.Delete(ctx, categoryID); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			a.logNoop(ctx, events.KindDeleteCategory, payload.CategoryID)
			return nil
		}
		return err
	}
	return a.invalidateCategories(ctx)
}

// invalidation always runs after the store write; a failure here is logged
// but does not fail the apply, since the TTL bounds the staleness window.
func (a *Applier) invalidateNews(ctx context.Context) error {
	if err := a.cache.Delete(ctx, cachex.KeyAllNews); err != nil {
		a.logInvalidateFailure(ctx, cachex.KeyAllNews, err)
	}
	for _, family := range []string{cachex.FamilyCategoryNews, cachex.FamilyUserInterest} {
		if _, err := a.cache.DeleteFamily(ctx, family); err != nil {
			a.logInvalidateFailure(ctx, family, err)
		}
	}
	return nil
}

func (a *Applier) invalidateCategories(ctx context.Context) error {
	for _, family := range []string{cachex.FamilyCategories, cachex.FamilyParentCategories, cachex.FamilyCategoryNews} {
		if _, err := a.cache.DeleteFamily(ctx, family); err != nil {
			a.logInvalidateFailure(ctx, family, err)
		}
	}
	return nil
}

func (a *Applier) logNoop(ctx context.Context, kind string, id string) {
	a.logger.Warn(ctx, "apply_noop", "event targets a missing row",
		slog.String("kind", kind),
		slog.String("id", id),
	)
}

func (a *Applier) logInvalidateFailure(ctx context.Context, pattern string, err error) {
	a.logger.Warn(ctx, "cache_invalidate_failed", "failed to invalidate cache",
		slog.String("pattern", pattern),
		slog.String("error", err.Error()),
	)
}
