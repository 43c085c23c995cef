package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"news-platform-backend/news/internal/models"
	"news-platform-backend/news/internal/repos"
	"news-platform-backend/shared/events"
	"news-platform-backend/shared/logx"
)

type fakeNewsWriter struct {
	inserted   []models.News
	statusErr  error
	deleteErr  error
	lastStatus string
}

func (f *fakeNewsWriter) Insert(ctx context.Context, item models.News) (*models.News, error) {
	item.ID = bson.NewObjectID()
	f.inserted = append(f.inserted, item)
	return &item, nil
}

func (f *fakeNewsWriter) UpdateFields(ctx context.Context, newsID bson.ObjectID, fields bson.M) error {
	return nil
}

func (f *fakeNewsWriter) SetStatus(ctx context.Context, newsID bson.ObjectID, status string, verifiedBy *bson.ObjectID) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.lastStatus = status
	return nil
}

func (f *fakeNewsWriter) Delete(ctx context.Context, newsID bson.ObjectID) error {
	return f.deleteErr
}

type fakeCategoryWriter struct {
	created []string
}

func (f *fakeCategoryWriter) Create(ctx context.Context, name string, parent *string) (*models.Category, error) {
	f.created = append(f.created, name)
	return &models.Category{ID: bson.NewObjectID(), Name: name}, nil
}

func (f *fakeCategoryWriter) Rename(ctx context.Context, categoryID bson.ObjectID, name string) error {
	return nil
}

func (f *fakeCategoryWriter) Delete(ctx context.Context, categoryID bson.ObjectID) error {
	return nil
}

type fakeCache struct {
	deletedKeys     []string
	clearedPatterns []string
}

func (f *fakeCache) Delete(ctx context.Context, keys ...string) error {
	f.deletedKeys = append(f.deletedKeys, keys...)
	return nil
}

func (f *fakeCache) DeleteFamily(ctx context.Context, pattern string) (int, error) {
	f.clearedPatterns = append(f.clearedPatterns, pattern)
	return 0, nil
}

func testApplier(news *fakeNewsWriter, categories *fakeCategoryWriter, cache *fakeCache) *Applier {
	return NewApplier(news, categories, cache, logx.New("news-consumer", "test", "", "error"))
}

func TestApplyCreateCategoryInsertsAndInvalidates(t *testing.T) {
	categories := &fakeCategoryWriter{}
	cache := &fakeCache{}
	applier := testApplier(&fakeNewsWriter{}, categories, cache)

	raw, _ := json.Marshal(events.CreateCategoryPayload{Name: "Sports"})
	if err := applier.Apply(context.Background(), events.KindCreateCategory, raw); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(categories.created) != 1 || categories.created[0] != "Sports" {
		t.Fatalf("category not inserted: %v", categories.created)
	}

	want := map[string]bool{"categories*": false, "parent-categories*": false}
	for _, pattern := range cache.clearedPatterns {
		if _, ok := want[pattern]; ok {
			want[pattern] = true
		}
	}
	for pattern, cleared := range want {
		if !cleared {
			t.Fatalf("family %q not invalidated, cleared %v", pattern, cache.clearedPatterns)
		}
	}
}

func TestApplyVerifyMissingNewsIsNoop(t *testing.T) {
	news := &fakeNewsWriter{statusErr: repos.ErrNotFound}
	applier := testApplier(news, &fakeCategoryWriter{}, &fakeCache{})

	raw, _ := json.Marshal(events.VerifyNewsPayload{
		NewsID: bson.NewObjectID().Hex(),
		Status: models.StatusPublished,
	})
	if err := applier.Apply(context.Background(), events.KindVerifyNews, raw); err != nil {
		t.Fatalf("verify of a missing row must be handled, got %v", err)
	}
}

func TestApplyDeleteMissingNewsIsNoop(t *testing.T) {
	news := &fakeNewsWriter{deleteErr: repos.ErrNotFound}
	applier := testApplier(news, &fakeCategoryWriter{}, &fakeCache{})

	raw, _ := json.Marshal(events.DeleteNewsPayload{NewsID: bson.NewObjectID().Hex()})
	if err := applier.Apply(context.Background(), events.KindDeleteNews, raw); err != nil {
		t.Fatalf("delete of a missing row must be handled, got %v", err)
	}
}

func TestApplyVerifyInvalidatesNewsFamilies(t *testing.T) {
	news := &fakeNewsWriter{}
	cache := &fakeCache{}
	applier := testApplier(news, &fakeCategoryWriter{}, cache)

	raw, _ := json.Marshal(events.VerifyNewsPayload{
		NewsID:     bson.NewObjectID().Hex(),
		Status:     models.StatusPublished,
		VerifiedBy: bson.NewObjectID().Hex(),
	})
	if err := applier.Apply(context.Background(), events.KindVerifyNews, raw); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if news.lastStatus != models.StatusPublished {
		t.Fatalf("status not applied: %q", news.lastStatus)
	}

	foundAllNews := false
	for _, key := range cache.deletedKeys {
		if key == "all-news" {
			foundAllNews = true
		}
	}
	if !foundAllNews {
		t.Fatalf("all-news must be evicted after a verify, deleted %v", cache.deletedKeys)
	}
	if len(cache.clearedPatterns) == 0 {
		t.Fatalf("derived news families must be invalidated")
	}
}

func TestApplyUploadFlagsReporterSubmissions(t *testing.T) {
	news := &fakeNewsWriter{}
	applier := testApplier(news, &fakeCategoryWriter{}, &fakeCache{})

	raw, _ := json.Marshal(events.UploadNewsPayload{
		Title:      "Council approves new transit plan",
		Content:    "The city council voted on Tuesday...",
		CategoryID: bson.NewObjectID().Hex(),
		Language:   "en",
		ReportedBy: bson.NewObjectID().Hex(),
	})
	if err := applier.Apply(context.Background(), events.KindUploadNews, raw); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(news.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(news.inserted))
	}
	item := news.inserted[0]
	if item.Status != models.StatusDraft {
		t.Fatalf("uploads must land as drafts, got %q", item.Status)
	}
	if item.ReportedBy == nil || !item.IsFake {
		t.Fatalf("reporter submissions must stay flagged until verified: %+v", item)
	}
}

func TestApplyUnknownKind(t *testing.T) {
	applier := testApplier(&fakeNewsWriter{}, &fakeCategoryWriter{}, &fakeCache{})
	err := applier.Apply(context.Background(), "rotate-keys", []byte(`{}`))
	if !errors.Is(err, events.ErrUnknownKind) {
		t.Fatalf("got %v, want ErrUnknownKind", err)
	}
}
