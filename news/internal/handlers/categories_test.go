package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"news-platform-backend/news/internal/middleware"
	"news-platform-backend/news/internal/models"
	"news-platform-backend/shared/authx"
	"news-platform-backend/shared/events"
	"news-platform-backend/shared/logx"
)

type publishedEvent struct {
	Topic   string
	Kind    string
	Payload any
}

type fakePublisher struct {
	published []publishedEvent
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, kind string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedEvent{Topic: topic, Kind: kind, Payload: payload})
	return nil
}

type fakeCache struct {
	entries         map[string][]byte
	clearedPatterns []string
	deletedKeys     []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (f *fakeCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok := f.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (f *fakeCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.entries[key] = raw
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.entries, key)
		f.deletedKeys = append(f.deletedKeys, key)
	}
	return nil
}

func (f *fakeCache) DeleteFamily(ctx context.Context, pattern string) (int, error) {
	f.clearedPatterns = append(f.clearedPatterns, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	deleted := 0
	for key := range f.entries {
		if strings.HasPrefix(key, prefix) {
			delete(f.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

type fakeCategoryStore struct {
	trees     []models.CategoryTree
	treeCalls int
}

func (f *fakeCategoryStore) FindByID(ctx context.Context, id bson.ObjectID) (*models.Category, error) {
	return nil, nil
}

func (f *fakeCategoryStore) TreeAll(ctx context.Context) ([]models.CategoryTree, error) {
	f.treeCalls++
	return f.trees, nil
}

func (f *fakeCategoryStore) TreeParents(ctx context.Context) ([]models.CategoryTree, error) {
	f.treeCalls++
	return f.trees, nil
}

func (f *fakeCategoryStore) TreeByName(ctx context.Context, name string) ([]models.CategoryTree, error) {
	f.treeCalls++
	return f.trees, nil
}

func (f *fakeCategoryStore) TreeByID(ctx context.Context, id bson.ObjectID) ([]models.CategoryTree, error) {
	f.treeCalls++
	return f.trees, nil
}

func (f *fakeCategoryStore) DescendantIDs(ctx context.Context, roots []bson.ObjectID) ([]bson.ObjectID, error) {
	return roots, nil
}

func testHandlers(publisher *fakePublisher, cache *fakeCache, categories *fakeCategoryStore) *Handlers {
	logger := logx.New("news-api", "test", "", "error")
	return New(publisher, cache, nil, categories, nil, logger)
}

func requestAs(method string, target string, body string, role string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	auth := authx.AuthContext{UserID: "64f1a2b3c4d5e6f7a8b9c0d1", Role: role}
	return req.WithContext(authx.WithAuth(req.Context(), auth))
}

func TestCreateCategoryForbiddenForUserRole(t *testing.T) {
	publisher := &fakePublisher{}
	cache := newFakeCache()
	h := testHandlers(publisher, cache, &fakeCategoryStore{})

	handler := middleware.RequireRoles(h.CreateCategory, authx.RoleAdmin, authx.RoleSuperAdmin)
	rec := httptest.NewRecorder()
	handler(rec, requestAs(http.MethodPost, "/api/v1/categories", `{"name":"Sports"}`, authx.RoleUser))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want 403", rec.Code)
	}
	if len(publisher.published) != 0 {
		t.Fatalf("no event must be published on authz failure, got %d", len(publisher.published))
	}
	if len(cache.clearedPatterns) != 0 {
		t.Fatalf("cache must be untouched on authz failure, cleared %v", cache.clearedPatterns)
	}
}

func TestCreateCategoryPublishesAndInvalidates(t *testing.T) {
	publisher := &fakePublisher{}
	cache := newFakeCache()
	cache.entries["categories"] = []byte(`[]`)
	cache.entries["parent-categories"] = []byte(`[]`)
	h := testHandlers(publisher, cache, &fakeCategoryStore{})

	handler := middleware.RequireRoles(h.CreateCategory, authx.RoleAdmin, authx.RoleSuperAdmin)
	rec := httptest.NewRecorder()
	handler(rec, requestAs(http.MethodPost, "/api/v1/categories", `{"name":"Sports"}`, authx.RoleAdmin))

	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201", rec.Code)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(publisher.published))
	}
	event := publisher.published[0]
	if event.Topic != events.TopicCategoryMutations || event.Kind != events.KindCreateCategory {
		t.Fatalf("unexpected event %s/%s", event.Topic, event.Kind)
	}
	payload, ok := event.Payload.(events.CreateCategoryPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", event.Payload)
	}
	if payload.Name != "Sports" || payload.Parent != nil {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if len(cache.entries) != 0 {
		t.Fatalf("category cache entries should be cleared, still have %v", cache.entries)
	}

	var envelope struct {
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if string(envelope.Data) != "null" {
		t.Fatalf("command acknowledgement must carry null data, got %s", envelope.Data)
	}
}

func TestCreateCategoryPublishFailure(t *testing.T) {
	publisher := &fakePublisher{err: context.DeadlineExceeded}
	h := testHandlers(publisher, newFakeCache(), &fakeCategoryStore{})

	rec := httptest.NewRecorder()
	h.CreateCategory(rec, requestAs(http.MethodPost, "/api/v1/categories", `{"name":"Sports"}`, authx.RoleAdmin))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", rec.Code)
	}
}

func TestGetCategoriesServesFromCache(t *testing.T) {
	cache := newFakeCache()
	cache.entries["categories"] = []byte(`[{"name":"Sports","children":[]}]`)
	store := &fakeCategoryStore{}
	h := testHandlers(&fakePublisher{}, cache, store)

	rec := httptest.NewRecorder()
	h.GetCategories(rec, requestAs(http.MethodGet, "/api/v1/categories", "", authx.RoleUser))

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if store.treeCalls != 0 {
		t.Fatalf("warm cache must not hit the store, got %d calls", store.treeCalls)
	}
	if !strings.Contains(rec.Body.String(), "Sports") {
		t.Fatalf("cached payload missing from response: %s", rec.Body.String())
	}
}

func TestGetCategoriesPopulatesCacheOnMiss(t *testing.T) {
	cache := newFakeCache()
	store := &fakeCategoryStore{trees: []models.CategoryTree{{ID: bson.NewObjectID(), Name: "Sports"}}}
	h := testHandlers(&fakePublisher{}, cache, store)

	rec := httptest.NewRecorder()
	h.GetCategories(rec, requestAs(http.MethodGet, "/api/v1/categories", "", authx.RoleUser))

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if store.treeCalls != 1 {
		t.Fatalf("cold cache should hit the store once, got %d calls", store.treeCalls)
	}
	if _, ok := cache.entries["categories"]; !ok {
		t.Fatalf("miss should repopulate the cache")
	}
}
