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

	"news-platform-backend/shared/authx"
	"news-platform-backend/shared/events"
	"news-platform-backend/shared/logx"
	"news-platform-backend/user/internal/identity"
	"news-platform-backend/user/internal/models"
	"news-platform-backend/user/internal/repos"
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

type fakeUserStore struct {
	byEmail      map[string]*models.User
	created      []models.User
	loginWrites  []bool
	loggedInUser bson.ObjectID
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	store := &fakeUserStore{byEmail: map[string]*models.User{}}
	for _, user := range users {
		store.byEmail[user.Email] = user
	}
	return store
}

func (f *fakeUserStore) Create(ctx context.Context, user models.User) (*models.User, error) {
	user.ID = bson.NewObjectID()
	f.created = append(f.created, user)
	f.byEmail[user.Email] = &user
	return &user, nil
}

func (f *fakeUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := f.byEmail[email]; ok {
		return user, nil
	}
	return nil, repos.ErrNotFound
}

func (f *fakeUserStore) FindByID(ctx context.Context, userID bson.ObjectID) (*models.User, error) {
	for _, user := range f.byEmail {
		if user.ID == userID {
			return user, nil
		}
	}
	return nil, repos.ErrNotFound
}

func (f *fakeUserStore) SetLoggedIn(ctx context.Context, userID bson.ObjectID, loggedIn bool) error {
	f.loggedInUser = userID
	f.loginWrites = append(f.loginWrites, loggedIn)
	return nil
}

type fakeApplicationStore struct {
	byID      map[string]*models.Application
	pending   *models.Application
	all       []models.Application
	findCalls int
}

func newFakeApplicationStore() *fakeApplicationStore {
	return &fakeApplicationStore{byID: map[string]*models.Application{}}
}

func (f *fakeApplicationStore) FindByID(ctx context.Context, id bson.ObjectID) (*models.Application, error) {
	if app, ok := f.byID[id.Hex()]; ok {
		return app, nil
	}
	return nil, repos.ErrNotFound
}

func (f *fakeApplicationStore) FindPendingByReporter(ctx context.Context, reporterID bson.ObjectID) (*models.Application, error) {
	if f.pending != nil && f.pending.ReporterID == reporterID {
		return f.pending, nil
	}
	return nil, repos.ErrNotFound
}

func (f *fakeApplicationStore) FindByReporter(ctx context.Context, reporterID bson.ObjectID) ([]models.Application, error) {
	f.findCalls++
	return f.all, nil
}

func (f *fakeApplicationStore) FindByStatus(ctx context.Context, status string) ([]models.Application, error) {
	f.findCalls++
	return f.all, nil
}

func (f *fakeApplicationStore) FindAll(ctx context.Context) ([]models.Application, error) {
	f.findCalls++
	return f.all, nil
}

type fakeBlacklist struct {
	tokens []string
}

func (f *fakeBlacklist) Insert(ctx context.Context, token string, expiresAt time.Time) error {
	f.tokens = append(f.tokens, token)
	return nil
}

func testHandlers(publisher *fakePublisher, cache *fakeCache, users *fakeUserStore, apps *fakeApplicationStore, blacklist *fakeBlacklist) *Handlers {
	logger := logx.New("user-api", "test", "", "error")
	issuer, err := authx.NewTokenIssuer("test-secret", "user-api", time.Hour)
	if err != nil {
		panic(err)
	}
	return New(publisher, cache, users, apps, blacklist, identity.SaltedHasher{}, issuer, nil, logger)
}

func requestAs(method string, target string, body string, role string, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if role == "" {
		return req
	}
	auth := authx.AuthContext{UserID: userID, Role: role}
	return req.WithContext(authx.WithAuth(req.Context(), auth))
}

func TestRegisterRejectsExistingEmail(t *testing.T) {
	existing := &models.User{ID: bson.NewObjectID(), Email: "taken@example.com"}
	users := newFakeUserStore(existing)
	publisher := &fakePublisher{}
	h := testHandlers(publisher, newFakeCache(), users, newFakeApplicationStore(), &fakeBlacklist{})

	req := requestAs(http.MethodPost, "/api/v1/auth/register",
		`{"name":"Dana","email":"taken@example.com","password":"hunter2hunter2"}`, "", "")
	rec := httptest.NewRecorder()
	h.RegisterUser(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if len(users.created) != 0 {
		t.Fatalf("no user should be created, got %d", len(users.created))
	}
}

func TestRegisterCreatesUserAndQueuesWelcomeMail(t *testing.T) {
	users := newFakeUserStore()
	publisher := &fakePublisher{}
	h := testHandlers(publisher, newFakeCache(), users, newFakeApplicationStore(), &fakeBlacklist{})

	req := requestAs(http.MethodPost, "/api/v1/auth/register",
		`{"name":"Dana","email":"Dana@Example.com","password":"hunter2hunter2"}`, "", "")
	rec := httptest.NewRecorder()
	h.RegisterUser(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if len(users.created) != 1 {
		t.Fatalf("user not created")
	}
	created := users.created[0]
	if created.Email != "dana@example.com" {
		t.Fatalf("email not normalized: %q", created.Email)
	}
	if created.Role != authx.RoleUser {
		t.Fatalf("role = %q, want user", created.Role)
	}
	if created.Password == "hunter2hunter2" {
		t.Fatal("password stored in plaintext")
	}
	if len(publisher.published) != 1 || publisher.published[0].Topic != events.TopicEmailOutbound {
		t.Fatalf("welcome mail not queued: %v", publisher.published)
	}
}

func TestLoginIssuesTokenAndPublishesDeviceToken(t *testing.T) {
	hashed, err := identity.SaltedHasher{}.Hash("hunter2hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := &models.User{
		ID:       bson.NewObjectID(),
		Email:    "dana@example.com",
		Password: hashed,
		Role:     authx.RoleUser,
	}
	users := newFakeUserStore(user)
	publisher := &fakePublisher{}
	h := testHandlers(publisher, newFakeCache(), users, newFakeApplicationStore(), &fakeBlacklist{})

	req := requestAs(http.MethodPost, "/api/v1/auth/login",
		`{"email":"dana@example.com","password":"hunter2hunter2","platform":"web"}`, "", "")
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data loginResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Token == "" {
		t.Fatal("no token issued")
	}
	if len(users.loginWrites) != 1 || !users.loginWrites[0] {
		t.Fatalf("login state not persisted: %v", users.loginWrites)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("device token event not published: %v", publisher.published)
	}
	event := publisher.published[0]
	if event.Topic != events.TopicIdentityMutations || event.Kind != events.KindCreateDeviceToken {
		t.Fatalf("wrong event: %s/%s", event.Topic, event.Kind)
	}
	payload := event.Payload.(events.CreateDeviceTokenPayload)
	if payload.UserID != user.ID.Hex() || !payload.IsLoggedIn {
		t.Fatalf("payload wrong: %+v", payload)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	hashed, _ := identity.SaltedHasher{}.Hash("correct-horse")
	user := &models.User{ID: bson.NewObjectID(), Email: "dana@example.com", Password: hashed}
	publisher := &fakePublisher{}
	h := testHandlers(publisher, newFakeCache(), newFakeUserStore(user), newFakeApplicationStore(), &fakeBlacklist{})

	req := requestAs(http.MethodPost, "/api/v1/auth/login",
		`{"email":"dana@example.com","password":"battery-staple"}`, "", "")
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(publisher.published) != 0 {
		t.Fatalf("no event should be published on failed login: %v", publisher.published)
	}
}

func TestLogoutBlacklistsTokenAndPublishes(t *testing.T) {
	userID := bson.NewObjectID()
	user := &models.User{ID: userID, Email: "dana@example.com"}
	users := newFakeUserStore(user)
	publisher := &fakePublisher{}
	blacklist := &fakeBlacklist{}
	h := testHandlers(publisher, newFakeCache(), users, newFakeApplicationStore(), blacklist)

	req := requestAs(http.MethodPost, "/api/v1/auth/logout", "", authx.RoleUser, userID.Hex())
	req.Header.Set("Authorization", "Bearer some-raw-token")
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(blacklist.tokens) != 1 || blacklist.tokens[0] != "some-raw-token" {
		t.Fatalf("token not blacklisted: %v", blacklist.tokens)
	}
	if len(users.loginWrites) != 1 || users.loginWrites[0] {
		t.Fatalf("logout state not persisted: %v", users.loginWrites)
	}
	if len(publisher.published) != 1 || publisher.published[0].Kind != events.KindDeleteDeviceToken {
		t.Fatalf("delete-device-token not published: %v", publisher.published)
	}
}
