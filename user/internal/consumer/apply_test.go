package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"news-platform-backend/shared/authx"
	"news-platform-backend/shared/events"
	"news-platform-backend/shared/logx"
	"news-platform-backend/user/internal/models"
	"news-platform-backend/user/internal/repos"
)

type fakeApplicationWriter struct {
	created   []models.Application
	verdicts  []string
	setErr    error
	deleteErr error
}

func (f *fakeApplicationWriter) Create(ctx context.Context, app models.Application) (*models.Application, error) {
	app.ID = bson.NewObjectID()
	f.created = append(f.created, app)
	return &app, nil
}

func (f *fakeApplicationWriter) Update(ctx context.Context, applicationID bson.ObjectID, bio string, organization string, documents []string) error {
	return nil
}

func (f *fakeApplicationWriter) SetVerdict(ctx context.Context, applicationID bson.ObjectID, status string, message string, verifiedBy *bson.ObjectID) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.verdicts = append(f.verdicts, status)
	return nil
}

func (f *fakeApplicationWriter) Delete(ctx context.Context, applicationID bson.ObjectID) error {
	return f.deleteErr
}

type fakeUserWriter struct {
	promotions map[string]string
}

func (f *fakeUserWriter) Promote(ctx context.Context, userID bson.ObjectID, role string, active bool) error {
	if f.promotions == nil {
		f.promotions = map[string]string{}
	}
	f.promotions[userID.Hex()] = role
	return nil
}

type fakeSessionWriter struct {
	created   []models.UserSession
	deleteErr error
}

func (f *fakeSessionWriter) Create(ctx context.Context, session models.UserSession) (*models.UserSession, error) {
	session.ID = bson.NewObjectID()
	f.created = append(f.created, session)
	return &session, nil
}

func (f *fakeSessionWriter) DeleteByUserAndIP(ctx context.Context, userID bson.ObjectID, ip string) (*models.UserSession, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &models.UserSession{UserID: userID, IP: ip}, nil
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

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, kind string, payload any) error {
	f.published = append(f.published, topic+"/"+kind)
	return nil
}

func testApplier(apps *fakeApplicationWriter, users *fakeUserWriter, sessions *fakeSessionWriter, cache *fakeCache, publisher *fakePublisher) *Applier {
	return NewApplier(apps, users, sessions, cache, publisher, logx.New("user-consumer", "test", "", "error"))
}

func TestApplyApplicationCreatedInsertsAndPromotes(t *testing.T) {
	apps := &fakeApplicationWriter{}
	users := &fakeUserWriter{}
	cache := &fakeCache{}
	applier := testApplier(apps, users, &fakeSessionWriter{}, cache, &fakePublisher{})

	reporterID := bson.NewObjectID()
	raw, _ := json.Marshal(events.ApplicationCreatedPayload{
		ReporterID: reporterID.Hex(),
		Bio:        "covers local politics",
		Status:     models.ApplicationPending,
		CreatedAt:  time.Now().UTC(),
		Documents:  []string{"/docs/id.pdf"},
	})
	if err := applier.Apply(context.Background(), events.KindApplicationCreated, raw); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if len(apps.created) != 1 {
		t.Fatalf("application not inserted: %d", len(apps.created))
	}
	if apps.created[0].Status != models.ApplicationPending {
		t.Fatalf("status = %q, want pending", apps.created[0].Status)
	}
	if users.promotions[reporterID.Hex()] != authx.RolePendingReporter {
		t.Fatalf("applicant not marked pending-reporter: %v", users.promotions)
	}

	cleared := map[string]bool{}
	for _, pattern := range cache.clearedPatterns {
		cleared[pattern] = true
	}
	if !cleared["application*"] || !cleared["user:*:applications"] {
		t.Fatalf("application families not invalidated, cleared %v", cache.clearedPatterns)
	}
}

func TestApplyAcceptedVerdictPromotesReporterAndMails(t *testing.T) {
	apps := &fakeApplicationWriter{}
	users := &fakeUserWriter{}
	publisher := &fakePublisher{}
	applier := testApplier(apps, users, &fakeSessionWriter{}, &fakeCache{}, publisher)

	reporterID := bson.NewObjectID()
	raw, _ := json.Marshal(events.ApplicationVerifiedPayload{
		ApplicationID: bson.NewObjectID().Hex(),
		VerifiedBy:    bson.NewObjectID().Hex(),
		Status:        models.ApplicationAccepted,
		ReporterID:    reporterID.Hex(),
		Email:         "reporter@example.com",
	})
	if err := applier.Apply(context.Background(), events.KindApplicationVerified, raw); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if users.promotions[reporterID.Hex()] != authx.RoleReporter {
		t.Fatalf("accepted applicant not promoted: %v", users.promotions)
	}
	if len(publisher.published) != 1 || publisher.published[0] != events.TopicEmailOutbound+"/"+events.KindSendEmail {
		t.Fatalf("verdict mail not published: %v", publisher.published)
	}
}

func TestApplyRejectedVerdictDemotesToUser(t *testing.T) {
	users := &fakeUserWriter{}
	applier := testApplier(&fakeApplicationWriter{}, users, &fakeSessionWriter{}, &fakeCache{}, &fakePublisher{})

	reporterID := bson.NewObjectID()
	raw, _ := json.Marshal(events.ApplicationVerifiedPayload{
		ApplicationID: bson.NewObjectID().Hex(),
		Status:        models.ApplicationRejected,
		ReporterID:    reporterID.Hex(),
	})
	if err := applier.Apply(context.Background(), events.KindApplicationRejected, raw); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if users.promotions[reporterID.Hex()] != authx.RoleUser {
		t.Fatalf("rejected applicant should drop back to user: %v", users.promotions)
	}
}

func TestApplyVerdictMissingApplicationIsNoop(t *testing.T) {
	apps := &fakeApplicationWriter{setErr: repos.ErrNotFound}
	applier := testApplier(apps, &fakeUserWriter{}, &fakeSessionWriter{}, &fakeCache{}, &fakePublisher{})

	raw, _ := json.Marshal(events.ApplicationVerifiedPayload{
		ApplicationID: bson.NewObjectID().Hex(),
		Status:        models.ApplicationAccepted,
		ReporterID:    bson.NewObjectID().Hex(),
	})
	if err := applier.Apply(context.Background(), events.KindApplicationVerified, raw); err != nil {
		t.Fatalf("verdict on a missing row must be handled, got %v", err)
	}
}

func TestApplyCreateDeviceTokenRecordsSession(t *testing.T) {
	sessions := &fakeSessionWriter{}
	applier := testApplier(&fakeApplicationWriter{}, &fakeUserWriter{}, sessions, &fakeCache{}, &fakePublisher{})

	userID := bson.NewObjectID()
	raw, _ := json.Marshal(events.CreateDeviceTokenPayload{
		UserID:     userID.Hex(),
		LoginTime:  time.Now().UTC(),
		IsLoggedIn: true,
		Platform:   "android",
		IP:         "203.0.113.9",
	})
	if err := applier.Apply(context.Background(), events.KindCreateDeviceToken, raw); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(sessions.created) != 1 {
		t.Fatalf("session not recorded: %d", len(sessions.created))
	}
	if sessions.created[0].IP != "203.0.113.9" || sessions.created[0].UserID != userID {
		t.Fatalf("session fields wrong: %+v", sessions.created[0])
	}
}

func TestApplyDeleteDeviceTokenMissingSessionIsNoop(t *testing.T) {
	sessions := &fakeSessionWriter{deleteErr: repos.ErrNotFound}
	applier := testApplier(&fakeApplicationWriter{}, &fakeUserWriter{}, sessions, &fakeCache{}, &fakePublisher{})

	raw, _ := json.Marshal(events.DeleteDeviceTokenPayload{
		UserID: bson.NewObjectID().Hex(),
		IP:     "203.0.113.9",
	})
	if err := applier.Apply(context.Background(), events.KindDeleteDeviceToken, raw); err != nil {
		t.Fatalf("duplicate logout must be handled, got %v", err)
	}
}

func TestApplyUnknownKind(t *testing.T) {
	applier := testApplier(&fakeApplicationWriter{}, &fakeUserWriter{}, &fakeSessionWriter{}, &fakeCache{}, &fakePublisher{})
	if err := applier.Apply(context.Background(), "resize-disk", json.RawMessage(`{}`)); err == nil {
		t.Fatal("unknown kind must fail")
	}
}
