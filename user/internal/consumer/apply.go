package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"

	"news-platform-backend/shared/authx"
	"news-platform-backend/shared/cachex"
	"news-platform-backend/shared/events"
	"news-platform-backend/shared/logx"
	"news-platform-backend/user/internal/models"
	"news-platform-backend/user/internal/repos"
)

type ApplicationWriter interface {
	Create(ctx context.Context, app models.Application) (*models.Application, error)
	Update(ctx context.Context, applicationID bson.ObjectID, bio string, organization string, documents []string) error
	SetVerdict(ctx context.Context, applicationID bson.ObjectID, status string, message string, verifiedBy *bson.ObjectID) error
	Delete(ctx context.Context, applicationID bson.ObjectID) error
}

type UserWriter interface {
	Promote(ctx context.Context, userID bson.ObjectID, role string, active bool) error
}

type SessionWriter interface {
	Create(ctx context.Context, session models.UserSession) (*models.UserSession, error)
	DeleteByUserAndIP(ctx context.Context, userID bson.ObjectID, ip string) (*models.UserSession, error)
}

type Cache interface {
	Delete(ctx context.Context, keys ...string) error
	DeleteFamily(ctx context.Context, pattern string) (int, error)
}

// Publisher lets the applier hand off follow-up work, like the notification
// mail after a verdict, without blocking the apply.
type Publisher interface {
	Publish(ctx context.Context, topic string, kind string, payload any) error
}

// Applier is the single writer for the identity database. Events reach it in
// partition order; applying them sequentially keeps the store consistent
// with the log.
type Applier struct {
	applications ApplicationWriter
	users        UserWriter
	sessions     SessionWriter
	cache        Cache
	publisher    Publisher
	logger       logx.Logger
}

func NewApplier(applications ApplicationWriter, users UserWriter, sessions SessionWriter, cache Cache, publisher Publisher, logger logx.Logger) *Applier {
	return &Applier{
		applications: applications,
		users:        users,
		sessions:     sessions,
		cache:        cache,
		publisher:    publisher,
		logger:       logger,
	}
}

// Apply decodes and applies one event, then invalidates the cache families
// the event touched. A delete aimed at a row that no longer exists is a
// handled no-op, not a failure.
func (a *Applier) Apply(ctx context.Context, kind string, raw json.RawMessage) error {
	decoded, err := events.Decode(kind, raw)
	if err != nil {
		return err
	}

	switch payload := decoded.(type) {
	case *events.CreateDeviceTokenPayload:
		return a.applyCreateDeviceToken(ctx, payload)
	case *events.DeleteDeviceTokenPayload:
		return a.applyDeleteDeviceToken(ctx, payload)
	case *events.ApplicationCreatedPayload:
		return a.applyApplicationCreated(ctx, payload)
	case *events.ApplicationUpdatedPayload:
		return a.applyApplicationUpdated(ctx, payload)
	case *events.ApplicationVerifiedPayload:
		return a.applyApplicationVerdict(ctx, payload)
	case *events.ApplicationDeletedPayload:
		return a.applyApplicationDeleted(ctx, payload)
	default:
		return fmt.Errorf("%w: %q", events.ErrUnknownKind, kind)
	}
}

func (a *Applier) applyCreateDeviceToken(ctx context.Context, payload *events.CreateDeviceTokenPayload) error {
	userID, err := bson.ObjectIDFromHex(payload.UserID)
	if err != nil {
		return fmt.Errorf("create-device-token user id: %w", err)
	}
	loginTime := payload.LoginTime
	_, err = a.sessions.Create(ctx, models.UserSession{
		UserID:     userID,
		LoginTime:  &loginTime,
		IsLoggedIn: payload.IsLoggedIn,
		Platform:   payload.Platform,
		IP:         payload.IP,
	})
	return err
}

func (a *Applier) applyDeleteDeviceToken(ctx context.Context, payload *events.DeleteDeviceTokenPayload) error {
	userID, err := bson.ObjectIDFromHex(payload.UserID)
	if err != nil {
		return fmt.Errorf("delete-device-token user id: %w", err)
	}
	if _, err := a.sessions.DeleteByUserAndIP(ctx, userID, payload.IP); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			a.logNoop(ctx, events.KindDeleteDeviceToken, payload.UserID)
			return nil
		}
		return err
	}
	return nil
}

func (a *Applier) applyApplicationCreated(ctx context.Context, payload *events.ApplicationCreatedPayload) error {
	reporterID, err := bson.ObjectIDFromHex(payload.ReporterID)
	if err != nil {
		return fmt.Errorf("application-created reporter id: %w", err)
	}
	if _, err := a.applications.Create(ctx, models.Application{
		ReporterID:   reporterID,
		Status:       payload.Status,
		Bio:          payload.Bio,
		Organization: payload.Organization,
		Documents:    payload.Documents,
		CreatedAt:    payload.CreatedAt,
	}); err != nil {
		return err
	}
	// the applicant is now waiting on a verdict
	if err := a.users.Promote(ctx, reporterID, authx.RolePendingReporter, true); err != nil && !errors.Is(err, repos.ErrNotFound) {
		return err
	}
	return a.invalidateApplications(ctx, payload.ReporterID)
}

func (a *Applier) applyApplicationUpdated(ctx context.Context, payload *events.ApplicationUpdatedPayload) error {
	applicationID, err := bson.ObjectIDFromHex(payload.ApplicationID)
	if err != nil {
		return fmt.Errorf("application-updated id: %w", err)
	}
	if err := a.applications.Update(ctx, applicationID, payload.Bio, payload.Organization, payload.Documents); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			a.logNoop(ctx, events.KindApplicationUpdated, payload.ApplicationID)
			return nil
		}
		return err
	}
	return a.invalidateApplications(ctx, payload.ReporterID)
}

func (a *Applier) applyApplicationVerdict(ctx context.Context, payload *events.ApplicationVerifiedPayload) error {
	applicationID, err := bson.ObjectIDFromHex(payload.ApplicationID)
	if err != nil {
		return fmt.Errorf("application verdict id: %w", err)
	}
	var verifiedBy *bson.ObjectID
	if id, err := bson.ObjectIDFromHex(payload.VerifiedBy); err == nil {
		verifiedBy = &id
	}
	if err := a.applications.SetVerdict(ctx, applicationID, payload.Status, payload.Message, verifiedBy); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			a.logNoop(ctx, events.KindApplicationVerified, payload.ApplicationID)
			return nil
		}
		return err
	}

	reporterID, err := bson.ObjectIDFromHex(payload.ReporterID)
	if err != nil {
		return fmt.Errorf("application verdict reporter id: %w", err)
	}
	role := authx.RoleUser
	if payload.Status == models.ApplicationAccepted {
		role = authx.RoleReporter
	}
	if err := a.users.Promote(ctx, reporterID, role, true); err != nil && !errors.Is(err, repos.ErrNotFound) {
		return err
	}

	if a.publisher != nil && payload.Email != "" {
		subject := "Your reporter application was rejected"
		body := "Unfortunately your application was not accepted."
		if payload.Status == models.ApplicationAccepted {
			subject = "Your reporter application was accepted"
			body = "Congratulations, you can now publish news articles."
		}
		if payload.Message != "" {
			body += " " + payload.Message
		}
		if err := a.publisher.Publish(ctx, events.TopicEmailOutbound, events.KindSendEmail, events.SendEmailPayload{
			To:      payload.Email,
			Subject: subject,
			Body:    body,
		}); err != nil {
			a.logger.Warn(ctx, "publish_failed", "failed to publish verdict email",
				slog.String("error", err.Error()),
			)
		}
	}

	return a.invalidateApplications(ctx, payload.ReporterID)
}

func (a *Applier) applyApplicationDeleted(ctx context.Context, payload *events.ApplicationDeletedPayload) error {
	applicationID, err := bson.ObjectIDFromHex(payload.ApplicationID)
	if err != nil {
		return fmt.Errorf("application-deleted id: %w", err)
	}
	if err := a.applications.Delete(ctx, applicationID); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			a.logNoop(ctx, events.KindApplicationDeleted, payload.ApplicationID)
			return nil
		}
		return err
	}
	return a.invalidateApplications(ctx, payload.ReporterID)
}

// invalidation always runs after the store write; a failure here is logged
// but does not fail the apply, since the TTL bounds the staleness window.
func (a *Applier) invalidateApplications(ctx context.Context, reporterID string) error {
	for _, family := range []string{cachex.FamilyApplications, cachex.FamilyUserApplications} {
		if _, err := a.cache.DeleteFamily(ctx, family); err != nil {
			a.logInvalidateFailure(ctx, family, err)
		}
	}
	if reporterID != "" {
		if err := a.cache.Delete(ctx, cachex.KeyUserApplications(reporterID)); err != nil {
			a.logInvalidateFailure(ctx, cachex.KeyUserApplications(reporterID), err)
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
