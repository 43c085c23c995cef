package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"news-platform-backend/shared/events"
	"news-platform-backend/user/internal/mailer"
)

// EmailApplier drains the email-outbound topic through a Mailer.
type EmailApplier struct {
	mailer mailer.Mailer
}

func NewEmailApplier(m mailer.Mailer) *EmailApplier {
	return &EmailApplier{mailer: m}
}

func (a *EmailApplier) Apply(ctx context.Context, kind string, raw json.RawMessage) error {
	decoded, err := events.Decode(kind, raw)
	if err != nil {
		return err
	}
	payload, ok := decoded.(*events.SendEmailPayload)
	if !ok {
		return fmt.Errorf("%w: %q", events.ErrUnknownKind, kind)
	}
	return a.mailer.Send(ctx, payload.To, payload.Subject, payload.Body)
}
