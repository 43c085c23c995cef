package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"log/slog"

	"news-platform-backend/shared/logx"
)

// Mailer delivers one outbound message. Delivery is driven by the
// email-outbound consumer, never from a request handler.
type Mailer interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

// LogMailer records mail instead of sending it; the default when no SMTP
// relay is configured.
type LogMailer struct {
	Logger logx.Logger
}

func (m LogMailer) Send(ctx context.Context, to string, subject string, body string) error {
	m.Logger.Info(ctx, "mail_logged", "outbound mail (no relay configured)",
		slog.String("to", to),
		slog.String("subject", subject),
	)
	return nil
}

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth
}

func (m SMTPMailer) Send(ctx context.Context, to string, subject string, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("recipient is required")
	}
	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(m.Addr, m.Auth, m.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
