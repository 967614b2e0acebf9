package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/orderlyhq/orderly-backend/pkg/config"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
)

// Message is one transactional email.
type Message struct {
	ToEmail   string
	ToName    string
	Subject   string
	PlainBody string
	HTMLBody  string
}

// Mailer sends transactional email. Failures are logged, never fatal to the
// request that triggered them.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type sendgridMailer struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logg      *logger.Logger
}

// NewSendgridMailer builds the SendGrid-backed mailer.
func NewSendgridMailer(cfg config.SendgridConfig, logg *logger.Logger) (Mailer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if cfg.DefaultFrom == "" {
		return nil, fmt.Errorf("sendgrid from email is required")
	}
	return &sendgridMailer{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.DefaultFrom,
		fromName:  cfg.FromName,
		logg:      logg,
	}, nil
}

func (m *sendgridMailer) Send(ctx context.Context, msg Message) error {
	if msg.ToEmail == "" {
		return fmt.Errorf("recipient email is required")
	}

	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	email := mail.NewSingleEmail(from, msg.Subject, to, msg.PlainBody, msg.HTMLBody)

	resp, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned %d", resp.StatusCode)
	}

	if m.logg != nil {
		logCtx := m.logg.WithFields(ctx, map[string]any{
			"subject": msg.Subject,
			"status":  resp.StatusCode,
		})
		m.logg.Info(logCtx, "email sent")
	}
	return nil
}

// NoopMailer drops email. Used when SendGrid is not configured and in tests.
type NoopMailer struct{}

func (NoopMailer) Send(context.Context, Message) error { return nil }
