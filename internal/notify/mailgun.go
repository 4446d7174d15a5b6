package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"cuzdan/internal/log"
)

const sendTimeout = 20 * time.Second

type MailgunMailer struct {
	mg     *mailgun.MailgunImpl
	sender string
	logger *log.Logger
}

// NewMailgunMailer builds a mailer for domain. apiBase overrides the Mailgun
// endpoint when non-empty.
func NewMailgunMailer(domain, apiKey, sender, apiBase string, logger *log.Logger) *MailgunMailer {
	if logger == nil {
		logger = log.Discard()
	}
	mg := mailgun.NewMailgun(domain, apiKey)
	if apiBase != "" {
		mg.SetAPIBase(apiBase)
	}
	return &MailgunMailer{
		mg:     mg,
		sender: sender,
		logger: logger.WithComponent(log.ComponentMail),
	}
}

func (m *MailgunMailer) Send(ctx context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}

	message := m.mg.NewMessage(m.sender, email.Subject, email.Text, email.To)

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	resp, id, err := m.mg.Send(ctx, message)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to send email via Mailgun",
			log.NewFields().WithOperation(log.OpNotify).WithError(err).ToSlice()...)
		return fmt.Errorf("mailgun send failed: %w", err)
	}
	m.logger.InfoContext(ctx, "Email sent via Mailgun", "to", email.To, "id", id, "mailgun_resp", resp)
	return nil
}
