// Package notify delivers plain-text emails to users.
package notify

import (
	"context"
	"errors"
	"strings"

	"cuzdan/internal/log"
)

var ErrInvalidEmail = errors.New("invalid email")

type Email struct {
	To      string
	Subject string
	Text    string
}

func (e Email) Validate() error {
	if !strings.Contains(e.To, "@") {
		return ErrInvalidEmail
	}
	if strings.TrimSpace(e.Subject) == "" {
		return errors.Join(ErrInvalidEmail, errors.New("empty subject"))
	}
	return nil
}

// Mailer sends a single email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// LogMailer writes emails to the log instead of sending them. It is used
// when no mail provider is configured.
type LogMailer struct {
	logger *log.Logger
}

func NewLogMailer(logger *log.Logger) *LogMailer {
	if logger == nil {
		logger = log.Discard()
	}
	return &LogMailer{logger: logger.WithComponent(log.ComponentMail)}
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "Email not sent, no mail provider configured",
		"to", email.To,
		"subject", email.Subject,
		"body", email.Text)
	return nil
}
