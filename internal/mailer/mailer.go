// Package mailer delivers digests and subscription replies by email.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kiranshivaraju/errdigest/internal/config"
)

var (
	ErrNoRecipients = errors.New("mailer: no recipients")
	ErrSendFailed   = errors.New("mailer: send failed")
)

// Message is one outgoing email. HTML is optional; when set it is attached
// as an alternative to Text.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

func (m Message) validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	if m.From == "" {
		return fmt.Errorf("mailer: message has no sender")
	}
	return nil
}

// Sender is the delivery boundary.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// NewSender picks SMTP delivery when a host is configured and logs messages
// otherwise. Called once at server startup.
func NewSender(cfg config.SMTPConfig) (Sender, error) {
	if cfg.Host == "" {
		return NewLogSender(), nil
	}
	return NewSMTPSender(cfg)
}

// LogSender writes messages to the structured log instead of sending them.
type LogSender struct{}

func NewLogSender() *LogSender { return &LogSender{} }

func (*LogSender) Name() string { return "log" }

func (*LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	slog.InfoContext(ctx, "email not sent, smtp disabled",
		"from", msg.From,
		"to", strings.Join(msg.To, ","),
		"subject", msg.Subject,
		"text_bytes", len(msg.Text),
		"html_bytes", len(msg.HTML),
	)
	return nil
}
