package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/pannier-io/pannier/internal/config"
	"github.com/pannier-io/pannier/internal/contacts"
)

// Sender delivers subscriber messages.
type Sender interface {
	Send(ctx context.Context, msg contacts.Message) error
}

// SMTP sends messages through a plain SMTP relay. When no SMTP host is
// configured, sends are logged and dropped so the worker keeps running
// in environments without a relay.
type SMTP struct {
	cfg    *config.Config
	logger *zap.Logger
}

// New creates an SMTP sender.
func New(cfg *config.Config, logger *zap.Logger) *SMTP {
	return &SMTP{cfg: cfg, logger: logger}
}

func (s *SMTP) Send(ctx context.Context, m contacts.Message) error {
	if s.cfg.SMTPHost == "" {
		s.logger.Info("smtp not configured, dropping message",
			zap.String("message_id", m.ID))
		return nil
	}

	client, err := mail.NewClient(
		s.cfg.SMTPHost,
		mail.WithPort(s.cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.SMTPUser),
		mail.WithPassword(s.cfg.SMTPPass),
	)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(s.cfg.SMTPFrom); err != nil {
		return fmt.Errorf("failed to set from: %w", err)
	}
	if err := msg.To(m.Email); err != nil {
		return fmt.Errorf("failed to set to: %w", err)
	}

	msg.Subject(s.subject(m))
	s.setBody(msg, m)

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *SMTP) subject(m contacts.Message) string {
	if strings.HasPrefix(m.ID, contacts.RecoveryMessageID) {
		return "Manage your newsletter subscriptions"
	}
	if strings.Contains(m.ID, "confirm") {
		return "Please confirm your subscription"
	}
	return "Welcome to the newsletter"
}

func (s *SMTP) setBody(msg *mail.Msg, m contacts.Message) {
	prefsURL := fmt.Sprintf("%s/news/user/%s/", strings.TrimRight(s.cfg.BaseURL, "/"), m.Token)
	confirmURL := fmt.Sprintf("%s/news/confirm/%s/", strings.TrimRight(s.cfg.BaseURL, "/"), m.Token)

	var intro, label, link string
	switch {
	case strings.HasPrefix(m.ID, contacts.RecoveryMessageID):
		intro = "Someone asked for a link to manage your newsletter subscriptions."
		label = "Manage your subscriptions"
		link = prefsURL
	case strings.Contains(m.ID, "confirm"):
		intro = "Please confirm your newsletter subscription."
		label = "Confirm"
		link = confirmURL
	default:
		intro = "Thanks for subscribing!"
		label = "Manage your subscriptions"
		link = prefsURL
	}

	// The _T message variants go out as plain text.
	if strings.HasSuffix(m.ID, "_T") {
		msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf("%s\n\n%s: %s\n", intro, label, link))
		return
	}
	msg.SetBodyString(mail.TypeTextHTML,
		fmt.Sprintf("<p>%s</p><p><a href=%q>%s</a></p>", intro, link, label))
}
