package contacts

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// RecoveryMessageID identifies the "recover your subscriptions" message.
const RecoveryMessageID = "account-recovery"

// Message is one outbound subscriber message, identified by a localized
// message ID the mailer resolves to a template.
type Message struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// MessageID localizes a base message ID for a language and format.
// Text-format subscribers get the _T variant.
func MessageID(base, lang, format string) string {
	if base == "" {
		return ""
	}
	id := base
	if lang != "" {
		id += "_" + strings.ToLower(lang)
	}
	if strings.EqualFold(format, "T") {
		id += "_T"
	}
	return id
}

func (s *Service) queueMessage(ctx context.Context, base, lang, format, email, token string) {
	id := MessageID(base, lang, format)
	if id == "" || s.msgs == nil {
		return
	}
	if err := s.msgs.QueueMessage(ctx, Message{ID: id, Email: email, Token: token}); err != nil {
		// Message delivery is best effort. The subscription change
		// already happened, so log and move on.
		s.logger.Error("failed to queue message",
			zap.String("message_id", id), zap.Error(err))
	}
}
