package contacts

import (
	"context"

	"go.uber.org/zap"

	"github.com/pannier-io/pannier/pkg/ctms"
)

// UpdateMeta changes profile fields on an existing subscriber without
// touching its newsletter subscriptions.
func (s *Service) UpdateMeta(ctx context.Context, token string, upd Update) error {
	user, err := s.GetUserData(ctx, token, "")
	if err != nil {
		return err
	}
	if user == nil {
		return errUnknownToken()
	}

	patch := ctms.ContactPatch{
		Email: &ctms.Email{
			FirstName:      upd.FirstName,
			LastName:       upd.LastName,
			MailingCountry: upd.Country,
			EmailLang:      upd.Lang,
			EmailFormat:    upd.Format,
		},
	}
	if _, err := s.ctms.UpdateContact(ctx, user.EmailID, patch); err != nil {
		return vendorError(err)
	}
	return nil
}

// Confirm completes the double opt-in round trip for a subscriber.
// Confirming an already confirmed subscriber is a no-op.
func (s *Service) Confirm(ctx context.Context, token string) error {
	user, err := s.GetUserData(ctx, token, "")
	if err != nil {
		return err
	}
	if user == nil {
		return errUnknownToken()
	}
	if user.OptIn {
		return nil
	}

	patch := ctms.ContactPatch{
		Email: &ctms.Email{DoubleOptIn: ctms.Bool(true)},
	}
	if _, err := s.ctms.UpdateContact(ctx, user.EmailID, patch); err != nil {
		return vendorError(err)
	}
	s.logger.Info("confirmed subscriber", zap.String("token", token))
	return nil
}

// SetUnsubReason records why a subscriber unsubscribed.
func (s *Service) SetUnsubReason(ctx context.Context, token, reason string) error {
	user, err := s.GetUserData(ctx, token, "")
	if err != nil {
		return err
	}
	if user == nil {
		return errUnknownToken()
	}

	patch := ctms.ContactPatch{
		Email: &ctms.Email{UnsubscribeReason: reason},
	}
	if _, err := s.ctms.UpdateContact(ctx, user.EmailID, patch); err != nil {
		return vendorError(err)
	}
	return nil
}

// SendRecovery queues the message that mails a subscriber a link back
// to their preference page.
func (s *Service) SendRecovery(ctx context.Context, email string) error {
	user, err := s.GetUserData(ctx, "", email)
	if err != nil {
		return err
	}
	if user == nil {
		return errUnknownEmail()
	}
	s.queueMessage(ctx, RecoveryMessageID, user.Lang, user.Format, user.Email, user.Token)
	return nil
}
