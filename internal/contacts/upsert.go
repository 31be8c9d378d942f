package contacts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pannier-io/pannier/internal/news"
	"github.com/pannier-io/pannier/pkg/ctms"
)

// Upsert applies a subscription change to CTMS, creating the contact if
// it does not exist yet. Returns the subscriber token and whether a new
// contact was created.
func (s *Service) Upsert(ctx context.Context, callType news.APICallType, upd Update) (string, bool, error) {
	user, err := s.GetUserData(ctx, upd.Token, upd.Email)
	if err != nil {
		return "", false, err
	}
	if user == nil && upd.Email == "" {
		return "", false, errUnknownToken()
	}

	var current []string
	if user != nil {
		current = user.Newsletters
		if upd.Email == "" {
			upd.Email = user.Email
		}
	}

	// Only additive subscribes accept group slugs, so only they expand.
	requested := upd.Newsletters
	if callType == news.Subscribe {
		var err error
		requested, err = s.catalog.ExpandSlugs(ctx, upd.Newsletters)
		if err != nil {
			return "", false, err
		}
	}
	subs := news.ResolveSubscriptions(callType, requested, current)

	if callType == news.Set {
		// A SET never force-unsubscribes retired newsletters the
		// subscriber still holds.
		inactive, err := s.catalog.InactiveSlugs(ctx)
		if err != nil {
			return "", false, err
		}
		for _, slug := range inactive {
			if subscribed, ok := subs[slug]; ok && !subscribed {
				delete(subs, slug)
			}
		}
	}

	optin := true
	if callType != news.Unsubscribe {
		confirmed, err := s.optinConfirmed(ctx, subs, upd, user)
		if err != nil {
			return "", false, err
		}
		optin = confirmed
	}

	if user == nil {
		return s.createContact(ctx, upd, subs, optin)
	}
	return s.updateContact(ctx, callType, upd, user, subs, optin)
}

// optinConfirmed decides whether the change lands confirmed or must wait
// for a double opt-in round trip. Subscribing to any newsletter that
// does not require confirmation confirms the whole contact.
func (s *Service) optinConfirmed(ctx context.Context, subs map[string]bool, upd Update, user *UserData) (bool, error) {
	if upd.OptIn || (user != nil && user.OptIn) {
		return true, nil
	}

	subscribing := false
	for _, slug := range news.SortedSlugs(subs) {
		if !subs[slug] {
			continue
		}
		subscribing = true
		n, ok, err := s.catalog.Get(ctx, slug)
		if err != nil {
			return false, err
		}
		if ok && !n.RequiresDoubleOptIn {
			return true, nil
		}
	}
	return !subscribing, nil
}

func (s *Service) createContact(ctx context.Context, upd Update, subs map[string]bool, optin bool) (string, bool, error) {
	token := uuid.NewString()
	subscriptions, err := s.vendorSubscriptions(ctx, subs, upd)
	if err != nil {
		return "", false, err
	}

	contact := ctms.Contact{
		Email: ctms.Email{
			PrimaryEmail:   upd.Email,
			Token:          token,
			DoubleOptIn:    ctms.Bool(optin),
			FirstName:      upd.FirstName,
			LastName:       upd.LastName,
			MailingCountry: upd.Country,
			EmailLang:      upd.Lang,
			EmailFormat:    upd.Format,
		},
		Newsletters: subscriptions,
	}
	if err := s.ctms.CreateContact(ctx, contact); err != nil {
		return "", false, vendorError(err)
	}

	s.logger.Info("created contact",
		zap.String("token", token), zap.Int("newsletters", len(subscriptions)))
	upd.Token = token
	s.sendChangeMessages(ctx, upd, nil, subs, optin)
	return token, true, nil
}

func (s *Service) updateContact(ctx context.Context, callType news.APICallType, upd Update, user *UserData, subs map[string]bool, optin bool) (string, bool, error) {
	facet := &ctms.Email{
		FirstName:      upd.FirstName,
		LastName:       upd.LastName,
		MailingCountry: upd.Country,
		EmailLang:      upd.Lang,
		EmailFormat:    upd.Format,
	}

	token := user.Token
	if token == "" {
		token = uuid.NewString()
		facet.Token = token
	}

	patch := ctms.ContactPatch{Email: facet}

	if upd.OptOut {
		// Unsubscribe from everything and stop all mail.
		facet.HasOptedOutOfMail = ctms.Bool(true)
		patch.Newsletters = &ctms.SubscriptionPatch{UnsubscribeAll: true}
	} else {
		subscribing := false
		for _, subscribed := range subs {
			if subscribed {
				subscribing = true
				break
			}
		}
		// Subscribing again clears a previous full opt-out.
		if subscribing && user.OptOut {
			facet.HasOptedOutOfMail = ctms.Bool(false)
		}
		if optin && !user.OptIn && callType != news.Unsubscribe {
			facet.DoubleOptIn = ctms.Bool(true)
		}
		subscriptions, err := s.vendorSubscriptions(ctx, subs, upd)
		if err != nil {
			return "", false, err
		}
		if len(subscriptions) > 0 {
			patch.Newsletters = &ctms.SubscriptionPatch{Subscriptions: subscriptions}
		}
	}

	if _, err := s.ctms.UpdateContact(ctx, user.EmailID, patch); err != nil {
		if ctms.IsNotFound(err) {
			return "", false, errUnknownToken()
		}
		return "", false, vendorError(err)
	}

	upd.Token = token
	s.sendChangeMessages(ctx, upd, user, subs, optin)
	return token, false, nil
}

func (s *Service) vendorSubscriptions(ctx context.Context, subs map[string]bool, upd Update) ([]ctms.Subscription, error) {
	var subscriptions []ctms.Subscription
	for _, slug := range news.SortedSlugs(subs) {
		name, err := s.catalog.VendorID(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve newsletter %q: %w", slug, err)
		}
		sub := ctms.Subscription{Name: name, Subscribed: subs[slug]}
		if sub.Subscribed {
			sub.Lang = upd.Lang
			sub.Format = upd.Format
			sub.Source = upd.SourceURL
		}
		subscriptions = append(subscriptions, sub)
	}
	return subscriptions, nil
}

// sendChangeMessages queues the welcome or confirmation messages a
// subscription change calls for.
func (s *Service) sendChangeMessages(ctx context.Context, upd Update, user *UserData, subs map[string]bool, optin bool) {
	if !upd.TriggerWelcome || upd.OptOut {
		return
	}

	lang, format := upd.Lang, upd.Format
	if user != nil {
		if lang == "" {
			lang = user.Lang
		}
		if format == "" {
			format = user.Format
		}
	}

	held := make(map[string]struct{})
	if user != nil {
		for _, slug := range user.Newsletters {
			held[slug] = struct{}{}
		}
	}

	token := upd.Token
	if token == "" && user != nil {
		token = user.Token
	}

	for _, slug := range news.SortedSlugs(subs) {
		if !subs[slug] {
			continue
		}
		if _, already := held[slug]; already {
			continue
		}
		n, ok, err := s.catalog.Get(ctx, slug)
		if err != nil || !ok {
			continue
		}
		if optin {
			s.queueMessage(ctx, n.WelcomeID, lang, format, upd.Email, token)
		} else {
			s.queueMessage(ctx, n.ConfirmID, lang, format, upd.Email, token)
		}
	}
}
