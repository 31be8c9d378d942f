package contacts

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pannier-io/pannier/internal/news"
	"github.com/pannier-io/pannier/pkg/ctms"
)

// UserData is the subscriber record in the shape clients receive.
// Assembled from a CTMS contact, with vendor newsletter names mapped
// back to catalog slugs.
type UserData struct {
	Status       string   `json:"status"`
	EmailID      string   `json:"-"`
	Email        string   `json:"email"`
	Token        string   `json:"token"`
	OptIn        bool     `json:"optin"`
	OptOut       bool     `json:"optout"`
	Country      string   `json:"country,omitempty"`
	Lang         string   `json:"lang,omitempty"`
	Format       string   `json:"format,omitempty"`
	FirstName    string   `json:"first_name,omitempty"`
	LastName     string   `json:"last_name,omitempty"`
	CreatedDate  string   `json:"created_date,omitempty"`
	LastModified string   `json:"last_modified_date,omitempty"`
	Newsletters  []string `json:"newsletters"`
}

// Update is a flat set of subscriber changes as they arrive from a
// request. JSON tags allow an Update to travel through the job queue.
type Update struct {
	Email          string   `json:"email,omitempty"`
	Token          string   `json:"token,omitempty"`
	Newsletters    []string `json:"newsletters,omitempty"`
	FirstName      string   `json:"first_name,omitempty"`
	LastName       string   `json:"last_name,omitempty"`
	Country        string   `json:"country,omitempty"`
	Lang           string   `json:"lang,omitempty"`
	Format         string   `json:"format,omitempty"`
	SourceURL      string   `json:"source_url,omitempty"`
	OptIn          bool     `json:"optin,omitempty"`
	OptOut         bool     `json:"optout,omitempty"`
	TriggerWelcome bool     `json:"trigger_welcome"`
}

// Messenger queues outbound subscriber messages for delivery.
type Messenger interface {
	QueueMessage(ctx context.Context, msg Message) error
}

// Service implements subscriber reads and writes against CTMS.
type Service struct {
	ctms    ctms.API
	catalog *news.Catalog
	msgs    Messenger
	logger  *zap.Logger
}

// New creates a contact service.
func New(api ctms.API, catalog *news.Catalog, msgs Messenger, logger *zap.Logger) *Service {
	return &Service{ctms: api, catalog: catalog, msgs: msgs, logger: logger}
}

// GetUserData fetches a subscriber by token or, failing that, by email.
// Returns nil without error when no subscriber matches.
func (s *Service) GetUserData(ctx context.Context, token, email string) (*UserData, error) {
	ids := ctms.AlternateIDs{}
	switch {
	case token != "":
		ids.Token = token
	case email != "":
		ids.PrimaryEmail = email
	default:
		return nil, nil
	}

	found, err := s.ctms.GetContactsByAlternateIDs(ctx, ids)
	if err != nil {
		if ctms.IsNotFound(err) {
			return nil, nil
		}
		return nil, vendorError(err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	if len(found) > 1 {
		s.logger.Warn("multiple contacts for alternate id, using first",
			zap.Int("count", len(found)))
	}
	return s.fromContact(ctx, found[0])
}

func (s *Service) fromContact(ctx context.Context, contact ctms.Contact) (*UserData, error) {
	user := &UserData{
		Status:       "ok",
		EmailID:      contact.Email.EmailID,
		Email:        contact.Email.PrimaryEmail,
		Token:        contact.Email.Token,
		Country:      contact.Email.MailingCountry,
		Lang:         contact.Email.EmailLang,
		Format:       contact.Email.EmailFormat,
		FirstName:    contact.Email.FirstName,
		LastName:     contact.Email.LastName,
		CreatedDate:  contact.Email.CreateTimestamp,
		LastModified: contact.Email.UpdateTimestamp,
		Newsletters:  []string{},
	}
	if contact.Email.DoubleOptIn != nil {
		user.OptIn = *contact.Email.DoubleOptIn
	}
	if contact.Email.HasOptedOutOfMail != nil {
		user.OptOut = *contact.Email.HasOptedOutOfMail
	}

	for _, sub := range contact.Newsletters {
		if !sub.Subscribed {
			continue
		}
		slug, err := s.catalog.SlugForVendorID(ctx, sub.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to map newsletter %q: %w", sub.Name, err)
		}
		user.Newsletters = append(user.Newsletters, slug)
	}
	return user, nil
}
