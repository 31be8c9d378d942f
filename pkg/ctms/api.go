package ctms

import "context"

// API defines the interface for the CTMS SDK.
type API interface {
	// GetContact fetches a contact by its CTMS email ID.
	GetContact(ctx context.Context, emailID string) (*Contact, error)

	// GetContactsByAlternateIDs fetches all contacts matching the given alternate IDs.
	GetContactsByAlternateIDs(ctx context.Context, ids AlternateIDs) ([]Contact, error)

	// CreateContact creates a new contact.
	CreateContact(ctx context.Context, contact Contact) error

	// UpdateContact applies a partial update to an existing contact.
	UpdateContact(ctx context.Context, emailID string, patch ContactPatch) (*Contact, error)

	// ReplaceContact creates or fully replaces the contact stored under the given email ID.
	ReplaceContact(ctx context.Context, emailID string, contact Contact) error
}
