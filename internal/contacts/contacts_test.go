package contacts

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pannier-io/pannier/internal/news"
	"github.com/pannier-io/pannier/internal/store"
	"github.com/pannier-io/pannier/pkg/codes"
	"github.com/pannier-io/pannier/pkg/ctms"
)

type fakeCTMS struct {
	contacts []ctms.Contact
	created  []ctms.Contact
	patches  map[string][]ctms.ContactPatch
	getErr   error
}

func newFakeCTMS(contacts ...ctms.Contact) *fakeCTMS {
	return &fakeCTMS{contacts: contacts, patches: map[string][]ctms.ContactPatch{}}
}

func (f *fakeCTMS) GetContact(_ context.Context, emailID string) (*ctms.Contact, error) {
	for i := range f.contacts {
		if f.contacts[i].Email.EmailID == emailID {
			return &f.contacts[i], nil
		}
	}
	return nil, &ctms.Error{StatusCode: 404, Body: "not found"}
}

func (f *fakeCTMS) GetContactsByAlternateIDs(_ context.Context, ids ctms.AlternateIDs) ([]ctms.Contact, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	var out []ctms.Contact
	for _, c := range f.contacts {
		if (ids.Token != "" && c.Email.Token == ids.Token) ||
			(ids.PrimaryEmail != "" && c.Email.PrimaryEmail == ids.PrimaryEmail) ||
			(ids.EmailID != "" && c.Email.EmailID == ids.EmailID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCTMS) CreateContact(_ context.Context, contact ctms.Contact) error {
	f.created = append(f.created, contact)
	return nil
}

func (f *fakeCTMS) UpdateContact(_ context.Context, emailID string, patch ctms.ContactPatch) (*ctms.Contact, error) {
	found := false
	for _, c := range f.contacts {
		if c.Email.EmailID == emailID {
			found = true
		}
	}
	if !found {
		return nil, &ctms.Error{StatusCode: 404, Body: "not found"}
	}
	f.patches[emailID] = append(f.patches[emailID], patch)
	return &ctms.Contact{Email: ctms.Email{EmailID: emailID}}, nil
}

func (f *fakeCTMS) ReplaceContact(_ context.Context, emailID string, contact ctms.Contact) error {
	return nil
}

type fakeMessenger struct {
	messages []Message
}

func (f *fakeMessenger) QueueMessage(_ context.Context, msg Message) error {
	f.messages = append(f.messages, msg)
	return nil
}

func newTestCatalog(t *testing.T) *news.Catalog {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	require.NoError(t, st.UpsertNewsletter(ctx, store.Newsletter{
		Slug: "tech-news", Title: "Tech News", VendorID: "vendor-tech",
		WelcomeID: "welcome-tech", Active: true,
	}))
	require.NoError(t, st.UpsertNewsletter(ctx, store.Newsletter{
		Slug: "beta-testers", Title: "Beta Testers", VendorID: "vendor-beta",
		ConfirmID: "confirm-beta", Active: true, RequiresDoubleOptIn: true,
	}))
	require.NoError(t, st.UpsertNewsletter(ctx, store.Newsletter{
		Slug: "retired", Title: "Retired", VendorID: "vendor-retired", Active: false,
	}))
	require.NoError(t, st.UpsertGroup(ctx, store.NewsletterGroup{
		Slug: "all-news", Title: "All News", Active: true,
		Newsletters: []string{"tech-news"},
	}))
	return news.NewCatalog(st)
}

func newTestService(t *testing.T, api ctms.API) (*Service, *fakeMessenger) {
	t.Helper()
	msgs := &fakeMessenger{}
	return New(api, newTestCatalog(t), msgs, zap.NewNop()), msgs
}

func existingContact() ctms.Contact {
	return ctms.Contact{
		Email: ctms.Email{
			EmailID:      "email-1",
			PrimaryEmail: "user@example.com",
			Token:        "11111111-2222-3333-4444-555555555555",
			DoubleOptIn:  ctms.Bool(true),
		},
		Newsletters: []ctms.Subscription{
			{Name: "vendor-tech", Subscribed: true},
			{Name: "vendor-retired", Subscribed: true},
			{Name: "vendor-beta", Subscribed: false},
		},
	}
}

func TestGetUserData(t *testing.T) {
	api := newFakeCTMS(existingContact())
	svc, _ := newTestService(t, api)

	user, err := svc.GetUserData(context.Background(), "11111111-2222-3333-4444-555555555555", "")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "user@example.com", user.Email)
	assert.True(t, user.OptIn)
	assert.False(t, user.OptOut)
	assert.Equal(t, []string{"tech-news", "retired"}, user.Newsletters,
		"vendor names map to slugs, unsubscribed entries dropped")

	user, err = svc.GetUserData(context.Background(), "", "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)

	user, err = svc.GetUserData(context.Background(), "", "missing@example.com")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUpsertCreatesContact(t *testing.T) {
	api := newFakeCTMS()
	svc, msgs := newTestService(t, api)

	token, created, err := svc.Upsert(context.Background(), news.Subscribe, Update{
		Email:          "new@example.com",
		Newsletters:    []string{"tech-news"},
		Lang:           "en",
		SourceURL:      "https://example.com/signup",
		TriggerWelcome: true,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, token, 36)

	require.Len(t, api.created, 1)
	contact := api.created[0]
	assert.Equal(t, "new@example.com", contact.Email.PrimaryEmail)
	assert.Equal(t, token, contact.Email.Token)
	require.NotNil(t, contact.Email.DoubleOptIn)
	assert.True(t, *contact.Email.DoubleOptIn, "no double opt-in required")
	require.Len(t, contact.Newsletters, 1)
	assert.Equal(t, "vendor-tech", contact.Newsletters[0].Name)
	assert.True(t, contact.Newsletters[0].Subscribed)
	assert.Equal(t, "https://example.com/signup", contact.Newsletters[0].Source)

	require.Len(t, msgs.messages, 1)
	assert.Equal(t, "welcome-tech_en", msgs.messages[0].ID)
	assert.Equal(t, token, msgs.messages[0].Token)
}

func TestUpsertSubscribeExpandsGroup(t *testing.T) {
	api := newFakeCTMS()
	svc, _ := newTestService(t, api)

	_, created, err := svc.Upsert(context.Background(), news.Subscribe, Update{
		Email:       "new@example.com",
		Newsletters: []string{"all-news"},
	})
	require.NoError(t, err)
	assert.True(t, created)

	require.Len(t, api.created, 1)
	require.Len(t, api.created[0].Newsletters, 1)
	assert.Equal(t, "vendor-tech", api.created[0].Newsletters[0].Name,
		"group slug expands to its member newsletters")
}

func TestUpsertSetDoesNotExpandGroup(t *testing.T) {
	api := newFakeCTMS(existingContact())
	svc, _ := newTestService(t, api)

	_, _, err := svc.Upsert(context.Background(), news.Set, Update{
		Token:       "11111111-2222-3333-4444-555555555555",
		Newsletters: []string{"all-news"},
	})
	require.NoError(t, err)

	patches := api.patches["email-1"]
	require.Len(t, patches, 1)
	names := make(map[string]bool)
	for _, sub := range patches[0].Newsletters.Subscriptions {
		names[sub.Name] = sub.Subscribed
	}
	// The group slug rides through as an ordinary name; its member is
	// dropped by the replacement, not subscribed via expansion.
	assert.Equal(t, map[string]bool{
		"all-news":    true,
		"vendor-tech": false,
	}, names)
}

func TestUpsertDoubleOptInPending(t *testing.T) {
	api := newFakeCTMS()
	svc, msgs := newTestService(t, api)

	_, created, err := svc.Upsert(context.Background(), news.Subscribe, Update{
		Email:          "new@example.com",
		Newsletters:    []string{"beta-testers"},
		TriggerWelcome: true,
	})
	require.NoError(t, err)
	assert.True(t, created)

	require.Len(t, api.created, 1)
	require.NotNil(t, api.created[0].Email.DoubleOptIn)
	assert.False(t, *api.created[0].Email.DoubleOptIn)

	require.Len(t, msgs.messages, 1)
	assert.Equal(t, "confirm-beta", msgs.messages[0].ID, "pending subscription sends the confirmation message")
}

func TestUpsertForcedOptInSkipsConfirmation(t *testing.T) {
	api := newFakeCTMS()
	svc, _ := newTestService(t, api)

	_, _, err := svc.Upsert(context.Background(), news.Subscribe, Update{
		Email:       "new@example.com",
		Newsletters: []string{"beta-testers"},
		OptIn:       true,
	})
	require.NoError(t, err)
	require.Len(t, api.created, 1)
	require.NotNil(t, api.created[0].Email.DoubleOptIn)
	assert.True(t, *api.created[0].Email.DoubleOptIn)
}

func TestUpsertExistingSubscribe(t *testing.T) {
	api := newFakeCTMS(existingContact())
	svc, _ := newTestService(t, api)

	token, created, err := svc.Upsert(context.Background(), news.Subscribe, Update{
		Email:       "user@example.com",
		Newsletters: []string{"beta-testers"},
		OptIn:       true,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", token)

	patches := api.patches["email-1"]
	require.Len(t, patches, 1)
	require.NotNil(t, patches[0].Newsletters)
	assert.False(t, patches[0].Newsletters.UnsubscribeAll)

	// Subscribe is additive: already-held newsletters stay subscribed.
	names := map[string]bool{}
	for _, sub := range patches[0].Newsletters.Subscriptions {
		names[sub.Name] = sub.Subscribed
	}
	assert.Equal(t, map[string]bool{
		"vendor-tech":    true,
		"vendor-retired": true,
		"vendor-beta":    true,
	}, names)
}

func TestUpsertSetPreservesInactive(t *testing.T) {
	api := newFakeCTMS(existingContact())
	svc, _ := newTestService(t, api)

	_, _, err := svc.Upsert(context.Background(), news.Set, Update{
		Token:       "11111111-2222-3333-4444-555555555555",
		Newsletters: []string{"tech-news"},
	})
	require.NoError(t, err)

	patches := api.patches["email-1"]
	require.Len(t, patches, 1)
	for _, sub := range patches[0].Newsletters.Subscriptions {
		assert.NotEqual(t, "vendor-retired", sub.Name,
			"retired newsletters are left alone on SET")
	}
}

func TestUpsertUnsubscribeAll(t *testing.T) {
	api := newFakeCTMS(existingContact())
	svc, _ := newTestService(t, api)

	_, _, err := svc.Upsert(context.Background(), news.Unsubscribe, Update{
		Token:  "11111111-2222-3333-4444-555555555555",
		OptOut: true,
	})
	require.NoError(t, err)

	patches := api.patches["email-1"]
	require.Len(t, patches, 1)
	require.NotNil(t, patches[0].Newsletters)
	assert.True(t, patches[0].Newsletters.UnsubscribeAll)
	require.NotNil(t, patches[0].Email.HasOptedOutOfMail)
	assert.True(t, *patches[0].Email.HasOptedOutOfMail)
}

func TestUpsertUnknownToken(t *testing.T) {
	api := newFakeCTMS()
	svc, _ := newTestService(t, api)

	_, _, err := svc.Upsert(context.Background(), news.Set, Update{
		Token: "99999999-9999-9999-9999-999999999999",
	})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, codes.UnknownToken, statusErr.Code)
	assert.Equal(t, 404, statusErr.Status)
}

func TestUpdateMeta(t *testing.T) {
	api := newFakeCTMS(existingContact())
	svc, _ := newTestService(t, api)

	err := svc.UpdateMeta(context.Background(), "11111111-2222-3333-4444-555555555555", Update{
		FirstName: "Ada", Country: "de",
	})
	require.NoError(t, err)

	patches := api.patches["email-1"]
	require.Len(t, patches, 1)
	assert.Equal(t, "Ada", patches[0].Email.FirstName)
	assert.Equal(t, "de", patches[0].Email.MailingCountry)
	assert.Nil(t, patches[0].Newsletters)

	err = svc.UpdateMeta(context.Background(), "99999999-9999-9999-9999-999999999999", Update{})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, codes.UnknownToken, statusErr.Code)
}

func TestConfirm(t *testing.T) {
	contact := existingContact()
	contact.Email.DoubleOptIn = ctms.Bool(false)
	api := newFakeCTMS(contact)
	svc, _ := newTestService(t, api)

	require.NoError(t, svc.Confirm(context.Background(), contact.Email.Token))
	patches := api.patches["email-1"]
	require.Len(t, patches, 1)
	require.NotNil(t, patches[0].Email.DoubleOptIn)
	assert.True(t, *patches[0].Email.DoubleOptIn)
}

func TestConfirmAlreadyConfirmed(t *testing.T) {
	api := newFakeCTMS(existingContact())
	svc, _ := newTestService(t, api)

	require.NoError(t, svc.Confirm(context.Background(), "11111111-2222-3333-4444-555555555555"))
	assert.Empty(t, api.patches["email-1"], "already confirmed, nothing to patch")
}

func TestSendRecovery(t *testing.T) {
	api := newFakeCTMS(existingContact())
	svc, msgs := newTestService(t, api)

	require.NoError(t, svc.SendRecovery(context.Background(), "user@example.com"))
	require.Len(t, msgs.messages, 1)
	assert.Equal(t, RecoveryMessageID, msgs.messages[0].ID)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", msgs.messages[0].Token)

	err := svc.SendRecovery(context.Background(), "missing@example.com")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, codes.UnknownEmail, statusErr.Code)
}

func TestMessageID(t *testing.T) {
	assert.Equal(t, "welcome_en", MessageID("welcome", "en", "H"))
	assert.Equal(t, "welcome_pt-br_T", MessageID("welcome", "pt-BR", "T"))
	assert.Equal(t, "welcome", MessageID("welcome", "", ""))
	assert.Equal(t, "", MessageID("", "en", "T"))
}
