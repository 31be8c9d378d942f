package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pannier-io/pannier/internal/contacts"
	"github.com/pannier-io/pannier/internal/news"
	"github.com/pannier-io/pannier/internal/store"
	"github.com/pannier-io/pannier/pkg/ctms"
)

type fakeCTMS struct {
	contacts []ctms.Contact
	created  []ctms.Contact
	patches  map[string][]ctms.ContactPatch
}

func newFakeCTMS(contacts ...ctms.Contact) *fakeCTMS {
	return &fakeCTMS{contacts: contacts, patches: map[string][]ctms.ContactPatch{}}
}

func (f *fakeCTMS) GetContact(_ context.Context, emailID string) (*ctms.Contact, error) {
	return nil, &ctms.Error{StatusCode: 404, Body: "not found"}
}

func (f *fakeCTMS) GetContactsByAlternateIDs(_ context.Context, ids ctms.AlternateIDs) ([]ctms.Contact, error) {
	var out []ctms.Contact
	for _, c := range f.contacts {
		if (ids.Token != "" && c.Email.Token == ids.Token) ||
			(ids.PrimaryEmail != "" && c.Email.PrimaryEmail == ids.PrimaryEmail) {
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
	f.patches[emailID] = append(f.patches[emailID], patch)
	return &ctms.Contact{Email: ctms.Email{EmailID: emailID}}, nil
}

func (f *fakeCTMS) ReplaceContact(_ context.Context, emailID string, contact ctms.Contact) error {
	return nil
}

type fakeSender struct {
	sent []contacts.Message
}

func (f *fakeSender) Send(_ context.Context, msg contacts.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

type fixture struct {
	store  *store.Store
	queue  *Queue
	worker *Worker
	ctms   *fakeCTMS
	sender *fakeSender
}

func newFixture(t *testing.T, api *fakeCTMS) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	require.NoError(t, st.UpsertNewsletter(ctx, store.Newsletter{
		Slug: "tech-news", Title: "Tech News", VendorID: "vendor-tech",
		WelcomeID: "welcome-tech", Active: true,
	}))

	logger := zap.NewNop()
	q := New(st, logger)
	svc := contacts.New(api, news.NewCatalog(st), q, logger)
	sender := &fakeSender{}
	w := NewWorker(st, svc, sender, logger, 10*time.Millisecond, 2)
	return &fixture{store: st, queue: q, worker: w, ctms: api, sender: sender}
}

func TestWorkerProcessesUpsert(t *testing.T) {
	f := newFixture(t, newFakeCTMS())
	ctx := context.Background()

	require.NoError(t, f.queue.EnqueueUpsert(ctx, news.Subscribe, contacts.Update{
		Email:          "new@example.com",
		Newsletters:    []string{"tech-news"},
		Lang:           "en",
		TriggerWelcome: true,
	}))

	// First drain applies the upsert, which queues a welcome message.
	require.NoError(t, f.worker.drain(ctx))
	require.Len(t, f.ctms.created, 1)
	assert.Equal(t, "new@example.com", f.ctms.created[0].Email.PrimaryEmail)

	require.Len(t, f.sender.sent, 1, "welcome message delivered in the same drain")
	assert.Equal(t, "welcome-tech_en", f.sender.sent[0].ID)

	depth, err := f.store.QueueDepth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, depth)
}

func TestWorkerFailsPermanentErrors(t *testing.T) {
	f := newFixture(t, newFakeCTMS())
	ctx := context.Background()

	// Profile update for a token nobody has.
	require.NoError(t, f.queue.EnqueueUserMeta(ctx,
		"99999999-9999-9999-9999-999999999999", contacts.Update{FirstName: "Ada"}))

	require.NoError(t, f.worker.drain(ctx))

	failed, err := f.store.FailedJobs(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, string(KindUserMeta), failed[0].Kind)
	assert.Equal(t, 1, failed[0].Attempts, "semantic errors are not retried")

	depth, err := f.store.QueueDepth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, depth)
}

func TestWorkerRecoveryUnknownEmailCompletes(t *testing.T) {
	f := newFixture(t, newFakeCTMS())
	ctx := context.Background()

	require.NoError(t, f.queue.EnqueueRecovery(ctx, "missing@example.com"))
	require.NoError(t, f.worker.drain(ctx))

	failed, err := f.store.FailedJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, failed, "unknown email is logged, not failed")
	assert.Empty(t, f.sender.sent)
}

func TestWorkerRecoverySendsMessage(t *testing.T) {
	f := newFixture(t, newFakeCTMS(ctms.Contact{
		Email: ctms.Email{
			EmailID:      "email-1",
			PrimaryEmail: "user@example.com",
			Token:        "11111111-2222-3333-4444-555555555555",
		},
	}))
	ctx := context.Background()

	require.NoError(t, f.queue.EnqueueRecovery(ctx, "user@example.com"))
	require.NoError(t, f.worker.drain(ctx))

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, contacts.RecoveryMessageID, f.sender.sent[0].ID)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", f.sender.sent[0].Token)
}

func TestWorkerUnknownKindFails(t *testing.T) {
	f := newFixture(t, newFakeCTMS())
	ctx := context.Background()

	_, err := f.store.EnqueueJob(ctx, "bogus", "{}")
	require.NoError(t, err)
	require.NoError(t, f.worker.drain(ctx))

	failed, err := f.store.FailedJobs(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "unknown job kind")
}
