package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewsletters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertNewsletter(ctx, Newsletter{
		Slug:      "tech-news",
		Title:     "Tech News",
		VendorID:  "tech-news",
		Languages: []string{"en", "de"},
		Active:    true,
		Show:      true,
		Order:     2,
	}))
	require.NoError(t, s.UpsertNewsletter(ctx, Newsletter{
		Slug:                "beta-testers",
		Title:               "Beta Testers",
		VendorID:            "beta",
		Active:              true,
		RequiresDoubleOptIn: true,
		Order:               1,
	}))

	newsletters, err := s.Newsletters(ctx)
	require.NoError(t, err)
	require.Len(t, newsletters, 2)
	assert.Equal(t, "beta-testers", newsletters[0].Slug, "ordering column should win")
	assert.Equal(t, []string{"en", "de"}, newsletters[1].Languages)
	assert.True(t, newsletters[0].RequiresDoubleOptIn)

	// Upsert overwrites in place.
	require.NoError(t, s.UpsertNewsletter(ctx, Newsletter{
		Slug: "tech-news", Title: "Tech Weekly", VendorID: "tech-news", Active: false,
	}))
	newsletters, err = s.Newsletters(ctx)
	require.NoError(t, err)
	require.Len(t, newsletters, 2)
	assert.Equal(t, "Tech Weekly", newsletters[1].Title)
	assert.False(t, newsletters[1].Active)
}

func TestGroups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertNewsletter(ctx, Newsletter{Slug: "a", Title: "A", VendorID: "a", Active: true}))
	require.NoError(t, s.UpsertNewsletter(ctx, Newsletter{Slug: "b", Title: "B", VendorID: "b", Active: true}))

	require.NoError(t, s.UpsertGroup(ctx, NewsletterGroup{
		Slug: "bundle", Title: "Bundle", Active: true, Newsletters: []string{"a", "b"},
	}))

	groups, err := s.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a", "b"}, groups[0].Newsletters)

	// Replacing a group rewrites the membership list.
	require.NoError(t, s.UpsertGroup(ctx, NewsletterGroup{
		Slug: "bundle", Title: "Bundle", Active: true, Newsletters: []string{"b"},
	}))
	groups, err = s.Groups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, groups[0].Newsletters)
}

func TestAPIKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key, err := s.CreateAPIKey(ctx, "newsletter-form")
	require.NoError(t, err)
	require.NotEmpty(t, key)

	ok, err := s.ValidAPIKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ValidAPIKey(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.ValidAPIKey(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.DisableAPIKey(ctx, key))
	ok, err = s.ValidAPIKey(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := s.APIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "newsletter-form", keys[0].Name)
	assert.False(t, keys[0].Enabled)
}

func TestBlockedDomains(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddBlockedDomain(ctx, "Spam.Example"))
	require.NoError(t, s.AddBlockedDomain(ctx, "spam.example"))

	domains, err := s.BlockedDomains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"spam.example"}, domains)
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.EnqueueJob(ctx, "upsert", `{"email":"a@example.com"}`)
	require.NoError(t, err)
	_, err = s.EnqueueJob(ctx, "upsert", `{"email":"b@example.com"}`)
	require.NoError(t, err)

	depth, err := s.QueueDepth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, depth)

	// Jobs come out in insertion order.
	job, err := s.ClaimJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Contains(t, job.Payload, "a@example.com")
	assert.Equal(t, 1, job.Attempts)

	// A claimed job is invisible to other claims.
	next, err := s.ClaimJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Contains(t, next.Payload, "b@example.com")

	require.NoError(t, s.CompleteJob(ctx, job.ID))
	require.NoError(t, s.ReleaseJob(ctx, next.ID))

	// Released jobs can be claimed again, with the attempt recorded.
	again, err := s.ClaimJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, next.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)

	require.NoError(t, s.FailJob(ctx, again, "ctms unreachable"))

	job, err = s.ClaimJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, job, "queue should be empty")

	failed, err := s.FailedJobs(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "ctms unreachable", failed[0].Error)
	assert.Equal(t, 2, failed[0].Attempts)

	n, err := s.RetryFailedJobs(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	job, err = s.ClaimJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Contains(t, job.Payload, "b@example.com")
	assert.Equal(t, 1, job.Attempts, "requeued jobs start over")
}

func TestResetRunningJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.EnqueueJob(ctx, "recovery", `{"email":"a@example.com"}`)
	require.NoError(t, err)

	job, err := s.ClaimJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	// Simulates a worker crash: the job is stuck at running.
	n, err := s.ResetRunningJobs(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	job, err = s.ClaimJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
}
