package store

import (
	"context"
	"strings"
)

// Newsletter is one entry of the newsletter catalog.
type Newsletter struct {
	Slug        string
	Title       string
	Description string
	// VendorID is the name CTMS stores subscriptions under.
	VendorID  string
	WelcomeID string
	ConfirmID string
	Languages []string
	Active    bool
	Private   bool
	Show      bool
	// RequiresDoubleOptIn requires a confirmation round-trip before the
	// subscription becomes active.
	RequiresDoubleOptIn bool
	Order               int
}

// NewsletterGroup bundles newsletters so clients can subscribe to the
// whole set with one slug.
type NewsletterGroup struct {
	Slug        string
	Title       string
	Active      bool
	Newsletters []string
}

// Newsletters returns the full catalog ordered for display.
func (s *Store) Newsletters(ctx context.Context) ([]Newsletter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slug, title, description, vendor_id, welcome_id, confirm_id,
		       languages, active, private, show_publicly, requires_double_optin, ordering
		FROM newsletters
		ORDER BY ordering, slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var newsletters []Newsletter
	for rows.Next() {
		var n Newsletter
		var languages string
		if err := rows.Scan(&n.Slug, &n.Title, &n.Description, &n.VendorID, &n.WelcomeID,
			&n.ConfirmID, &languages, &n.Active, &n.Private, &n.Show,
			&n.RequiresDoubleOptIn, &n.Order); err != nil {
			return nil, err
		}
		n.Languages = splitLanguages(languages)
		newsletters = append(newsletters, n)
	}
	return newsletters, rows.Err()
}

// UpsertNewsletter inserts or replaces a catalog entry.
func (s *Store) UpsertNewsletter(ctx context.Context, n Newsletter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO newsletters (slug, title, description, vendor_id, welcome_id, confirm_id,
			languages, active, private, show_publicly, requires_double_optin, ordering)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			vendor_id = excluded.vendor_id,
			welcome_id = excluded.welcome_id,
			confirm_id = excluded.confirm_id,
			languages = excluded.languages,
			active = excluded.active,
			private = excluded.private,
			show_publicly = excluded.show_publicly,
			requires_double_optin = excluded.requires_double_optin,
			ordering = excluded.ordering`,
		n.Slug, n.Title, n.Description, n.VendorID, n.WelcomeID, n.ConfirmID,
		strings.Join(n.Languages, ","), n.Active, n.Private, n.Show,
		n.RequiresDoubleOptIn, n.Order)
	return err
}

// Groups returns all newsletter groups with their member slugs.
func (s *Store) Groups(ctx context.Context) ([]NewsletterGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slug, title, active FROM newsletter_groups ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []NewsletterGroup
	for rows.Next() {
		var g NewsletterGroup
		if err := rows.Scan(&g.Slug, &g.Title, &g.Active); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		members, err := s.groupMembers(ctx, groups[i].Slug)
		if err != nil {
			return nil, err
		}
		groups[i].Newsletters = members
	}
	return groups, nil
}

func (s *Store) groupMembers(ctx context.Context, slug string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT newsletter_slug FROM newsletter_group_members
		WHERE group_slug = ? ORDER BY newsletter_slug`, slug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpsertGroup inserts or replaces a group and its membership list.
func (s *Store) UpsertGroup(ctx context.Context, g NewsletterGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO newsletter_groups (slug, title, active) VALUES (?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET title = excluded.title, active = excluded.active`,
		g.Slug, g.Title, g.Active); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM newsletter_group_members WHERE group_slug = ?`, g.Slug); err != nil {
		return err
	}
	for _, member := range g.Newsletters {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO newsletter_group_members (group_slug, newsletter_slug)
			VALUES (?, ?)`, g.Slug, member); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// BlockedDomains returns all blocked email domains.
func (s *Store) BlockedDomains(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain FROM blocked_domains ORDER BY domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// AddBlockedDomain blocks an email domain. Adding a domain twice is a no-op.
func (s *Store) AddBlockedDomain(ctx context.Context, domain string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocked_domains (domain) VALUES (?)
		ON CONFLICT(domain) DO NOTHING`, strings.ToLower(domain))
	return err
}

func splitLanguages(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	langs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			langs = append(langs, p)
		}
	}
	return langs
}
