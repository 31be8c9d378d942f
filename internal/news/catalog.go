package news

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pannier-io/pannier/internal/store"
)

const cacheTTL = 5 * time.Minute

// Catalog is a read-through cache over the newsletter tables. The
// catalog changes rarely but is consulted on every request.
type Catalog struct {
	store *store.Store

	mu        sync.RWMutex
	fetchedAt time.Time
	bySlug    map[string]store.Newsletter
	byVendor  map[string]string
	groups    map[string][]string
	blocked   map[string]struct{}
	ordered   []store.Newsletter
	languages map[string]struct{}
}

// NewCatalog creates a catalog backed by st.
func NewCatalog(st *store.Store) *Catalog {
	return &Catalog{store: st}
}

// Invalidate drops the cache so the next read hits the database.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

func (c *Catalog) ensure(ctx context.Context) error {
	c.mu.RLock()
	fresh := time.Since(c.fetchedAt) < cacheTTL
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	newsletters, err := c.store.Newsletters(ctx)
	if err != nil {
		return err
	}
	groups, err := c.store.Groups(ctx)
	if err != nil {
		return err
	}
	domains, err := c.store.BlockedDomains(ctx)
	if err != nil {
		return err
	}

	bySlug := make(map[string]store.Newsletter, len(newsletters))
	byVendor := make(map[string]string, len(newsletters))
	languages := make(map[string]struct{})
	for _, n := range newsletters {
		bySlug[n.Slug] = n
		if n.VendorID != "" {
			byVendor[n.VendorID] = n.Slug
		}
		for _, lang := range n.Languages {
			languages[strings.ToLower(lang)] = struct{}{}
		}
	}
	groupMembers := make(map[string][]string, len(groups))
	for _, g := range groups {
		if g.Active {
			groupMembers[g.Slug] = g.Newsletters
		}
	}
	blocked := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		blocked[d] = struct{}{}
	}

	c.mu.Lock()
	c.bySlug = bySlug
	c.byVendor = byVendor
	c.groups = groupMembers
	c.blocked = blocked
	c.ordered = newsletters
	c.languages = languages
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// All returns the catalog in display order.
func (c *Catalog) All(ctx context.Context) ([]store.Newsletter, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]store.Newsletter(nil), c.ordered...), nil
}

// Get looks up one newsletter by slug.
func (c *Catalog) Get(ctx context.Context, slug string) (store.Newsletter, bool, error) {
	if err := c.ensure(ctx); err != nil {
		return store.Newsletter{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.bySlug[slug]
	return n, ok, nil
}

// IsSlug reports whether slug names a newsletter (not a group).
func (c *Catalog) IsSlug(ctx context.Context, slug string) (bool, error) {
	_, ok, err := c.Get(ctx, slug)
	return ok, err
}

// IsGroup reports whether slug names an active newsletter group.
func (c *Catalog) IsGroup(ctx context.Context, slug string) (bool, error) {
	if err := c.ensure(ctx); err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.groups[slug]
	return ok, nil
}

// ExpandSlugs replaces group slugs with their member newsletters,
// dropping duplicates while preserving order.
func (c *Catalog) ExpandSlugs(ctx context.Context, slugs []string) ([]string, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{})
	var expanded []string
	add := func(slug string) {
		if _, dup := seen[slug]; !dup {
			seen[slug] = struct{}{}
			expanded = append(expanded, slug)
		}
	}
	for _, slug := range slugs {
		if members, ok := c.groups[slug]; ok {
			for _, m := range members {
				add(m)
			}
			continue
		}
		add(slug)
	}
	return expanded, nil
}

// InactiveSlugs returns the slugs of inactive newsletters.
func (c *Catalog) InactiveSlugs(ctx context.Context) ([]string, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var slugs []string
	for slug, n := range c.bySlug {
		if !n.Active {
			slugs = append(slugs, slug)
		}
	}
	sort.Strings(slugs)
	return slugs, nil
}

// VendorID maps a slug to the name CTMS stores the subscription under.
// Falls back to the slug itself for unknown newsletters.
func (c *Catalog) VendorID(ctx context.Context, slug string) (string, error) {
	n, ok, err := c.Get(ctx, slug)
	if err != nil {
		return "", err
	}
	if !ok || n.VendorID == "" {
		return slug, nil
	}
	return n.VendorID, nil
}

// SlugForVendorID maps a CTMS subscription name back to its catalog
// slug. Unknown vendor names map to themselves.
func (c *Catalog) SlugForVendorID(ctx context.Context, vendorID string) (string, error) {
	if err := c.ensure(ctx); err != nil {
		return "", err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if slug, ok := c.byVendor[vendorID]; ok {
		return slug, nil
	}
	return vendorID, nil
}

// LanguageSupported reports whether any newsletter publishes in code.
func (c *Catalog) LanguageSupported(ctx context.Context, code string) (bool, error) {
	if err := c.ensure(ctx); err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	code = strings.ToLower(code)
	if _, ok := c.languages[code]; ok {
		return true, nil
	}
	// A regional code is fine when the base language is published.
	if base, _, found := strings.Cut(code, "-"); found {
		if _, ok := c.languages[base]; ok {
			return true, nil
		}
	}
	return false, nil
}

// EmailBlocked reports whether the address belongs to a blocked domain
// or a subdomain of one. Blocked addresses are silently dropped rather
// than rejected.
func (c *Catalog) EmailBlocked(ctx context.Context, email string) (bool, error) {
	if err := c.ensure(ctx); err != nil {
		return false, err
	}
	_, domain, found := strings.Cut(email, "@")
	if !found {
		return false, nil
	}
	domain = strings.ToLower(domain)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.blocked[domain]; ok {
		return true, nil
	}
	for d := range c.blocked {
		if strings.HasSuffix(domain, "."+d) {
			return true, nil
		}
	}
	return false, nil
}
