package news

import (
	"sort"
	"strings"
)

// APICallType selects how a requested newsletter list combines with the
// subscriber's current subscriptions.
type APICallType int

const (
	// Subscribe adds the requested newsletters to the current set.
	Subscribe APICallType = iota + 1
	// Unsubscribe removes the requested newsletters from the current set.
	Unsubscribe
	// Set replaces the current set with the requested one.
	Set
)

// ParseSlugs splits a comma-separated newsletter list into clean slugs.
func ParseSlugs(s string) []string {
	var slugs []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			slugs = append(slugs, part)
		}
	}
	return slugs
}

// ResolveSubscriptions computes the subscription changes to send to the
// vendor. requested and current are newsletter slugs; the result maps
// slug to the desired subscribed state. Slugs absent from the result are
// left untouched.
func ResolveSubscriptions(callType APICallType, requested, current []string) map[string]bool {
	req := toSet(requested)
	cur := toSet(current)

	switch callType {
	case Subscribe:
		// Additive: keep everything already subscribed.
		for slug := range cur {
			req[slug] = struct{}{}
		}
	case Unsubscribe:
		// Only drop what the subscriber actually has. A nil current set
		// means the subscriptions are unknown, so drop all requested.
		if current != nil {
			for slug := range req {
				if _, ok := cur[slug]; !ok {
					delete(req, slug)
				}
			}
		}
	}

	subs := make(map[string]bool, len(req))
	if callType == Unsubscribe {
		for slug := range req {
			subs[slug] = false
		}
		return subs
	}

	for slug := range req {
		subs[slug] = true
	}
	if callType == Set {
		for slug := range cur {
			if _, ok := req[slug]; !ok {
				subs[slug] = false
			}
		}
	}
	return subs
}

// SortedSlugs returns the map keys in stable order.
func SortedSlugs(subs map[string]bool) []string {
	slugs := make([]string, 0, len(subs))
	for slug := range subs {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

func toSet(slugs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(slugs))
	for _, slug := range slugs {
		set[slug] = struct{}{}
	}
	return set
}
