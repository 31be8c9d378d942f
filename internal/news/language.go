package news

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var langRe = regexp.MustCompile(`^[a-z]{2,3}(?:-[a-z]{2})?$`)

// LanguageCodeValid reports whether code looks like a language code
// ("en", "pt-br"). The empty string is accepted, meaning "not provided".
func LanguageCodeValid(code string) bool {
	if code == "" {
		return true
	}
	return langRe.MatchString(strings.ToLower(code))
}

// AcceptLanguages parses an Accept-Language header into language codes
// ordered by quality, highest first. Malformed entries are skipped.
func AcceptLanguages(header string) []string {
	type langQ struct {
		lang string
		q    float64
		pos  int
	}

	var langs []langQ
	for i, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lang, params, _ := strings.Cut(part, ";")
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" || lang == "*" {
			continue
		}
		q := 1.0
		if params != "" {
			params = strings.TrimSpace(params)
			if v, ok := strings.CutPrefix(params, "q="); ok {
				parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
				if err != nil || parsed < 0 || parsed > 1 {
					continue
				}
				q = parsed
			}
		}
		langs = append(langs, langQ{lang: lang, q: q, pos: i})
	}

	sort.SliceStable(langs, func(i, j int) bool {
		if langs[i].q != langs[j].q {
			return langs[i].q > langs[j].q
		}
		return langs[i].pos < langs[j].pos
	})

	out := make([]string, 0, len(langs))
	seen := make(map[string]struct{}, len(langs))
	for _, l := range langs {
		if _, dup := seen[l.lang]; dup {
			continue
		}
		seen[l.lang] = struct{}{}
		out = append(out, l.lang)
	}
	return out
}

// BestLanguage picks the first candidate the catalog supports, falling
// back to the first candidate, then to "en".
func BestLanguage(candidates []string, supported func(string) bool) string {
	for _, lang := range candidates {
		if supported(lang) {
			return lang
		}
		// Try the base language for regional codes.
		if base, _, found := strings.Cut(lang, "-"); found && supported(base) {
			return base
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return "en"
}
