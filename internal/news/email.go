package news

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrInvalidEmail marks an address that failed validation.
var ErrInvalidEmail = errors.New("invalid email address")

// Common provider typos worth suggesting a correction for.
var domainSuggestions = map[string]string{
	"gmial.com":   "gmail.com",
	"gamil.com":   "gmail.com",
	"gmil.com":    "gmail.com",
	"gmaill.com":  "gmail.com",
	"gmail.co":    "gmail.com",
	"yaho.com":    "yahoo.com",
	"yahooo.com":  "yahoo.com",
	"yhoo.com":    "yahoo.com",
	"hotmial.com": "hotmail.com",
	"hotmil.com":  "hotmail.com",
	"hotmal.com":  "hotmail.com",
	"outlok.com":  "outlook.com",
	"outloo.com":  "outlook.com",
}

// ValidateEmail normalizes and validates an email address. On success it
// returns the cleaned address. When the address looks like a typo of a
// common provider, the returned suggestion carries the corrected address
// alongside ErrInvalidEmail.
func ValidateEmail(raw string) (email, suggestion string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", ErrInvalidEmail
	}

	addr, parseErr := mail.ParseAddress(raw)
	if parseErr != nil {
		return "", "", ErrInvalidEmail
	}
	email = addr.Address

	local, domain, found := strings.Cut(email, "@")
	if !found || local == "" {
		return "", "", ErrInvalidEmail
	}
	domain = strings.ToLower(domain)
	if !strings.Contains(domain, ".") {
		return "", "", ErrInvalidEmail
	}

	if corrected, ok := domainSuggestions[domain]; ok {
		return "", local + "@" + corrected, ErrInvalidEmail
	}

	return local + "@" + domain, "", nil
}
