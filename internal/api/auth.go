package api

import (
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var tokenRe = regexp.MustCompile(`^[0-9a-fA-F-]{36}$`)

// validToken reports whether s looks like a subscriber token.
func validToken(s string) bool {
	return tokenRe.MatchString(s)
}

// apiKeyFrom extracts the caller's API key. Query parameters win over
// form fields, which win over the X-Api-Key header.
func apiKeyFrom(r *http.Request) string {
	q := r.URL.Query()
	if key := q.Get("api-key"); key != "" {
		return key
	}
	if key := q.Get("api_key"); key != "" {
		return key
	}
	if key := r.PostFormValue("api-key"); key != "" {
		return key
	}
	if key := r.PostFormValue("api_key"); key != "" {
		return key
	}
	return r.Header.Get("X-Api-Key")
}

func (s *Server) hasValidAPIKey(r *http.Request) bool {
	ok, err := s.store.ValidAPIKey(r.Context(), apiKeyFrom(r))
	if err != nil {
		s.logger.Error("api key lookup failed", zap.Error(err))
		return false
	}
	return ok
}

// isSecure reports whether the request arrived over HTTPS, directly or
// via a TLS-terminating proxy.
func isSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
