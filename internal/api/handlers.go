package api

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/pannier-io/pannier/internal/contacts"
	"github.com/pannier-io/pannier/internal/news"
	"github.com/pannier-io/pannier/pkg/codes"
)

// tokenParam extracts and validates the subscriber token from the URL.
// Responds with the unknown-token error when it is malformed.
func (s *Server) tokenParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := chi.URLParam(r, "token")
	if !validToken(token) {
		respondError(w, http.StatusNotFound, codes.UnknownToken, "Unknown token")
		return "", false
	}
	return token, true
}

// validateSlugs checks that every requested slug names a newsletter or,
// when groups are allowed, a newsletter group.
func (s *Server) validateSlugs(w http.ResponseWriter, r *http.Request, slugs []string, allowGroups bool) bool {
	ctx := r.Context()
	for _, slug := range slugs {
		isSlug, err := s.catalog.IsSlug(ctx, slug)
		if err != nil {
			respondFailure(w, err)
			return false
		}
		if isSlug {
			n, _, err := s.catalog.Get(ctx, slug)
			if err != nil {
				respondFailure(w, err)
				return false
			}
			if n.Private && !s.hasValidAPIKey(r) {
				respondError(w, http.StatusUnauthorized, codes.AuthError,
					"private newsletters require a valid api-key")
				return false
			}
			continue
		}
		if allowGroups {
			isGroup, err := s.catalog.IsGroup(ctx, slug)
			if err != nil {
				respondFailure(w, err)
				return false
			}
			if isGroup {
				continue
			}
		}
		respondError(w, http.StatusBadRequest, codes.InvalidNewsletter,
			fmt.Sprintf("invalid newsletter: %s", slug))
		return false
	}
	return true
}

// requestLang resolves the language for the change: an explicit lang
// field wins, then accept_lang, then the Accept-Language header.
// Returns false after responding when an explicit code is malformed.
func (s *Server) requestLang(w http.ResponseWriter, r *http.Request, data url.Values) (string, bool) {
	lang := data.Get("lang")
	if lang != "" {
		if !news.LanguageCodeValid(lang) {
			respondError(w, http.StatusBadRequest, codes.InvalidLanguage,
				fmt.Sprintf("invalid language: %s", lang))
			return "", false
		}
		return lang, true
	}

	header := data.Get("accept_lang")
	if header == "" {
		header = r.Header.Get("Accept-Language")
	}
	candidates := news.AcceptLanguages(header)
	if len(candidates) == 0 {
		return "", true
	}

	ctx := r.Context()
	supported := func(code string) bool {
		ok, err := s.catalog.LanguageSupported(ctx, code)
		return err == nil && ok
	}
	return news.BestLanguage(candidates, supported), true
}

func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, codes.UsageError, "could not parse form data")
		return
	}
	data := r.PostForm

	slugs := news.ParseSlugs(data.Get("newsletters"))
	if len(slugs) == 0 {
		respondError(w, http.StatusBadRequest, codes.UsageError, "newsletters is required")
		return
	}

	rawEmail := data.Get("email")
	if rawEmail == "" {
		respondError(w, http.StatusUnauthorized, codes.UsageError, "email is required")
		return
	}
	email, suggestion, err := news.ValidateEmail(rawEmail)
	if err != nil {
		respondInvalidEmail(w, suggestion)
		return
	}

	blocked, err := s.catalog.EmailBlocked(r.Context(), email)
	if err != nil {
		respondFailure(w, err)
		return
	}
	if blocked {
		// Pretend it worked so list bombers learn nothing.
		s.logger.Info("dropped subscribe for blocked domain")
		respondOK(w)
		return
	}

	if !s.validateSlugs(w, r, slugs, true) {
		return
	}
	lang, ok := s.requestLang(w, r, data)
	if !ok {
		return
	}

	sourceURL := data.Get("source_url")
	if sourceURL == "" {
		sourceURL = r.Referer()
	}

	format := data.Get("format")
	if format == "" {
		format = data.Get("fmt")
	}

	upd := contacts.Update{
		Email:          email,
		Newsletters:    slugs,
		FirstName:      data.Get("first_name"),
		LastName:       data.Get("last_name"),
		Country:        data.Get("country"),
		Lang:           lang,
		Format:         format,
		SourceURL:      sourceURL,
		TriggerWelcome: data.Get("trigger_welcome") != "N",
	}
	// Forced opt-in is only honored for trusted callers; for everyone
	// else the flag is silently ignored.
	if data.Get("optin") == "Y" && s.hasValidAPIKey(r) {
		upd.OptIn = true
	}

	if data.Get("sync") == "Y" {
		s.syncUpsert(w, r, news.Subscribe, upd)
		return
	}

	if err := s.queue.EnqueueUpsert(r.Context(), news.Subscribe, upd); err != nil {
		respondFailure(w, err)
		return
	}
	respondOK(w)
}

// syncUpsert performs the change inline and returns the token. Reserved
// for HTTPS callers holding a valid API key.
func (s *Server) syncUpsert(w http.ResponseWriter, r *http.Request, callType news.APICallType, upd contacts.Update) {
	if !isSecure(r) {
		respondError(w, http.StatusUnauthorized, codes.SSLRequired,
			"sync=Y requires SSL")
		return
	}
	if !s.hasValidAPIKey(r) {
		respondError(w, http.StatusUnauthorized, codes.AuthError,
			"sync=Y requires a valid api-key")
		return
	}

	token, created, err := s.contacts.Upsert(r.Context(), callType, upd)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{
		"status":  "ok",
		"token":   token,
		"created": created,
	})
}

func (s *Server) unsubscribe(w http.ResponseWriter, r *http.Request) {
	token, ok := s.tokenParam(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, codes.UsageError, "could not parse form data")
		return
	}
	data := r.PostForm

	upd := contacts.Update{Token: token}
	if data.Get("optout") == "Y" {
		upd.OptOut = true
	} else {
		upd.Newsletters = news.ParseSlugs(data.Get("newsletters"))
		if len(upd.Newsletters) == 0 {
			respondError(w, http.StatusBadRequest, codes.UsageError, "newsletters is required")
			return
		}
		if !s.validateSlugs(w, r, upd.Newsletters, false) {
			return
		}
	}

	ctx := r.Context()
	if err := s.queue.EnqueueUpsert(ctx, news.Unsubscribe, upd); err != nil {
		respondFailure(w, err)
		return
	}
	if reason := data.Get("reason"); reason != "" {
		if err := s.queue.EnqueueUnsubReason(ctx, token, reason); err != nil {
			respondFailure(w, err)
			return
		}
	}
	respondOK(w)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	token, ok := s.tokenParam(w, r)
	if !ok {
		return
	}

	user, err := s.contacts.GetUserData(r.Context(), token, "")
	if err != nil {
		respondFailure(w, err)
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, codes.UnknownToken, "Unknown token")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) postUser(w http.ResponseWriter, r *http.Request) {
	token, ok := s.tokenParam(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, codes.UsageError, "could not parse form data")
		return
	}
	data := r.PostForm

	// Group slugs only make sense for additive subscribes; a SET names
	// concrete newsletters.
	slugs := news.ParseSlugs(data.Get("newsletters"))
	if !s.validateSlugs(w, r, slugs, false) {
		return
	}
	lang, ok := s.requestLang(w, r, data)
	if !ok {
		return
	}

	var email string
	if rawEmail := data.Get("email"); rawEmail != "" {
		var suggestion string
		var err error
		email, suggestion, err = news.ValidateEmail(rawEmail)
		if err != nil {
			respondInvalidEmail(w, suggestion)
			return
		}
	}

	upd := contacts.Update{
		Email:          email,
		Token:          token,
		Newsletters:    slugs,
		FirstName:      data.Get("first_name"),
		LastName:       data.Get("last_name"),
		Country:        data.Get("country"),
		Lang:           lang,
		Format:         data.Get("format"),
		SourceURL:      data.Get("source_url"),
		TriggerWelcome: data.Get("trigger_welcome") != "N",
	}

	if err := s.queue.EnqueueUpsert(r.Context(), news.Set, upd); err != nil {
		respondFailure(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) userMeta(w http.ResponseWriter, r *http.Request) {
	token, ok := s.tokenParam(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, codes.UsageError, "could not parse form data")
		return
	}
	data := r.PostForm

	lang := data.Get("lang")
	if !news.LanguageCodeValid(lang) {
		respondError(w, http.StatusBadRequest, codes.InvalidLanguage,
			fmt.Sprintf("invalid language: %s", lang))
		return
	}

	upd := contacts.Update{
		FirstName: data.Get("first_name"),
		LastName:  data.Get("last_name"),
		Country:   data.Get("country"),
		Lang:      lang,
		Format:    data.Get("format"),
	}
	if err := s.queue.EnqueueUserMeta(r.Context(), token, upd); err != nil {
		respondFailure(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	token, ok := s.tokenParam(w, r)
	if !ok {
		return
	}
	if err := s.queue.EnqueueConfirm(r.Context(), token); err != nil {
		respondFailure(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) newsletters(w http.ResponseWriter, r *http.Request) {
	all, err := s.catalog.All(r.Context())
	if err != nil {
		respondFailure(w, err)
		return
	}

	// The catalog changes rarely, let clients cache it briefly.
	w.Header().Set("Cache-Control", "max-age=300")

	bySlug := make(map[string]any, len(all))
	for _, n := range all {
		bySlug[n.Slug] = envelope{
			"title":                 n.Title,
			"description":           n.Description,
			"languages":             n.Languages,
			"active":                n.Active,
			"show":                  n.Show,
			"private":               n.Private,
			"requires_double_optin": n.RequiresDoubleOptIn,
			"order":                 n.Order,
			"vendor_id":             n.VendorID,
		}
	}
	respondJSON(w, http.StatusOK, envelope{"status": "ok", "newsletters": bySlug})
}

func (s *Server) publicNewsletters(w http.ResponseWriter, r *http.Request) {
	all, err := s.catalog.All(r.Context())
	if err != nil {
		respondFailure(w, err)
		return
	}

	shown := []envelope{}
	for _, n := range all {
		if !n.Active || !n.Show {
			continue
		}
		shown = append(shown, envelope{
			"slug":        n.Slug,
			"title":       n.Title,
			"description": n.Description,
			"languages":   n.Languages,
		})
	}
	respondJSON(w, http.StatusOK, envelope{"status": "ok", "newsletters": shown})
}

func (s *Server) lookupUser(w http.ResponseWriter, r *http.Request) {
	if !isSecure(r) {
		respondError(w, http.StatusUnauthorized, codes.SSLRequired,
			"lookup-user requires SSL")
		return
	}

	q := r.URL.Query()
	token := q.Get("token")
	email := q.Get("email")

	switch {
	case token != "" && email != "":
		respondError(w, http.StatusBadRequest, codes.UsageError,
			"supply exactly one of token or email")

	case token != "":
		if !validToken(token) {
			respondError(w, http.StatusNotFound, codes.UnknownToken, "Unknown token")
			return
		}
		user, err := s.contacts.GetUserData(r.Context(), token, "")
		if err != nil {
			respondFailure(w, err)
			return
		}
		if user == nil {
			respondError(w, http.StatusNotFound, codes.UnknownToken, "Unknown token")
			return
		}
		respondJSON(w, http.StatusOK, user)

	case email != "":
		// Email addresses are PII, so looking one up takes an API key.
		if !s.hasValidAPIKey(r) {
			respondError(w, http.StatusUnauthorized, codes.AuthError,
				"lookup by email requires a valid api-key")
			return
		}
		clean, suggestion, err := news.ValidateEmail(email)
		if err != nil {
			respondInvalidEmail(w, suggestion)
			return
		}
		user, err := s.contacts.GetUserData(r.Context(), "", clean)
		if err != nil {
			respondFailure(w, err)
			return
		}
		if user == nil {
			respondError(w, http.StatusNotFound, codes.UnknownEmail, "Unknown email address")
			return
		}
		respondJSON(w, http.StatusOK, user)

	default:
		respondError(w, http.StatusBadRequest, codes.UsageError,
			"token or email is required")
	}
}

func (s *Server) recoverUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, codes.UsageError, "could not parse form data")
		return
	}

	rawEmail := r.PostForm.Get("email")
	if rawEmail == "" {
		respondError(w, http.StatusBadRequest, codes.UsageError, "email is required")
		return
	}
	email, suggestion, err := news.ValidateEmail(rawEmail)
	if err != nil {
		respondInvalidEmail(w, suggestion)
		return
	}

	blocked, err := s.catalog.EmailBlocked(r.Context(), email)
	if err != nil {
		respondFailure(w, err)
		return
	}
	if blocked {
		respondOK(w)
		return
	}

	user, err := s.contacts.GetUserData(r.Context(), "", email)
	if err != nil {
		respondFailure(w, err)
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, codes.UnknownEmail, "Unknown email address")
		return
	}

	if err := s.queue.EnqueueRecovery(r.Context(), email); err != nil {
		respondFailure(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) unsubReason(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, codes.UsageError, "could not parse form data")
		return
	}
	data := r.PostForm

	token := data.Get("token")
	reason := data.Get("reason")
	if token == "" || reason == "" {
		respondError(w, http.StatusBadRequest, codes.UsageError, "token and reason are required")
		return
	}
	if !validToken(token) {
		respondError(w, http.StatusNotFound, codes.UnknownToken, "Unknown token")
		return
	}

	if err := s.queue.EnqueueUnsubReason(r.Context(), token, reason); err != nil {
		respondFailure(w, err)
		return
	}
	respondOK(w)
}
