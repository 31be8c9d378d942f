package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pannier-io/pannier/internal/contacts"
	"github.com/pannier-io/pannier/pkg/codes"
)

type envelope map[string]any

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondOK(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, envelope{"status": "ok"})
}

func respondError(w http.ResponseWriter, status, code int, desc string) {
	respondJSON(w, status, envelope{
		"status": "error",
		"code":   code,
		"desc":   desc,
	})
}

func respondInvalidEmail(w http.ResponseWriter, suggestion string) {
	e := envelope{
		"status": "error",
		"code":   codes.InvalidEmail,
		"desc":   "Invalid email address",
	}
	if suggestion != "" {
		e["suggestion"] = suggestion
	}
	respondJSON(w, http.StatusBadRequest, e)
}

// respondFailure maps a service error onto the error envelope, keeping
// the coded status when the error carries one.
func respondFailure(w http.ResponseWriter, err error) {
	var statusErr *contacts.StatusError
	if errors.As(err, &statusErr) {
		respondError(w, statusErr.Status, statusErr.Code, statusErr.Desc)
		return
	}
	respondError(w, http.StatusInternalServerError, codes.UnknownError, "Unknown error")
}
