package contacts

import (
	"net/http"

	"github.com/pannier-io/pannier/pkg/codes"
	"github.com/pannier-io/pannier/pkg/ctms"
)

// StatusError carries the client-facing error code and HTTP status for
// a failed subscriber operation.
type StatusError struct {
	Desc   string
	Code   int
	Status int
}

func (e *StatusError) Error() string {
	return e.Desc
}

func errUnknownToken() *StatusError {
	return &StatusError{
		Desc:   "Unknown token",
		Code:   codes.UnknownToken,
		Status: http.StatusNotFound,
	}
}

func errUnknownEmail() *StatusError {
	return &StatusError{
		Desc:   "Unknown email address",
		Code:   codes.UnknownEmail,
		Status: http.StatusNotFound,
	}
}

// vendorError translates a CTMS client error into a StatusError.
func vendorError(err error) *StatusError {
	switch {
	case ctms.IsUnauthorized(err):
		return &StatusError{
			Desc:   "Email service provider auth failure",
			Code:   codes.EmailProviderAuthFailure,
			Status: http.StatusInternalServerError,
		}
	case ctms.IsClientError(err):
		return &StatusError{
			Desc:   "Email service provider rejected the request",
			Code:   codes.UnknownError,
			Status: http.StatusInternalServerError,
		}
	default:
		return &StatusError{
			Desc:   "Error communicating with the email service provider",
			Code:   codes.NetworkFailure,
			Status: http.StatusBadRequest,
		}
	}
}
