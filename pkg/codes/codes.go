// Package codes defines the numeric error codes carried in error
// responses. Clients branch on these instead of parsing descriptions,
// so the values are frozen.
package codes

const (
	// NetworkFailure means the contact backend could not be reached.
	NetworkFailure = 1
	// InvalidEmail means the email address failed validation.
	InvalidEmail = 2
	// UnknownEmail means no subscriber has the given email address.
	UnknownEmail = 3
	// UnknownToken means no subscriber has the given token.
	UnknownToken = 4
	// UsageError means the request was malformed or missing a parameter.
	UsageError = 5
	// EmailProviderAuthFailure means the contact backend rejected our credentials.
	EmailProviderAuthFailure = 6
	// AuthError means the request's API key was missing or invalid.
	AuthError = 7
	// SSLRequired means the operation is only allowed over HTTPS.
	SSLRequired = 8
	// InvalidNewsletter means a requested newsletter slug does not exist.
	InvalidNewsletter = 9
	// InvalidLanguage means the language code failed validation.
	InvalidLanguage = 10
	// UnknownError is the catch-all for unexpected failures.
	UnknownError = 99
)
