package ctms

import "encoding/json"

// UnsubscribeAll is the sentinel CTMS accepts in place of a newsletter
// list to mark every subscription unsubscribed in one call.
const UnsubscribeAll = "UNSUBSCRIBE"

// Email is the identity block of a CTMS contact.
type Email struct {
	EmailID           string `json:"email_id,omitempty"`
	PrimaryEmail      string `json:"primary_email,omitempty"`
	Token             string `json:"basket_token,omitempty"`
	DoubleOptIn       *bool  `json:"double_opt_in,omitempty"`
	HasOptedOutOfMail *bool  `json:"has_opted_out_of_email,omitempty"`
	FirstName         string `json:"first_name,omitempty"`
	LastName          string `json:"last_name,omitempty"`
	MailingCountry    string `json:"mailing_country,omitempty"`
	EmailFormat       string `json:"email_format,omitempty"`
	EmailLang         string `json:"email_lang,omitempty"`
	UnsubscribeReason string `json:"unsubscribe_reason,omitempty"`
	CreateTimestamp   string `json:"create_timestamp,omitempty"`
	UpdateTimestamp   string `json:"update_timestamp,omitempty"`
}

// Subscription is one newsletter membership on a contact. Subscribed=false
// records a past membership the contact has left.
type Subscription struct {
	Name       string `json:"name"`
	Subscribed bool   `json:"subscribed"`
	Format     string `json:"format,omitempty"`
	Lang       string `json:"lang,omitempty"`
	Source     string `json:"source,omitempty"`
}

// Contact is a full CTMS contact record.
type Contact struct {
	Email       Email          `json:"email"`
	Newsletters []Subscription `json:"newsletters,omitempty"`
}

// SubscriptionPatch is the newsletters portion of a ContactPatch. It
// marshals either as a list of subscription changes or, when
// UnsubscribeAll is set, as the unsubscribe sentinel string.
type SubscriptionPatch struct {
	UnsubscribeAll bool
	Subscriptions  []Subscription
}

func (p SubscriptionPatch) MarshalJSON() ([]byte, error) {
	if p.UnsubscribeAll {
		return json.Marshal(UnsubscribeAll)
	}
	return json.Marshal(p.Subscriptions)
}

// ContactPatch is a partial contact update for UpdateContact. Nil fields
// are left untouched.
type ContactPatch struct {
	Email       *Email             `json:"email,omitempty"`
	Newsletters *SubscriptionPatch `json:"newsletters,omitempty"`
}

// Bool returns a pointer to b, for the optional boolean fields above.
func Bool(b bool) *bool {
	return &b
}
