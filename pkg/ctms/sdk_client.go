package ctms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultTimeout = 10 * time.Second

// Client is the CTMS API client. It authenticates with OAuth2 client
// credentials and transparently refreshes its access token.
type Client struct {
	baseURL    string
	base       *http.Client
	httpClient *http.Client
}

// ClientOption defines a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client used as the transport beneath
// the OAuth2 token handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.base = client
	}
}

// NewSDK creates a new CTMS API client.
func NewSDK(baseURL, clientID, clientSecret string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("client credentials are required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
	}

	for _, opt := range opts {
		opt(c)
	}

	conf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     c.baseURL + "/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	ctx := context.Background()
	if c.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	}
	c.httpClient = conf.Client(ctx)
	c.httpClient.Timeout = defaultTimeout

	return c, nil
}

func (c *Client) sendRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s%s", c.baseURL, path), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return &Error{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// AlternateIDs identifies a contact by something other than its primary key.
// At least one field must be set.
type AlternateIDs struct {
	EmailID      string
	PrimaryEmail string
	Token        string
}

func (ids AlternateIDs) values() url.Values {
	v := url.Values{}
	if ids.EmailID != "" {
		v.Set("email_id", ids.EmailID)
	}
	if ids.PrimaryEmail != "" {
		v.Set("primary_email", ids.PrimaryEmail)
	}
	if ids.Token != "" {
		v.Set("basket_token", ids.Token)
	}
	return v
}

// GetContact fetches a contact by its CTMS email ID.
//
// API: GET /ctms/{email_id}
//
// Errors:
//   - 404 Not Found: If no contact has the given email ID.
func (c *Client) GetContact(ctx context.Context, emailID string) (*Contact, error) {
	var contact Contact
	err := c.sendRequest(ctx, http.MethodGet, "/ctms/"+url.PathEscape(emailID), nil, &contact)
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// GetContactsByAlternateIDs fetches all contacts matching the given
// alternate IDs. An empty result is not an error.
//
// API: GET /ctms
//
// Errors:
//   - 400 Bad Request: If no alternate ID is set.
func (c *Client) GetContactsByAlternateIDs(ctx context.Context, ids AlternateIDs) ([]Contact, error) {
	params := ids.values()
	if len(params) == 0 {
		return nil, fmt.Errorf("at least one alternate id is required")
	}

	var contacts []Contact
	err := c.sendRequest(ctx, http.MethodGet, "/ctms?"+params.Encode(), nil, &contacts)
	if err != nil {
		return nil, err
	}
	return contacts, nil
}

// CreateContact creates a new contact.
//
// API: POST /ctms
//
// Idempotency: Not idempotent
//
// Errors:
//   - 409 Conflict: If a contact with the same primary email or email ID already exists.
//   - 422 Unprocessable Entity: If the contact payload is invalid.
func (c *Client) CreateContact(ctx context.Context, contact Contact) error {
	return c.sendRequest(ctx, http.MethodPost, "/ctms", contact, nil)
}

// UpdateContact applies a partial update to an existing contact.
//
// API: PATCH /ctms/{email_id}
//
// Idempotency: Idempotent
//
// Errors:
//   - 404 Not Found: If no contact has the given email ID.
//   - 422 Unprocessable Entity: If the patch payload is invalid.
func (c *Client) UpdateContact(ctx context.Context, emailID string, patch ContactPatch) (*Contact, error) {
	var contact Contact
	err := c.sendRequest(ctx, http.MethodPatch, "/ctms/"+url.PathEscape(emailID), patch, &contact)
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// ReplaceContact creates or fully replaces the contact stored under the
// given email ID.
//
// API: PUT /ctms/{email_id}
//
// Idempotency: Idempotent
//
// Errors:
//   - 409 Conflict: If the primary email belongs to a different contact.
//   - 422 Unprocessable Entity: If the contact payload is invalid.
func (c *Client) ReplaceContact(ctx context.Context, emailID string, contact Contact) error {
	return c.sendRequest(ctx, http.MethodPut, "/ctms/"+url.PathEscape(emailID), contact, nil)
}
