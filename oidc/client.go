// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
)

// Client is a relying party client for the 3-legged OIDC authorization code
// flow against a single, explicitly configured IdP. It builds authorization
// redirect URLs and exchanges authorization codes for tokens; the only
// network I/O happens inside Exchange.
type Client struct {
	config *Config
	client *http.Client
	logger hclog.Logger
}

// NewClient creates a Client for the configured IdP. The config is validated
// eagerly, before any network call is ever made on the client's behalf.
func NewClient(c *Config) (*Client, error) {
	const op = "oidc.NewClient"
	if c == nil {
		return nil, fmt.Errorf("%s: client config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: client config is invalid: %w", op, err)
	}
	client, err := c.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	logger := c.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{
		config: c,
		client: client,
		logger: logger.Named("oidc"),
	}, nil
}

// Config returns the client's configuration.
func (c *Client) Config() *Config {
	return c.config
}

// AuthURL generates the URL the caller should redirect the user's browser to
// in order to kick off the authorization code flow. The URL carries
// response_type=code, the client id, redirect URL, scopes, and the request's
// nonce and state, plus the resource indicator when one is configured.
//
// See NewRequest() to create a Request with a valid state and nonce that
// will uniquely identify the user's authentication attempt throughout the
// flow.
func (c *Client) AuthURL(_ context.Context, req Request) (string, error) {
	const op = "Client.AuthURL"
	if req == nil {
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if req.State() == req.Nonce() {
		return "", fmt.Errorf("%s: request state and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	if req.IsExpired() {
		return "", fmt.Errorf("%s: %w", op, ErrExpiredRequest)
	}

	// "openid" is a required scope for oidc flows
	scopes := append([]string{"openid"}, c.config.Scopes...)

	oauth2Config := oauth2.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: string(c.config.ClientSecret),
		RedirectURL:  c.config.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.config.AuthEndpoint,
			TokenURL:  c.config.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: scopes,
	}
	authCodeOpts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("nonce", req.Nonce()),
	}
	if c.config.Resource != "" {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("resource", c.config.Resource))
	}
	return oauth2Config.AuthCodeURL(req.State(), authCodeOpts...), nil
}

// Exchange requests a token from the token endpoint, using the
// authorizationCode received in an earlier successful authentication
// response. It POSTs grant_type=authorization_code with the code, client
// id/secret and redirect URL, form-encoded.
//
// Failures are classified: a network-level failure wraps ErrTransport
// (retryable in principle, but the exchange is never retried here since
// authorization codes are single-use), while a non-success response status
// or a malformed response body wraps ErrTokenExchange. A success response
// without an id_token wraps ErrMissingIDToken.
func (c *Client) Exchange(ctx context.Context, authorizationCode string) (*Token, error) {
	const op = "Client.Exchange"
	if authorizationCode == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {authorizationCode},
		"client_id":     {c.config.ClientID},
		"client_secret": {string(c.config.ClientSecret)},
		"redirect_uri":  {c.config.RedirectURL},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create token request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to reach token endpoint: %v: %w", op, err, ErrTransport)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read token response: %v: %w", op, err, ErrTransport)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("token endpoint returned an error", "status", resp.StatusCode, "error", oauthErrorCode(body))
		return nil, fmt.Errorf("%s: token endpoint returned status %d (%s): %w", op, resp.StatusCode, oauthErrorCode(body), ErrTokenExchange)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%s: token response is not valid JSON: %w", op, ErrTokenExchange)
	}
	if tr.IDToken == "" {
		return nil, fmt.Errorf("%s: id_token is missing from auth code exchange: %w", op, ErrMissingIDToken)
	}

	tk := &Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		IDToken:      IDToken(tr.IDToken),
		Scope:        tr.Scope,
		Resource:     tr.Resource,
		Expiry:       tr.expiry(time.Now()),
	}
	c.logger.Debug("exchanged authorization code", "has_refresh_token", tk.RefreshToken != "", "expiry", tk.Expiry)
	return tk, nil
}

// tokenResponse is the JSON body of a successful token endpoint response.
// expires_on (absolute, AD FS / Azure AD style) and expires_in (relative)
// are both accepted, and either may be sent as a JSON string.
type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	IDToken      string     `json:"id_token"`
	Scope        string     `json:"scope"`
	Resource     string     `json:"resource"`
	ExpiresOn    flexSecond `json:"expires_on"`
	ExpiresIn    flexSecond `json:"expires_in"`
}

// expiry normalizes the response's expiration to an absolute time,
// preferring the absolute expires_on over the relative expires_in. Zero time
// when the IdP sent neither.
func (t *tokenResponse) expiry(now time.Time) time.Time {
	switch {
	case t.ExpiresOn > 0:
		return time.Unix(int64(t.ExpiresOn), 0)
	case t.ExpiresIn > 0:
		return now.Add(time.Duration(t.ExpiresIn) * time.Second)
	default:
		return time.Time{}
	}
}

// flexSecond is a second count that may arrive as a JSON number or a JSON
// string of digits (Azure AD sends the latter).
type flexSecond int64

func (f *flexSecond) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("expected a second count, got %s", string(data))
	}
	*f = flexSecond(n)
	return nil
}

// oauthErrorCode pulls the "error" field out of an RFC 6749 error response
// body, best effort.
func oauthErrorCode(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		return "unknown error"
	}
	return e.Error
}
