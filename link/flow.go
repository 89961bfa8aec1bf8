// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/oidclink/jwt"
	"github.com/hashicorp/oidclink/oidc"
)

// Flow is the capability interface every login flow variant conforms to.
// Alternative flows (app-only, device code, ...) implement the same three
// operations rather than inheriting from a shared base.
type Flow interface {
	// Initiate starts an authentication attempt: it generates a nonce and
	// state, stores them in the session, and returns the authorization
	// URL to redirect the user's browser to.
	Initiate(ctx context.Context, sess *Session) (authURL string, err error)

	// HandleRedirect consumes the IdP's redirect: it exchanges the
	// authorization code, verifies and validates the id_token, and
	// creates or updates the identity link record for the session's
	// account.
	HandleRedirect(ctx context.Context, sess *Session, cb Callback) (*Record, error)

	// Disconnect removes the identity link, keeping the account
	// authenticatable per the requested mode.
	Disconnect(ctx context.Context, sess *Session, req DisconnectRequest) error
}

// DefaultRequestTTL bounds how long an initiated attempt's nonce and state
// stay acceptable.
const DefaultRequestTTL = 10 * time.Minute

// AuthCodeFlow is the browser-redirect authorization code variant of Flow.
type AuthCodeFlow struct {
	client   *oidc.Client
	keys     jwt.KeySet
	store    Store
	accounts Accounts
	events   Sink
	logger   hclog.Logger

	requestTTL time.Duration
}

var _ Flow = (*AuthCodeFlow)(nil)

// NewAuthCodeFlow creates an AuthCodeFlow. The keyset must be backed by the
// IdP's published keys: no claim is ever trusted before the id_token's
// signature has been verified against it.
// Supported options: WithAccounts, WithSink, WithLogger, WithRequestTTL
func NewAuthCodeFlow(client *oidc.Client, keys jwt.KeySet, store Store, opt ...Option) (*AuthCodeFlow, error) {
	const op = "link.NewAuthCodeFlow"
	if client == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	}
	if keys == nil {
		return nil, fmt.Errorf("%s: keyset is nil: %w", op, ErrNilParameter)
	}
	if store == nil {
		return nil, fmt.Errorf("%s: store is nil: %w", op, ErrNilParameter)
	}
	opts := getOpts(opt...)
	logger := opts.withLogger.Named("link")
	events := opts.withSink
	if events == nil {
		events = &LogSink{Logger: logger}
	}
	return &AuthCodeFlow{
		client:     client,
		keys:       keys,
		store:      store,
		accounts:   opts.withAccounts,
		events:     events,
		logger:     logger,
		requestTTL: opts.withRequestTTL,
	}, nil
}

// Initiate implements Flow.Initiate.
func (f *AuthCodeFlow) Initiate(ctx context.Context, sess *Session) (string, error) {
	const op = "AuthCodeFlow.Initiate"
	if sess == nil || sess.Requests == nil {
		return "", fmt.Errorf("%s: session request store is nil: %w", op, ErrNilParameter)
	}
	req, err := oidc.NewRequest(f.requestTTL)
	if err != nil {
		return "", fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	authURL, err := f.client.AuthURL(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: unable to build authorization URL: %w", op, err)
	}
	if err := sess.Requests.Put(req); err != nil {
		return "", fmt.Errorf("%s: unable to store request: %w", op, err)
	}
	f.logger.Debug("authentication initiated", "username", sess.Username)
	return authURL, nil
}

// HandleRedirect implements Flow.HandleRedirect.
//
// The pending request is taken from the session before anything can fail:
// the nonce is single-use regardless of the outcome, so a failed attempt
// can never be replayed with the same nonce.
func (f *AuthCodeFlow) HandleRedirect(ctx context.Context, sess *Session, cb Callback) (*Record, error) {
	const op = "AuthCodeFlow.HandleRedirect"
	if sess == nil || sess.Requests == nil {
		return nil, fmt.Errorf("%s: session request store is nil: %w", op, ErrNilParameter)
	}
	if cb.Error != "" {
		f.logger.Info("authentication denied by IdP", "error", cb.Error, "description", cb.ErrorDescription)
		return nil, fmt.Errorf("%s: %s: %w", op, cb.Error, ErrIdPDenied)
	}

	req, ok := sess.Requests.Take()
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNoRequest)
	}
	if cb.State != req.State() {
		return nil, fmt.Errorf("%s: %w", op, oidc.ErrResponseState)
	}
	if req.IsExpired() {
		return nil, fmt.Errorf("%s: %w", op, oidc.ErrExpiredRequest)
	}
	if cb.Code == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}

	tk, err := f.client.Exchange(ctx, cb.Code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Trust gate: the signature must check out against the IdP's published
	// keys before a single claim is read.
	if _, err := f.keys.VerifySignature(ctx, string(tk.IDToken)); err != nil {
		f.logger.Error("id_token failed signature verification", "error", err)
		return nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
	}
	idt, err := jwt.Decode(string(tk.IDToken))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to decode id_token: %w", op, err)
	}

	uniq, err := processIDToken(idt, req.Nonce())
	if err != nil {
		f.logger.Error("id_token failed claim validation", "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rec, err := f.resolveBinding(ctx, sess.Username, uniq, idt, cb.Code, tk)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	f.logger.Info("identity bound", "username", rec.LocalUsername, "external_unique_id", rec.ExternalUniqueID)
	return rec, nil
}

// processIDToken validates a decoded (and already signature-verified)
// id_token's claims and derives the external unique id: the "oid" claim,
// falling back to "sub".
//
// The nonce check accepts anything when the original nonce is empty; a
// non-empty original nonce requires an exactly matching "nonce" claim.
func processIDToken(idt *jwt.IDToken, originalNonce string) (string, error) {
	const op = "link.processIDToken"
	sub := idt.StringClaim("sub")
	if sub == "" {
		return "", fmt.Errorf("%s: sub claim is missing: %w", op, ErrInvalidIDToken)
	}
	if originalNonce != "" {
		received, ok := idt.Claim("nonce")
		receivedStr, _ := received.(string)
		if !ok || receivedStr != originalNonce {
			return "", fmt.Errorf("%s: nonce claim is missing or does not match: %w", op, ErrInvalidIDToken)
		}
	}
	if oid := idt.StringClaim("oid"); oid != "" {
		return oid, nil
	}
	return sub, nil
}

// externalUsername derives the display/lookup username for a new record:
// the "upn" claim, falling back to "sub".
func externalUsername(idt *jwt.IDToken) (string, error) {
	const op = "link.externalUsername"
	if upn := idt.StringClaim("upn"); upn != "" {
		return upn, nil
	}
	// sub was already validated, but re-check defensively: a record must
	// never be created with an empty external username.
	if sub := idt.StringClaim("sub"); sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("%s: upn and sub claims are both missing: %w", op, ErrInvalidIDToken)
}

// resolveBinding looks up the identity link for the local username and
// either creates it or overwrites its token fields. An insert losing a race
// with another flow for the same account retries the lookup-then-decide
// sequence exactly once.
func (f *AuthCodeFlow) resolveBinding(ctx context.Context, username, uniq string, idt *jwt.IDToken, authCode string, tk *oidc.Token) (*Record, error) {
	const op = "AuthCodeFlow.resolveBinding"
	if username == "" {
		return nil, fmt.Errorf("%s: session username is empty: %w", op, ErrInvalidParameter)
	}
	fields := TokenFields{
		AuthCode:     authCode,
		AccessToken:  tk.AccessToken,
		RefreshToken: tk.RefreshToken,
		IDToken:      idt.Encoded(),
		Scope:        tk.Scope,
		Resource:     tk.Resource,
		Expiry:       tk.Expiry,
	}

	for attempt := 0; ; attempt++ {
		existing, err := f.store.FindByUsername(ctx, username)
		switch {
		case err == nil:
			// ExternalUniqueID, LocalUsername and ExternalUsername stay
			// as they were at creation.
			if err := f.store.UpdateTokens(ctx, existing.ID, fields); err != nil {
				return nil, fmt.Errorf("%s: unable to update record: %w", op, err)
			}
			updated := *existing
			updated.AuthCode = fields.AuthCode
			updated.AccessToken = fields.AccessToken
			updated.RefreshToken = fields.RefreshToken
			updated.IDToken = fields.IDToken
			updated.Scope = fields.Scope
			updated.Resource = fields.Resource
			updated.Expiry = fields.Expiry
			return &updated, nil

		case errors.Is(err, ErrNotFound):
			extUsername, err := externalUsername(idt)
			if err != nil {
				return nil, err
			}
			rec := &Record{
				ExternalUniqueID: uniq,
				LocalUsername:    username,
				ExternalUsername: extUsername,
				Scope:            fields.Scope,
				Resource:         fields.Resource,
				AuthCode:         fields.AuthCode,
				AccessToken:      fields.AccessToken,
				RefreshToken:     fields.RefreshToken,
				IDToken:          fields.IDToken,
				Expiry:           fields.Expiry,
			}
			id, err := f.store.Insert(ctx, rec)
			if errors.Is(err, ErrDuplicateBinding) && attempt == 0 {
				f.logger.Warn("insert raced another binding for the account, retrying lookup", "username", username)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%s: unable to insert record: %w", op, err)
			}
			rec.ID = id
			return rec, nil

		default:
			return nil, fmt.Errorf("%s: unable to look up record: %w", op, err)
		}
	}
}

// Option defines a common functional options type
type Option func(interface{})

// flowOptions is the set of available options for flow functions
type flowOptions struct {
	withAccounts   Accounts
	withSink       Sink
	withLogger     hclog.Logger
	withRequestTTL time.Duration
}

// flowDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func flowDefaults() flowOptions {
	return flowOptions{
		withLogger:     hclog.NewNullLogger(),
		withRequestTTL: DefaultRequestTTL,
	}
}

func getOpts(opt ...Option) flowOptions {
	opts := flowDefaults()
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// WithAccounts provides the host user-management collaborator, required for
// the interactive disconnect flow.
func WithAccounts(a Accounts) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withAccounts = a
		}
	}
}

// WithSink provides an optional event sink.
func WithSink(s Sink) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withSink = s
		}
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithRequestTTL provides an optional TTL for initiated requests.
func WithRequestTTL(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok && d > 0 {
			o.withRequestTTL = d
		}
	}
}
