// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"time"
)

// Token represents the parameters returned by the IdP's token endpoint for
// one authorization-code exchange. It is created per exchange, consumed to
// build or update an identity link record, and then discarded; only select
// fields are persisted by the caller.
type Token struct {
	// AccessToken is the bearer token issued by the IdP
	AccessToken string

	// RefreshToken is optional, based on the IdP
	RefreshToken string

	// IDToken is the encoded id_token from the exchange response
	IDToken IDToken

	// Scope is the granted scope as reported by the IdP
	Scope string

	// Resource is the resource indicator echoed by AD FS / Azure AD style
	// IdPs
	Resource string

	// Expiry is the absolute expiration of the AccessToken
	Expiry time.Time
}

const defaultTokenExpirySkew = 10 * time.Second

// Expired returns true if the token's access token is expired or will expire
// within the expiry skew (default 10s). Supports: WithExpirySkew, WithNow
func (t *Token) Expired(opt ...Option) bool {
	if t.Expiry.IsZero() {
		return false
	}
	opts := getTokenOpts(opt...)
	return t.Expiry.Round(0).Before(opts.withNowFunc().Add(opts.withExpirySkew))
}

// Valid will ensure that the access token is not empty or expired.
func (t *Token) Valid() bool {
	if t == nil {
		return false
	}
	if t.AccessToken == "" {
		return false
	}
	return !t.Expired()
}

// tokenOptions is the set of available options for Token functions
type tokenOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// tokenDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func tokenDefaults() tokenOptions {
	return tokenOptions{
		withExpirySkew: defaultTokenExpirySkew,
		withNowFunc:    time.Now,
	}
}

// getTokenOpts gets the token defaults and applies the opt overrides passed
// in.
func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
