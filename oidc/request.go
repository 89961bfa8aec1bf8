// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"
)

// Request represents one OIDC authentication attempt for a user. It contains
// the data needed to uniquely represent that one-time attempt across the
// multiple interactions needed to complete the flow. State() is round-tripped
// through the IdP to correlate the redirect with the attempt, and Nonce() is
// bound into the id_token to prevent replay. The two cannot be equal.
//
// A Request is single-use and scoped to one session: no two outstanding
// attempts for the same session may share a nonce.
type Request interface {
	// State is a unique identifier and an opaque value used to maintain
	// state between the authorization request and the callback. State
	// cannot equal the Nonce.
	State() string

	// Nonce is a unique value used to associate a session with an
	// id_token and to mitigate replay attacks. Nonce cannot equal the
	// State.
	Nonce() string

	// IsExpired returns true if the request has expired. Implementations
	// should support a WithExpirySkew option and default to
	// DefaultRequestExpirySkew when none is provided.
	IsExpired(opt ...Option) bool
}

// Req represents the oidc request used for authentication attempts.
type Req struct {
	state      string
	nonce      string
	expiration time.Time
}

// ensure that Req implements the Request interface
var _ Request = (*Req)(nil)

// NewRequest creates a new Request (*Req) with a generated state and nonce
// that expires after expireIn.
func NewRequest(expireIn time.Duration, opt ...Option) (*Req, error) {
	const op = "oidc.NewRequest"
	opts := getReqOpts(opt...)
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	nonce, err := NewID("n")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request nonce: %w", op, err)
	}
	state, err := NewID("st")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request state: %w", op, err)
	}
	return &Req{
		state:      state,
		nonce:      nonce,
		expiration: opts.withNowFunc().Add(expireIn),
	}, nil
}

func (r *Req) State() string { return r.state } // State implements the Request.State() interface function
func (r *Req) Nonce() string { return r.nonce } // Nonce implements the Request.Nonce() interface function

// DefaultRequestExpirySkew defines a default time skew when checking a
// Request's expiration.
const DefaultRequestExpirySkew = 1 * time.Second

// IsExpired returns true if the request has expired. Supports the
// WithExpirySkew option and if none is provided it will use the
// DefaultRequestExpirySkew.
func (r *Req) IsExpired(opt ...Option) bool {
	opts := getReqOpts(opt...)
	return r.expiration.Before(opts.withNowFunc().Add(opts.withExpirySkew))
}

// reqOptions is the set of available options for Req functions
type reqOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// reqDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func reqDefaults() reqOptions {
	return reqOptions{
		withExpirySkew: DefaultRequestExpirySkew,
		withNowFunc:    time.Now,
	}
}

// getReqOpts gets the request defaults and applies the opt overrides passed
// in.
func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
