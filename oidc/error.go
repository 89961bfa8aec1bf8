// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import "errors"

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNilParameter      = errors.New("nil parameter")
	ErrInvalidCACert     = errors.New("invalid CA certificate")
	ErrIDGeneratorFailed = errors.New("id generation failed")

	// ErrExpiredRequest means the per-attempt authentication request has
	// expired and its nonce/state must not be accepted.
	ErrExpiredRequest = errors.New("authentication request is expired")

	// ErrResponseState means the state returned by the IdP does not match
	// the state of the pending authentication request.
	ErrResponseState = errors.New("oidc response state is not valid")

	// ErrMissingIDToken means the token endpoint response did not include
	// an id_token.
	ErrMissingIDToken = errors.New("id_token is missing")

	// ErrTokenExchange means the token endpoint answered with a non-success
	// status or a malformed body. The authorization code has been consumed
	// either way; the exchange must not be retried with the same code.
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrTransport means the token endpoint could not be reached at the
	// network level. Retryable in principle, but never retried here: the
	// caller must decide, knowing authorization codes are single-use.
	ErrTransport = errors.New("transport failure")
)
