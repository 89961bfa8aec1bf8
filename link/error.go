// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package link

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")

	// ErrNotFound means no identity link record matched.
	ErrNotFound = errors.New("not found")

	// ErrNoRequest means the session has no pending authentication
	// request for the redirect being handled (or it was already used).
	ErrNoRequest = errors.New("no pending authentication request")

	// ErrIdPDenied means the user or the IdP declined the authentication.
	// This is a "cancelled" outcome rather than a failure; no token
	// exchange is attempted.
	ErrIdPDenied = errors.New("authentication was denied")

	// ErrInvalidIDToken means the id_token's claims failed validation: a
	// missing subject, a nonce replay/mismatch, or a missing username
	// claim. Fatal to the attempt; the user sees a generic auth failure
	// while the detail is logged.
	ErrInvalidIDToken = errors.New("invalid id_token")

	// ErrDuplicateBinding means an insert raced another flow binding the
	// same local account. The engine retries the lookup-then-decide
	// sequence once before surfacing it.
	ErrDuplicateBinding = errors.New("duplicate identity binding")

	// Disconnect-flow validation errors; recoverable by re-submission.
	ErrNoFallbackAuthMethod  = errors.New("no fallback authentication method is available")
	ErrInvalidFallbackChoice = errors.New("invalid fallback method choice")
	ErrEmptyPassword         = errors.New("password is empty")
	ErrUsernameCollision     = errors.New("username is already taken")
)
