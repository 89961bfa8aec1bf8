// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package link

import "time"

// Record is the durable binding between a local account and an external
// identity. It is created on the first successful authentication for an
// account, its token fields are overwritten on every re-authentication, and
// it is deleted on disconnect.
//
// ExternalUniqueID, LocalUsername and ExternalUsername are set once at
// creation and never changed by updates. At most one live record exists per
// LocalUsername; stores enforce this with a uniqueness constraint.
type Record struct {
	// ID is the store's surrogate identifier
	ID string

	// ExternalUniqueID identifies the external identity: the "oid" claim,
	// falling back to "sub"
	ExternalUniqueID string

	// LocalUsername identifies the bound local account
	LocalUsername string

	// ExternalUsername is a display/lookup convenience, not a trust
	// anchor: the "upn" claim, falling back to "sub"
	ExternalUsername string

	Scope        string
	Resource     string
	AuthCode     string
	AccessToken  string
	RefreshToken string

	// IDToken is the encoded id_token, kept for re-verification
	IDToken string

	// Expiry is the absolute expiration of the access token
	Expiry time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenFields are the only record fields a re-authentication may overwrite.
type TokenFields struct {
	AuthCode     string
	AccessToken  string
	RefreshToken string
	IDToken      string
	Scope        string
	Resource     string
	Expiry       time.Time
}
