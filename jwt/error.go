// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import "errors"

var (
	// ErrMalformedToken means the encoded token does not split into the
	// three dot-delimited parts of a compact JWS, or one of its first two
	// parts is not valid base64url-encoded JSON.
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidSignature means no known key successfully validated the
	// token's signature.
	ErrInvalidSignature = errors.New("invalid signature")

	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidCACert    = errors.New("invalid CA certificate")
)
