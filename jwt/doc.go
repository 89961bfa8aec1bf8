// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package jwt provides an id_token codec and signature verification for the
// oidclink packages.
//
// Decode splits a compact JWS into its header, claims and signature parts
// without trusting any of them. A decoded token carries no trust: callers
// must verify the token's signature with a KeySet before acting on its
// claims.
//
// KeySet implementations are expected to be backed by the IdP's published
// keys: JSONWebKeySet fetches them from a configured JWKS URL, and
// StaticKeySet uses local PEM-encoded public keys.
package jwt
