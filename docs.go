// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// oidclink provides a collection of related packages which implement a
// relying-party OIDC authorization code flow and bind the externally-verified
// identity to a local account:
//
// jwt: an id_token codec (compact JWS decode with claim lookup) and KeySets
// for verifying token signatures against the IdP's published keys.
//
// oidc: the relying-party client. Builds authorization URLs and exchanges
// authorization codes for tokens against explicitly configured endpoints (no
// provider discovery).
//
// link: the login flow engine. Drives the authentication state machine,
// validates id_tokens (signature, sub, nonce), and maintains the persisted
// binding between the external identity and the local account, including the
// disconnect flows.
//
// link/sqlite: a SQLite-backed identity link store.
//
// See README.md
package oidclink
