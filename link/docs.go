// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package link implements the login flow engine: it drives the OIDC
// authorization code flow end to end and maintains the durable binding
// between an externally-verified identity and a local account.
//
// The engine moves an authentication attempt through the states
// Unauthenticated -> AwaitingRedirect -> TokenReceived -> Bound (or
// Rejected). Initiate builds the authorization URL and stores the attempt's
// nonce, HandleRedirect exchanges the returned code, verifies and validates
// the id_token, and creates or updates the identity link record, and
// Disconnect removes the binding while making sure the account keeps a
// usable local authentication method.
//
// All flow operations take an explicit Session carrying the current account
// and the attempt's request storage; the package keeps no ambient state.
package link
