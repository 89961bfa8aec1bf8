// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package oidc provides a relying party client for the 3-legged OIDC
// authorization code flow against an IdP whose endpoints are configured
// explicitly (no provider metadata discovery).
//
// Client.AuthURL builds the authorization redirect and Client.Exchange
// performs the authorization-code-for-token exchange; Request carries one
// authentication attempt's state and nonce.
//
// Primary types provided by the package: Config, Client, Request, Token
//
// The package includes a TestProvider that implements a local IdP which is
// useful for testing flows built on the client.
package oidc
