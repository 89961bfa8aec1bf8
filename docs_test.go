// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidclink_test

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/oidclink/jwt"
	"github.com/hashicorp/oidclink/link"
	"github.com/hashicorp/oidclink/oidc"
)

func Example_authCodeFlow() {
	ctx := context.Background()

	// Resolve the flow settings (defaults, then stored administrator
	// settings, then the forced policy layer)
	settings, err := link.ResolveSettings(map[string]interface{}{
		"clientid":      "your_client_id",
		"clientsecret":  "your_client_secret",
		"authendpoint":  "https://your-idp.com/adfs/oauth2/authorize",
		"tokenendpoint": "https://your-idp.com/adfs/oauth2/token",
		"jwksendpoint":  "https://your-idp.com/adfs/discovery/keys",
	})
	if err != nil {
		// handle error
	}

	// Create the relying-party client for the configured endpoints
	cfg, err := settings.ClientConfig("https://your-app.com/oidc/callback")
	if err != nil {
		// handle error
	}
	client, err := oidc.NewClient(cfg)
	if err != nil {
		// handle error
	}

	// Keys published by the IdP; id_token signatures are verified against
	// them before any claim is trusted
	keys, err := jwt.NewJSONWebKeySet(ctx, settings.JWKSEndpoint, "")
	if err != nil {
		// handle error
	}

	// Create the flow engine. Use link/sqlite for a durable store.
	flow, err := link.NewAuthCodeFlow(client, keys, link.NewMemoryStore())
	if err != nil {
		// handle error
	}

	// Start an authentication attempt for the user's session
	sess := &link.Session{Username: "alice", Requests: &link.MemoryRequestStore{}}
	authURL, err := flow.Initiate(ctx, sess)
	if err != nil {
		// handle error
	}
	fmt.Println("open url to kick-off authentication: ", authURL)

	// Create a http.Handler for the IdP's authentication response redirects
	callbackHandler := func(w http.ResponseWriter, r *http.Request) {
		rec, err := flow.HandleRedirect(r.Context(), sess, link.Callback{
			Code:             r.FormValue("code"),
			State:            r.FormValue("state"),
			Error:            r.FormValue("error"),
			ErrorDescription: r.FormValue("error_description"),
		})
		if err != nil {
			// handle error
		}
		fmt.Fprintf(w, "linked local account %s to %s", rec.LocalUsername, rec.ExternalUsername)
	}
	http.HandleFunc("/oidc/callback", callbackHandler)
}
