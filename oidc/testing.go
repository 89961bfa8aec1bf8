// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	josejwt "gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is a local httptest IdP for the authorization code flow. It
// serves a token endpoint and a JWKS endpoint, signs id_tokens with a
// generated ECDSA P-256 key, and records how many token requests it has
// seen so tests can assert that no network call happened.
type TestProvider struct {
	t          *testing.T
	httpServer *httptest.Server
	privKey    *ecdsa.PrivateKey
	keyID      string

	mu             sync.Mutex
	tokenHits      int
	idTokenClaims  map[string]interface{}
	tokenResponse  map[string]interface{}
	tokenErrStatus int
	tokenErrBody   string
}

// StartTestProvider creates and starts a running TestProvider. The provider
// and its http server are stopped via t.Cleanup.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)

	p := &TestProvider{
		t:       t,
		privKey: privKey,
		keyID:   "test-key",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", p.handleToken)
	mux.HandleFunc("/.well-known/jwks.json", p.handleJWKS)
	p.httpServer = httptest.NewServer(mux)
	t.Cleanup(p.httpServer.Close)
	return p
}

// Addr returns the test provider's base URL.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// AuthEndpoint returns the test provider's authorization endpoint URL.
func (p *TestProvider) AuthEndpoint() string { return p.httpServer.URL + "/authorize" }

// TokenEndpoint returns the test provider's token endpoint URL.
func (p *TestProvider) TokenEndpoint() string { return p.httpServer.URL + "/token" }

// JWKSEndpoint returns the test provider's JWKS URL.
func (p *TestProvider) JWKSEndpoint() string { return p.httpServer.URL + "/.well-known/jwks.json" }

// PublicKeyPEM returns the PEM-encoded public half of the provider's
// signing key, suitable for a static keyset.
func (p *TestProvider) PublicKeyPEM() string {
	p.t.Helper()
	require := require.New(p.t)
	derBytes, err := x509.MarshalPKIXPublicKey(p.privKey.Public())
	require.NoError(err)
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}))
}

// SignIDToken bundles the given claims into an id_token signed with the
// provider's key.
func (p *TestProvider) SignIDToken(claims map[string]interface{}) string {
	p.t.Helper()
	require := require.New(p.t)
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: p.privKey},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", p.keyID),
	)
	require.NoError(err)
	raw, err := josejwt.Signed(sig).Claims(claims).CompactSerialize()
	require.NoError(err)
	return raw
}

// SetIDTokenClaims sets the claims the provider will bundle into the
// id_token of its next token responses.
func (p *TestProvider) SetIDTokenClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTokenClaims = claims
}

// SetTokenResponse overrides fields of the provider's token response body.
// An "id_token" entry takes precedence over SetIDTokenClaims.
func (p *TestProvider) SetTokenResponse(fields map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenResponse = fields
}

// SetTokenError makes the token endpoint answer with the given status and
// raw body until reset with a zero status.
func (p *TestProvider) SetTokenError(status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenErrStatus = status
	p.tokenErrBody = body
}

// TokenRequestCount reports how many requests the token endpoint has seen.
func (p *TestProvider) TokenRequestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenHits
}

func (p *TestProvider) handleToken(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	p.tokenHits++
	errStatus, errBody := p.tokenErrStatus, p.tokenErrBody
	claims := p.idTokenClaims
	overrides := p.tokenResponse
	p.mu.Unlock()

	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if errStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(errStatus)
		_, _ = w.Write([]byte(errBody))
		return
	}

	body := map[string]interface{}{
		"access_token":  "test-access-token",
		"refresh_token": "test-refresh-token",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"scope":         "openid",
	}
	if claims != nil {
		body["id_token"] = p.SignIDToken(claims)
	}
	for k, v := range overrides {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (p *TestProvider) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	jwks := jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       p.privKey.Public(),
				KeyID:     p.keyID,
				Algorithm: string(jose.ES256),
				Use:       "sig",
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jwks)
}
