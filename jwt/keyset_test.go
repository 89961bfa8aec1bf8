// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
)

func testPublicPEM(t *testing.T, key *ecdsa.PrivateKey) string {
	t.Helper()
	derBytes, err := x509.MarshalPKIXPublicKey(key.Public())
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: derBytes}))
}

func TestNewStaticKeySet(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	_, err := NewStaticKeySet(nil)
	require.Error(err)
	assert.True(errors.Is(err, ErrInvalidParameter))

	_, err = NewStaticKeySet([]string{"not-a-pem"})
	require.Error(err)

	_, priv := testKeyPair(t)
	ks, err := NewStaticKeySet([]string{testPublicPEM(t, priv)})
	require.NoError(err)
	assert.NotNil(ks)
}

func testKeyPair(t *testing.T) (string, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return testPublicPEM(t, priv), priv
}

func TestStaticKeySet_VerifySignature(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	claims := map[string]interface{}{"sub": "alice", "nonce": "n_1"}

	pub, priv := testKeyPair(t)
	otherPub, _ := testKeyPair(t)

	encoded := testSignWithKey(t, priv, claims)

	tests := []struct {
		name      string
		keys      []string
		token     string
		wantErr   bool
		wantIsErr error
	}{
		{
			name:  "valid",
			keys:  []string{pub},
			token: encoded,
		},
		{
			name:  "valid-second-key",
			keys:  []string{otherPub, pub},
			token: encoded,
		},
		{
			name:      "unknown-key",
			keys:      []string{otherPub},
			token:     encoded,
			wantErr:   true,
			wantIsErr: ErrInvalidSignature,
		},
		{
			name:      "not-a-jws",
			keys:      []string{pub},
			token:     "not.a.jws",
			wantErr:   true,
			wantIsErr: ErrMalformedToken,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			ks, err := NewStaticKeySet(tt.keys)
			require.NoError(err)
			got, err := ks.VerifySignature(ctx, tt.token)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted %q but got %q", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal("alice", got["sub"])
			assert.Equal("n_1", got["nonce"])
		})
	}
}

func testSignWithKey(t *testing.T, key *ecdsa.PrivateKey, claims map[string]interface{}) string {
	t.Helper()
	require := require.New(t)
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(err)
	payload, err := json.Marshal(claims)
	require.NoError(err)
	jws, err := sig.Sign(payload)
	require.NoError(err)
	raw, err := jws.CompactSerialize()
	require.NoError(err)
	return raw
}

func TestJSONWebKeySet_VerifySignature(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, priv := testKeyPair(t)
	_, wrongPriv := testKeyPair(t)

	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jwks := jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{{
				Key:       priv.Public(),
				KeyID:     "test-key",
				Algorithm: string(jose.ES256),
				Use:       "sig",
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(jwksServer.Close)

	t.Run("missing-url", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := NewJSONWebKeySet(ctx, "", "")
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
	t.Run("invalid-ca-pem", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := NewJSONWebKeySet(ctx, jwksServer.URL, "not-a-pem")
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidCACert))
	})
	t.Run("valid-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		ks, err := NewJSONWebKeySet(ctx, jwksServer.URL, "")
		require.NoError(err)
		encoded := testSignWithKey(t, priv, map[string]interface{}{"sub": "alice"})
		claims, err := ks.VerifySignature(ctx, encoded)
		require.NoError(err)
		assert.Equal("alice", claims["sub"])
	})
	t.Run("unknown-signer", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		ks, err := NewJSONWebKeySet(ctx, jwksServer.URL, "")
		require.NoError(err)
		encoded := testSignWithKey(t, wrongPriv, map[string]interface{}{"sub": "alice"})
		_, err = ks.VerifySignature(ctx, encoded)
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidSignature))
	})
}
