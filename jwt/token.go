// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// RedactedToken is the redacted string for an encoded id_token
const RedactedToken = "[REDACTED: id_token]"

// HeaderField is a single JOSE header field. Decode preserves the order the
// fields appeared in on the wire.
type HeaderField struct {
	Name  string
	Value interface{}
}

// IDToken is a decoded id_token: ordered header fields, a claim map, the raw
// signature bytes and the original encoded string (needed for persistence
// and re-verification). An IDToken is immutable once constructed.
//
// A decoded IDToken carries no trust. Verify the encoded token with a KeySet
// before acting on any of its claims.
type IDToken struct {
	header    []HeaderField
	claims    map[string]interface{}
	signature []byte
	encoded   string
}

// Decode decodes a compact-serialization JWS (header.claims.signature) into
// an IDToken. It returns ErrMalformedToken if the string does not split into
// the expected three dot-delimited parts, or if either of the first two
// parts is not valid base64url-encoded JSON.
//
// Decode performs no signature verification. See KeySet.
func Decode(encoded string) (*IDToken, error) {
	const op = "jwt.Decode"
	if encoded == "" {
		return nil, fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	}
	parts := strings.Split(encoded, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%s: expected 3 parts, got %d: %w", op, len(parts), ErrMalformedToken)
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%s: header is not valid base64url: %w", op, ErrMalformedToken)
	}
	header, err := decodeHeader(headerJSON)
	if err != nil {
		return nil, fmt.Errorf("%s: header is not a JSON object: %w", op, ErrMalformedToken)
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%s: claims are not valid base64url: %w", op, ErrMalformedToken)
	}
	var claims map[string]interface{}
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, fmt.Errorf("%s: claims are not a JSON object: %w", op, ErrMalformedToken)
	}

	// The signature is opaque to the codec; keep whatever bytes were sent.
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%s: signature is not valid base64url: %w", op, ErrMalformedToken)
	}

	return &IDToken{
		header:    header,
		claims:    claims,
		signature: signature,
		encoded:   encoded,
	}, nil
}

// decodeHeader decodes a JSON object while preserving field order, which
// encoding/json's map decoding would lose.
func decodeHeader(raw []byte) ([]HeaderField, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tk, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tk.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("not an object")
	}
	var fields []HeaderField
	for dec.More() {
		keyTk, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTk.(string)
		if !ok {
			return nil, fmt.Errorf("non-string field name")
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, HeaderField{Name: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

// Claim looks up a claim by name. The second return value reports whether
// the claim was present; lookups of unknown names never panic.
func (t *IDToken) Claim(name string) (interface{}, bool) {
	v, ok := t.claims[name]
	return v, ok
}

// StringClaim looks up a claim by name and returns its string value, or ""
// when the claim is absent or not a string.
func (t *IDToken) StringClaim(name string) string {
	if s, ok := t.claims[name].(string); ok {
		return s
	}
	return ""
}

// Header returns a copy of the token's header fields in wire order.
func (t *IDToken) Header() []HeaderField {
	cp := make([]HeaderField, len(t.header))
	copy(cp, t.header)
	return cp
}

// Claims returns a copy of the token's claim map.
func (t *IDToken) Claims() map[string]interface{} {
	cp := make(map[string]interface{}, len(t.claims))
	for k, v := range t.claims {
		cp[k] = v
	}
	return cp
}

// Signature returns a copy of the token's raw signature bytes.
func (t *IDToken) Signature() []byte {
	cp := make([]byte, len(t.signature))
	copy(cp, t.signature)
	return cp
}

// Encoded returns the original encoded token.
func (t *IDToken) Encoded() string {
	return t.encoded
}

// String redacts the token
func (t *IDToken) String() string {
	return RedactedToken
}

// MarshalJSON redacts the token
func (t *IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedToken)
}
