// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package link

import (
	"fmt"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/hashicorp/oidclink/jwt"
	"github.com/hashicorp/oidclink/oidc"
)

// Settings is the process-wide flow configuration, loaded once per flow
// instantiation. See ResolveSettings for how the layers combine.
type Settings struct {
	ClientID      string `koanf:"clientid"`
	ClientSecret  string `koanf:"clientsecret"`
	AuthEndpoint  string `koanf:"authendpoint"`
	TokenEndpoint string `koanf:"tokenendpoint"`
	JWKSEndpoint  string `koanf:"jwksendpoint"`
	Resource      string `koanf:"oidcresource"`

	// Claim-name overrides for the display claims.
	FirstNameClaim string `koanf:"firstnameclaim"`
	LastNameClaim  string `koanf:"lastnameclaim"`
	EmailClaim     string `koanf:"emailclaim"`

	// Field holds the per-field sync policy for the synced profile
	// fields. The policies for the fields in SyncedFields are fixed by
	// ResolveSettings and cannot be changed by stored configuration.
	Field map[string]FieldPolicy `koanf:"field"`
}

// FieldPolicy is the sync policy for one profile field.
type FieldPolicy struct {
	// Update is UpdateOnCreate or UpdateOnLogin
	Update string `koanf:"update"`

	// Lock is FieldLocked or FieldUnlocked
	Lock string `koanf:"lock"`
}

const (
	UpdateOnCreate = "oncreate"
	UpdateOnLogin  = "onlogin"
	FieldLocked    = "locked"
	FieldUnlocked  = "unlocked"
)

// SyncedFields are the profile fields whose sync policy is force-fixed:
// always updated on login and never locked, regardless of what an
// administrator stored.
var SyncedFields = []string{"firstname", "lastname", "email", "displayname"}

// defaultSettings returns the first configuration layer.
func defaultSettings() Settings {
	return Settings{
		FirstNameClaim: "given_name",
		LastNameClaim:  "family_name",
		EmailClaim:     "email",
	}
}

// forcedSettings returns the last configuration layer: non-overridable
// policy constants.
func forcedSettings() map[string]interface{} {
	forced := map[string]interface{}{}
	for _, f := range SyncedFields {
		forced["field."+f+".update"] = UpdateOnLogin
		forced["field."+f+".lock"] = FieldUnlocked
	}
	return forced
}

// ResolveSettings is a pure function from stored administrator settings to
// the final configuration. Three layers apply in order: defaults, then the
// stored settings, then the forced policy constants last, so a stored value
// can never override a forced one. Stored keys use the koanf field names
// (clientid, clientsecret, authendpoint, tokenendpoint, jwksendpoint,
// oidcresource, firstnameclaim, ...), flat with "." as the delimiter.
func ResolveSettings(stored map[string]interface{}) (*Settings, error) {
	const op = "link.ResolveSettings"
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultSettings(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("%s: unable to load defaults: %w", op, err)
	}
	if len(stored) > 0 {
		if err := k.Load(confmap.Provider(stored, "."), nil); err != nil {
			return nil, fmt.Errorf("%s: unable to load stored settings: %w", op, err)
		}
	}
	if err := k.Load(confmap.Provider(forcedSettings(), "."), nil); err != nil {
		return nil, fmt.Errorf("%s: unable to load forced settings: %w", op, err)
	}
	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("%s: unable to unmarshal settings: %w", op, err)
	}
	return &s, nil
}

// ClientConfig builds the relying party client config from the settings.
// Additional oidc options (scopes, CA, logger, ...) pass through.
func (s *Settings) ClientConfig(redirectURL string, opt ...oidc.Option) (*oidc.Config, error) {
	const op = "Settings.ClientConfig"
	if s.Resource != "" {
		opt = append([]oidc.Option{oidc.WithConfigResource(s.Resource)}, opt...)
	}
	c, err := oidc.NewConfig(s.AuthEndpoint, s.TokenEndpoint, s.ClientID, oidc.ClientSecret(s.ClientSecret), redirectURL, opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// DisplayClaims are the non-trust-anchor profile claims read from an
// id_token using the configured claim names.
type DisplayClaims struct {
	FirstName string
	LastName  string
	Email     string
}

// DisplayClaims extracts the display claims from a decoded id_token,
// honoring the settings' claim-name overrides. Absent claims yield empty
// strings.
func (s *Settings) DisplayClaims(idt *jwt.IDToken) DisplayClaims {
	return DisplayClaims{
		FirstName: idt.StringClaim(s.FirstNameClaim),
		LastName:  idt.StringClaim(s.LastNameClaim),
		Email:     idt.StringClaim(s.EmailClaim),
	}
}
