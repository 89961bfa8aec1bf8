// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	sdkhttp "github.com/hashicorp/oidclink/sdk/http"
)

type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config represents the configuration for a relying party using the typical
// 3-legged OIDC authorization code flow. The IdP's endpoints are supplied
// explicitly; they are not discovered via provider metadata documents.
type Config struct {
	// ClientID is the relying party id
	ClientID string

	// ClientSecret is the relying party secret
	ClientSecret ClientSecret

	// AuthEndpoint is the IdP's authorization endpoint URL
	AuthEndpoint string

	// TokenEndpoint is the IdP's token endpoint URL
	TokenEndpoint string

	// RedirectURL is the URL the IdP should redirect back to after the
	// user authenticates
	RedirectURL string

	// Scopes is a list of additional oidc scopes to request of the
	// provider. The required "openid" scope is always requested and need
	// not be part of this optional list.
	Scopes []string

	// Resource is an optional resource indicator included in the
	// authorization request, as used by AD FS and Azure AD style IdPs.
	Resource string

	// ProviderCA is an optional CA cert to use when sending requests to
	// the provider.
	ProviderCA string

	// Timeout is an optional bound on each outbound request. When zero,
	// the sdk http default applies.
	Timeout time.Duration

	// Logger is an optional logger
	Logger hclog.Logger
}

// NewConfig composes a new relying-party config.
// Supported options:
//
//	WithConfigScopes
//	WithConfigResource
//	WithConfigProviderCA
//	WithConfigTimeout
//	WithConfigLogger
func NewConfig(authEndpoint, tokenEndpoint, clientID string, clientSecret ClientSecret, redirectURL string, opt ...Option) (*Config, error) {
	const op = "oidc.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		AuthEndpoint:  authEndpoint,
		TokenEndpoint: tokenEndpoint,
		RedirectURL:   redirectURL,
		Scopes:        opts.withScopes,
		Resource:      opts.withResource,
		ProviderCA:    opts.withProviderCA,
		Timeout:       opts.withTimeout,
		Logger:        opts.withLogger,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid relying party config: %w", op, err)
	}
	return c, nil
}

// Validate the relying party configuration. All problems are reported, not
// just the first: a misconfigured instance is surfaced to an administrator
// who needs the full picture. Every reported problem wraps
// ErrInvalidParameter (or ErrNilParameter for a nil config).
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter))
	}
	if c.ClientSecret == "" {
		result = multierror.Append(result, fmt.Errorf("%s: client secret is empty: %w", op, ErrInvalidParameter))
	}
	if c.RedirectURL == "" {
		result = multierror.Append(result, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter))
	}
	for _, ep := range []struct {
		name string
		u    string
	}{
		{"authorization endpoint", c.AuthEndpoint},
		{"token endpoint", c.TokenEndpoint},
	} {
		if ep.u == "" {
			result = multierror.Append(result, fmt.Errorf("%s: %s is empty: %w", op, ep.name, ErrInvalidParameter))
			continue
		}
		u, err := url.Parse(ep.u)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %s %q is invalid: %w", op, ep.name, ep.u, ErrInvalidParameter))
			continue
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			result = multierror.Append(result, fmt.Errorf("%s: %s %q scheme is not http or https: %w", op, ep.name, ep.u, ErrInvalidParameter))
		}
	}
	return result.ErrorOrNil()
}

// HTTPClient is a helper function that creates a new http client for the
// configured provider.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	opts := []sdkhttp.Option{}
	if c.ProviderCA != "" {
		opts = append(opts, sdkhttp.WithCAPEM(c.ProviderCA))
	}
	if c.Timeout > 0 {
		opts = append(opts, sdkhttp.WithTimeout(c.Timeout))
	}
	client, err := sdkhttp.NewClient(opts...)
	if err != nil {
		if err == sdkhttp.ErrInvalidCertificatePem {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// configOptions is the set of available options
type configOptions struct {
	withScopes     []string
	withResource   string
	withProviderCA string
	withTimeout    time.Duration
	withLogger     hclog.Logger
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithConfigScopes provides an optional list of scopes for the config
func WithConfigScopes(scopes []string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithConfigResource provides an optional resource indicator for the config
func WithConfigResource(resource string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withResource = resource
		}
	}
}

// WithConfigProviderCA provides an optional CA cert for the config
func WithConfigProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithConfigTimeout provides an optional request timeout for the config
func WithConfigTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withTimeout = d
		}
	}
}

// WithConfigLogger provides an optional logger for the config
func WithConfigLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogger = l
		}
	}
}
