// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package http provides the outbound HTTP client used for all IdP traffic.
package http

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

var (
	ErrInvalidCertificatePem = errors.New("invalid certificate PEM")
	ErrInvalidProxyURL       = errors.New("invalid proxy URL")
)

// DefaultTimeout bounds every outbound request unless WithTimeout overrides
// it. Token exchange is not safe to blindly retry (authorization codes are
// one-time-use), so requests must fail within a bounded time rather than
// hang.
const DefaultTimeout = 30 * time.Second

// Option configures the client returned by NewClient.
type Option func(*options)

type options struct {
	withCAPEM   string
	withTimeout time.Duration
	withProxy   string
	withHeaders map[string]string
}

func getOpts(opt ...Option) options {
	opts := options{
		withTimeout: DefaultTimeout,
	}
	for _, o := range opt {
		o(&opts)
	}
	return opts
}

// WithCAPEM provides an optional CA certificate PEM to verify the IdP's
// server certificates, instead of the installed system CA chain.
func WithCAPEM(pem string) Option {
	return func(o *options) {
		o.withCAPEM = pem
	}
}

// WithTimeout provides an optional per-request timeout. A zero duration
// disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.withTimeout = d
	}
}

// WithProxy provides an optional proxy URL for outbound requests.
func WithProxy(proxyURL string) Option {
	return func(o *options) {
		o.withProxy = proxyURL
	}
}

// WithHeader provides an optional header set on every outbound request.
func WithHeader(name, value string) Option {
	return func(o *options) {
		if o.withHeaders == nil {
			o.withHeaders = map[string]string{}
		}
		o.withHeaders[name] = value
	}
}

// NewClient creates a new http client for IdP traffic. By default it uses a
// pooled transport, the installed system CA chain and DefaultTimeout.
// Supported options: WithCAPEM, WithTimeout, WithProxy, WithHeader
func NewClient(opt ...Option) (*http.Client, error) {
	opts := getOpts(opt...)
	tr := cleanhttp.DefaultPooledTransport()

	if opts.withCAPEM != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(opts.withCAPEM)); !ok {
			return nil, ErrInvalidCertificatePem
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}

	if opts.withProxy != "" {
		proxyURL, err := url.Parse(opts.withProxy)
		if err != nil {
			return nil, ErrInvalidProxyURL
		}
		tr.Proxy = http.ProxyURL(proxyURL)
	}

	var rt http.RoundTripper = tr
	if len(opts.withHeaders) > 0 {
		rt = &headerRoundTripper{
			base:    tr,
			headers: opts.withHeaders,
		}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   opts.withTimeout,
	}, nil
}

// headerRoundTripper sets fixed headers on every request. It clones the
// request first, since RoundTrippers must not mutate their input.
type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for name, value := range h.headers {
		if clone.Header.Get(name) == "" {
			clone.Header.Set(name, value)
		}
	}
	return h.base.RoundTrip(clone)
}
