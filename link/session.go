// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package link

import (
	"sync"

	"github.com/hashicorp/oidclink/oidc"
)

// Session is the explicit per-user context passed into every flow
// operation: the local account the attempt is for and the short-lived,
// session-scoped storage for the attempt's request. Nothing in the engine
// reads ambient current-user state.
type Session struct {
	// Username is the local account username candidate for this session.
	// How the candidate is derived (matching across existing records,
	// prompting for creation, ...) is the host system's concern.
	Username string

	// Requests stores the pending authentication request between
	// Initiate and HandleRedirect.
	Requests RequestStore
}

// RequestStore stores at most one pending authentication request for a
// session. Take is single-use: it removes the request, so a nonce can never
// be accepted twice.
type RequestStore interface {
	// Put stores the pending request, replacing any previous one; a
	// replaced request's nonce is thereby invalidated.
	Put(req oidc.Request) error

	// Take removes and returns the pending request. The second return
	// value is false when there is none.
	Take() (oidc.Request, bool)
}

// MemoryRequestStore is an in-memory RequestStore.
type MemoryRequestStore struct {
	mu  sync.Mutex
	req oidc.Request
}

var _ RequestStore = (*MemoryRequestStore)(nil)

// Put implements RequestStore.Put.
func (s *MemoryRequestStore) Put(req oidc.Request) error {
	if req == nil {
		return ErrNilParameter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.req = req
	return nil
}

// Take implements RequestStore.Take.
func (s *MemoryRequestStore) Take() (oidc.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.req
	s.req = nil
	return req, req != nil
}

// Callback carries the transient parameters received from the IdP's
// redirect. It is created at redirect handling, consumed immediately during
// the token exchange, and never persisted.
type Callback struct {
	// Code is the authorization code; one-time-use by IdP contract.
	Code string

	// State correlates the redirect with the pending request.
	State string

	// Error is set when the user or the IdP declined; ErrorDescription
	// optionally elaborates.
	Error            string
	ErrorDescription string
}
