// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package link

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-uuid"
)

// Store is CRUD over persisted identity link records. Implementations must
// enforce uniqueness of LocalUsername atomically: an Insert racing another
// flow for the same account must fail with ErrDuplicateBinding rather than
// produce two live records. Every write is a single atomic operation; a
// failed write leaves the store unchanged.
type Store interface {
	// FindByUsername returns the record bound to the local username, or
	// ErrNotFound.
	FindByUsername(ctx context.Context, username string) (*Record, error)

	// Insert persists a new record and returns its id. It fails with
	// ErrDuplicateBinding when a record for the same LocalUsername
	// already exists.
	Insert(ctx context.Context, r *Record) (string, error)

	// UpdateTokens overwrites only the token fields of the record with
	// the given id. ErrNotFound when no such record exists.
	UpdateTokens(ctx context.Context, id string, fields TokenFields) error

	// Delete removes the records matching the filter and reports how many
	// were removed.
	Delete(ctx context.Context, filter Filter) (int, error)
}

// Filter selects records by id and/or local username. Zero-valued fields
// are not part of the match.
type Filter struct {
	ID            string
	LocalUsername string
}

func (f Filter) matches(r *Record) bool {
	if f.ID != "" && r.ID != f.ID {
		return false
	}
	if f.LocalUsername != "" && r.LocalUsername != f.LocalUsername {
		return false
	}
	return f.ID != "" || f.LocalUsername != ""
}

// MemoryStore is an in-memory Store, suitable for tests and embedding.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record // keyed by LocalUsername
	nowFn   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]*Record{},
		nowFn:   time.Now,
	}
}

// FindByUsername implements Store.FindByUsername.
func (s *MemoryStore) FindByUsername(_ context.Context, username string) (*Record, error) {
	const op = "MemoryStore.FindByUsername"
	if username == "" {
		return nil, fmt.Errorf("%s: username is empty: %w", op, ErrInvalidParameter)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[username]
	if !ok {
		return nil, fmt.Errorf("%s: no record for username: %w", op, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

// Insert implements Store.Insert.
func (s *MemoryStore) Insert(_ context.Context, r *Record) (string, error) {
	const op = "MemoryStore.Insert"
	if r == nil {
		return "", fmt.Errorf("%s: record is nil: %w", op, ErrNilParameter)
	}
	if r.LocalUsername == "" {
		return "", fmt.Errorf("%s: local username is empty: %w", op, ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.LocalUsername]; ok {
		return "", fmt.Errorf("%s: record for username already exists: %w", op, ErrDuplicateBinding)
	}
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate record id: %w", op, err)
	}
	now := s.nowFn()
	cp := *r
	cp.ID = id
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.records[cp.LocalUsername] = &cp
	return id, nil
}

// UpdateTokens implements Store.UpdateTokens.
func (s *MemoryStore) UpdateTokens(_ context.Context, id string, fields TokenFields) error {
	const op = "MemoryStore.UpdateTokens"
	if id == "" {
		return fmt.Errorf("%s: id is empty: %w", op, ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID != id {
			continue
		}
		r.AuthCode = fields.AuthCode
		r.AccessToken = fields.AccessToken
		r.RefreshToken = fields.RefreshToken
		r.IDToken = fields.IDToken
		r.Scope = fields.Scope
		r.Resource = fields.Resource
		r.Expiry = fields.Expiry
		r.UpdatedAt = s.nowFn()
		return nil
	}
	return fmt.Errorf("%s: no record with id: %w", op, ErrNotFound)
}

// Delete implements Store.Delete.
func (s *MemoryStore) Delete(_ context.Context, filter Filter) (int, error) {
	const op = "MemoryStore.Delete"
	if filter == (Filter{}) {
		return 0, fmt.Errorf("%s: filter is empty: %w", op, ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int
	for username, r := range s.records {
		if filter.matches(r) {
			delete(s.records, username)
			deleted++
		}
	}
	return deleted, nil
}
