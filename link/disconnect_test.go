// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package link

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/oidclink/oidc"
)

// fakeAccounts is an in-memory Accounts collaborator.
type fakeAccounts struct {
	prevMethod string
	enabled    map[string]bool
	existing   map[string]bool
	updates    []AccountUpdate
}

func (a *fakeAccounts) PreviousLoginMethod(context.Context, string) (string, error) {
	return a.prevMethod, nil
}

func (a *fakeAccounts) MethodEnabled(_ context.Context, method string) (bool, error) {
	return a.enabled[method], nil
}

func (a *fakeAccounts) UsernameExists(_ context.Context, username string) (bool, error) {
	return a.existing[username], nil
}

func (a *fakeAccounts) Update(_ context.Context, up AccountUpdate) error {
	a.updates = append(a.updates, up)
	return nil
}

// captureSink records every emitted event.
type captureSink struct {
	events []Event
}

func (s *captureSink) Emit(_ context.Context, e Event) {
	s.events = append(s.events, e)
}

func testLinkedStore(t *testing.T, rec *Record) Store {
	t.Helper()
	store := NewMemoryStore()
	_, err := store.Insert(context.Background(), rec)
	require.NoError(t, err)
	return store
}

func testLinkedRecord(localUsername, uniq string) *Record {
	return &Record{
		ExternalUniqueID: uniq,
		LocalUsername:    localUsername,
		ExternalUsername: "alice@example.com",
		AccessToken:      "test-access-token",
		Expiry:           time.Now().Add(time.Hour),
	}
}

func TestAuthCodeFlow_FallbackMethod(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []struct {
		name      string
		accounts  *fakeAccounts
		want      string
		wantIsErr error
	}{
		{
			name:     "previous-method-enabled",
			accounts: &fakeAccounts{prevMethod: "ldap", enabled: map[string]bool{"ldap": true}},
			want:     "ldap",
		},
		{
			name:     "previous-method-disabled",
			accounts: &fakeAccounts{prevMethod: "ldap", enabled: map[string]bool{AuthMethodManual: true}},
			want:     AuthMethodManual,
		},
		{
			name:     "no-previous-method",
			accounts: &fakeAccounts{enabled: map[string]bool{AuthMethodManual: true}},
			want:     AuthMethodManual,
		},
		{
			name:     "previous-method-is-manual",
			accounts: &fakeAccounts{prevMethod: AuthMethodManual, enabled: map[string]bool{AuthMethodManual: true}},
			want:     AuthMethodManual,
		},
		{
			name:      "nothing-usable",
			accounts:  &fakeAccounts{prevMethod: "ldap", enabled: map[string]bool{}},
			wantIsErr: ErrNoFallbackAuthMethod,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			tp := oidc.StartTestProvider(t)
			f := testFlow(t, tp, NewMemoryStore(), WithAccounts(tt.accounts))
			got, err := f.FallbackMethod(ctx, "alice")
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.True(errors.Is(err, tt.wantIsErr))
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestAuthCodeFlow_FallbackMethod_NoAccounts(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := oidc.StartTestProvider(t)
	f := testFlow(t, tp, NewMemoryStore())
	_, err := f.FallbackMethod(context.Background(), "alice")
	require.Error(err)
	assert.True(errors.Is(err, ErrNilParameter))
}

func TestAuthCodeFlow_Disconnect_RemoveTokensOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("deletes-and-emits-once", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		store := testLinkedStore(t, testLinkedRecord("alice", "object-1"))
		sink := &captureSink{}
		f := testFlow(t, tp, store, WithSink(sink))

		err := f.Disconnect(ctx, testSession("alice"), DisconnectRequest{Mode: RemoveTokensOnly})
		require.NoError(err)

		_, err = store.FindByUsername(ctx, "alice")
		assert.True(errors.Is(err, ErrNotFound))
		require.Len(sink.events, 1)
		assert.Equal(EventUserDisconnected, sink.events[0].Name)
		assert.Equal("alice", sink.events[0].AccountID)
	})
	t.Run("not-linked", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		sink := &captureSink{}
		f := testFlow(t, tp, NewMemoryStore(), WithSink(sink))

		err := f.Disconnect(ctx, testSession("alice"), DisconnectRequest{Mode: RemoveTokensOnly})
		require.Error(err)
		assert.True(errors.Is(err, ErrNotFound))
		assert.Empty(sink.events)
	})
	t.Run("empty-session", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		f := testFlow(t, tp, NewMemoryStore())
		err := f.Disconnect(ctx, &Session{}, DisconnectRequest{Mode: RemoveTokensOnly})
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
	t.Run("unknown-mode", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		f := testFlow(t, tp, NewMemoryStore())
		err := f.Disconnect(ctx, testSession("alice"), DisconnectRequest{Mode: DisconnectMode(42)})
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
}

func TestAuthCodeFlow_Disconnect_Interactive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("fallback-choice", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		store := testLinkedStore(t, testLinkedRecord("alice", "object-1"))
		accounts := &fakeAccounts{prevMethod: "ldap", enabled: map[string]bool{"ldap": true}}
		sink := &captureSink{}
		f := testFlow(t, tp, store, WithAccounts(accounts), WithSink(sink))

		err := f.Disconnect(ctx, testSession("alice"), DisconnectRequest{Mode: Interactive, Choice: "ldap"})
		require.NoError(err)

		require.Len(accounts.updates, 1)
		assert.Equal("alice", accounts.updates[0].Username)
		assert.Equal("ldap", accounts.updates[0].AuthMethod)
		assert.Empty(accounts.updates[0].Password)
		assert.Empty(accounts.updates[0].NewUsername)

		_, err = store.FindByUsername(ctx, "alice")
		assert.True(errors.Is(err, ErrNotFound))
		require.Len(sink.events, 1)
		assert.Equal(EventUserDisconnected, sink.events[0].Name)
	})
	t.Run("manual-choice-with-password", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		store := testLinkedStore(t, testLinkedRecord("alice", "object-1"))
		accounts := &fakeAccounts{enabled: map[string]bool{AuthMethodManual: true}}
		f := testFlow(t, tp, store, WithAccounts(accounts))

		err := f.Disconnect(ctx, testSession("alice"), DisconnectRequest{
			Mode:     Interactive,
			Choice:   AuthMethodManual,
			Password: "hunter2",
		})
		require.NoError(err)
		require.Len(accounts.updates, 1)
		assert.Equal(AuthMethodManual, accounts.updates[0].AuthMethod)
		assert.Equal("hunter2", accounts.updates[0].Password)
	})
	t.Run("manual-choice-empty-password", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		store := testLinkedStore(t, testLinkedRecord("alice", "object-1"))
		accounts := &fakeAccounts{enabled: map[string]bool{AuthMethodManual: true}}
		f := testFlow(t, tp, store, WithAccounts(accounts))

		err := f.Disconnect(ctx, testSession("alice"), DisconnectRequest{Mode: Interactive, Choice: AuthMethodManual})
		require.Error(err)
		assert.True(errors.Is(err, ErrEmptyPassword))
		assert.Empty(accounts.updates)
		// the record survives a failed disconnect
		_, err = store.FindByUsername(ctx, "alice")
		require.NoError(err)
	})
	t.Run("invalid-choice", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		store := testLinkedStore(t, testLinkedRecord("alice", "object-1"))
		accounts := &fakeAccounts{prevMethod: "ldap", enabled: map[string]bool{"ldap": true}}
		f := testFlow(t, tp, store, WithAccounts(accounts))

		err := f.Disconnect(ctx, testSession("alice"), DisconnectRequest{Mode: Interactive, Choice: "saml"})
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidFallbackChoice))
	})
	t.Run("no-fallback-method", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		store := testLinkedStore(t, testLinkedRecord("alice", "object-1"))
		accounts := &fakeAccounts{enabled: map[string]bool{}}
		f := testFlow(t, tp, store, WithAccounts(accounts))

		err := f.Disconnect(ctx, testSession("alice"), DisconnectRequest{Mode: Interactive, Choice: AuthMethodManual})
		require.Error(err)
		assert.True(errors.Is(err, ErrNoFallbackAuthMethod))
	})
	t.Run("rename-opaque-username", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		// the local username is the IdP-generated opaque id, so a rename is
		// allowed
		store := testLinkedStore(t, testLinkedRecord("object-1", "object-1"))
		accounts := &fakeAccounts{enabled: map[string]bool{AuthMethodManual: true}}
		f := testFlow(t, tp, store, WithAccounts(accounts))

		err := f.Disconnect(ctx, testSession("object-1"), DisconnectRequest{
			Mode:        Interactive,
			Choice:      AuthMethodManual,
			Password:    "hunter2",
			NewUsername: "alice",
		})
		require.NoError(err)
		require.Len(accounts.updates, 1)
		assert.Equal("alice", accounts.updates[0].NewUsername)
	})
	t.Run("rename-collision", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		store := testLinkedStore(t, testLinkedRecord("object-1", "object-1"))
		accounts := &fakeAccounts{
			enabled:  map[string]bool{AuthMethodManual: true},
			existing: map[string]bool{"alice": true},
		}
		f := testFlow(t, tp, store, WithAccounts(accounts))

		err := f.Disconnect(ctx, testSession("object-1"), DisconnectRequest{
			Mode:        Interactive,
			Choice:      AuthMethodManual,
			Password:    "hunter2",
			NewUsername: "alice",
		})
		require.Error(err)
		assert.True(errors.Is(err, ErrUsernameCollision))
		assert.Empty(accounts.updates)
	})
	t.Run("rename-ignored-for-chosen-username", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		// the local username is not the opaque id, so the rename request is
		// silently dropped
		store := testLinkedStore(t, testLinkedRecord("alice", "object-1"))
		accounts := &fakeAccounts{
			enabled:  map[string]bool{AuthMethodManual: true},
			existing: map[string]bool{"bob": true},
		}
		f := testFlow(t, tp, store, WithAccounts(accounts))

		err := f.Disconnect(ctx, testSession("alice"), DisconnectRequest{
			Mode:        Interactive,
			Choice:      AuthMethodManual,
			Password:    "hunter2",
			NewUsername: "bob",
		})
		require.NoError(err)
		require.Len(accounts.updates, 1)
		assert.Empty(accounts.updates[0].NewUsername)
	})
	t.Run("no-accounts-collaborator", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t)
		store := testLinkedStore(t, testLinkedRecord("alice", "object-1"))
		f := testFlow(t, tp, store)

		err := f.Disconnect(ctx, testSession("alice"), DisconnectRequest{Mode: Interactive, Choice: AuthMethodManual})
		require.Error(err)
		assert.True(errors.Is(err, ErrNilParameter))
	})
}
