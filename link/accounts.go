// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package link

import (
	"context"

	"github.com/hashicorp/go-hclog"
)

// AuthMethodManual is the generically-available manual/password local
// authentication method.
const AuthMethodManual = "manual"

// Accounts is the host user-management system: local account lookup and
// updates, and the registry of enabled authentication methods. The engine
// never creates, deletes or re-hashes accounts itself; it only asks the
// host to do so through this interface.
type Accounts interface {
	// PreviousLoginMethod returns the auth method the account used before
	// it was linked, or "" when none was recorded. Read-only.
	PreviousLoginMethod(ctx context.Context, username string) (string, error)

	// MethodEnabled reports whether the named auth method is currently
	// enabled in the host system.
	MethodEnabled(ctx context.Context, method string) (bool, error)

	// UsernameExists reports whether a local account with the given
	// username already exists.
	UsernameExists(ctx context.Context, username string) (bool, error)

	// Update switches the account's auth method and, when set, its
	// username and password.
	Update(ctx context.Context, up AccountUpdate) error
}

// AccountUpdate describes the account change performed during a disconnect.
type AccountUpdate struct {
	// Username identifies the account being updated
	Username string

	// AuthMethod is the method the account falls back to
	AuthMethod string

	// NewUsername, when non-empty, renames the account
	NewUsername string

	// Password, when non-empty, sets a new password (only meaningful for
	// the manual method; hashing is the host's concern)
	Password string
}

// Event is a fire-and-forget notification to the host's event/audit
// collaborator.
type Event struct {
	// Name is the event name, e.g. EventUserDisconnected
	Name string

	// AccountID identifies the affected account
	AccountID string
}

// EventUserDisconnected is emitted exactly once per successful disconnect.
const EventUserDisconnected = "UserDisconnected"

// Sink receives emitted events. Implementations must not block the flow;
// delivery failures are the sink's problem, not the caller's.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// LogSink is the default Sink: it logs events and nothing else.
type LogSink struct {
	Logger hclog.Logger
}

var _ Sink = (*LogSink)(nil)

// Emit implements Sink.Emit.
func (s *LogSink) Emit(_ context.Context, e Event) {
	logger := s.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger.Info("event emitted", "name", e.Name, "account_id", e.AccountID)
}
