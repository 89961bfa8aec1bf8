// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package link

import (
	"context"
	"fmt"
)

// DisconnectMode selects how a binding is removed.
type DisconnectMode int

const (
	// RemoveTokensOnly deletes the identity link record and nothing else.
	// No interactive step; the host keeps the account's auth method as is.
	RemoveTokensOnly DisconnectMode = iota

	// Interactive reverts the account to a local authentication method
	// before deleting the record, so the account never becomes
	// unauthenticatable.
	Interactive
)

// DisconnectRequest carries the submitted disconnect form.
type DisconnectRequest struct {
	Mode DisconnectMode

	// Choice is the submitted auth method: the derived fallback method or
	// AuthMethodManual. Interactive mode only.
	Choice string

	// Password is required when Choice is AuthMethodManual.
	Password string

	// NewUsername optionally renames the account, honored only when the
	// current local username was an IdP-generated opaque identifier.
	NewUsername string
}

// FallbackMethod derives the local auth method an account can revert to on
// disconnect: the previously-recorded method when it is currently enabled
// and not itself manual, otherwise the manual method when available. It
// fails with ErrNoFallbackAuthMethod when neither is usable, which is a
// hard stop since the account would otherwise become unauthenticatable.
func (f *AuthCodeFlow) FallbackMethod(ctx context.Context, username string) (string, error) {
	const op = "AuthCodeFlow.FallbackMethod"
	if f.accounts == nil {
		return "", fmt.Errorf("%s: no accounts collaborator configured: %w", op, ErrNilParameter)
	}
	prev, err := f.accounts.PreviousLoginMethod(ctx, username)
	if err != nil {
		return "", fmt.Errorf("%s: unable to read previous login method: %w", op, err)
	}
	if prev != "" && prev != AuthMethodManual {
		enabled, err := f.accounts.MethodEnabled(ctx, prev)
		if err != nil {
			return "", fmt.Errorf("%s: unable to check method %q: %w", op, prev, err)
		}
		if enabled {
			return prev, nil
		}
	}
	manualOK, err := f.accounts.MethodEnabled(ctx, AuthMethodManual)
	if err != nil {
		return "", fmt.Errorf("%s: unable to check manual method: %w", op, err)
	}
	if manualOK {
		return AuthMethodManual, nil
	}
	return "", fmt.Errorf("%s: %w", op, ErrNoFallbackAuthMethod)
}

// Disconnect implements Flow.Disconnect.
func (f *AuthCodeFlow) Disconnect(ctx context.Context, sess *Session, req DisconnectRequest) error {
	const op = "AuthCodeFlow.Disconnect"
	if sess == nil || sess.Username == "" {
		return fmt.Errorf("%s: session username is empty: %w", op, ErrInvalidParameter)
	}

	switch req.Mode {
	case RemoveTokensOnly:
		return f.removeTokens(ctx, sess.Username)
	case Interactive:
		return f.disconnectInteractive(ctx, sess.Username, req)
	default:
		return fmt.Errorf("%s: unknown disconnect mode %d: %w", op, req.Mode, ErrInvalidParameter)
	}
}

func (f *AuthCodeFlow) removeTokens(ctx context.Context, username string) error {
	const op = "AuthCodeFlow.removeTokens"
	n, err := f.store.Delete(ctx, Filter{LocalUsername: username})
	if err != nil {
		return fmt.Errorf("%s: unable to delete record: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: no record for username: %w", op, ErrNotFound)
	}
	f.events.Emit(ctx, Event{Name: EventUserDisconnected, AccountID: username})
	f.logger.Info("user disconnected", "username", username, "mode", "remove-tokens-only")
	return nil
}

func (f *AuthCodeFlow) disconnectInteractive(ctx context.Context, username string, req DisconnectRequest) error {
	const op = "AuthCodeFlow.disconnectInteractive"
	if f.accounts == nil {
		return fmt.Errorf("%s: no accounts collaborator configured: %w", op, ErrNilParameter)
	}
	rec, err := f.store.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("%s: unable to look up record: %w", op, err)
	}

	fallback, err := f.FallbackMethod(ctx, username)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// The submitted choice must be exactly the derived fallback or manual.
	if req.Choice != fallback && req.Choice != AuthMethodManual {
		return fmt.Errorf("%s: choice %q is not one of %q or %q: %w", op, req.Choice, fallback, AuthMethodManual, ErrInvalidFallbackChoice)
	}

	up := AccountUpdate{
		Username:   username,
		AuthMethod: req.Choice,
	}
	if req.Choice == AuthMethodManual {
		if req.Password == "" {
			return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
		}
		up.Password = req.Password

		// An IdP-generated opaque username is worthless once the link is
		// gone; let the user pick a real one, as long as it's free.
		if req.NewUsername != "" && req.NewUsername != username && rec.LocalUsername == rec.ExternalUniqueID {
			exists, err := f.accounts.UsernameExists(ctx, req.NewUsername)
			if err != nil {
				return fmt.Errorf("%s: unable to check username: %w", op, err)
			}
			if exists {
				return fmt.Errorf("%s: %q: %w", op, req.NewUsername, ErrUsernameCollision)
			}
			up.NewUsername = req.NewUsername
		}
	}

	if err := f.accounts.Update(ctx, up); err != nil {
		return fmt.Errorf("%s: unable to update account: %w", op, err)
	}
	if _, err := f.store.Delete(ctx, Filter{ID: rec.ID}); err != nil {
		return fmt.Errorf("%s: unable to delete record: %w", op, err)
	}
	f.events.Emit(ctx, Event{Name: EventUserDisconnected, AccountID: username})
	f.logger.Info("user disconnected", "username", username, "mode", "interactive", "method", req.Choice)
	return nil
}
