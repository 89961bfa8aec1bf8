// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package sqlite provides a SQLite-backed identity link store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/hashicorp/oidclink/link"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS identity_link (
	id                 TEXT PRIMARY KEY,
	external_unique_id TEXT NOT NULL,
	local_username     TEXT NOT NULL,
	external_username  TEXT NOT NULL,
	scope              TEXT NOT NULL DEFAULT '',
	resource           TEXT NOT NULL DEFAULT '',
	auth_code          TEXT NOT NULL DEFAULT '',
	access_token       TEXT NOT NULL DEFAULT '',
	refresh_token      TEXT NOT NULL DEFAULT '',
	id_token           TEXT NOT NULL DEFAULT '',
	expiry             INTEGER NOT NULL DEFAULT 0,
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS identity_link_local_username
	ON identity_link (local_username);
`

// Store persists identity link records in SQLite. The unique index on
// local_username makes the at-most-one-record-per-account invariant hold
// even across processes: a racing insert fails atomically with
// link.ErrDuplicateBinding.
type Store struct {
	sqlDB *sql.DB
}

var _ link.Store = (*Store)(nil)

// Open opens the store at path and applies the schema.
func Open(path string) (*Store, error) {
	const op = "sqlite.Open"
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%s: storage path is empty: %w", op, link.ErrInvalidParameter)
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to open db: %w", op, err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%s: unable to ping db: %w", op, err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%s: unable to apply schema: %w", op, err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toMillis(v time.Time) int64 {
	if v.IsZero() {
		return 0
	}
	return v.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

const recordColumns = `id, external_unique_id, local_username, external_username,
	scope, resource, auth_code, access_token, refresh_token, id_token,
	expiry, created_at, updated_at`

func scanRecord(row *sql.Row) (*link.Record, error) {
	var r link.Record
	var expiry, createdAt, updatedAt int64
	err := row.Scan(
		&r.ID, &r.ExternalUniqueID, &r.LocalUsername, &r.ExternalUsername,
		&r.Scope, &r.Resource, &r.AuthCode, &r.AccessToken, &r.RefreshToken,
		&r.IDToken, &expiry, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Expiry = fromMillis(expiry)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return &r, nil
}

// FindByUsername implements link.Store.FindByUsername.
func (s *Store) FindByUsername(ctx context.Context, username string) (*link.Record, error) {
	const op = "sqlite.FindByUsername"
	if username == "" {
		return nil, fmt.Errorf("%s: username is empty: %w", op, link.ErrInvalidParameter)
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM identity_link WHERE local_username = ?`, username)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: no record for username: %w", op, link.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: unable to query record: %w", op, err)
	}
	return r, nil
}

// Insert implements link.Store.Insert.
func (s *Store) Insert(ctx context.Context, r *link.Record) (string, error) {
	const op = "sqlite.Insert"
	if r == nil {
		return "", fmt.Errorf("%s: record is nil: %w", op, link.ErrNilParameter)
	}
	if r.LocalUsername == "" {
		return "", fmt.Errorf("%s: local username is empty: %w", op, link.ErrInvalidParameter)
	}
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate record id: %w", op, err)
	}
	now := toMillis(time.Now())
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO identity_link (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.ExternalUniqueID, r.LocalUsername, r.ExternalUsername,
		r.Scope, r.Resource, r.AuthCode, r.AccessToken, r.RefreshToken,
		r.IDToken, toMillis(r.Expiry), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%s: record for username already exists: %w", op, link.ErrDuplicateBinding)
		}
		return "", fmt.Errorf("%s: unable to insert record: %w", op, err)
	}
	return id, nil
}

// UpdateTokens implements link.Store.UpdateTokens. Only the token fields
// are touched; the identity columns never appear in the statement.
func (s *Store) UpdateTokens(ctx context.Context, id string, fields link.TokenFields) error {
	const op = "sqlite.UpdateTokens"
	if id == "" {
		return fmt.Errorf("%s: id is empty: %w", op, link.ErrInvalidParameter)
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE identity_link
		 SET auth_code = ?, access_token = ?, refresh_token = ?, id_token = ?,
		     scope = ?, resource = ?, expiry = ?, updated_at = ?
		 WHERE id = ?`,
		fields.AuthCode, fields.AccessToken, fields.RefreshToken, fields.IDToken,
		fields.Scope, fields.Resource, toMillis(fields.Expiry), toMillis(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("%s: unable to update record: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: unable to read rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: no record with id: %w", op, link.ErrNotFound)
	}
	return nil
}

// Delete implements link.Store.Delete.
func (s *Store) Delete(ctx context.Context, filter link.Filter) (int, error) {
	const op = "sqlite.Delete"
	var clauses []string
	var args []interface{}
	if filter.ID != "" {
		clauses = append(clauses, "id = ?")
		args = append(args, filter.ID)
	}
	if filter.LocalUsername != "" {
		clauses = append(clauses, "local_username = ?")
		args = append(args, filter.LocalUsername)
	}
	if len(clauses) == 0 {
		return 0, fmt.Errorf("%s: filter is empty: %w", op, link.ErrInvalidParameter)
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM identity_link WHERE `+strings.Join(clauses, " AND "), args...)
	if err != nil {
		return 0, fmt.Errorf("%s: unable to delete records: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: unable to read rows affected: %w", op, err)
	}
	return int(n), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
