// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package sqlite provides a SQLite-backed credential and user handle store.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/go-passkey/pkg/webauthn"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const handleLength = 32

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
    credential_id   BLOB PRIMARY KEY,
    user_id         TEXT NOT NULL,
    public_key      BLOB NOT NULL,
    algorithm       INTEGER NOT NULL,
    sign_count      INTEGER NOT NULL DEFAULT 0,
    transports      TEXT NOT NULL DEFAULT '',
    aaguid          BLOB,
    backup_eligible INTEGER NOT NULL DEFAULT 0,
    backup_state    INTEGER NOT NULL DEFAULT 0,
    discoverable    INTEGER NOT NULL DEFAULT 0,
    disabled        INTEGER NOT NULL DEFAULT 0,
    label           TEXT NOT NULL DEFAULT '',
    att_format      TEXT NOT NULL DEFAULT '',
    att_object      BLOB,
    att_client_data BLOB,
    created_at      INTEGER NOT NULL,
    last_used_at    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_credentials_user_id ON credentials(user_id);

CREATE TABLE IF NOT EXISTS user_handles (
    user_id TEXT PRIMARY KEY,
    handle  BLOB NOT NULL UNIQUE
);
`

// Store persists credentials and user handles in SQLite. It implements
// webauthn.CredentialStore and webauthn.HandleStore.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite store at path and bootstraps the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable. Readiness probes use it.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const credentialColumns = `credential_id, user_id, public_key, algorithm, sign_count,
	transports, aaguid, backup_eligible, backup_state, discoverable, disabled, label,
	att_format, att_object, att_client_data, created_at, last_used_at`

// FindByCredentialID retrieves a credential by its globally-unique ID.
func (s *Store) FindByCredentialID(ctx context.Context, credentialID []byte) (*webauthn.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE credential_id = ?`, credentialID)
	cred, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, webauthn.ErrUnknownCredential
	}
	if err != nil {
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return cred, nil
}

// FindAllByUser retrieves every credential owned by a user.
func (s *Store) FindAllByUser(ctx context.Context, userID string) ([]*webauthn.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE user_id = ? ORDER BY created_at, credential_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	creds := []*webauthn.Credential{}
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

// Insert stores a new credential. The PRIMARY KEY on credential_id makes
// the duplicate check and the write one atomic operation.
func (s *Store) Insert(ctx context.Context, cred *webauthn.Credential) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (`+credentialColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.ID,
		cred.UserID,
		cred.PublicKey,
		cred.Algorithm,
		int64(cred.SignCount),
		joinTransports(cred.Transports),
		cred.AAGUID,
		boolInt(cred.BackupEligible),
		boolInt(cred.BackupState),
		boolInt(cred.Discoverable),
		boolInt(cred.Disabled),
		cred.Label,
		cred.Attestation.Format,
		cred.Attestation.Object,
		cred.Attestation.ClientDataJSON,
		toMillis(cred.CreatedAt),
		toMillis(cred.LastUsedAt),
	)
	if isUniqueViolation(err) {
		return webauthn.ErrDuplicateCredential
	}
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// UpdateSignCount advances the counter only when the stored value still
// equals prevCount. A lost race or stale comparison reports
// ErrClonedCredential, never a silent overwrite.
func (s *Store) UpdateSignCount(ctx context.Context, credentialID []byte, prevCount, newCount uint32, usedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET sign_count = ?, last_used_at = ?
		 WHERE credential_id = ? AND sign_count = ?`,
		int64(newCount), toMillis(usedAt), credentialID, int64(prevCount))
	if err != nil {
		return fmt.Errorf("update sign count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sign count: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM credentials WHERE credential_id = ?`, credentialID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return webauthn.ErrUnknownCredential
	}
	if err != nil {
		return fmt.Errorf("update sign count: %w", err)
	}
	return webauthn.ErrClonedCredential
}

// SetDisabled flags or unflags a credential.
func (s *Store) SetDisabled(ctx context.Context, credentialID []byte, disabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET disabled = ? WHERE credential_id = ?`,
		boolInt(disabled), credentialID)
	if err != nil {
		return fmt.Errorf("set disabled: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set disabled: %w", err)
	}
	if affected == 0 {
		return webauthn.ErrUnknownCredential
	}
	return nil
}

// Delete removes a credential.
func (s *Store) Delete(ctx context.Context, credentialID []byte) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE credential_id = ?`, credentialID)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if affected == 0 {
		return webauthn.ErrUnknownCredential
	}
	return nil
}

// HandleFor returns the user's handle, creating it on first use. The
// UNIQUE constraint on user_id makes concurrent first registrations
// converge on a single handle.
func (s *Store) HandleFor(ctx context.Context, userID string) ([]byte, error) {
	var handle []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT handle FROM user_handles WHERE user_id = ?`, userID).Scan(&handle)
	if err == nil {
		return handle, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup handle: %w", err)
	}

	handle = make([]byte, handleLength)
	if _, err := rand.Read(handle); err != nil {
		return nil, fmt.Errorf("generate handle: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_handles (user_id, handle) VALUES (?, ?)`, userID, handle)
	if err == nil {
		return handle, nil
	}
	if !isUniqueViolation(err) {
		return nil, fmt.Errorf("insert handle: %w", err)
	}

	// Lost the race; another registration created the handle first.
	err = s.db.QueryRowContext(ctx,
		`SELECT handle FROM user_handles WHERE user_id = ?`, userID).Scan(&handle)
	if err != nil {
		return nil, fmt.Errorf("lookup handle: %w", err)
	}
	return handle, nil
}

// UserFor resolves a handle back to the owning user ID.
func (s *Store) UserFor(ctx context.Context, handle []byte) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM user_handles WHERE handle = ?`, handle).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", webauthn.ErrHandleNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup handle owner: %w", err)
	}
	return userID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*webauthn.Credential, error) {
	var (
		cred                webauthn.Credential
		signCount           int64
		transports          string
		backupEligible      int
		backupState         int
		discoverable        int
		disabled            int
		createdAt, lastUsed int64
	)
	err := row.Scan(
		&cred.ID,
		&cred.UserID,
		&cred.PublicKey,
		&cred.Algorithm,
		&signCount,
		&transports,
		&cred.AAGUID,
		&backupEligible,
		&backupState,
		&discoverable,
		&disabled,
		&cred.Label,
		&cred.Attestation.Format,
		&cred.Attestation.Object,
		&cred.Attestation.ClientDataJSON,
		&createdAt,
		&lastUsed,
	)
	if err != nil {
		return nil, err
	}
	cred.SignCount = uint32(signCount)
	cred.Transports = splitTransports(transports)
	cred.BackupEligible = backupEligible != 0
	cred.BackupState = backupState != 0
	cred.Discoverable = discoverable != 0
	cred.Disabled = disabled != 0
	cred.CreatedAt = fromMillis(createdAt)
	if lastUsed != 0 {
		cred.LastUsedAt = fromMillis(lastUsed)
	}
	return &cred, nil
}

func joinTransports(transports []protocol.AuthenticatorTransport) string {
	if len(transports) == 0 {
		return ""
	}
	parts := make([]string, len(transports))
	for i, t := range transports {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func splitTransports(value string) []protocol.AuthenticatorTransport {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	transports := make([]protocol.AuthenticatorTransport, len(parts))
	for i, p := range parts {
		transports[i] = protocol.AuthenticatorTransport(p)
	}
	return transports
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var (
	_ webauthn.CredentialStore = (*Store)(nil)
	_ webauthn.HandleStore     = (*Store)(nil)
)
