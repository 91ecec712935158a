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

package webauthn

import (
	"context"
	"time"
)

// CredentialStore is the capability contract any durable credential backend
// must satisfy. All lookups are by exact byte-equality on credential ID.
type CredentialStore interface {
	// FindByCredentialID retrieves a credential by its globally-unique ID.
	// Returns ErrUnknownCredential if absent.
	FindByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error)

	// FindAllByUser retrieves every credential owned by a user. Returns an
	// empty slice for users with no credentials.
	FindAllByUser(ctx context.Context, userID string) ([]*Credential, error)

	// Insert stores a new credential. Returns ErrDuplicateCredential when the
	// credential ID already exists, for any user; the check and the write
	// are one atomic operation.
	Insert(ctx context.Context, cred *Credential) error

	// UpdateSignCount conditionally advances the sign counter and last-used
	// timestamp. The update applies only if the stored counter still equals
	// prevCount (compare-and-set); a lost race returns ErrClonedCredential
	// so concurrent assertions cannot both succeed on stale comparisons.
	UpdateSignCount(ctx context.Context, credentialID []byte, prevCount, newCount uint32, usedAt time.Time) error

	// SetDisabled flags or unflags a credential. Disabled credentials cannot
	// complete authentication.
	SetDisabled(ctx context.Context, credentialID []byte, disabled bool) error

	// Delete removes a credential. Returns ErrUnknownCredential if absent.
	Delete(ctx context.Context, credentialID []byte) error
}

// HandleStore maps application users to stable, opaque WebAuthn user
// handles. A handle is at least 32 random bytes, created lazily on first
// registration and never regenerated.
type HandleStore interface {
	// HandleFor returns the user's handle, creating it on first use.
	HandleFor(ctx context.Context, userID string) ([]byte, error)

	// UserFor resolves a handle back to the owning user ID. Returns
	// ErrHandleNotFound for unknown handles.
	UserFor(ctx context.Context, handle []byte) (string, error)
}

// UserDirectory is the application-side user lookup the core consumes. The
// directory's errors never reach unauthenticated callers directly; the
// ceremony layer keeps lookup failures indistinguishable from empty
// credential sets.
type UserDirectory interface {
	// Lookup resolves a login identifier (username, email, ...) to a user.
	// Returns ErrUserNotFound if no account matches.
	Lookup(ctx context.Context, identifier string) (User, error)

	// GetByID resolves a stable user ID to a user.
	GetByID(ctx context.Context, userID string) (User, error)
}

// Hooks customizes ceremony behavior without subclassing. Applications
// supply an implementation to name new credentials and react to completed
// registrations; DefaultHooks is used when nil.
type Hooks interface {
	// CredentialLabel names a credential registered by user. Called before
	// the credential is persisted.
	CredentialLabel(user User, cred *Credential) string

	// AfterRegistration runs after a credential has been persisted. Errors
	// are logged, not surfaced; the registration already succeeded.
	AfterRegistration(ctx context.Context, user User, cred *Credential) error
}

// TokenIssuer optionally mints a session token after a completed
// authentication. When nil, the service returns only the user.
type TokenIssuer interface {
	// IssueToken creates a token for the authenticated user. secondFactor
	// reports whether the ceremony upgraded an existing session to MFA.
	IssueToken(ctx context.Context, user User, secondFactor bool) (string, error)
}

// DefaultHooks is the no-frills Hooks implementation: credentials get a
// generic label and no post-registration action runs.
type DefaultHooks struct{}

// CredentialLabel returns a generic label derived from the username.
func (DefaultHooks) CredentialLabel(user User, cred *Credential) string {
	return "Passkey for " + user.Username()
}

// AfterRegistration is a no-op.
func (DefaultHooks) AfterRegistration(ctx context.Context, user User, cred *Credential) error {
	return nil
}
