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

package http

// HeaderCeremonyID carries the one-time ceremony state token. Begin
// operations return it; the matching complete operation must echo it.
const HeaderCeremonyID = "X-Ceremony-Id"

// HeaderSessionID identifies the client session for sync-signal tracking.
// Optional on ceremony completion, required for GET /signal.
const HeaderSessionID = "X-Session-Id"

// HeaderUserID identifies the application user on requests that operate in
// an authenticated context (registration, credential management).
const HeaderUserID = "X-User-Id"

// BeginRegistrationRequest is the request body for starting registration.
type BeginRegistrationRequest struct {
	// UserID is the application user identifier (required). Registration
	// always runs in an authenticated context.
	UserID string `json:"user_id"`
}

// BeginAuthenticationRequest is the request body for starting authentication.
type BeginAuthenticationRequest struct {
	// Identifier is a username or email (optional). When present, a
	// second-factor ceremony scoped to that account is started. When
	// absent, a discoverable-credential ceremony is started.
	Identifier string `json:"identifier,omitempty"`
}

// RegistrationResponse is the response after successful registration.
type RegistrationResponse struct {
	// CredentialID is the base64url-encoded credential ID.
	CredentialID string `json:"credential_id"`

	// Label is the human-readable credential label.
	Label string `json:"label"`

	// Transports lists the transports reported by the authenticator.
	Transports []string `json:"transports,omitempty"`

	// BackedUp indicates the credential is synced by the platform.
	BackedUp bool `json:"backed_up"`
}

// AuthResponse is the response after successful authentication.
type AuthResponse struct {
	// Token is the session token, empty when no issuer is configured.
	Token string `json:"token,omitempty"`

	// UserID is the application user identifier.
	UserID string `json:"user_id"`

	// SecondFactor indicates the ceremony was scoped to a known account
	// rather than a discoverable-credential login.
	SecondFactor bool `json:"second_factor"`
}

// CredentialSummary describes one registered credential.
type CredentialSummary struct {
	CredentialID string `json:"credential_id"`
	Label        string `json:"label"`
	CreatedAt    string `json:"created_at"`
	LastUsedAt   string `json:"last_used_at,omitempty"`
	Disabled     bool   `json:"disabled"`
	BackedUp     bool   `json:"backed_up"`
}

// CredentialListResponse is the response for listing credentials.
type CredentialListResponse struct {
	Credentials []CredentialSummary `json:"credentials"`
}

// DeleteCredentialRequest is the request body for deleting a credential.
type DeleteCredentialRequest struct {
	// CredentialID is the base64url-encoded credential ID.
	CredentialID string `json:"credential_id"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse. Authentication failures collapse
// into ErrorCodeVerificationFailed regardless of cause; the distinction
// stays server-side.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeCeremonyExpired      = "ceremony_expired"
	ErrorCodeVerificationFailed   = "verification_failed"
	ErrorCodeDuplicateCredential  = "duplicate_credential"
	ErrorCodePasswordlessDisabled = "passwordless_disabled"
	ErrorCodeUserNotFound         = "user_not_found"
	ErrorCodeInternalError        = "internal_error"
)
