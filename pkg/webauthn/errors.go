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
	"errors"
	"fmt"
)

// Sentinel errors for relying party operations. Every ceremony failure maps
// to exactly one of these; none of them is retried automatically.
var (
	// ErrUnauthenticated is returned when registration is attempted without
	// an authenticated session user.
	ErrUnauthenticated = errors.New("no authenticated user")

	// ErrNoChallenge is returned when ceremony state is missing, expired, or
	// was already consumed. The client must restart the ceremony.
	ErrNoChallenge = errors.New("ceremony state missing, expired, or already used")

	// ErrChallengeMismatch is returned when the challenge echoed by the
	// client does not byte-match the stored challenge.
	ErrChallengeMismatch = errors.New("challenge mismatch")

	// ErrOriginNotAllowed is returned when the client data origin is neither
	// in the configured origin list nor a related origin.
	ErrOriginNotAllowed = errors.New("origin not allowed")

	// ErrRPIDMismatch is returned when the rpIdHash in authenticator data
	// does not match the SHA-256 of the expected RP ID.
	ErrRPIDMismatch = errors.New("rp id hash mismatch")

	// ErrCeremonyTypeMismatch is returned when the client data type does not
	// match the ceremony being completed.
	ErrCeremonyTypeMismatch = errors.New("client data ceremony type mismatch")

	// ErrUserPresenceRequired is returned when the User Present flag is not set.
	ErrUserPresenceRequired = errors.New("user presence flag not set")

	// ErrUserVerificationRequired is returned when the policy snapshot
	// required user verification but the User Verified flag is not set.
	ErrUserVerificationRequired = errors.New("user verification required but flag not set")

	// ErrSignatureInvalid is returned when the assertion signature does not
	// verify against the stored public key.
	ErrSignatureInvalid = errors.New("assertion signature invalid")

	// ErrUnknownCredential is returned when no credential matches the
	// credential ID in an assertion response.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrCredentialMismatch is returned in second-factor flows when the
	// resolved credential is not owned by the expected user.
	ErrCredentialMismatch = errors.New("credential does not belong to expected user")

	// ErrDuplicateCredential is returned when a credential ID is already
	// registered, for any user.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrClonedCredential is returned on a sign counter regression. This is
	// a security event; the credential is disabled in the store.
	ErrClonedCredential = errors.New("possible cloned authenticator detected")

	// ErrCredentialDisabled is returned when a credential flagged as
	// disabled is used to authenticate.
	ErrCredentialDisabled = errors.New("credential disabled")

	// ErrUserNotFound is returned by user directories when no user matches.
	ErrUserNotFound = errors.New("user not found")

	// ErrHandleNotFound is returned when no user handle mapping exists.
	ErrHandleNotFound = errors.New("user handle not found")

	// ErrAlgorithmNotAllowed is returned when a credential public key uses a
	// COSE algorithm outside the configured allow-list.
	ErrAlgorithmNotAllowed = errors.New("credential algorithm not allowed")

	// ErrPasswordlessDisabled is returned when an anonymous authentication
	// ceremony is started while passwordless login is disabled.
	ErrPasswordlessDisabled = errors.New("passwordless login disabled")

	// ErrMalformedResponse is returned when a client response is structurally
	// invalid beyond what the protocol parser already rejects.
	ErrMalformedResponse = errors.New("malformed authenticator response")

	// ErrNotConfigured is returned when the service is used before it has
	// been fully constructed.
	ErrNotConfigured = errors.New("relying party service not configured")
)

// Error wraps a protocol failure with the operation that produced it.
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with the given operation and cause.
func NewError(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// WrapError wraps an error with an operation name if it is not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// StorageError marks a transient storage-layer failure. It is surfaced
// distinctly from protocol validation failures so callers can decide whether
// restarting the ceremony is worthwhile.
type StorageError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *StorageError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps a storage-layer failure.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageFailure reports whether err originated in the storage layer
// rather than in protocol validation.
func IsStorageFailure(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsProtocolFailure reports whether err is one of the ceremony validation
// sentinels, as opposed to a storage failure or unexpected internal error.
func IsProtocolFailure(err error) bool {
	for _, sentinel := range []error{
		ErrUnauthenticated, ErrNoChallenge, ErrChallengeMismatch,
		ErrOriginNotAllowed, ErrRPIDMismatch, ErrCeremonyTypeMismatch,
		ErrUserPresenceRequired, ErrUserVerificationRequired,
		ErrSignatureInvalid, ErrUnknownCredential, ErrCredentialMismatch,
		ErrDuplicateCredential, ErrClonedCredential, ErrCredentialDisabled,
		ErrAlgorithmNotAllowed, ErrPasswordlessDisabled, ErrMalformedResponse,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// IsEnumerationSensitive reports whether surfacing err verbatim could let a
// caller distinguish unknown credentials or users from other authentication
// failures. HTTP layers collapse these into one generic response.
func IsEnumerationSensitive(err error) bool {
	return errors.Is(err, ErrUnknownCredential) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrCredentialMismatch) ||
		errors.Is(err, ErrSignatureInvalid)
}
