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

// Package webauthn implements the relying-party side of WebAuthn (FIDO2)
// passkey registration and authentication as an embeddable library.
//
// Ceremony validation, challenge lifecycle, origin policy, and sign-counter
// clone detection are implemented here; wire parsing and COSE signature
// primitives come from go-webauthn/webauthn.
//
// This package provides:
//   - Registration and authentication ceremonies with single-use,
//     TTL-bounded challenge state
//   - Pluggable storage interfaces for credentials, user handles, and
//     ceremony state, with in-memory implementations for development
//   - Related-origin support (/.well-known/webauthn) for RPs serving
//     multiple top-level domains
//   - Sync-signal payloads so clients can reconcile locally cached
//     credential metadata
//   - Optional JWT session tokens after successful authentication
//
// # Architecture
//
// The package is layered:
//
//  1. Service layer (Service) - ceremony orchestration and validation
//  2. Storage layer (CredentialStore, HandleStore, StateStore,
//     UserDirectory) - pluggable persistence
//  3. HTTP layer (pkg/webauthn/http) - composable handlers
//
// # Usage
//
// Basic usage with in-memory storage (for development):
//
//	directory := webauthn.NewMemoryUserDirectory()
//	svc, err := webauthn.NewService(webauthn.ServiceParams{
//	    Config: &webauthn.Config{
//	        RPID:          "localhost",
//	        RPDisplayName: "My App",
//	        RPOrigins:     []string{"https://localhost:3000"},
//	    },
//	    StateStore:      webauthn.NewMemoryStateStore(0),
//	    CredentialStore: webauthn.NewMemoryCredentialStore(),
//	    HandleStore:     webauthn.NewMemoryHandleStore(),
//	    UserDirectory:   directory,
//	})
//
// For production, implement the storage interfaces with your database; the
// pkg/storage/sqlite package provides a SQLite-backed implementation.
//
// # Security Model
//
// Challenges are consumed before any other validation, so a response is
// checked against its ceremony state at most once. Failures that could
// confirm account or credential existence map to a small sentinel set the
// HTTP layer collapses into a generic rejection. Sign counters advance under
// compare-and-swap; a regression disables the credential.
//
// This implementation follows the W3C Web Authentication specification:
//   - https://www.w3.org/TR/webauthn-2/
//   - https://www.w3.org/TR/webauthn-3/
package webauthn
