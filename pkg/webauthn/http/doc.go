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

// Package http provides composable HTTP handlers for passkey ceremonies.
//
// This package lets applications add passkey registration and login to an
// existing HTTP server without coupling to go-passkey's internal REST
// implementation.
//
// # Usage
//
// Create a handler from a relying party service and mount it on a router:
//
//	svc, _ := webauthn.NewService(...)
//	handler := passkeyhttp.NewHandler(svc)
//
//	// chi:
//	r.Route("/api/v1/passkey", func(r chi.Router) {
//	    passkeyhttp.MountChi(r, handler)
//	})
//	passkeyhttp.MountWellKnown(r, handler)
//
//	// stdlib:
//	passkeyhttp.MountStdlib(mux, "/api/v1/passkey", handler)
//
// # Endpoints
//
//	POST   /registration/begin       - Start a registration ceremony
//	POST   /registration/complete    - Verify the attestation response
//	POST   /authentication/begin     - Start an authentication ceremony
//	POST   /authentication/complete  - Verify the assertion response
//	GET    /signal                   - One-shot sync reconciliation payload
//	GET    /credentials              - List a user's credentials
//	DELETE /credentials              - Remove a credential
//	GET    /.well-known/webauthn     - Related origins document (site root)
//
// # Headers
//
//	X-Ceremony-Id: One-time state token returned by begin operations.
//	               Must be echoed on the matching complete operation.
//	X-Session-Id:  Client session key for sync-signal tracking.
//	X-User-Id:     Application user for authenticated-context operations.
//
// # Response Format
//
// All responses are JSON. Error responses have the format:
//
//	{
//	    "error": "error_code",
//	    "message": "Human-readable message"
//	}
//
// Authentication failures caused by unknown users, unknown credentials,
// ownership mismatches, or bad signatures all return the same
// verification_failed response. The underlying cause is logged server-side
// only.
package http
