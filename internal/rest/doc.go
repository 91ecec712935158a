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

// Package rest assembles the relying party HTTP server.
//
// It mounts the passkey ceremony handlers under /api/v1/passkey, the
// related origins document at /.well-known/webauthn, Kubernetes-style
// health probes under /health, and the Prometheus metrics endpoint. The
// middleware stack adds panic recovery, correlation IDs, request logging,
// metrics collection and per-client rate limiting.
//
// Usage:
//
//	server, err := rest.NewServer(&rest.Config{
//	    Port:    8443,
//	    Handler: passkeyhttp.NewHandler(svc),
//	    Logger:  logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go server.Start()
//	defer server.Stop(ctx)
package rest
