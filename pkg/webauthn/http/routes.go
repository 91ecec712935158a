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

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts passkey ceremony routes on a chi router.
//
// Example:
//
//	handler := passkeyhttp.NewHandler(svc)
//	r.Route("/api/v1/passkey", func(r chi.Router) {
//	    passkeyhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/registration/begin", h.BeginRegistration)
	r.Post("/registration/complete", h.FinishRegistration)
	r.Post("/authentication/begin", h.BeginAuthentication)
	r.Post("/authentication/complete", h.FinishAuthentication)
	r.Get("/signal", h.Signal)
	r.Get("/credentials", h.ListCredentials)
	r.Delete("/credentials", h.DeleteCredential)
}

// MountWellKnown registers GET /.well-known/webauthn on a chi router. The
// document must be served from the relying party root, not under an API
// prefix, so browsers performing related-origin validation can find it.
func MountWellKnown(r chi.Router, h *Handler) {
	r.Get("/.well-known/webauthn", h.WellKnown)
}

// MountStdlib mounts passkey routes on a stdlib http.ServeMux. The prefix
// should not include a trailing slash. Method checking is done in handlers.
//
// Example:
//
//	handler := passkeyhttp.NewHandler(svc)
//	passkeyhttp.MountStdlib(mux, "/api/v1/passkey", handler)
func MountStdlib(mux *http.ServeMux, prefix string, h *Handler) {
	mux.HandleFunc(prefix+"/registration/begin", h.BeginRegistration)
	mux.HandleFunc(prefix+"/registration/complete", h.FinishRegistration)
	mux.HandleFunc(prefix+"/authentication/begin", h.BeginAuthentication)
	mux.HandleFunc(prefix+"/authentication/complete", h.FinishAuthentication)
	mux.HandleFunc(prefix+"/signal", h.Signal)
	mux.HandleFunc(prefix+"/credentials", h.credentialsDispatch)
	mux.HandleFunc("/.well-known/webauthn", h.WellKnown)
}

// credentialsDispatch routes /credentials by method for muxes without
// method patterns.
func (h *Handler) credentialsDispatch(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.ListCredentials(w, r)
	case http.MethodDelete:
		h.DeleteCredential(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
	}
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Routes returns the ceremony route table for manual mounting. The
// well-known document route is not included; serve WellKnown from the site
// root separately.
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: http.MethodPost, Path: "/registration/begin", Handler: h.BeginRegistration},
		{Method: http.MethodPost, Path: "/registration/complete", Handler: h.FinishRegistration},
		{Method: http.MethodPost, Path: "/authentication/begin", Handler: h.BeginAuthentication},
		{Method: http.MethodPost, Path: "/authentication/complete", Handler: h.FinishAuthentication},
		{Method: http.MethodGet, Path: "/signal", Handler: h.Signal},
		{Method: http.MethodGet, Path: "/credentials", Handler: h.ListCredentials},
		{Method: http.MethodDelete, Path: "/credentials", Handler: h.DeleteCredential},
	}
}
