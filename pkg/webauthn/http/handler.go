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
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/webauthn"
)

// Handler provides HTTP handlers for passkey ceremonies, the related
// origins well-known document, and the sync-signal endpoint.
type Handler struct {
	service *webauthn.Service
	logger  *slog.Logger
}

// NewHandler creates a new Handler wrapping the given service.
func NewHandler(service *webauthn.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginRegistration handles POST /registration/begin.
//
// Request body: BeginRegistrationRequest
// Response: protocol.CredentialCreation options, ceremony token in the
// X-Ceremony-Id header.
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "user_id is required")
		return
	}

	user, err := h.service.Directory().GetByID(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, webauthn.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, ErrorCodeUserNotFound, "user not found")
			return
		}
		h.handleServiceError(w, r, err)
		return
	}

	options, ceremonyID, err := h.service.BeginRegistration(r.Context(), user)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.Header().Set(HeaderCeremonyID, ceremonyID)
	writeJSON(w, http.StatusOK, options)
}

// FinishRegistration handles POST /registration/complete.
//
// The X-Ceremony-Id and X-User-Id headers are required; X-Session-Id is
// optional and flags the session for sync reconciliation. The body is the
// browser's PublicKeyCredential JSON from navigator.credentials.create().
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	ceremonyID := r.Header.Get(HeaderCeremonyID)
	if ceremonyID == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "missing ceremony ID header")
		return
	}
	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "missing user ID header")
		return
	}

	user, err := h.service.Directory().GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, webauthn.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, ErrorCodeUserNotFound, "user not found")
			return
		}
		h.handleServiceError(w, r, err)
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid credential response")
		return
	}

	sessionKey := r.Header.Get(HeaderSessionID)
	start := time.Now()
	cred, err := h.service.CompleteRegistration(r.Context(), ceremonyID, sessionKey, user, response)
	if err != nil {
		metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StatusError, time.Since(start).Seconds())
		h.handleServiceError(w, r, err)
		return
	}
	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StatusSuccess, time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, RegistrationResponse{
		CredentialID: base64.RawURLEncoding.EncodeToString(cred.ID),
		Label:        cred.Label,
		Transports:   transportStrings(cred.Transports),
		BackedUp:     cred.BackupState,
	})
}

// BeginAuthentication handles POST /authentication/begin.
//
// With an identifier in the body, a second-factor ceremony scoped to that
// account is started; responses for unknown identifiers are
// indistinguishable from real ones. With an empty body, a
// discoverable-credential ceremony is started.
func (h *Handler) BeginAuthentication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	// An empty body means a discoverable-credential login.
	var req BeginAuthenticationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	var (
		options    *protocol.CredentialAssertion
		ceremonyID string
		err        error
	)
	if req.Identifier != "" {
		options, ceremonyID, err = h.service.BeginAuthenticationByIdentifier(r.Context(), req.Identifier)
	} else {
		options, ceremonyID, err = h.service.BeginAuthentication(r.Context(), nil)
	}
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.Header().Set(HeaderCeremonyID, ceremonyID)
	writeJSON(w, http.StatusOK, options)
}

// FinishAuthentication handles POST /authentication/complete.
//
// The X-Ceremony-Id header is required; X-Session-Id is optional. The body
// is the browser's PublicKeyCredential JSON from navigator.credentials.get().
func (h *Handler) FinishAuthentication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	ceremonyID := r.Header.Get(HeaderCeremonyID)
	if ceremonyID == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "missing ceremony ID header")
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid credential response")
		return
	}

	sessionKey := r.Header.Get(HeaderSessionID)
	start := time.Now()
	result, err := h.service.CompleteAuthentication(r.Context(), ceremonyID, sessionKey, response)
	if err != nil {
		if errors.Is(err, webauthn.ErrClonedCredential) {
			metrics.RecordCloneWarning()
		}
		metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.StatusError, time.Since(start).Seconds())
		h.handleServiceError(w, r, err)
		return
	}
	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.StatusSuccess, time.Since(start).Seconds())

	w.Header().Set(HeaderUserID, result.User.ID())
	writeJSON(w, http.StatusOK, AuthResponse{
		Token:        result.Token,
		UserID:       result.User.ID(),
		SecondFactor: result.SecondFactor,
	})
}

// WellKnown handles GET /.well-known/webauthn, serving the related origins
// document. Returns 404 when no related origins are configured.
func (h *Handler) WellKnown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	policy := h.service.OriginPolicy()
	if !policy.RelatedOriginsEnabled() {
		http.NotFound(w, r)
		return
	}

	maxAge := int(policy.CacheTTL() / time.Second)
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	writeJSON(w, http.StatusOK, policy.Document())
}

// Signal handles GET /signal. When the session identified by X-Session-Id
// has a pending sync signal, the reconciliation payload is returned once
// and the flag is cleared; otherwise the response is 204 No Content.
func (h *Handler) Signal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	sessionKey := r.Header.Get(HeaderSessionID)
	if sessionKey == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "missing session ID header")
		return
	}

	payload, ok, err := h.service.Sync().Take(r.Context(), sessionKey)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	metrics.RecordSyncSignal(ok)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// ListCredentials handles GET /credentials for the user in X-User-Id.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "missing user ID header")
		return
	}

	creds, err := h.service.Credentials(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := CredentialListResponse{Credentials: make([]CredentialSummary, 0, len(creds))}
	for _, cred := range creds {
		summary := CredentialSummary{
			CredentialID: base64.RawURLEncoding.EncodeToString(cred.ID),
			Label:        cred.Label,
			CreatedAt:    cred.CreatedAt.UTC().Format(time.RFC3339),
			Disabled:     cred.Disabled,
			BackedUp:     cred.BackupState,
		}
		if !cred.LastUsedAt.IsZero() {
			summary.LastUsedAt = cred.LastUsedAt.UTC().Format(time.RFC3339)
		}
		resp.Credentials = append(resp.Credentials, summary)
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteCredential handles DELETE /credentials for the user in X-User-Id.
// An X-Session-Id header, when present, flags the session for sync
// reconciliation so clients drop the removed credential.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "missing user ID header")
		return
	}

	var req DeleteCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	credentialID, err := base64.RawURLEncoding.DecodeString(req.CredentialID)
	if err != nil || len(credentialID) == 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid credential_id")
		return
	}

	sessionKey := r.Header.Get(HeaderSessionID)
	if err := h.service.RemoveCredential(r.Context(), sessionKey, userID, credentialID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleServiceError maps service errors to HTTP responses. Anything that
// could distinguish a real account or credential from a fake one collapses
// into a single generic verification failure; the detail is logged only.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case webauthn.IsEnumerationSensitive(err),
		errors.Is(err, webauthn.ErrClonedCredential),
		errors.Is(err, webauthn.ErrCredentialDisabled):
		h.logger.Warn("ceremony rejected",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed")
	case errors.Is(err, webauthn.ErrNoChallenge):
		writeError(w, http.StatusBadRequest, ErrorCodeCeremonyExpired, "ceremony expired or already used")
	case errors.Is(err, webauthn.ErrDuplicateCredential):
		writeError(w, http.StatusConflict, ErrorCodeDuplicateCredential, "credential already registered")
	case errors.Is(err, webauthn.ErrPasswordlessDisabled):
		writeError(w, http.StatusBadRequest, ErrorCodePasswordlessDisabled, "passwordless login is not enabled")
	case errors.Is(err, webauthn.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, ErrorCodeInvalidRequest, "authenticated user required")
	case webauthn.IsProtocolFailure(err):
		h.logger.Warn("ceremony rejected",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, ErrorCodeVerificationFailed, "verification failed")
	default:
		h.logger.Error("webauthn operation failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
	}
}

func transportStrings(transports []protocol.AuthenticatorTransport) []string {
	if len(transports) == 0 {
		return nil
	}
	out := make([]string, len(transports))
	for i, t := range transports {
		out[i] = string(t)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
