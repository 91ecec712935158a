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
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/webauthn"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOrigin = "https://example.com"
	testUserID = "user-alice"
)

func newTestHandler(t *testing.T, mutate ...func(*webauthn.Config)) *Handler {
	t.Helper()

	cfg := &webauthn.Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{testOrigin},
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	directory := webauthn.NewMemoryUserDirectory()
	directory.Add(&webauthn.DirectoryUser{
		UserID:  testUserID,
		Name:    "alice",
		Display: "Alice Smith",
	})

	svc, err := webauthn.NewService(webauthn.ServiceParams{
		Config:          cfg,
		StateStore:      webauthn.NewMemoryStateStore(0),
		CredentialStore: webauthn.NewMemoryCredentialStore(),
		HandleStore:     webauthn.NewMemoryHandleStore(),
		UserDirectory:   directory,
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(svc).WithLogger(logger)
}

func newMockAuthenticator(t *testing.T, opts ...webauthn.MockAuthenticatorOption) *webauthn.MockAuthenticator {
	t.Helper()
	auth, err := webauthn.NewMockAuthenticator("example.com", opts...)
	require.NoError(t, err)
	return auth
}

func doJSON(t *testing.T, fn http.HandlerFunc, method, target string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			reader = strings.NewReader(s)
		} else {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(b)
		}
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// beginRegistrationOverHTTP starts a registration ceremony and returns the
// creation options plus the ceremony token.
func beginRegistrationOverHTTP(t *testing.T, h *Handler, userID string) (*protocol.CredentialCreation, string) {
	t.Helper()

	rec := doJSON(t, h.BeginRegistration, http.MethodPost, "/registration/begin",
		BeginRegistrationRequest{UserID: userID}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var options protocol.CredentialCreation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&options))
	ceremonyID := rec.Header().Get(HeaderCeremonyID)
	require.NotEmpty(t, ceremonyID)
	return &options, ceremonyID
}

// registerOverHTTP drives a full registration ceremony through the handler.
func registerOverHTTP(t *testing.T, h *Handler, auth *webauthn.MockAuthenticator, userID, sessionKey string) RegistrationResponse {
	t.Helper()

	options, ceremonyID := beginRegistrationOverHTTP(t, h, userID)
	resp, err := auth.CreateRegistrationResponse(options.Response.Challenge, testOrigin)
	require.NoError(t, err)

	rec := doJSON(t, h.FinishRegistration, http.MethodPost, "/registration/complete",
		resp.Raw, map[string]string{
			HeaderCeremonyID: ceremonyID,
			HeaderUserID:     userID,
			HeaderSessionID:  sessionKey,
		})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out RegistrationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// beginAuthenticationOverHTTP starts an authentication ceremony and returns
// the assertion options plus the ceremony token.
func beginAuthenticationOverHTTP(t *testing.T, h *Handler, identifier string) (*protocol.CredentialAssertion, string) {
	t.Helper()

	var body interface{}
	if identifier != "" {
		body = BeginAuthenticationRequest{Identifier: identifier}
	}
	rec := doJSON(t, h.BeginAuthentication, http.MethodPost, "/authentication/begin", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var options protocol.CredentialAssertion
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&options))
	ceremonyID := rec.Header().Get(HeaderCeremonyID)
	require.NotEmpty(t, ceremonyID)
	return &options, ceremonyID
}

func TestHandler_BeginRegistration(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name       string
		method     string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
			wantCode:   ErrorCodeInvalidRequest,
		},
		{
			name:       "invalid body",
			method:     http.MethodPost,
			body:       "not json",
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeInvalidRequest,
		},
		{
			name:       "missing user id",
			method:     http.MethodPost,
			body:       BeginRegistrationRequest{},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeInvalidRequest,
		},
		{
			name:       "unknown user",
			method:     http.MethodPost,
			body:       BeginRegistrationRequest{UserID: "user-nobody"},
			wantStatus: http.StatusNotFound,
			wantCode:   ErrorCodeUserNotFound,
		},
		{
			name:       "success",
			method:     http.MethodPost,
			body:       BeginRegistrationRequest{UserID: testUserID},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h.BeginRegistration, tt.method, "/registration/begin", tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
				return
			}

			assert.NotEmpty(t, rec.Header().Get(HeaderCeremonyID))
			var options protocol.CredentialCreation
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&options))
			assert.NotEmpty(t, options.Response.Challenge)
			assert.Equal(t, "example.com", options.Response.RelyingParty.ID)
		})
	}
}

func TestHandler_FinishRegistration_RequestErrors(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name       string
		method     string
		headers    map[string]string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
			wantCode:   ErrorCodeInvalidRequest,
		},
		{
			name:       "missing ceremony header",
			method:     http.MethodPost,
			headers:    map[string]string{HeaderUserID: testUserID},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeInvalidRequest,
		},
		{
			name:       "missing user header",
			method:     http.MethodPost,
			headers:    map[string]string{HeaderCeremonyID: "some-token"},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeInvalidRequest,
		},
		{
			name:   "unknown user",
			method: http.MethodPost,
			headers: map[string]string{
				HeaderCeremonyID: "some-token",
				HeaderUserID:     "user-nobody",
			},
			wantStatus: http.StatusNotFound,
			wantCode:   ErrorCodeUserNotFound,
		},
		{
			name:   "unparseable credential",
			method: http.MethodPost,
			headers: map[string]string{
				HeaderCeremonyID: "some-token",
				HeaderUserID:     testUserID,
			},
			body:       "not a credential",
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h.FinishRegistration, tt.method, "/registration/complete", tt.body, tt.headers)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestHandler_Registration_EndToEnd(t *testing.T) {
	h := newTestHandler(t)
	auth := newMockAuthenticator(t, webauthn.WithBackupFlags(true, true))

	out := registerOverHTTP(t, h, auth, testUserID, "session-1")
	assert.NotEmpty(t, out.CredentialID)
	assert.NotEmpty(t, out.Label)
	assert.True(t, out.BackedUp)
	assert.Contains(t, out.Transports, "internal")
}

func TestHandler_Registration_ExpiredCeremony(t *testing.T) {
	h := newTestHandler(t)
	auth := newMockAuthenticator(t)

	resp, err := auth.CreateRegistrationResponse([]byte("0123456789abcdef0123456789abcdef"), testOrigin)
	require.NoError(t, err)

	rec := doJSON(t, h.FinishRegistration, http.MethodPost, "/registration/complete",
		resp.Raw, map[string]string{
			HeaderCeremonyID: "no-such-ceremony",
			HeaderUserID:     testUserID,
		})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrorCodeCeremonyExpired, decodeError(t, rec).Error)
}

func TestHandler_Registration_Duplicate(t *testing.T) {
	h := newTestHandler(t)
	auth := newMockAuthenticator(t)

	registerOverHTTP(t, h, auth, testUserID, "")

	options, ceremonyID := beginRegistrationOverHTTP(t, h, testUserID)
	resp, err := auth.CreateRegistrationResponse(options.Response.Challenge, testOrigin)
	require.NoError(t, err)

	rec := doJSON(t, h.FinishRegistration, http.MethodPost, "/registration/complete",
		resp.Raw, map[string]string{
			HeaderCeremonyID: ceremonyID,
			HeaderUserID:     testUserID,
		})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ErrorCodeDuplicateCredential, decodeError(t, rec).Error)
}

func TestHandler_BeginAuthentication(t *testing.T) {
	h := newTestHandler(t, func(cfg *webauthn.Config) {
		cfg.PasswordlessLogin = true
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := doJSON(t, h.BeginAuthentication, http.MethodGet, "/authentication/begin", nil, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		rec := doJSON(t, h.BeginAuthentication, http.MethodPost, "/authentication/begin", "not json", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty body starts discoverable ceremony", func(t *testing.T) {
		options, _ := beginAuthenticationOverHTTP(t, h, "")
		assert.Empty(t, options.Response.AllowedCredentials)
	})

	t.Run("known identifier", func(t *testing.T) {
		options, _ := beginAuthenticationOverHTTP(t, h, "alice")
		assert.NotEmpty(t, options.Response.Challenge)
	})

	t.Run("unknown identifier indistinguishable", func(t *testing.T) {
		known, _ := beginAuthenticationOverHTTP(t, h, "alice")
		unknown, _ := beginAuthenticationOverHTTP(t, h, "nobody")
		assert.Equal(t, len(known.Response.AllowedCredentials), len(unknown.Response.AllowedCredentials))
		assert.Equal(t, known.Response.RelyingPartyID, unknown.Response.RelyingPartyID)
		assert.Equal(t, known.Response.UserVerification, unknown.Response.UserVerification)
	})
}

func TestHandler_BeginAuthentication_PasswordlessDisabled(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h.BeginAuthentication, http.MethodPost, "/authentication/begin", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrorCodePasswordlessDisabled, decodeError(t, rec).Error)
}

func TestHandler_Authentication_EndToEnd(t *testing.T) {
	h := newTestHandler(t)
	auth := newMockAuthenticator(t)
	registerOverHTTP(t, h, auth, testUserID, "")

	options, ceremonyID := beginAuthenticationOverHTTP(t, h, "alice")
	resp, err := auth.CreateAssertionResponse(options.Response.Challenge, nil, testOrigin)
	require.NoError(t, err)

	rec := doJSON(t, h.FinishAuthentication, http.MethodPost, "/authentication/complete",
		resp.Raw, map[string]string{HeaderCeremonyID: ceremonyID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, testUserID, rec.Header().Get(HeaderUserID))

	var out AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, testUserID, out.UserID)
	assert.True(t, out.SecondFactor)
}

func TestHandler_FinishAuthentication_RequestErrors(t *testing.T) {
	h := newTestHandler(t)

	t.Run("wrong method", func(t *testing.T) {
		rec := doJSON(t, h.FinishAuthentication, http.MethodGet, "/authentication/complete", nil, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("missing ceremony header", func(t *testing.T) {
		rec := doJSON(t, h.FinishAuthentication, http.MethodPost, "/authentication/complete", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unparseable credential", func(t *testing.T) {
		rec := doJSON(t, h.FinishAuthentication, http.MethodPost, "/authentication/complete",
			"garbage", map[string]string{HeaderCeremonyID: "some-token"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, ErrorCodeInvalidRequest, decodeError(t, rec).Error)
	})
}

func TestHandler_Authentication_Replay(t *testing.T) {
	h := newTestHandler(t)
	auth := newMockAuthenticator(t)
	registerOverHTTP(t, h, auth, testUserID, "")

	options, ceremonyID := beginAuthenticationOverHTTP(t, h, "alice")
	resp, err := auth.CreateAssertionResponse(options.Response.Challenge, nil, testOrigin)
	require.NoError(t, err)
	body := resp.Raw

	rec := doJSON(t, h.FinishAuthentication, http.MethodPost, "/authentication/complete",
		body, map[string]string{HeaderCeremonyID: ceremonyID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h.FinishAuthentication, http.MethodPost, "/authentication/complete",
		body, map[string]string{HeaderCeremonyID: ceremonyID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrorCodeCeremonyExpired, decodeError(t, rec).Error)
}

// Failures caused by an unknown credential and by a ghost ceremony must be
// byte-identical on the wire.
func TestHandler_Authentication_GenericFailure(t *testing.T) {
	h := newTestHandler(t)
	registered := newMockAuthenticator(t)
	registerOverHTTP(t, h, registered, testUserID, "")

	stranger := newMockAuthenticator(t)

	// Unknown credential on a real user's ceremony.
	options, ceremonyID := beginAuthenticationOverHTTP(t, h, "alice")
	resp, err := stranger.CreateAssertionResponse(options.Response.Challenge, nil, testOrigin)
	require.NoError(t, err)
	recUnknown := doJSON(t, h.FinishAuthentication, http.MethodPost, "/authentication/complete",
		resp.Raw, map[string]string{HeaderCeremonyID: ceremonyID})

	// Registered credential on a ghost ceremony for a nonexistent user.
	options, ceremonyID = beginAuthenticationOverHTTP(t, h, "nobody")
	resp, err = registered.CreateAssertionResponse(options.Response.Challenge, nil, testOrigin)
	require.NoError(t, err)
	recGhost := doJSON(t, h.FinishAuthentication, http.MethodPost, "/authentication/complete",
		resp.Raw, map[string]string{HeaderCeremonyID: ceremonyID})

	assert.Equal(t, http.StatusUnauthorized, recUnknown.Code)
	assert.Equal(t, http.StatusUnauthorized, recGhost.Code)
	assert.Equal(t, recUnknown.Body.String(), recGhost.Body.String())
	assert.Equal(t, ErrorCodeVerificationFailed, decodeError(t, recUnknown).Error)
}

func TestHandler_WellKnown(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := newTestHandler(t)
		rec := doJSON(t, h.WellKnown, http.MethodGet, "/.well-known/webauthn", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		h := newTestHandler(t)
		rec := doJSON(t, h.WellKnown, http.MethodPost, "/.well-known/webauthn", nil, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("serves document", func(t *testing.T) {
		h := newTestHandler(t, func(cfg *webauthn.Config) {
			cfg.RelatedOrigins = []string{"https://example.co.uk", "https://example.de"}
		})
		rec := doJSON(t, h.WellKnown, http.MethodGet, "/.well-known/webauthn", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "public, max-age=600", rec.Header().Get("Cache-Control"))

		var doc webauthn.RelatedOriginDocument
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))
		assert.Equal(t, []string{"https://example.co.uk", "https://example.de"}, doc.Origins)
	})
}

func TestHandler_Signal(t *testing.T) {
	h := newTestHandler(t)

	t.Run("wrong method", func(t *testing.T) {
		rec := doJSON(t, h.Signal, http.MethodPost, "/signal", nil, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("missing session header", func(t *testing.T) {
		rec := doJSON(t, h.Signal, http.MethodGet, "/signal", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("clean session", func(t *testing.T) {
		rec := doJSON(t, h.Signal, http.MethodGet, "/signal", nil,
			map[string]string{HeaderSessionID: "session-clean"})
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("delivered once after registration", func(t *testing.T) {
		auth := newMockAuthenticator(t)
		out := registerOverHTTP(t, h, auth, testUserID, "session-9")

		rec := doJSON(t, h.Signal, http.MethodGet, "/signal", nil,
			map[string]string{HeaderSessionID: "session-9"})
		require.Equal(t, http.StatusOK, rec.Code)

		var payload webauthn.SyncPayload
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
		assert.Equal(t, "example.com", payload.RPID)
		assert.Equal(t, "Alice Smith", payload.DisplayName)
		require.Len(t, payload.CredentialIDs, 1)
		assert.Equal(t, out.CredentialID, payload.CredentialIDs[0].String())

		rec = doJSON(t, h.Signal, http.MethodGet, "/signal", nil,
			map[string]string{HeaderSessionID: "session-9"})
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestHandler_Credentials(t *testing.T) {
	h := newTestHandler(t)
	auth := newMockAuthenticator(t)

	t.Run("list requires user header", func(t *testing.T) {
		rec := doJSON(t, h.ListCredentials, http.MethodGet, "/credentials", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list empty", func(t *testing.T) {
		rec := doJSON(t, h.ListCredentials, http.MethodGet, "/credentials", nil,
			map[string]string{HeaderUserID: testUserID})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp CredentialListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Empty(t, resp.Credentials)
	})

	out := registerOverHTTP(t, h, auth, testUserID, "")

	t.Run("list after registration", func(t *testing.T) {
		rec := doJSON(t, h.ListCredentials, http.MethodGet, "/credentials", nil,
			map[string]string{HeaderUserID: testUserID})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp CredentialListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.Credentials, 1)
		assert.Equal(t, out.CredentialID, resp.Credentials[0].CredentialID)
		assert.NotEmpty(t, resp.Credentials[0].CreatedAt)
		assert.False(t, resp.Credentials[0].Disabled)
	})

	t.Run("delete by wrong owner", func(t *testing.T) {
		rec := doJSON(t, h.DeleteCredential, http.MethodDelete, "/credentials",
			DeleteCredentialRequest{CredentialID: out.CredentialID},
			map[string]string{HeaderUserID: "user-bob"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, ErrorCodeVerificationFailed, decodeError(t, rec).Error)
	})

	t.Run("delete invalid id", func(t *testing.T) {
		rec := doJSON(t, h.DeleteCredential, http.MethodDelete, "/credentials",
			DeleteCredentialRequest{CredentialID: "!!!"},
			map[string]string{HeaderUserID: testUserID})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := doJSON(t, h.DeleteCredential, http.MethodDelete, "/credentials",
			DeleteCredentialRequest{CredentialID: out.CredentialID},
			map[string]string{HeaderUserID: testUserID})
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("delete again", func(t *testing.T) {
		rec := doJSON(t, h.DeleteCredential, http.MethodDelete, "/credentials",
			DeleteCredentialRequest{CredentialID: out.CredentialID},
			map[string]string{HeaderUserID: testUserID})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, ErrorCodeVerificationFailed, decodeError(t, rec).Error)
	})
}

func TestHandler_HandleServiceError(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown credential", webauthn.ErrUnknownCredential, http.StatusUnauthorized, ErrorCodeVerificationFailed},
		{"user not found", webauthn.ErrUserNotFound, http.StatusUnauthorized, ErrorCodeVerificationFailed},
		{"credential mismatch", webauthn.ErrCredentialMismatch, http.StatusUnauthorized, ErrorCodeVerificationFailed},
		{"signature invalid", webauthn.ErrSignatureInvalid, http.StatusUnauthorized, ErrorCodeVerificationFailed},
		{"cloned credential", webauthn.ErrClonedCredential, http.StatusUnauthorized, ErrorCodeVerificationFailed},
		{"credential disabled", webauthn.ErrCredentialDisabled, http.StatusUnauthorized, ErrorCodeVerificationFailed},
		{"no challenge", webauthn.ErrNoChallenge, http.StatusBadRequest, ErrorCodeCeremonyExpired},
		{"duplicate credential", webauthn.ErrDuplicateCredential, http.StatusConflict, ErrorCodeDuplicateCredential},
		{"passwordless disabled", webauthn.ErrPasswordlessDisabled, http.StatusBadRequest, ErrorCodePasswordlessDisabled},
		{"unauthenticated", webauthn.ErrUnauthenticated, http.StatusUnauthorized, ErrorCodeInvalidRequest},
		{"challenge mismatch", webauthn.ErrChallengeMismatch, http.StatusBadRequest, ErrorCodeVerificationFailed},
		{"origin not allowed", webauthn.ErrOriginNotAllowed, http.StatusBadRequest, ErrorCodeVerificationFailed},
		{"storage failure", webauthn.NewStorageError("insert", io.ErrUnexpectedEOF), http.StatusInternalServerError, ErrorCodeInternalError},
		{"generic", io.ErrUnexpectedEOF, http.StatusInternalServerError, ErrorCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", nil)
			rec := httptest.NewRecorder()
			h.handleServiceError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestHandler_WithLogger(t *testing.T) {
	h := newTestHandler(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, h, h.WithLogger(logger))
	assert.Same(t, logger, h.logger)
}

func TestHandler_CeremonyMetrics(t *testing.T) {
	metrics.Enable()
	h := newTestHandler(t)
	auth := newMockAuthenticator(t)

	regSuccess := testutil.ToFloat64(metrics.CeremoniesTotal.WithLabelValues(metrics.CeremonyRegistration, metrics.StatusSuccess))
	authSuccess := testutil.ToFloat64(metrics.CeremoniesTotal.WithLabelValues(metrics.CeremonyAuthentication, metrics.StatusSuccess))
	authError := testutil.ToFloat64(metrics.CeremoniesTotal.WithLabelValues(metrics.CeremonyAuthentication, metrics.StatusError))
	clones := testutil.ToFloat64(metrics.CloneWarningsTotal)

	registerOverHTTP(t, h, auth, testUserID, "")

	// Successful login, counter advances to 5.
	auth.SetSignCount(4)
	options, ceremonyID := beginAuthenticationOverHTTP(t, h, "alice")
	resp, err := auth.CreateAssertionResponse(options.Response.Challenge, nil, testOrigin)
	require.NoError(t, err)
	rec := doJSON(t, h.FinishAuthentication, http.MethodPost, "/authentication/complete",
		resp.Raw, map[string]string{HeaderCeremonyID: ceremonyID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Regressed counter is rejected and counted as a clone warning.
	auth.SetSignCount(2)
	options, ceremonyID = beginAuthenticationOverHTTP(t, h, "alice")
	resp, err = auth.CreateAssertionResponse(options.Response.Challenge, nil, testOrigin)
	require.NoError(t, err)
	rec = doJSON(t, h.FinishAuthentication, http.MethodPost, "/authentication/complete",
		resp.Raw, map[string]string{HeaderCeremonyID: ceremonyID})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, regSuccess+1,
		testutil.ToFloat64(metrics.CeremoniesTotal.WithLabelValues(metrics.CeremonyRegistration, metrics.StatusSuccess)))
	assert.Equal(t, authSuccess+1,
		testutil.ToFloat64(metrics.CeremoniesTotal.WithLabelValues(metrics.CeremonyAuthentication, metrics.StatusSuccess)))
	assert.Equal(t, authError+1,
		testutil.ToFloat64(metrics.CeremoniesTotal.WithLabelValues(metrics.CeremonyAuthentication, metrics.StatusError)))
	assert.Equal(t, clones+1, testutil.ToFloat64(metrics.CloneWarningsTotal))
}

func TestHandler_SignalMetrics(t *testing.T) {
	metrics.Enable()
	h := newTestHandler(t)
	auth := newMockAuthenticator(t)

	delivered := testutil.ToFloat64(metrics.SyncSignalsTotal.WithLabelValues(metrics.SignalDelivered))
	empty := testutil.ToFloat64(metrics.SyncSignalsTotal.WithLabelValues(metrics.SignalEmpty))

	registerOverHTTP(t, h, auth, testUserID, "session-9")

	rec := doJSON(t, h.Signal, http.MethodGet, "/signal", nil,
		map[string]string{HeaderSessionID: "session-9"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h.Signal, http.MethodGet, "/signal", nil,
		map[string]string{HeaderSessionID: "session-9"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, delivered+1,
		testutil.ToFloat64(metrics.SyncSignalsTotal.WithLabelValues(metrics.SignalDelivered)))
	assert.Equal(t, empty+1,
		testutil.ToFloat64(metrics.SyncSignalsTotal.WithLabelValues(metrics.SignalEmpty)))
}
