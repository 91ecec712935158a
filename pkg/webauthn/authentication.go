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
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/google/uuid"
)

// AuthenticationResult is returned by CompleteAuthentication. SecondFactor
// reports whether the ceremony verified an already-authenticated session
// rather than establishing a new one.
type AuthenticationResult struct {
	User         User
	Credential   *Credential
	Token        string
	SecondFactor bool
}

// BeginAuthentication starts an authentication ceremony. A non-nil user
// yields a second-factor ceremony scoped to that user's credentials; a nil
// user yields a passwordless ceremony with an empty allow-list, relying on
// discoverable credentials. Passwordless ceremonies require the
// PasswordlessLogin toggle and always demand user verification, since the
// assertion is the sole authentication factor.
func (s *Service) BeginAuthentication(ctx context.Context, user User) (*protocol.CredentialAssertion, string, error) {
	const op = "begin authentication"

	if !s.configured {
		return nil, "", ErrNotConfigured
	}
	if user == nil && !s.config.PasswordlessLogin {
		return nil, "", NewError(op, ErrPasswordlessDisabled)
	}

	var (
		userID     string
		allowList  []protocol.CredentialDescriptor
		uvRequired bool
	)
	if user != nil {
		userID = user.ID()
		uvRequired = s.config.UserVerification == "required"
		existing, err := s.credentials.FindAllByUser(ctx, userID)
		if err != nil {
			return nil, "", NewStorageError(op, err)
		}
		allowList = Descriptors(existing)
	} else {
		uvRequired = true
	}

	return s.beginAssertion(ctx, op, userID, allowList, uvRequired)
}

// BeginAuthenticationByIdentifier starts a second-factor style ceremony for
// a username supplied before authentication. An unknown identifier produces
// a response indistinguishable from a known user with no registered
// credentials: same option shape, empty allow-list, and a ceremony state
// bound to an unmatchable owner so completion fails generically.
func (s *Service) BeginAuthenticationByIdentifier(ctx context.Context, identifier string) (*protocol.CredentialAssertion, string, error) {
	const op = "begin authentication"

	if !s.configured {
		return nil, "", ErrNotConfigured
	}

	uvRequired := s.config.UserVerification == "required"

	user, err := s.directory.Lookup(ctx, identifier)
	switch {
	case err == nil:
		existing, ferr := s.credentials.FindAllByUser(ctx, user.ID())
		if ferr != nil {
			return nil, "", NewStorageError(op, ferr)
		}
		return s.beginAssertion(ctx, op, user.ID(), Descriptors(existing), uvRequired)
	case errors.Is(err, ErrUserNotFound):
		// Ghost ceremony. The random owner ID can never match a stored
		// credential, so completion fails ErrCredentialMismatch without
		// revealing that the account does not exist.
		return s.beginAssertion(ctx, op, "ghost:"+uuid.NewString(), nil, uvRequired)
	default:
		return nil, "", NewStorageError(op, err)
	}
}

func (s *Service) beginAssertion(ctx context.Context, op, userID string, allowList []protocol.CredentialDescriptor, uvRequired bool) (*protocol.CredentialAssertion, string, error) {
	challenge, err := NewChallenge()
	if err != nil {
		return nil, "", WrapError(op, err)
	}

	token, err := s.states.Save(ctx, &CeremonyState{
		Kind:                     CeremonyAuthentication,
		Challenge:                challenge,
		RPID:                     s.config.RPID,
		UserID:                   userID,
		UserVerificationRequired: uvRequired,
		CreatedAt:                time.Now().UTC(),
	})
	if err != nil {
		return nil, "", NewStorageError(op, err)
	}

	uv := s.config.userVerificationRequirement()
	if uvRequired {
		uv = protocol.VerificationRequired
	}

	options := &protocol.CredentialAssertion{
		Response: protocol.PublicKeyCredentialRequestOptions{
			Challenge:          protocol.URLEncodedBase64(challenge),
			Timeout:            s.config.TimeoutMillis(),
			RelyingPartyID:     s.config.RPID,
			AllowedCredentials: allowList,
			UserVerification:   uv,
		},
	}

	return options, token, nil
}

// CompleteAuthentication validates an assertion response against the
// ceremony state saved at begin time. The expected user may be nil for
// passwordless ceremonies; the asserted credential then determines the
// account. On success the signature has been verified against the stored
// public key, the sign counter advanced under compare-and-swap, and the
// sessionKey flagged for sync-signal reconciliation.
func (s *Service) CompleteAuthentication(ctx context.Context, stateToken, sessionKey string, response *protocol.ParsedCredentialAssertionData) (*AuthenticationResult, error) {
	const op = "complete authentication"

	if !s.configured {
		return nil, ErrNotConfigured
	}
	if response == nil {
		return nil, NewError(op, ErrMalformedResponse)
	}

	// State is consumed before any validation so a replayed or tampered
	// response still burns the challenge.
	state, err := s.states.Consume(ctx, stateToken, CeremonyAuthentication)
	if err != nil {
		return nil, WrapError(op, err)
	}

	clientData := response.Response.CollectedClientData
	if clientData.Type != protocol.AssertCeremony {
		return nil, NewError(op, ErrCeremonyTypeMismatch)
	}
	if !challengeMatches(clientData.Challenge, state.Challenge) {
		return nil, NewError(op, ErrChallengeMismatch)
	}
	if !s.origins.Allowed(clientData.Origin) {
		s.logger.Warn("assertion from disallowed origin",
			"origin", clientData.Origin, "rp_id", state.RPID)
		return nil, NewError(op, ErrOriginNotAllowed)
	}

	authData := response.Response.AuthenticatorData
	if !rpIDHashMatches(authData.RPIDHash, state.RPID) {
		return nil, NewError(op, ErrRPIDMismatch)
	}
	if !authData.Flags.UserPresent() {
		return nil, NewError(op, ErrUserPresenceRequired)
	}
	if state.UserVerificationRequired && !authData.Flags.UserVerified() {
		return nil, NewError(op, ErrUserVerificationRequired)
	}

	cred, err := s.credentials.FindByCredentialID(ctx, response.RawID)
	if err != nil {
		if errors.Is(err, ErrUnknownCredential) {
			return nil, NewError(op, ErrUnknownCredential)
		}
		return nil, NewStorageError(op, err)
	}

	// A ceremony begun for a specific user only accepts that user's
	// credentials. Passwordless ceremonies carry no expected owner.
	if state.UserID != "" && cred.UserID != state.UserID {
		return nil, NewError(op, ErrCredentialMismatch)
	}
	if handle := response.Response.UserHandle; len(handle) > 0 {
		ownerID, herr := s.handles.UserFor(ctx, handle)
		if herr != nil || ownerID != cred.UserID {
			return nil, NewError(op, ErrCredentialMismatch)
		}
	} else if state.UserID == "" {
		// Passwordless assertions must carry the user handle; it is the
		// only binding between the credential and the account.
		return nil, NewError(op, ErrCredentialMismatch)
	}
	if cred.Disabled {
		return nil, NewError(op, ErrCredentialDisabled)
	}

	if err := verifyAssertionSignature(cred, response); err != nil {
		return nil, NewError(op, ErrSignatureInvalid)
	}

	if err := s.advanceSignCount(ctx, cred, authData.Counter); err != nil {
		return nil, err
	}

	user, err := s.directory.GetByID(ctx, cred.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, NewError(op, ErrUnknownCredential)
		}
		return nil, NewStorageError(op, err)
	}

	secondFactor := state.UserID != ""
	token, err := s.issueToken(ctx, user, secondFactor)
	if err != nil {
		return nil, WrapError(op, err)
	}

	s.sync.MarkDirty(sessionKey, user.ID())
	s.logger.Info("authentication completed",
		"user_id", user.ID(), "second_factor", secondFactor)

	return &AuthenticationResult{
		User:         user,
		Credential:   cred,
		Token:        token,
		SecondFactor: secondFactor,
	}, nil
}

// verifyAssertionSignature checks the assertion signature over
// rawAuthData || SHA-256(rawClientDataJSON) with the stored public key.
func verifyAssertionSignature(cred *Credential, response *protocol.ParsedCredentialAssertionData) error {
	key, err := webauthncose.ParsePublicKey(cred.PublicKey)
	if err != nil {
		return err
	}

	clientDataHash := sha256.Sum256(response.Raw.AssertionResponse.ClientDataJSON)
	signed := bytes.Clone(response.Raw.AssertionResponse.AuthenticatorData)
	signed = append(signed, clientDataHash[:]...)

	valid, err := webauthncose.VerifySignature(key, signed, response.Response.Signature)
	if err != nil {
		return err
	}
	if !valid {
		return ErrSignatureInvalid
	}
	return nil
}

// advanceSignCount enforces counter monotonicity and persists the new
// counter under compare-and-swap. Both counters at zero means the
// authenticator does not implement a counter, so the check is skipped. A
// non-increasing counter, or a lost CAS race, indicates a possible cloned
// authenticator: the credential is disabled and the ceremony fails.
func (s *Service) advanceSignCount(ctx context.Context, cred *Credential, newCount uint32) error {
	const op = "complete authentication"

	now := time.Now().UTC()

	if cred.SignCount == 0 && newCount == 0 {
		if err := s.credentials.UpdateSignCount(ctx, cred.ID, 0, 0, now); err != nil {
			if errors.Is(err, ErrClonedCredential) {
				return s.flagClone(ctx, cred)
			}
			return NewStorageError(op, err)
		}
		cred.LastUsedAt = now
		return nil
	}

	if newCount <= cred.SignCount {
		return s.flagClone(ctx, cred)
	}

	if err := s.credentials.UpdateSignCount(ctx, cred.ID, cred.SignCount, newCount, now); err != nil {
		if errors.Is(err, ErrClonedCredential) {
			return s.flagClone(ctx, cred)
		}
		return NewStorageError(op, err)
	}
	cred.SignCount = newCount
	cred.LastUsedAt = now
	return nil
}

// flagClone disables a credential after a counter regression and surfaces
// the clone error. Disabling is best effort; the ceremony fails either way.
func (s *Service) flagClone(ctx context.Context, cred *Credential) error {
	const op = "complete authentication"

	s.logger.Error("sign counter regression, possible cloned authenticator",
		"credential_id", credentialKey(cred.ID), "user_id", cred.UserID)
	if err := s.credentials.SetDisabled(ctx, cred.ID, true); err != nil {
		s.logger.Error("failed to disable credential after clone detection",
			"credential_id", credentialKey(cred.ID), "error", err)
	}
	return NewError(op, ErrClonedCredential)
}
