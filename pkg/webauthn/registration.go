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
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// maxCredentialIDLength is the WebAuthn cap on credential identifier size.
const maxCredentialIDLength = 1023

// BeginRegistration starts a credential registration ceremony for an
// authenticated user. It returns the serialized creation options and the
// opaque state token consumed by CompleteRegistration. Registration is
// never anonymous; a nil user fails ErrUnauthenticated.
func (s *Service) BeginRegistration(ctx context.Context, user User) (*protocol.CredentialCreation, string, error) {
	const op = "begin registration"

	if !s.configured {
		return nil, "", ErrNotConfigured
	}
	if user == nil {
		return nil, "", NewError(op, ErrUnauthenticated)
	}

	handle, err := s.handles.HandleFor(ctx, user.ID())
	if err != nil {
		return nil, "", NewStorageError(op, err)
	}

	// Existing credentials populate excludeCredentials so the authenticator
	// refuses to re-enroll a device already registered for this account.
	existing, err := s.credentials.FindAllByUser(ctx, user.ID())
	if err != nil {
		return nil, "", NewStorageError(op, err)
	}

	challenge, err := NewChallenge()
	if err != nil {
		return nil, "", WrapError(op, err)
	}

	uvRequired := s.config.UserVerification == "required"
	discoverableRequired := s.config.ResidentKey == "required"

	token, err := s.states.Save(ctx, &CeremonyState{
		Kind:                     CeremonyRegistration,
		Challenge:                challenge,
		RPID:                     s.config.RPID,
		UserID:                   user.ID(),
		UserHandle:               handle,
		UserVerificationRequired: uvRequired,
		DiscoverableRequired:     discoverableRequired,
		CreatedAt:                time.Now().UTC(),
	})
	if err != nil {
		return nil, "", NewStorageError(op, err)
	}

	requireResident := discoverableRequired

	options := &protocol.CredentialCreation{
		Response: protocol.PublicKeyCredentialCreationOptions{
			RelyingParty: protocol.RelyingPartyEntity{
				CredentialEntity: protocol.CredentialEntity{Name: s.config.RPDisplayName},
				ID:               s.config.RPID,
			},
			// The user entity carries the opaque handle and display name
			// only; identifiers that rotate or leak account existence
			// (emails, ...) stay out of ceremony options.
			User: protocol.UserEntity{
				CredentialEntity: protocol.CredentialEntity{Name: user.Username()},
				DisplayName:      user.DisplayName(),
				ID:               protocol.URLEncodedBase64(handle),
			},
			Challenge:             protocol.URLEncodedBase64(challenge),
			Parameters:            s.config.CredentialParameters(),
			Timeout:               s.config.TimeoutMillis(),
			CredentialExcludeList: Descriptors(existing),
			AuthenticatorSelection: protocol.AuthenticatorSelection{
				AuthenticatorAttachment: s.config.authenticatorAttachment(),
				ResidentKey:             s.config.residentKeyRequirement(),
				RequireResidentKey:      &requireResident,
				UserVerification:        s.config.userVerificationRequirement(),
			},
			Attestation: s.config.conveyancePreference(),
		},
	}

	return options, token, nil
}

// CompleteRegistration validates a registration response against the
// ceremony state saved by BeginRegistration and persists the new credential.
// Every validation step is terminal on failure; no credential is persisted
// unless all steps pass. On success the sessionKey is flagged for
// sync-signal reconciliation.
func (s *Service) CompleteRegistration(ctx context.Context, stateToken, sessionKey string, user User, response *protocol.ParsedCredentialCreationData) (*Credential, error) {
	const op = "complete registration"

	if !s.configured {
		return nil, ErrNotConfigured
	}
	if user == nil {
		return nil, NewError(op, ErrUnauthenticated)
	}
	if response == nil {
		return nil, NewError(op, ErrMalformedResponse)
	}

	// Consuming the state invalidates it even when a later step fails; a
	// challenge is never accepted twice.
	state, err := s.states.Consume(ctx, stateToken, CeremonyRegistration)
	if err != nil {
		return nil, WrapError(op, err)
	}
	if state.UserID != user.ID() {
		return nil, NewError(op, ErrNoChallenge)
	}

	clientData := response.Response.CollectedClientData
	if clientData.Type != protocol.CreateCeremony {
		return nil, NewError(op, ErrCeremonyTypeMismatch)
	}
	if !challengeMatches(clientData.Challenge, state.Challenge) {
		return nil, NewError(op, ErrChallengeMismatch)
	}
	if !s.origins.Allowed(clientData.Origin) {
		s.logger.Warn("registration from disallowed origin",
			"origin", clientData.Origin, "rp_id", state.RPID)
		return nil, NewError(op, ErrOriginNotAllowed)
	}

	authData := response.Response.AttestationObject.AuthData
	if !rpIDHashMatches(authData.RPIDHash, state.RPID) {
		return nil, NewError(op, ErrRPIDMismatch)
	}
	if !authData.Flags.UserPresent() {
		return nil, NewError(op, ErrUserPresenceRequired)
	}
	if state.UserVerificationRequired && !authData.Flags.UserVerified() {
		return nil, NewError(op, ErrUserVerificationRequired)
	}

	if !authData.Flags.HasAttestedCredentialData() {
		return nil, NewError(op, ErrMalformedResponse)
	}
	credentialID := authData.AttData.CredentialID
	if len(credentialID) == 0 || len(credentialID) > maxCredentialIDLength {
		return nil, NewError(op, ErrMalformedResponse)
	}

	publicKey := authData.AttData.CredentialPublicKey
	algorithm, err := coseAlgorithm(publicKey)
	if err != nil {
		return nil, NewError(op, ErrMalformedResponse)
	}
	if !s.config.AlgorithmAllowed(algorithm) {
		return nil, NewError(op, ErrAlgorithmNotAllowed)
	}

	// Attestation statements are accepted on structural well-formedness
	// alone. The raw object is retained on the record for deployments that
	// verify trust chains out-of-band.
	if response.Response.AttestationObject.Format == "" {
		return nil, NewError(op, ErrMalformedResponse)
	}

	if _, err := s.credentials.FindByCredentialID(ctx, credentialID); err == nil {
		return nil, NewError(op, ErrDuplicateCredential)
	} else if !errors.Is(err, ErrUnknownCredential) {
		return nil, NewStorageError(op, err)
	}

	cred := &Credential{
		ID:             credentialID,
		UserID:         user.ID(),
		PublicKey:      publicKey,
		Algorithm:      algorithm,
		SignCount:      authData.Counter,
		Transports:     response.Response.Transports,
		AAGUID:         authData.AttData.AAGUID,
		BackupEligible: authData.Flags.HasBackupEligible(),
		BackupState:    authData.Flags.HasBackupState(),
		Discoverable:   credPropsDiscoverable(response.ClientExtensionResults),
		Attestation: AttestationRecord{
			Format:         response.Response.AttestationObject.Format,
			Object:         response.Raw.AttestationResponse.AttestationObject,
			ClientDataJSON: response.Raw.AttestationResponse.ClientDataJSON,
		},
		CreatedAt: time.Now().UTC(),
	}
	cred.Label = s.hooks.CredentialLabel(user, cred)

	// Insert is the authoritative duplicate check: concurrent registrations
	// of the same credential ID resolve to exactly one winner here.
	if err := s.credentials.Insert(ctx, cred); err != nil {
		if errors.Is(err, ErrDuplicateCredential) {
			return nil, NewError(op, ErrDuplicateCredential)
		}
		return nil, NewStorageError(op, err)
	}

	if err := s.hooks.AfterRegistration(ctx, user, cred); err != nil {
		s.logger.Error("post-registration hook failed",
			"user_id", user.ID(), "error", err)
	}

	s.sync.MarkDirty(sessionKey, user.ID())
	return cred, nil
}

// challengeMatches compares the client-echoed challenge against the stored
// one byte-for-byte in constant time.
func challengeMatches(echoed string, stored []byte) bool {
	expected := base64.RawURLEncoding.EncodeToString(stored)
	return subtle.ConstantTimeCompare([]byte(echoed), []byte(expected)) == 1
}

// rpIDHashMatches verifies the rpIdHash field against SHA-256 of the
// expected RP ID.
func rpIDHashMatches(hash []byte, rpID string) bool {
	expected := sha256.Sum256([]byte(rpID))
	return subtle.ConstantTimeCompare(hash, expected[:]) == 1
}

// coseAlgorithm extracts the COSE algorithm identifier from an encoded
// public key, validating that the key parses.
func coseAlgorithm(publicKey []byte) (int64, error) {
	key, err := webauthncose.ParsePublicKey(publicKey)
	if err != nil {
		return 0, err
	}
	switch k := key.(type) {
	case webauthncose.EC2PublicKeyData:
		return k.Algorithm, nil
	case webauthncose.OKPPublicKeyData:
		return k.Algorithm, nil
	case webauthncose.RSAPublicKeyData:
		return k.Algorithm, nil
	default:
		return 0, ErrMalformedResponse
	}
}

// credPropsDiscoverable reads the unsigned credProps.rk client extension.
// Informational only; never used for security decisions.
func credPropsDiscoverable(outputs protocol.AuthenticationExtensionsClientOutputs) bool {
	props, ok := outputs["credProps"].(map[string]interface{})
	if !ok {
		return false
	}
	rk, ok := props["rk"].(bool)
	return ok && rk
}
