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
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math/big"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// MockAuthenticator simulates a WebAuthn authenticator for testing. It
// produces parsed registration and assertion responses with real ES256
// signatures that the ceremony validation accepts.
type MockAuthenticator struct {
	// AAGUID is the authenticator's model identifier (16 bytes).
	AAGUID []byte

	// privateKey is the authenticator's signing key.
	privateKey *ecdsa.PrivateKey

	// CredentialID is the credential identifier.
	CredentialID []byte

	// SignCount is the current signature counter.
	SignCount uint32

	// CounterDisabled models an authenticator without a signature counter:
	// assertions report counter 0 and never increment.
	CounterDisabled bool

	// UserPresent controls the UP flag.
	UserPresent bool

	// UserVerified controls the UV flag.
	UserVerified bool

	// BackupEligible controls the BE flag.
	BackupEligible bool

	// BackupState controls the BS flag.
	BackupState bool

	// ResidentKey makes the credential discoverable and reported via the
	// credProps client extension.
	ResidentKey bool

	// rpID is the Relying Party ID the authenticator is scoped to.
	rpID string

	// rpIDHash is the SHA-256 hash of the RP ID.
	rpIDHash []byte
}

// MockAuthenticatorOption is a functional option for configuring a MockAuthenticator.
type MockAuthenticatorOption func(*MockAuthenticator)

// WithAAGUID sets a custom AAGUID.
func WithAAGUID(aaguid []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.AAGUID = aaguid
	}
}

// WithCredentialID sets a custom credential ID.
func WithCredentialID(credID []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.CredentialID = credID
	}
}

// WithSignCount sets the initial sign count.
func WithSignCount(count uint32) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.SignCount = count
	}
}

// WithoutCounter models an authenticator that does not implement a
// signature counter.
func WithoutCounter() MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.CounterDisabled = true
		m.SignCount = 0
	}
}

// WithUserPresent sets the UP flag.
func WithUserPresent(up bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.UserPresent = up
	}
}

// WithUserVerified sets the UV flag.
func WithUserVerified(uv bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.UserVerified = uv
	}
}

// WithBackupFlags sets the BE and BS flags.
func WithBackupFlags(eligible, state bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.BackupEligible = eligible
		m.BackupState = state
	}
}

// WithResidentKey enables discoverable credential mode.
func WithResidentKey(rk bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.ResidentKey = rk
	}
}

// NewMockAuthenticator creates a new mock authenticator scoped to rpID.
func NewMockAuthenticator(rpID string, opts ...MockAuthenticatorOption) (*MockAuthenticator, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	aaguid := make([]byte, 16)
	if _, err := rand.Read(aaguid); err != nil {
		return nil, err
	}

	credID := make([]byte, 32)
	if _, err := rand.Read(credID); err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256([]byte(rpID))

	m := &MockAuthenticator{
		AAGUID:       aaguid,
		privateKey:   privateKey,
		CredentialID: credID,
		UserPresent:  true,
		UserVerified: true,
		rpID:         rpID,
		rpIDHash:     rpIDHash[:],
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// PublicKey returns the authenticator's public key.
func (m *MockAuthenticator) PublicKey() crypto.PublicKey {
	return m.privateKey.Public()
}

// PublicKeyBytes returns the public key in COSE format.
func (m *MockAuthenticator) PublicKeyBytes() ([]byte, error) {
	pubKey := m.privateKey.Public().(*ecdsa.PublicKey)

	coseKey := map[int]interface{}{
		1:  2,                          // kty: EC2
		3:  int(webauthncose.AlgES256), // alg: ES256
		-1: 1,                          // crv: P-256
		-2: pubKey.X.Bytes(),           // x coordinate
		-3: pubKey.Y.Bytes(),           // y coordinate
	}

	return webauthncbor.Marshal(coseKey)
}

// SetSignCount forces the counter to a specific value, useful for staging
// counter regressions.
func (m *MockAuthenticator) SetSignCount(count uint32) {
	m.SignCount = count
}

// CreateRegistrationResponse produces a parsed registration response for
// the given challenge, as if the user approved a creation ceremony at origin.
func (m *MockAuthenticator) CreateRegistrationResponse(
	challenge []byte,
	origin string,
) (*protocol.ParsedCredentialCreationData, error) {
	authData, err := m.buildAuthenticatorData(true)
	if err != nil {
		return nil, err
	}

	clientDataJSON := m.buildClientDataJSON(challenge, origin, "webauthn.create")

	// "none" attestation: empty statement, no signature.
	attestationObject := map[string]interface{}{
		"authData": authData,
		"fmt":      "none",
		"attStmt":  map[string]interface{}{},
	}
	attestationObjectBytes, err := webauthncbor.Marshal(attestationObject)
	if err != nil {
		return nil, err
	}

	pubKeyBytes, err := m.PublicKeyBytes()
	if err != nil {
		return nil, err
	}

	parsedAttObj := protocol.AttestationObject{
		Format:       "none",
		AttStatement: map[string]interface{}{},
		AuthData: protocol.AuthenticatorData{
			RPIDHash: m.rpIDHash,
			Flags:    m.buildFlags(true),
			Counter:  m.SignCount,
			AttData: protocol.AttestedCredentialData{
				AAGUID:              m.AAGUID,
				CredentialID:        m.CredentialID,
				CredentialPublicKey: pubKeyBytes,
			},
		},
	}

	extensions := protocol.AuthenticationExtensionsClientOutputs{}
	if m.ResidentKey {
		extensions["credProps"] = map[string]interface{}{"rk": true}
	}

	credentialIDBase64 := base64.RawURLEncoding.EncodeToString(m.CredentialID)

	return &protocol.ParsedCredentialCreationData{
		ParsedPublicKeyCredential: protocol.ParsedPublicKeyCredential{
			ParsedCredential: protocol.ParsedCredential{
				ID:   credentialIDBase64,
				Type: "public-key",
			},
			RawID:                  m.CredentialID,
			ClientExtensionResults: extensions,
		},
		Response: protocol.ParsedAttestationResponse{
			CollectedClientData: protocol.CollectedClientData{
				Type:      "webauthn.create",
				Challenge: base64.RawURLEncoding.EncodeToString(challenge),
				Origin:    origin,
			},
			AttestationObject: parsedAttObj,
			Transports:        []protocol.AuthenticatorTransport{protocol.Internal},
		},
		Raw: protocol.CredentialCreationResponse{
			PublicKeyCredential: protocol.PublicKeyCredential{
				Credential: protocol.Credential{
					ID:   credentialIDBase64,
					Type: "public-key",
				},
				RawID:                  m.CredentialID,
				ClientExtensionResults: extensions,
			},
			AttestationResponse: protocol.AuthenticatorAttestationResponse{
				AuthenticatorResponse: protocol.AuthenticatorResponse{
					ClientDataJSON: clientDataJSON,
				},
				AttestationObject: attestationObjectBytes,
				Transports:        []string{"internal"},
			},
		},
	}, nil
}

// CreateAssertionResponse produces a parsed assertion response for the given
// challenge. The counter increments per assertion unless the authenticator
// is counter-disabled.
func (m *MockAuthenticator) CreateAssertionResponse(
	challenge []byte,
	userHandle []byte,
	origin string,
) (*protocol.ParsedCredentialAssertionData, error) {
	if !m.CounterDisabled {
		m.SignCount++
	}

	authData, err := m.buildAuthenticatorData(false)
	if err != nil {
		return nil, err
	}

	clientDataJSON := m.buildClientDataJSON(challenge, origin, "webauthn.get")
	clientDataHash := sha256.Sum256(clientDataJSON)

	signedData := append(bytes.Clone(authData), clientDataHash[:]...)
	signature, err := m.sign(signedData)
	if err != nil {
		return nil, err
	}

	credentialIDBase64 := base64.RawURLEncoding.EncodeToString(m.CredentialID)

	return &protocol.ParsedCredentialAssertionData{
		ParsedPublicKeyCredential: protocol.ParsedPublicKeyCredential{
			ParsedCredential: protocol.ParsedCredential{
				ID:   credentialIDBase64,
				Type: "public-key",
			},
			RawID:                  m.CredentialID,
			ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
		},
		Response: protocol.ParsedAssertionResponse{
			CollectedClientData: protocol.CollectedClientData{
				Type:      "webauthn.get",
				Challenge: base64.RawURLEncoding.EncodeToString(challenge),
				Origin:    origin,
			},
			AuthenticatorData: protocol.AuthenticatorData{
				RPIDHash: m.rpIDHash,
				Flags:    m.buildFlags(false),
				Counter:  m.SignCount,
			},
			Signature:  signature,
			UserHandle: userHandle,
		},
		Raw: protocol.CredentialAssertionResponse{
			PublicKeyCredential: protocol.PublicKeyCredential{
				Credential: protocol.Credential{
					ID:   credentialIDBase64,
					Type: "public-key",
				},
				RawID:                  m.CredentialID,
				ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
			},
			AssertionResponse: protocol.AuthenticatorAssertionResponse{
				AuthenticatorResponse: protocol.AuthenticatorResponse{
					ClientDataJSON: clientDataJSON,
				},
				AuthenticatorData: authData,
				Signature:         signature,
				UserHandle:        userHandle,
			},
		},
	}, nil
}

// buildFlags builds the authenticator flags byte.
func (m *MockAuthenticator) buildFlags(includeCredential bool) protocol.AuthenticatorFlags {
	var flags byte
	if m.UserPresent {
		flags |= 0x01 // UP
	}
	if m.UserVerified {
		flags |= 0x04 // UV
	}
	if m.BackupEligible {
		flags |= 0x08 // BE
	}
	if m.BackupState {
		flags |= 0x10 // BS
	}
	if includeCredential {
		flags |= 0x40 // AT
	}
	return protocol.AuthenticatorFlags(flags)
}

// buildAuthenticatorData serializes the authenticator data structure,
// appending attested credential data when includeCredential is true.
func (m *MockAuthenticator) buildAuthenticatorData(includeCredential bool) ([]byte, error) {
	var buf bytes.Buffer

	buf.Write(m.rpIDHash)
	buf.WriteByte(byte(m.buildFlags(includeCredential)))

	signCountBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(signCountBytes, m.SignCount)
	buf.Write(signCountBytes)

	if includeCredential {
		buf.Write(m.AAGUID)

		credIDLen := make([]byte, 2)
		binary.BigEndian.PutUint16(credIDLen, uint16(len(m.CredentialID)))
		buf.Write(credIDLen)
		buf.Write(m.CredentialID)

		pubKeyBytes, err := m.PublicKeyBytes()
		if err != nil {
			return nil, err
		}
		buf.Write(pubKeyBytes)
	}

	return buf.Bytes(), nil
}

// buildClientDataJSON builds the collected client data document.
func (m *MockAuthenticator) buildClientDataJSON(challenge []byte, origin, ceremonyType string) []byte {
	clientData := struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Origin    string `json:"origin"`
	}{
		Type:      ceremonyType,
		Challenge: base64.RawURLEncoding.EncodeToString(challenge),
		Origin:    origin,
	}

	jsonBytes, _ := json.Marshal(clientData)
	return jsonBytes
}

// sign creates an ASN.1 DER encoded ECDSA signature over the data.
func (m *MockAuthenticator) sign(data []byte) ([]byte, error) {
	hash := sha256.Sum256(data)
	r, s, err := ecdsa.Sign(rand.Reader, m.privateKey, hash[:])
	if err != nil {
		return nil, err
	}
	return asn1MarshalSignature(r, s)
}

// asn1MarshalSignature encodes r and s as an ASN.1 DER SEQUENCE of INTEGERs.
func asn1MarshalSignature(r, s *big.Int) ([]byte, error) {
	rBytes := r.Bytes()
	sBytes := s.Bytes()

	if len(rBytes) > 0 && rBytes[0] >= 0x80 {
		rBytes = append([]byte{0x00}, rBytes...)
	}
	if len(sBytes) > 0 && sBytes[0] >= 0x80 {
		sBytes = append([]byte{0x00}, sBytes...)
	}

	rLen := len(rBytes)
	sLen := len(sBytes)
	seqLen := 2 + rLen + 2 + sLen

	sig := make([]byte, 0, 2+seqLen)
	sig = append(sig, 0x30)
	sig = append(sig, byte(seqLen))
	sig = append(sig, 0x02)
	sig = append(sig, byte(rLen))
	sig = append(sig, rBytes...)
	sig = append(sig, 0x02)
	sig = append(sig, byte(sLen))
	sig = append(sig, sBytes...)

	return sig, nil
}
