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
	"encoding/base64"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// User is the minimal view of an application user account the relying party
// core needs. Applications bring their own user model and implement this
// interface; the core never sees emails or other rotating PII.
type User interface {
	// ID returns the stable application-level user identifier.
	ID() string

	// Username returns the account name shown during ceremonies.
	Username() string

	// DisplayName returns the human-palatable name shown during ceremonies.
	DisplayName() string
}

// CeremonyKind distinguishes the two WebAuthn ceremony types.
type CeremonyKind string

const (
	// CeremonyRegistration is a credential creation ceremony.
	CeremonyRegistration CeremonyKind = "registration"

	// CeremonyAuthentication is a credential assertion ceremony.
	CeremonyAuthentication CeremonyKind = "authentication"
)

// Credential is one registered authenticator/passkey. The credential ID is
// globally unique across the store; the record is created at registration
// completion and mutated only by successful authentications (sign count,
// last used) or explicit application action.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	// Immutable after creation.
	ID []byte `json:"id"`

	// UserID is the application user identifier this credential belongs to.
	UserID string `json:"user_id"`

	// PublicKey is the credential's public key in COSE format. Immutable.
	PublicKey []byte `json:"public_key"`

	// Algorithm is the COSE algorithm identifier the key was registered with.
	Algorithm int64 `json:"algorithm"`

	// SignCount is the authenticator's signature counter, 0 when the
	// authenticator does not implement counters.
	SignCount uint32 `json:"sign_count"`

	// Transports lists the transport hints reported at registration.
	// Advisory only.
	Transports []protocol.AuthenticatorTransport `json:"transports,omitempty"`

	// AAGUID identifies the authenticator model. Advisory only.
	AAGUID []byte `json:"aaguid,omitempty"`

	// BackupEligible reports whether the credential may sync across devices.
	BackupEligible bool `json:"backup_eligible"`

	// BackupState reports whether the credential is currently backed up.
	BackupState bool `json:"backup_state"`

	// Discoverable reports whether the authenticator indicated it stored the
	// credential client-side. Client-reported and unsigned; informational only.
	Discoverable bool `json:"discoverable"`

	// Disabled blocks the credential from completing authentication. Set on
	// clone detection or by application action.
	Disabled bool `json:"disabled"`

	// Label is a human-assigned name for the credential.
	Label string `json:"label,omitempty"`

	// Attestation retains the raw attestation material captured at
	// registration. Never verified by this package.
	Attestation AttestationRecord `json:"attestation"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed an authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// AttestationRecord keeps the attestation object exactly as submitted so a
// deployment can verify it out-of-band later. Only structural
// well-formedness is checked at registration time.
type AttestationRecord struct {
	// Format is the self-reported attestation statement format ("none",
	// "packed", ...).
	Format string `json:"format"`

	// Object is the raw CBOR attestation object.
	Object []byte `json:"object,omitempty"`

	// ClientDataJSON is the raw client data the attestation covers.
	ClientDataJSON []byte `json:"client_data_json,omitempty"`
}

// Descriptor returns the credential as a WebAuthn descriptor for
// allow/exclude lists.
func (c *Credential) Descriptor() protocol.CredentialDescriptor {
	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: c.ID,
		Transport:    c.Transports,
	}
}

// credentialKey renders a credential ID the way it appears on the wire,
// for log fields and map keys.
func credentialKey(id []byte) string {
	return base64.RawURLEncoding.EncodeToString(id)
}

// Descriptors converts a credential list to WebAuthn descriptors.
func Descriptors(creds []*Credential) []protocol.CredentialDescriptor {
	out := make([]protocol.CredentialDescriptor, 0, len(creds))
	for _, c := range creds {
		out = append(out, c.Descriptor())
	}
	return out
}

// SyncPayload is emitted once per dirty session so clients can reconcile
// browser-cached credential metadata against server state.
type SyncPayload struct {
	// RPID is the relying party identifier the payload applies to.
	RPID string `json:"rpId"`

	// UserHandle is the WebAuthn user handle, base64url-encoded on the wire.
	UserHandle protocol.URLEncodedBase64 `json:"userHandle"`

	// DisplayName is the user's current display name.
	DisplayName string `json:"displayName"`

	// CredentialIDs is the full current set of credential IDs for the user.
	// Clients drop any locally cached credential not listed here.
	CredentialIDs []protocol.URLEncodedBase64 `json:"credentialIds"`
}
