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
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// MaxRelatedOriginLabels is the maximum number of distinct second-level
// domain labels browsers process from a related origins document. Origins
// sharing a label are coalesced client-side; the server only serves the
// flat list.
const MaxRelatedOriginLabels = 5

// DefaultAlgorithms is the COSE algorithm allow-list used when none is
// configured: ES256, EdDSA, RS256.
var DefaultAlgorithms = []int64{
	int64(webauthncose.AlgES256),
	int64(webauthncose.AlgEdDSA),
	int64(webauthncose.AlgRS256),
}

// Config holds relying party policy. It is constructed once at process start,
// validated, and then treated as immutable; ceremony components receive it
// explicitly rather than consulting mutable globals.
type Config struct {
	// RPID is the Relying Party identifier, typically the domain name.
	// Example: "example.com"
	RPID string `yaml:"id" json:"id"`

	// RPDisplayName is the human-readable name of the Relying Party.
	// Example: "Example Corp"
	RPDisplayName string `yaml:"display_name" json:"display_name"`

	// RPOrigins are the origins allowed to complete ceremonies. Scheme, host
	// and port are matched case-sensitively and exactly.
	// Example: []string{"https://example.com", "https://www.example.com"}
	RPOrigins []string `yaml:"origins" json:"origins"`

	// RelatedOrigins are additional trusted origins served from the
	// .well-known/webauthn document. Every entry must be HTTPS, with
	// http://localhost permitted for development.
	RelatedOrigins []string `yaml:"related_origins,omitempty" json:"related_origins,omitempty"`

	// Algorithms is the COSE algorithm identifier allow-list offered during
	// registration and enforced against registered keys.
	// Default: ES256 (-7), EdDSA (-8), RS256 (-257).
	Algorithms []int64 `yaml:"algorithms,omitempty" json:"algorithms,omitempty"`

	// Timeout is the client-side ceremony timeout hint.
	// Default: 60 seconds.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// ChallengeTTL bounds how long issued ceremony state remains valid.
	// Default: 5 minutes.
	ChallengeTTL time.Duration `yaml:"challenge_ttl" json:"challenge_ttl"`

	// UserVerification specifies the user verification requirement for
	// registration and second-factor authentication.
	// Options: "required", "preferred", "discouraged". Default: "preferred".
	UserVerification string `yaml:"user_verification" json:"user_verification"`

	// ResidentKey specifies the discoverable credential requirement.
	// Options: "required", "preferred", "discouraged". Default: "preferred".
	// Forced to "required" while PasswordlessLogin is enabled, because
	// non-discoverable credentials cannot answer an empty allow-list.
	ResidentKey string `yaml:"resident_key" json:"resident_key"`

	// AuthenticatorAttachment limits the type of authenticators allowed.
	// Options: "platform", "cross-platform", "" (any). Default: "" (any).
	AuthenticatorAttachment string `yaml:"authenticator_attachment" json:"authenticator_attachment"`

	// AttestationPreference specifies the attestation conveyance preference.
	// Options: "none", "indirect", "direct", "enterprise". Default: "none".
	// Attestation statements are retained but never cryptographically
	// verified by this package.
	AttestationPreference string `yaml:"attestation" json:"attestation"`

	// PasswordlessLogin permits anonymous (discoverable credential)
	// authentication ceremonies.
	PasswordlessLogin bool `yaml:"passwordless_login" json:"passwordless_login"`

	// Debug enables verbose ceremony diagnostics in server-side logs.
	Debug bool `yaml:"debug" json:"debug"`
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.ChallengeTTL == 0 {
		c.ChallengeTTL = 5 * time.Minute
	}
	if len(c.Algorithms) == 0 {
		c.Algorithms = append([]int64(nil), DefaultAlgorithms...)
	}
	if c.UserVerification == "" {
		c.UserVerification = "preferred"
	}
	if c.ResidentKey == "" {
		c.ResidentKey = "preferred"
	}
	if c.AttestationPreference == "" {
		c.AttestationPreference = "none"
	}
	if c.PasswordlessLogin {
		c.ResidentKey = "required"
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("RPID is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("RPDisplayName is required")
	}
	if len(c.RPOrigins) == 0 {
		return fmt.Errorf("at least one RPOrigin is required")
	}

	for _, origin := range append(append([]string{}, c.RPOrigins...), c.RelatedOrigins...) {
		if err := validateOrigin(origin); err != nil {
			return err
		}
	}

	if labels := relatedOriginLabels(c.RelatedOrigins); len(labels) > MaxRelatedOriginLabels {
		return fmt.Errorf("related origins span %d second-level domain labels, maximum is %d",
			len(labels), MaxRelatedOriginLabels)
	}

	for _, alg := range c.Algorithms {
		if !supportedAlgorithm(alg) {
			return fmt.Errorf("unsupported COSE algorithm: %d", alg)
		}
	}

	switch c.UserVerification {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid user verification: %s", c.UserVerification)
	}

	switch c.ResidentKey {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid resident key requirement: %s", c.ResidentKey)
	}

	switch c.AuthenticatorAttachment {
	case "", "platform", "cross-platform":
	default:
		return fmt.Errorf("invalid authenticator attachment: %s", c.AuthenticatorAttachment)
	}

	switch c.AttestationPreference {
	case "", "none", "indirect", "direct", "enterprise":
	default:
		return fmt.Errorf("invalid attestation preference: %s", c.AttestationPreference)
	}

	return nil
}

// AlgorithmAllowed reports whether a COSE algorithm identifier is in the
// configured allow-list.
func (c *Config) AlgorithmAllowed(alg int64) bool {
	for _, allowed := range c.Algorithms {
		if allowed == alg {
			return true
		}
	}
	return false
}

// CredentialParameters returns the configured algorithm list as WebAuthn
// credential parameters for creation options.
func (c *Config) CredentialParameters() []protocol.CredentialParameter {
	params := make([]protocol.CredentialParameter, 0, len(c.Algorithms))
	for _, alg := range c.Algorithms {
		params = append(params, protocol.CredentialParameter{
			Type:      protocol.PublicKeyCredentialType,
			Algorithm: webauthncose.COSEAlgorithmIdentifier(alg),
		})
	}
	return params
}

// TimeoutMillis returns the ceremony timeout in milliseconds, the unit the
// WebAuthn wire format uses.
func (c *Config) TimeoutMillis() int {
	return int(c.Timeout / time.Millisecond)
}

func (c *Config) userVerificationRequirement() protocol.UserVerificationRequirement {
	switch c.UserVerification {
	case "required":
		return protocol.VerificationRequired
	case "discouraged":
		return protocol.VerificationDiscouraged
	default:
		return protocol.VerificationPreferred
	}
}

func (c *Config) residentKeyRequirement() protocol.ResidentKeyRequirement {
	switch c.ResidentKey {
	case "required":
		return protocol.ResidentKeyRequirementRequired
	case "discouraged":
		return protocol.ResidentKeyRequirementDiscouraged
	default:
		return protocol.ResidentKeyRequirementPreferred
	}
}

func (c *Config) authenticatorAttachment() protocol.AuthenticatorAttachment {
	switch c.AuthenticatorAttachment {
	case "platform":
		return protocol.Platform
	case "cross-platform":
		return protocol.CrossPlatform
	default:
		return ""
	}
}

func (c *Config) conveyancePreference() protocol.ConveyancePreference {
	switch c.AttestationPreference {
	case "indirect":
		return protocol.PreferIndirectAttestation
	case "direct":
		return protocol.PreferDirectAttestation
	case "enterprise":
		return protocol.PreferEnterpriseAttestation
	default:
		return protocol.PreferNoAttestation
	}
}

// validateOrigin enforces the HTTPS-or-localhost constraint common to both
// the static allow-list and the related origins document.
func validateOrigin(origin string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("malformed origin %q: %w", origin, err)
	}
	if u.Scheme == "https" {
		return nil
	}
	if u.Scheme == "http" && u.Hostname() == "localhost" {
		return nil
	}
	return fmt.Errorf("origin %q must use https (http://localhost permitted for development)", origin)
}

// relatedOriginLabels returns the distinct second-level domain labels across
// the given origins. Browsers group related origins by this label and cap
// how many distinct labels they process.
func relatedOriginLabels(origins []string) map[string]struct{} {
	labels := make(map[string]struct{})
	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil {
			continue
		}
		parts := strings.Split(u.Hostname(), ".")
		label := parts[0]
		if len(parts) >= 2 {
			label = parts[len(parts)-2]
		}
		labels[label] = struct{}{}
	}
	return labels
}

func supportedAlgorithm(alg int64) bool {
	switch webauthncose.COSEAlgorithmIdentifier(alg) {
	case webauthncose.AlgES256, webauthncose.AlgES384, webauthncose.AlgES512,
		webauthncose.AlgRS256, webauthncose.AlgRS384, webauthncose.AlgRS512,
		webauthncose.AlgRS1, webauthncose.AlgPS256, webauthncose.AlgPS384,
		webauthncose.AlgPS512, webauthncose.AlgEdDSA:
		return true
	}
	return false
}
