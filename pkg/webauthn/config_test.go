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
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, DefaultAlgorithms, cfg.Algorithms)
	assert.Equal(t, "preferred", cfg.UserVerification)
	assert.Equal(t, "preferred", cfg.ResidentKey)
	assert.Equal(t, "none", cfg.AttestationPreference)
}

func TestConfig_SetDefaults_PasswordlessForcesResidentKey(t *testing.T) {
	cfg := &Config{PasswordlessLogin: true, ResidentKey: "discouraged"}
	cfg.SetDefaults()
	assert.Equal(t, "required", cfg.ResidentKey)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing rp id",
			mutate:  func(c *Config) { c.RPID = "" },
			wantErr: "RPID is required",
		},
		{
			name:    "missing display name",
			mutate:  func(c *Config) { c.RPDisplayName = "" },
			wantErr: "RPDisplayName is required",
		},
		{
			name:    "missing origins",
			mutate:  func(c *Config) { c.RPOrigins = nil },
			wantErr: "at least one RPOrigin is required",
		},
		{
			name:    "http origin",
			mutate:  func(c *Config) { c.RPOrigins = []string{"http://example.com"} },
			wantErr: "must use https",
		},
		{
			name:   "http localhost allowed",
			mutate: func(c *Config) { c.RPOrigins = []string{"http://localhost:3000"} },
		},
		{
			name:    "http related origin",
			mutate:  func(c *Config) { c.RelatedOrigins = []string{"http://example.org"} },
			wantErr: "must use https",
		},
		{
			name: "too many related origin labels",
			mutate: func(c *Config) {
				c.RelatedOrigins = []string{
					"https://example.de", "https://beispiel.de", "https://exemple.fr",
					"https://esempio.it", "https://ejemplo.es", "https://exemplo.pt",
				}
			},
			wantErr: "second-level domain labels",
		},
		{
			name: "related origins sharing a label count once",
			mutate: func(c *Config) {
				c.RelatedOrigins = []string{
					"https://example.de", "https://example.fr", "https://example.it",
					"https://example.es", "https://example.pt", "https://example.nl",
				}
			},
		},
		{
			name:    "unsupported algorithm",
			mutate:  func(c *Config) { c.Algorithms = []int64{-999} },
			wantErr: "unsupported COSE algorithm",
		},
		{
			name:    "invalid user verification",
			mutate:  func(c *Config) { c.UserVerification = "always" },
			wantErr: "invalid user verification",
		},
		{
			name:    "invalid resident key",
			mutate:  func(c *Config) { c.ResidentKey = "maybe" },
			wantErr: "invalid resident key",
		},
		{
			name:    "invalid attachment",
			mutate:  func(c *Config) { c.AuthenticatorAttachment = "usb" },
			wantErr: "invalid authenticator attachment",
		},
		{
			name:    "invalid attestation",
			mutate:  func(c *Config) { c.AttestationPreference = "full" },
			wantErr: "invalid attestation preference",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_AlgorithmAllowed(t *testing.T) {
	cfg := validTestConfig()
	cfg.SetDefaults()

	assert.True(t, cfg.AlgorithmAllowed(int64(webauthncose.AlgES256)))
	assert.True(t, cfg.AlgorithmAllowed(int64(webauthncose.AlgEdDSA)))
	assert.True(t, cfg.AlgorithmAllowed(int64(webauthncose.AlgRS256)))
	assert.False(t, cfg.AlgorithmAllowed(int64(webauthncose.AlgES512)))
}

func TestConfig_CredentialParameters(t *testing.T) {
	cfg := validTestConfig()
	cfg.SetDefaults()

	params := cfg.CredentialParameters()
	require.Len(t, params, len(cfg.Algorithms))
	for i, p := range params {
		assert.Equal(t, protocol.PublicKeyCredentialType, p.Type)
		assert.Equal(t, webauthncose.COSEAlgorithmIdentifier(cfg.Algorithms[i]), p.Algorithm)
	}
}

func TestConfig_TimeoutMillis(t *testing.T) {
	cfg := &Config{Timeout: 90 * time.Second}
	assert.Equal(t, 90000, cfg.TimeoutMillis())
}

func TestConfig_ProtocolMappings(t *testing.T) {
	cfg := &Config{
		UserVerification:        "required",
		ResidentKey:             "discouraged",
		AuthenticatorAttachment: "platform",
		AttestationPreference:   "direct",
	}

	assert.Equal(t, protocol.VerificationRequired, cfg.userVerificationRequirement())
	assert.Equal(t, protocol.ResidentKeyRequirementDiscouraged, cfg.residentKeyRequirement())
	assert.Equal(t, protocol.Platform, cfg.authenticatorAttachment())
	assert.Equal(t, protocol.PreferDirectAttestation, cfg.conveyancePreference())

	empty := &Config{}
	assert.Equal(t, protocol.VerificationPreferred, empty.userVerificationRequirement())
	assert.Equal(t, protocol.ResidentKeyRequirementPreferred, empty.residentKeyRequirement())
	assert.Equal(t, protocol.AuthenticatorAttachment(""), empty.authenticatorAttachment())
	assert.Equal(t, protocol.PreferNoAttestation, empty.conveyancePreference())
}
