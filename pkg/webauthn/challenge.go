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
	"crypto/rand"
	"fmt"
)

const (
	// ChallengeLength is the number of random bytes in a generated challenge.
	ChallengeLength = 32

	// MinChallengeLength is the minimum challenge size the WebAuthn
	// specification permits.
	MinChallengeLength = 16
)

// NewChallenge returns ChallengeLength bytes from a cryptographically secure
// random source. Entropy source failure is not recoverable; callers treat it
// as fatal to the ceremony.
func NewChallenge() ([]byte, error) {
	challenge := make([]byte, ChallengeLength)
	if _, err := rand.Read(challenge); err != nil {
		return nil, fmt.Errorf("challenge entropy source failed: %w", err)
	}
	return challenge, nil
}
