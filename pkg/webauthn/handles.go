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
	"crypto/rand"
	"sync"
)

// HandleLength is the size of generated user handles. The WebAuthn spec
// caps handles at 64 bytes; 32 random bytes keeps them unguessable without
// approaching the limit.
const HandleLength = 32

// newHandle generates a fresh random user handle.
func newHandle() ([]byte, error) {
	handle := make([]byte, HandleLength)
	if _, err := rand.Read(handle); err != nil {
		return nil, err
	}
	return handle, nil
}

// MemoryHandleStore is an in-memory HandleStore for single-process
// deployments and testing.
type MemoryHandleStore struct {
	mu       sync.Mutex
	byUser   map[string][]byte
	byHandle map[string]string
}

// NewMemoryHandleStore creates an empty in-memory handle registry.
func NewMemoryHandleStore() *MemoryHandleStore {
	return &MemoryHandleStore{
		byUser:   make(map[string][]byte),
		byHandle: make(map[string]string),
	}
}

// HandleFor returns the user's handle, generating and recording one on
// first use. Handles are never regenerated.
func (s *MemoryHandleStore) HandleFor(ctx context.Context, userID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if handle, ok := s.byUser[userID]; ok {
		return append([]byte(nil), handle...), nil
	}

	handle, err := newHandle()
	if err != nil {
		return nil, err
	}
	s.byUser[userID] = handle
	s.byHandle[string(handle)] = userID
	return append([]byte(nil), handle...), nil
}

// UserFor resolves a handle back to its user ID.
func (s *MemoryHandleStore) UserFor(ctx context.Context, handle []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.byHandle[string(handle)]
	if !ok {
		return "", ErrHandleNotFound
	}
	return userID, nil
}
