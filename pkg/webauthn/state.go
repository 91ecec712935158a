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
	"sync"
	"time"

	"github.com/google/uuid"
)

// CeremonyState is the ephemeral record bridging a ceremony's begin and
// complete calls. It is written by a begin endpoint and consumed (read
// exactly once, then invalidated) by the matching complete endpoint. A
// challenge value is never accepted twice.
type CeremonyState struct {
	// Kind is the ceremony this state belongs to. A registration state
	// cannot complete an authentication and vice versa.
	Kind CeremonyKind `json:"kind"`

	// Challenge is the random challenge issued at begin.
	Challenge []byte `json:"challenge"`

	// RPID is the relying party ID the ceremony was issued for.
	RPID string `json:"rp_id"`

	// UserID is the expected user, empty for anonymous (discoverable
	// credential) authentication.
	UserID string `json:"user_id,omitempty"`

	// UserHandle is the expected user's WebAuthn handle, when known.
	UserHandle []byte `json:"user_handle,omitempty"`

	// UserVerificationRequired snapshots whether policy demanded the UV flag
	// when the ceremony began.
	UserVerificationRequired bool `json:"user_verification_required"`

	// DiscoverableRequired snapshots whether a resident key was demanded.
	DiscoverableRequired bool `json:"discoverable_required"`

	// CreatedAt is when the state was issued. State older than the store's
	// TTL is treated as expired and rejected.
	CreatedAt time.Time `json:"created_at"`
}

// StateStore holds ceremony state between begin and complete calls. Consume
// must be atomic (read-and-invalidate as one operation) so a replayed
// complete call can never validate twice against the same challenge.
type StateStore interface {
	// Save stores ceremony state and returns an opaque token the client
	// echoes back at complete.
	Save(ctx context.Context, state *CeremonyState) (string, error)

	// Consume atomically removes and returns the state for token. Returns
	// ErrNoChallenge when the token is unknown, expired, of the wrong
	// ceremony kind, or already consumed.
	Consume(ctx context.Context, token string, kind CeremonyKind) (*CeremonyState, error)
}

// MemoryStateStore is an in-memory StateStore suitable for single-process
// deployments, development, and testing.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]*CeremonyState
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryStateStore creates an in-memory state store with the given TTL.
// A zero TTL defaults to 5 minutes.
func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryStateStore{
		states: make(map[string]*CeremonyState),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Save stores ceremony state and returns its token.
func (s *MemoryStateStore) Save(ctx context.Context, state *CeremonyState) (string, error) {
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[token] = state
	return token, nil
}

// Consume atomically removes and returns state. Expired or kind-mismatched
// state is discarded and reported as ErrNoChallenge; either way the token is
// single-use.
func (s *MemoryStateStore) Consume(ctx context.Context, token string, kind CeremonyKind) (*CeremonyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[token]
	if !ok {
		return nil, ErrNoChallenge
	}
	delete(s.states, token)

	if s.now().Sub(state.CreatedAt) > s.ttl {
		return nil, ErrNoChallenge
	}
	if state.Kind != kind {
		return nil, ErrNoChallenge
	}
	return state, nil
}

// Cleanup removes expired state and returns the number of entries removed.
func (s *MemoryStateStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, state := range s.states {
		if now.Sub(state.CreatedAt) > s.ttl {
			delete(s.states, token)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// expired ceremony state. Abandoned begin calls are only purged here; Consume
// deletes the one token it is handed. Call the returned cancel function to
// stop the routine.
func (s *MemoryStateStore) StartCleanupRoutine(ctx context.Context, interval time.Duration) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()

	return cancel
}

// Count returns the number of pending ceremony states.
func (s *MemoryStateStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
