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

	"github.com/go-webauthn/webauthn/protocol"
)

// DefaultSyncTTL bounds how long a dirty flag survives without being read.
const DefaultSyncTTL = time.Hour

// SyncCoordinator tracks, per session, whether a user's credential set or
// profile changed so connected clients can reconcile browser-cached
// credential metadata. The only state kept is a boolean dirty flag per
// session key, TTL-bound; the payload itself is assembled on demand from
// the live stores.
type SyncCoordinator struct {
	rpID        string
	directory   UserDirectory
	handles     HandleStore
	credentials CredentialStore

	mu    sync.Mutex
	dirty map[string]dirtyEntry
	ttl   time.Duration
	now   func() time.Time
}

type dirtyEntry struct {
	userID   string
	markedAt time.Time
}

// NewSyncCoordinator creates a coordinator bound to the relying party's
// stores.
func NewSyncCoordinator(rpID string, directory UserDirectory, handles HandleStore, credentials CredentialStore) *SyncCoordinator {
	return &SyncCoordinator{
		rpID:        rpID,
		directory:   directory,
		handles:     handles,
		credentials: credentials,
		dirty:       make(map[string]dirtyEntry),
		ttl:         DefaultSyncTTL,
		now:         time.Now,
	}
}

// MarkDirty flags sessionKey as needing reconciliation for userID. Called by
// the ceremonies on completion and by external collaborators after profile
// edits or credential deletion.
func (c *SyncCoordinator) MarkDirty(sessionKey, userID string) {
	if sessionKey == "" || userID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[sessionKey] = dirtyEntry{userID: userID, markedAt: c.now()}
}

// Take reads the dirty flag exactly once. When set and unexpired it clears
// the flag and returns the reconciliation payload: user handle, display
// name, and the full current credential ID list. Returns (nil, false, nil)
// for clean sessions.
func (c *SyncCoordinator) Take(ctx context.Context, sessionKey string) (*SyncPayload, bool, error) {
	c.mu.Lock()
	entry, ok := c.dirty[sessionKey]
	if ok {
		delete(c.dirty, sessionKey)
	}
	c.mu.Unlock()

	if !ok || c.now().Sub(entry.markedAt) > c.ttl {
		return nil, false, nil
	}

	user, err := c.directory.GetByID(ctx, entry.userID)
	if err != nil {
		return nil, false, WrapError("sync signal: resolve user", err)
	}
	handle, err := c.handles.HandleFor(ctx, entry.userID)
	if err != nil {
		return nil, false, NewStorageError("sync signal: user handle", err)
	}
	creds, err := c.credentials.FindAllByUser(ctx, entry.userID)
	if err != nil {
		return nil, false, NewStorageError("sync signal: list credentials", err)
	}

	ids := make([]protocol.URLEncodedBase64, 0, len(creds))
	for _, cred := range creds {
		ids = append(ids, protocol.URLEncodedBase64(cred.ID))
	}

	return &SyncPayload{
		RPID:          c.rpID,
		UserHandle:    protocol.URLEncodedBase64(handle),
		DisplayName:   user.DisplayName(),
		CredentialIDs: ids,
	}, true, nil
}

// Pending returns the number of sessions currently flagged dirty.
func (c *SyncCoordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirty)
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// expired dirty flags. Flags for sessions that never poll the signal endpoint
// are only purged here. Call the returned cancel function to stop the routine.
func (c *SyncCoordinator) StartCleanupRoutine(ctx context.Context, interval time.Duration) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()

	return cancel
}

// Cleanup removes expired dirty flags and returns the number removed.
func (c *SyncCoordinator) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.dirty {
		if now.Sub(entry.markedAt) > c.ttl {
			delete(c.dirty, key)
			removed++
		}
	}
	return removed
}
