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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSyncCoordinator(t *testing.T) (*SyncCoordinator, *MemoryCredentialStore, *MemoryHandleStore) {
	t.Helper()

	directory := NewMemoryUserDirectory()
	directory.Add(&DirectoryUser{UserID: "user-1", Name: "alice", Display: "Alice Smith"})

	credentials := NewMemoryCredentialStore()
	handles := NewMemoryHandleStore()
	return NewSyncCoordinator("example.com", directory, handles, credentials), credentials, handles
}

func TestSyncCoordinator_TakeOnce(t *testing.T) {
	ctx := context.Background()
	sync, credentials, handles := newTestSyncCoordinator(t)

	require.NoError(t, credentials.Insert(ctx, testCredential(1, "user-1")))
	require.NoError(t, credentials.Insert(ctx, testCredential(2, "user-1")))
	handle, err := handles.HandleFor(ctx, "user-1")
	require.NoError(t, err)

	sync.MarkDirty("session-1", "user-1")
	assert.Equal(t, 1, sync.Pending())

	payload, dirty, err := sync.Take(ctx, "session-1")
	require.NoError(t, err)
	require.True(t, dirty)
	assert.Equal(t, "example.com", payload.RPID)
	assert.Equal(t, handle, []byte(payload.UserHandle))
	assert.Equal(t, "Alice Smith", payload.DisplayName)
	assert.Len(t, payload.CredentialIDs, 2)

	// The flag is cleared by the read
	payload, dirty, err = sync.Take(ctx, "session-1")
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Nil(t, payload)
	assert.Equal(t, 0, sync.Pending())
}

func TestSyncCoordinator_CleanSession(t *testing.T) {
	sync, _, _ := newTestSyncCoordinator(t)

	payload, dirty, err := sync.Take(context.Background(), "never-marked")
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Nil(t, payload)
}

func TestSyncCoordinator_IgnoresEmptyKeys(t *testing.T) {
	sync, _, _ := newTestSyncCoordinator(t)

	sync.MarkDirty("", "user-1")
	sync.MarkDirty("session-1", "")
	assert.Equal(t, 0, sync.Pending())
}

func TestSyncCoordinator_PayloadReflectsCurrentState(t *testing.T) {
	ctx := context.Background()
	sync, credentials, _ := newTestSyncCoordinator(t)

	cred := testCredential(1, "user-1")
	require.NoError(t, credentials.Insert(ctx, cred))

	sync.MarkDirty("session-1", "user-1")

	// Credential removed after the mark: the payload reports the live set
	require.NoError(t, credentials.Delete(ctx, cred.ID))

	payload, dirty, err := sync.Take(ctx, "session-1")
	require.NoError(t, err)
	require.True(t, dirty)
	assert.Empty(t, payload.CredentialIDs)
}

func TestSyncCoordinator_Expiry(t *testing.T) {
	ctx := context.Background()
	sync, _, _ := newTestSyncCoordinator(t)

	sync.MarkDirty("session-1", "user-1")
	sync.now = func() time.Time { return time.Now().Add(DefaultSyncTTL + time.Minute) }

	payload, dirty, err := sync.Take(ctx, "session-1")
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Nil(t, payload)
}

func TestSyncCoordinator_Cleanup(t *testing.T) {
	sync, _, _ := newTestSyncCoordinator(t)

	sync.MarkDirty("session-1", "user-1")
	sync.MarkDirty("session-2", "user-1")
	assert.Equal(t, 0, sync.Cleanup())

	sync.now = func() time.Time { return time.Now().Add(DefaultSyncTTL + time.Minute) }
	assert.Equal(t, 2, sync.Cleanup())
	assert.Equal(t, 0, sync.Pending())
}

func TestSyncCoordinator_UnknownUser(t *testing.T) {
	sync, _, _ := newTestSyncCoordinator(t)

	sync.MarkDirty("session-1", "user-ghost")
	_, _, err := sync.Take(context.Background(), "session-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSyncCoordinator_StartCleanupRoutine(t *testing.T) {
	sync, _, _ := newTestSyncCoordinator(t)

	sync.MarkDirty("session-1", "user-1")
	sync.MarkDirty("session-2", "user-1")
	require.Equal(t, 2, sync.Pending())

	// Jump the clock past the TTL before the routine starts
	sync.now = func() time.Time { return time.Now().Add(DefaultSyncTTL + time.Minute) }

	cancel := sync.StartCleanupRoutine(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Flags for sessions that never poll are purged in the background
	assert.Eventually(t, func() bool { return sync.Pending() == 0 },
		2*time.Second, 10*time.Millisecond)
}
