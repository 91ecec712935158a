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
	"encoding/hex"
	"sync"
	"time"
)

// MemoryCredentialStore is an in-memory implementation of CredentialStore.
// It enforces the same atomicity guarantees required of durable backends:
// insert-if-absent for duplicate detection and compare-and-set counter
// updates. Intended for development and testing.
type MemoryCredentialStore struct {
	mu       sync.Mutex
	byID     map[string]*Credential
	byUserID map[string][]string
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:     make(map[string]*Credential),
		byUserID: make(map[string][]string),
	}
}

// FindByCredentialID retrieves a credential by its ID.
func (s *MemoryCredentialStore) FindByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return nil, ErrUnknownCredential
	}
	clone := *cred
	return &clone, nil
}

// FindAllByUser retrieves all credentials for a user.
func (s *MemoryCredentialStore) FindAllByUser(ctx context.Context, userID string) ([]*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.byUserID[userID]
	creds := make([]*Credential, 0, len(keys))
	for _, key := range keys {
		if cred, ok := s.byID[key]; ok {
			clone := *cred
			creds = append(creds, &clone)
		}
	}
	return creds, nil
}

// Insert stores a new credential, failing on any credential ID collision.
func (s *MemoryCredentialStore) Insert(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hex.EncodeToString(cred.ID)
	if _, ok := s.byID[key]; ok {
		return ErrDuplicateCredential
	}

	clone := *cred
	s.byID[key] = &clone
	s.byUserID[cred.UserID] = append(s.byUserID[cred.UserID], key)
	return nil
}

// UpdateSignCount applies a compare-and-set counter update.
func (s *MemoryCredentialStore) UpdateSignCount(ctx context.Context, credentialID []byte, prevCount, newCount uint32, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return ErrUnknownCredential
	}
	if cred.SignCount != prevCount {
		// Another assertion advanced the counter first.
		return ErrClonedCredential
	}
	cred.SignCount = newCount
	cred.LastUsedAt = usedAt
	return nil
}

// SetDisabled flags or unflags a credential.
func (s *MemoryCredentialStore) SetDisabled(ctx context.Context, credentialID []byte, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return ErrUnknownCredential
	}
	cred.Disabled = disabled
	return nil
}

// Delete removes a credential by its ID.
func (s *MemoryCredentialStore) Delete(ctx context.Context, credentialID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hex.EncodeToString(credentialID)
	cred, ok := s.byID[key]
	if !ok {
		return ErrUnknownCredential
	}
	delete(s.byID, key)

	keys := s.byUserID[cred.UserID]
	for i, k := range keys {
		if k == key {
			s.byUserID[cred.UserID] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	return nil
}

// Count returns the total number of credentials in the store.
func (s *MemoryCredentialStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// DirectoryUser is a simple User implementation backing MemoryUserDirectory.
type DirectoryUser struct {
	UserID   string
	Name     string
	Display  string
	Inactive bool
}

// ID returns the stable user identifier.
func (u *DirectoryUser) ID() string { return u.UserID }

// Username returns the account name.
func (u *DirectoryUser) Username() string { return u.Name }

// DisplayName returns the human-palatable name.
func (u *DirectoryUser) DisplayName() string {
	if u.Display == "" {
		return u.Name
	}
	return u.Display
}

// MemoryUserDirectory is an in-memory UserDirectory for development and
// testing.
type MemoryUserDirectory struct {
	mu     sync.RWMutex
	byID   map[string]*DirectoryUser
	byName map[string]*DirectoryUser
}

// NewMemoryUserDirectory creates an empty in-memory user directory.
func NewMemoryUserDirectory() *MemoryUserDirectory {
	return &MemoryUserDirectory{
		byID:   make(map[string]*DirectoryUser),
		byName: make(map[string]*DirectoryUser),
	}
}

// Add registers a user in the directory.
func (d *MemoryUserDirectory) Add(user *DirectoryUser) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[user.UserID] = user
	d.byName[user.Name] = user
}

// Lookup resolves a login identifier to a user.
func (d *MemoryUserDirectory) Lookup(ctx context.Context, identifier string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.byName[identifier]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetByID resolves a user ID to a user.
func (d *MemoryUserDirectory) GetByID(ctx context.Context, userID string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}
