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
	"fmt"
	"log/slog"
)

// Service implements the relying party core: it issues ceremony challenges,
// validates browser-submitted credential responses, manages credential
// records, and governs cross-origin trust. All operations are one-shot
// request/response; the only shared mutable state lives in the injected
// stores.
type Service struct {
	config      *Config
	origins     *OriginPolicy
	states      StateStore
	credentials CredentialStore
	handles     HandleStore
	directory   UserDirectory
	hooks       Hooks
	sync        *SyncCoordinator
	tokens      TokenIssuer
	logger      *slog.Logger
	configured  bool
}

// ServiceParams contains dependencies for creating a relying party service.
type ServiceParams struct {
	// Config is the relying party policy (required).
	Config *Config

	// StateStore holds ceremony state between begin and complete (required).
	StateStore StateStore

	// CredentialStore is the durable credential persistence layer (required).
	CredentialStore CredentialStore

	// HandleStore is the user handle registry (required).
	HandleStore HandleStore

	// UserDirectory is the application user lookup (required).
	UserDirectory UserDirectory

	// Hooks customizes credential naming and post-registration behavior.
	// Defaults to DefaultHooks.
	Hooks Hooks

	// TokenIssuer optionally mints post-authentication session tokens.
	TokenIssuer TokenIssuer

	// Logger receives server-side diagnostics. Client-visible errors stay
	// generic; detail only ever lands here. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewService creates a relying party service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.StateStore == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if params.HandleStore == nil {
		return nil, fmt.Errorf("handle store is required")
	}
	if params.UserDirectory == nil {
		return nil, fmt.Errorf("user directory is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	hooks := params.Hooks
	if hooks == nil {
		hooks = DefaultHooks{}
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		config:      params.Config,
		origins:     NewOriginPolicy(params.Config),
		states:      params.StateStore,
		credentials: params.CredentialStore,
		handles:     params.HandleStore,
		directory:   params.UserDirectory,
		hooks:       hooks,
		sync: NewSyncCoordinator(params.Config.RPID, params.UserDirectory,
			params.HandleStore, params.CredentialStore),
		tokens:     params.TokenIssuer,
		logger:     logger,
		configured: true,
	}, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// OriginPolicy returns the origin trust policy, including the related
// origins document.
func (s *Service) OriginPolicy() *OriginPolicy {
	return s.origins
}

// Sync returns the sync-signal coordinator.
func (s *Service) Sync() *SyncCoordinator {
	return s.sync
}

// Directory returns the user directory the service was built with. Transport
// layers use it to resolve identifiers before starting ceremonies.
func (s *Service) Directory() UserDirectory {
	return s.directory
}

// Credentials lists all credentials registered for a user.
func (s *Service) Credentials(ctx context.Context, userID string) ([]*Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	creds, err := s.credentials.FindAllByUser(ctx, userID)
	if err != nil {
		return nil, NewStorageError("list credentials", err)
	}
	return creds, nil
}

// RemoveCredential deletes a credential on explicit user/application action
// and flags the session for reconciliation so clients can drop the cached
// entry.
func (s *Service) RemoveCredential(ctx context.Context, sessionKey string, userID string, credentialID []byte) error {
	if !s.configured {
		return ErrNotConfigured
	}

	cred, err := s.credentials.FindByCredentialID(ctx, credentialID)
	if err != nil {
		return WrapError("remove credential", err)
	}
	if cred.UserID != userID {
		return NewError("remove credential", ErrCredentialMismatch)
	}
	if err := s.credentials.Delete(ctx, credentialID); err != nil {
		return NewStorageError("remove credential", err)
	}

	s.sync.MarkDirty(sessionKey, userID)
	return nil
}

// issueToken mints a post-authentication token when an issuer is configured.
func (s *Service) issueToken(ctx context.Context, user User, secondFactor bool) (string, error) {
	if s.tokens == nil {
		return "", nil
	}
	return s.tokens.IssueToken(ctx, user, secondFactor)
}
