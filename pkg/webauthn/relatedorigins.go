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
	"sync"
	"time"
)

// DefaultRelatedOriginTTL is how long a related-origins document snapshot
// is served before being rebuilt.
const DefaultRelatedOriginTTL = 10 * time.Minute

// RelatedOriginDocument is the well-known payload (`/.well-known/webauthn`)
// enabling credential use across a label-grouped set of domains. The list
// is flat; grouping origins by label is the browser's responsibility.
type RelatedOriginDocument struct {
	Origins []string `json:"origins"`
}

// OriginPolicy decides which origins may complete ceremonies for a relying
// party: the statically configured allow-list plus, when enabled, the
// related origins served from the well-known document. Matching is exact
// and case-sensitive on scheme+host+port.
type OriginPolicy struct {
	rpID    string
	allowed map[string]struct{}
	related []string
	ttl     time.Duration

	mu       sync.Mutex
	snapshot *RelatedOriginDocument
	builtAt  time.Time
	now      func() time.Time
}

// NewOriginPolicy builds an origin policy from validated configuration.
func NewOriginPolicy(cfg *Config) *OriginPolicy {
	allowed := make(map[string]struct{}, len(cfg.RPOrigins)+len(cfg.RelatedOrigins))
	for _, origin := range cfg.RPOrigins {
		allowed[origin] = struct{}{}
	}
	for _, origin := range cfg.RelatedOrigins {
		allowed[origin] = struct{}{}
	}
	return &OriginPolicy{
		rpID:    cfg.RPID,
		allowed: allowed,
		related: append([]string(nil), cfg.RelatedOrigins...),
		ttl:     DefaultRelatedOriginTTL,
		now:     time.Now,
	}
}

// Allowed reports whether origin may complete ceremonies.
func (p *OriginPolicy) Allowed(origin string) bool {
	_, ok := p.allowed[origin]
	return ok
}

// RelatedOriginsEnabled reports whether any related origins are configured.
func (p *OriginPolicy) RelatedOriginsEnabled() bool {
	return len(p.related) > 0
}

// Document returns the cached related-origins document, rebuilding it when
// the snapshot is older than the TTL. The document content is config-derived
// and stable for a process lifetime; the TTL bounds staleness across
// rolling restarts behind a shared cache.
func (p *OriginPolicy) Document() *RelatedOriginDocument {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.snapshot != nil && p.now().Sub(p.builtAt) < p.ttl {
		return p.snapshot
	}

	p.snapshot = &RelatedOriginDocument{
		Origins: append([]string(nil), p.related...),
	}
	p.builtAt = p.now()
	return p.snapshot
}

// CacheTTL returns how long clients may cache the well-known document.
func (p *OriginPolicy) CacheTTL() time.Duration {
	return p.ttl
}
