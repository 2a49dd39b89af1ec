// Package sessionpin persists the `<**#<providerId>**>` / `<**!#<providerId>**>`
// override (vrouter.ParseOverride) across requests in the same client
// session, via internal/cache's redis-backed Manager. Without it, a pin
// only lives for the single CanonicalRequest that carried the marker
// text; spec.md §4.2 calls for it to apply "for this session" when a
// session id is present.
package sessionpin

import (
	"context"
	"time"

	"github.com/routecodex/routecodex/internal/cache"
)

// DefaultTTL is how long a session's pin/exclude set survives without
// being refreshed by a new override in the same session.
const DefaultTTL = 30 * time.Minute

const keyPrefix = "routecodex:sessionpin:"

// Pin is one session's persisted override state.
type Pin struct {
	ProviderID string          `json:"pin,omitempty"`
	Exclude    map[string]bool `json:"exclude,omitempty"`
}

// Store persists session pins through a cache.Manager, gaining its
// connect-time Ping and background health-check ticker instead of a bare
// *redis.Client construction.
type Store struct {
	cache *cache.Manager
	ttl   time.Duration
}

// New wraps an already-constructed cache.Manager. ttl <= 0 uses DefaultTTL.
func New(mgr *cache.Manager, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{cache: mgr, ttl: ttl}
}

// Close releases the underlying cache manager's redis connection.
func (s *Store) Close() error {
	return s.cache.Close()
}

// Get returns the persisted pin for a session, or a zero Pin if none is
// stored (including when sessionID is empty, since requests without a
// session id never persist an override in the first place).
func (s *Store) Get(ctx context.Context, sessionID string) (Pin, error) {
	if sessionID == "" {
		return Pin{}, nil
	}
	var pin Pin
	err := s.cache.GetJSON(ctx, keyPrefix+sessionID, &pin)
	if cache.IsCacheMiss(err) {
		return Pin{}, nil
	}
	if err != nil {
		return Pin{}, err
	}
	return pin, nil
}

// Save persists a session's override, refreshing its TTL. A zero Pin
// (no pin, no excludes) clears the key instead of writing an empty
// record that would otherwise linger until it expires.
func (s *Store) Save(ctx context.Context, sessionID string, pin Pin) error {
	if sessionID == "" {
		return nil
	}
	if pin.ProviderID == "" && len(pin.Exclude) == 0 {
		return s.cache.Delete(ctx, keyPrefix+sessionID)
	}
	return s.cache.SetJSON(ctx, keyPrefix+sessionID, pin, s.ttl)
}

// Merge combines a request's freshly parsed override with whatever the
// session already had pinned: an explicit new pin or exclude set in the
// request replaces the stored one for that field, and the merged result
// is what Save should persist back.
func Merge(stored Pin, requestPin string, requestExclude map[string]bool) Pin {
	merged := Pin{ProviderID: stored.ProviderID, Exclude: stored.Exclude}
	if requestPin != "" {
		merged.ProviderID = requestPin
	}
	if len(requestExclude) > 0 {
		merged.Exclude = requestExclude
	}
	return merged
}
