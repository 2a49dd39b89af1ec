package vrouter

import (
	"sync"
	"time"
)

// HealthStore is the mutex-protected runtimeKey -> HealthState table,
// generalizing the teacher's WeightedRouter.health map (modelID ->
// ModelHealth) to the richer cooldown/fatal/auth-issue state the spec
// requires.
type HealthStore struct {
	mu     sync.RWMutex
	states map[string]*HealthState
}

// NewHealthStore creates an empty health store; candidates default to
// selectable (in pool, reason ok) the first time they're seen.
func NewHealthStore() *HealthStore {
	return &HealthStore{states: make(map[string]*HealthState)}
}

// Get returns the current health state for a runtime key, creating a
// healthy default entry if none exists yet.
func (s *HealthStore) Get(runtimeKey string) *HealthState {
	s.mu.RLock()
	h, ok := s.states[runtimeKey]
	s.mu.RUnlock()
	if ok {
		return h
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok = s.states[runtimeKey]; ok {
		return h
	}
	h = &HealthState{RuntimeKey: runtimeKey, InPool: true, Reason: ReasonOK, UpdatedAt: time.Now()}
	s.states[runtimeKey] = h
	return h
}

// RecordSuccess marks a runtime healthy, clears its auth flag and
// cooldown, and resets its consecutive error counter. BlacklistUntil is
// left as it is, so a blacklisted runtime stays unselectable until that
// time passes or RecoverAuth clears it.
func (s *HealthStore) RecordSuccess(runtimeKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.getLocked(runtimeKey)
	h.Reason = ReasonOK
	h.AuthIssue = false
	h.ConsecutiveErrorCount = 0
	h.CooldownUntil = time.Time{}
	h.UpdatedAt = time.Now()
}

// ErrorClass distinguishes the upstream failure kinds the cooldown FSM
// reacts to differently.
type ErrorClass string

const (
	ErrorClassShortCooldown ErrorClass = "rate_limit_short"  // 429 short-term
	ErrorClassDailyLimit    ErrorClass = "rate_limit_daily"  // 429 daily quota
	ErrorClassAuth          ErrorClass = "auth"              // 401/403
	ErrorClassFatalHTTP     ErrorClass = "fatal_http"        // 402/500/524
	ErrorClassTransient     ErrorClass = "transient"         // network/5xx, retryable
)

// FatalThreshold is the number of consecutive non-cooldown errors after
// which a runtime is blacklisted regardless of error class (spec §4.2
// "N-consecutive-failure fatal threshold").
const FatalThreshold = 5

// RecordError applies one upstream failure to a runtime's health state,
// transitioning it per the spec §4.2 state diagram:
//
//	healthy --429 short--> cooldown (expires after cooldownWindow)
//	healthy --429 daily/401/402/500/524--> fatal (blacklisted until manual/OAuth recovery)
//	healthy --N consecutive failures--> fatal
func (s *HealthStore) RecordError(runtimeKey string, class ErrorClass, now time.Time, cooldownWindow time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.getLocked(runtimeKey)
	h.ConsecutiveErrorCount++
	h.LastErrorSeries = string(class)
	h.LastErrorAtMs = now.UnixMilli()
	h.UpdatedAt = now

	switch class {
	case ErrorClassShortCooldown:
		h.Reason = ReasonCooldown
		if cooldownWindow <= 0 {
			cooldownWindow = 60 * time.Second
		}
		h.CooldownUntil = now.Add(cooldownWindow)
	case ErrorClassDailyLimit, ErrorClassFatalHTTP:
		h.Reason = ReasonFatal
		h.BlacklistUntil = now.Add(24 * time.Hour)
	case ErrorClassAuth:
		h.Reason = ReasonAuthIssue
		h.AuthIssue = true
		h.BlacklistUntil = now.Add(24 * time.Hour)
	case ErrorClassTransient:
		if h.ConsecutiveErrorCount >= FatalThreshold {
			h.Reason = ReasonFatal
			h.BlacklistUntil = now.Add(1 * time.Hour)
		}
	}
}

// RecoverAuth clears an auth-issue state after an out-of-band OAuth token
// refresh succeeds (spec §4.2: "fatal -> healthy via OAuth recovery").
func (s *HealthStore) RecoverAuth(runtimeKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.getLocked(runtimeKey)
	h.Reason = ReasonOK
	h.AuthIssue = false
	h.BlacklistUntil = time.Time{}
	h.ConsecutiveErrorCount = 0
	h.UpdatedAt = time.Now()
}

// SetInPool toggles whether a runtime participates in selection at all,
// independent of its transient error state (operator-driven removal).
func (s *HealthStore) SetInPool(runtimeKey string, inPool bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.getLocked(runtimeKey)
	h.InPool = inPool
	h.UpdatedAt = time.Now()
}

func (s *HealthStore) getLocked(runtimeKey string) *HealthState {
	h, ok := s.states[runtimeKey]
	if !ok {
		h = &HealthState{RuntimeKey: runtimeKey, InPool: true, Reason: ReasonOK}
		s.states[runtimeKey] = h
	}
	return h
}

// Snapshot returns a shallow copy of every tracked health state, for
// diagnostics and the health-check ticker.
func (s *HealthStore) Snapshot() map[string]HealthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]HealthState, len(s.states))
	for k, v := range s.states {
		out[k] = *v
	}
	return out
}
