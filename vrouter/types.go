// Package vrouter selects which upstream Provider Runtime a canonical
// request should be dispatched to, and tracks the health/cooldown state
// of each runtime. It is grounded on the teacher's weighted model router
// (llm/router package): the same mutex-protected candidate map, the same
// weighted-random selection algorithm, and the same ticker-driven health
// checker, generalized from "pick a model" to "pick a provider runtime".
package vrouter

import "time"

// RouteTarget is the outcome of virtual routing: enough information for
// the compatibility stage and provider runtime to dispatch a request to
// one specific upstream account.
type RouteTarget struct {
	RouteName        string
	ProviderID       string
	KeyAlias         string
	ProviderType     string // openai | responses | anthropic | gemini | gemini-cli | mock
	ProviderProtocol string
	Endpoint         string
	ModelID          string
	ClientModelID    string
}

// RuntimeKey uniquely identifies one Provider Runtime instance: one
// runtime owns one (providerID, keyAlias) pair's auth/HTTP/health state.
func (t RouteTarget) RuntimeKey() string {
	return t.ProviderID + "." + t.KeyAlias
}

// HealthReason explains why a candidate is or isn't selectable.
type HealthReason string

const (
	ReasonOK           HealthReason = "ok"
	ReasonCooldown     HealthReason = "cooldown"
	ReasonFatal        HealthReason = "fatal"
	ReasonAuthIssue    HealthReason = "auth_issue"
	ReasonOutOfPool    HealthReason = "out_of_pool"
)

// HealthState is the mutable health/cooldown record tracked per runtime
// key (spec §3 Cooldown/Health State). Selection requires:
// inPool && reason == ok && now >= cooldownUntil && now >= blacklistUntil.
type HealthState struct {
	RuntimeKey            string
	InPool                bool
	Reason                HealthReason
	AuthIssue             bool
	PriorityTier          int
	CooldownUntil         time.Time
	BlacklistUntil        time.Time
	LastErrorSeries       string
	LastErrorAtMs         int64
	ConsecutiveErrorCount int
	UpdatedAt             time.Time
}

// Selectable reports whether this candidate can currently be routed to.
func (h *HealthState) Selectable(now time.Time) bool {
	if h == nil {
		return true
	}
	if !h.InPool || h.Reason != ReasonOK {
		return false
	}
	if now.Before(h.CooldownUntil) || now.Before(h.BlacklistUntil) {
		return false
	}
	return true
}

// Candidate is one routable (route, provider, key) combination loaded
// from configuration, mirroring the teacher's ModelCandidate but keyed by
// RuntimeKey instead of ModelID.
type Candidate struct {
	Target  RouteTarget
	Weight  int
	Tags    []string
	Enabled bool
}
