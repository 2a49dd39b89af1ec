package vrouter

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoHealthyProvider is returned when no candidate for a route is
// currently selectable.
var ErrNoHealthyProvider = errors.New("vrouter: no healthy provider")

// pinPattern / excludePattern match the user-facing override markers spec
// §4.2 documents: "<**#providerId**>" pins a provider, "<**!#providerId**>"
// excludes one. Both may appear anywhere in the request's last user
// message text.
var (
	pinPattern     = regexp.MustCompile(`<\*\*#([a-zA-Z0-9_.\-]+)\*\*>`)
	excludePattern = regexp.MustCompile(`<\*\*!#([a-zA-Z0-9_.\-]+)\*\*>`)
)

// ParseOverride extracts a pinned and/or excluded provider id from free
// text (typically the last user message), per spec §4.2 step 1.
func ParseOverride(text string) (pin string, exclude map[string]bool) {
	exclude = make(map[string]bool)
	for _, m := range excludePattern.FindAllStringSubmatch(text, -1) {
		exclude[m[1]] = true
	}
	if m := pinPattern.FindStringSubmatch(text); m != nil {
		pin = m[1]
	}
	return pin, exclude
}

// Strategy selects one candidate from a pre-filtered, pre-scored list.
type Strategy string

const (
	StrategyWeightedRandom Strategy = "weighted_random"
	StrategyRoundRobin     Strategy = "round_robin"
	StrategyLeastUsed      Strategy = "least_used"
)

// Router is the Virtual Router: it holds the loaded candidate set, the
// health store, and applies pin/exclude overrides then a balancing
// strategy. It is the spec-facing generalization of the teacher's
// WeightedRouter: same mutex-protected candidate map and same
// weighted-random core, but selecting RouteTarget/RuntimeKey instead of
// ModelID, and consulting the richer HealthState FSM instead of a flat
// IsHealthy bool.
type Router struct {
	mu         sync.RWMutex
	candidates map[string][]*Candidate // key: routeName
	usageCount map[string]int          // key: runtimeKey, for least-used strategy
	rr         map[string]int          // key: routeName, round-robin cursor
	health     *HealthStore
	strategy   Strategy
	logger     *zap.Logger
	rngMu      sync.Mutex
	rng        *rand.Rand
}

// NewRouter creates a Router with the given default balancing strategy.
func NewRouter(health *HealthStore, strategy Strategy, logger *zap.Logger) *Router {
	if strategy == "" {
		strategy = StrategyWeightedRandom
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		candidates: make(map[string][]*Candidate),
		usageCount: make(map[string]int),
		rr:         make(map[string]int),
		health:     health,
		strategy:   strategy,
		logger:     logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// LoadRoute replaces the candidate set for one named route.
func (r *Router) LoadRoute(routeName string, candidates []*Candidate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates[routeName] = candidates
	r.logger.Info("route candidates loaded", zap.String("route", routeName), zap.Int("count", len(candidates)))
}

// SelectRequest carries the inputs needed to pick a route target.
type SelectRequest struct {
	RouteName      string
	PinProviderID  string
	ExcludeIDs     map[string]bool
	RequiredTags   []string
}

// Select applies overrides then the configured balancing strategy,
// skipping any candidate whose health state is not currently selectable.
func (r *Router) Select(ctx context.Context, req SelectRequest) (RouteTarget, error) {
	r.mu.RLock()
	all := r.candidates[req.RouteName]
	r.mu.RUnlock()

	now := time.Now()
	filtered := make([]*Candidate, 0, len(all))
	for _, c := range all {
		if !c.Enabled {
			continue
		}
		if req.ExcludeIDs[c.Target.ProviderID] {
			continue
		}
		if len(req.RequiredTags) > 0 && !hasAnyTag(c.Tags, req.RequiredTags) {
			continue
		}
		if !r.health.Get(c.Target.RuntimeKey()).Selectable(now) {
			continue
		}
		filtered = append(filtered, c)
	}

	if req.PinProviderID != "" {
		for _, c := range filtered {
			if c.Target.ProviderID == req.PinProviderID {
				return c.Target, nil
			}
		}
		// Pinned provider unavailable: fall through to normal selection
		// rather than failing the request outright.
		r.logger.Warn("pinned provider not selectable, falling back", zap.String("provider", req.PinProviderID))
	}

	if len(filtered) == 0 {
		return RouteTarget{}, ErrNoHealthyProvider
	}

	switch r.strategy {
	case StrategyRoundRobin:
		return r.selectRoundRobin(req.RouteName, filtered), nil
	case StrategyLeastUsed:
		return r.selectLeastUsed(filtered), nil
	default:
		return r.selectWeightedRandom(filtered), nil
	}
}

func hasAnyTag(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if set[t] {
			return true
		}
	}
	return false
}

func (r *Router) selectWeightedRandom(candidates []*Candidate) RouteTarget {
	total := 0
	for _, c := range candidates {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		total += w
	}

	r.rngMu.Lock()
	target := r.rng.Intn(total)
	r.rngMu.Unlock()

	cumulative := 0
	for _, c := range candidates {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		cumulative += w
		if target < cumulative {
			r.recordUsage(c.Target.RuntimeKey())
			return c.Target
		}
	}
	r.recordUsage(candidates[0].Target.RuntimeKey())
	return candidates[0].Target
}

func (r *Router) selectRoundRobin(routeName string, candidates []*Candidate) RouteTarget {
	r.mu.Lock()
	idx := r.rr[routeName] % len(candidates)
	r.rr[routeName] = idx + 1
	r.mu.Unlock()
	r.recordUsage(candidates[idx].Target.RuntimeKey())
	return candidates[idx].Target
}

func (r *Router) selectLeastUsed(candidates []*Candidate) RouteTarget {
	r.mu.RLock()
	best := candidates[0]
	bestCount := r.usageCount[best.Target.RuntimeKey()]
	for _, c := range candidates[1:] {
		if cnt := r.usageCount[c.Target.RuntimeKey()]; cnt < bestCount {
			best, bestCount = c, cnt
		}
	}
	r.mu.RUnlock()
	r.recordUsage(best.Target.RuntimeKey())
	return best.Target
}

func (r *Router) recordUsage(runtimeKey string) {
	r.mu.Lock()
	r.usageCount[runtimeKey]++
	r.mu.Unlock()
}
