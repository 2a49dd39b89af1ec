package vrouter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(providerID, keyAlias string, weight int, tags ...string) *Candidate {
	return &Candidate{
		Target: RouteTarget{
			RouteName:  "default",
			ProviderID: providerID,
			KeyAlias:   keyAlias,
		},
		Weight:  weight,
		Tags:    tags,
		Enabled: true,
	}
}

func TestParseOverride_PinAndExclude(t *testing.T) {
	pin, exclude := ParseOverride("please use <**#glm**> and not <**!#qwen**> ever")
	assert.Equal(t, "glm", pin)
	assert.True(t, exclude["qwen"])
}

func TestParseOverride_NoMarkers(t *testing.T) {
	pin, exclude := ParseOverride("just a normal message")
	assert.Empty(t, pin)
	assert.Empty(t, exclude)
}

func TestRouter_Select_PinHonored(t *testing.T) {
	r := NewRouter(NewHealthStore(), StrategyWeightedRandom, nil)
	r.LoadRoute("default", []*Candidate{
		candidate("glm", "k1", 100),
		candidate("qwen", "k1", 100),
	})

	target, err := r.Select(context.Background(), SelectRequest{
		RouteName:     "default",
		PinProviderID: "qwen",
	})
	require.NoError(t, err)
	assert.Equal(t, "qwen", target.ProviderID)
}

func TestRouter_Select_ExcludeRemovesCandidate(t *testing.T) {
	r := NewRouter(NewHealthStore(), StrategyWeightedRandom, nil)
	r.LoadRoute("default", []*Candidate{
		candidate("glm", "k1", 100),
	})

	_, err := r.Select(context.Background(), SelectRequest{
		RouteName:  "default",
		ExcludeIDs: map[string]bool{"glm": true},
	})
	assert.ErrorIs(t, err, ErrNoHealthyProvider)
}

func TestRouter_Select_SkipsUnhealthyCandidate(t *testing.T) {
	health := NewHealthStore()
	r := NewRouter(health, StrategyRoundRobin, nil)
	r.LoadRoute("default", []*Candidate{
		candidate("glm", "k1", 100),
		candidate("qwen", "k1", 100),
	})

	health.RecordError("glm.k1", ErrorClassDailyLimit, time.Now(), 0)

	target, err := r.Select(context.Background(), SelectRequest{RouteName: "default"})
	require.NoError(t, err)
	assert.Equal(t, "qwen", target.ProviderID)
}

func TestRouter_Select_RoundRobinCycles(t *testing.T) {
	r := NewRouter(NewHealthStore(), StrategyRoundRobin, nil)
	r.LoadRoute("default", []*Candidate{
		candidate("a", "k1", 100),
		candidate("b", "k1", 100),
	})

	first, err := r.Select(context.Background(), SelectRequest{RouteName: "default"})
	require.NoError(t, err)
	second, err := r.Select(context.Background(), SelectRequest{RouteName: "default"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ProviderID, second.ProviderID)
}

func TestHealthState_Selectable(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		state *HealthState
		want  bool
	}{
		{"nil is selectable", nil, true},
		{"healthy in pool", &HealthState{InPool: true, Reason: ReasonOK}, true},
		{"out of pool", &HealthState{InPool: false, Reason: ReasonOK}, false},
		{"cooldown active", &HealthState{InPool: true, Reason: ReasonCooldown, CooldownUntil: now.Add(time.Minute)}, false},
		{"cooldown expired", &HealthState{InPool: true, Reason: ReasonOK, CooldownUntil: now.Add(-time.Minute)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Selectable(now))
		})
	}
}

func TestHealthStore_RecordError_ShortCooldown(t *testing.T) {
	h := NewHealthStore()
	h.RecordError("glm.k1", ErrorClassShortCooldown, time.Now(), 30*time.Second)
	state := h.Get("glm.k1")
	assert.Equal(t, ReasonCooldown, state.Reason)
	assert.False(t, state.Selectable(time.Now()))
}

func TestHealthStore_RecordSuccess_ResetsCooldown(t *testing.T) {
	h := NewHealthStore()
	h.RecordError("glm.k1", ErrorClassShortCooldown, time.Now(), time.Minute)
	h.RecordSuccess("glm.k1")
	assert.True(t, h.Get("glm.k1").Selectable(time.Now()))
}

func TestHealthStore_RecordError_FatalThresholdBlacklists(t *testing.T) {
	h := NewHealthStore()
	now := time.Now()
	for i := 0; i < FatalThreshold; i++ {
		h.RecordError("glm.k1", ErrorClassTransient, now, 0)
	}
	assert.False(t, h.Get("glm.k1").Selectable(now))
}

func TestClassifier_Classify_PicksFirstSatisfiedRule(t *testing.T) {
	c := NewClassifier([]RoutingRule{
		{Name: "tools-route", RouteName: "tools", RequireTools: true, MinConfidence: 0.9},
		{Name: "default-route", RouteName: "default", MinConfidence: 0.5},
	})
	decision := c.Classify(nil, nil)
	assert.Equal(t, "default-route", decision.RouteDecision)
}
