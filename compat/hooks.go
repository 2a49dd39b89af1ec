// Package compat implements the compatibility stage: per-provider-family
// request/response reshaping between the canonical model and the wire
// shape a specific upstream expects. Its hook chain is grounded on the
// teacher's llm/middleware.Chain (Use/UseFront/Then, mutex-protected
// middleware slice, reverse-order wrapping) generalized from an
// LLM-request handler chain to a set of named pipeline stages that run
// over a *llmswitch.CanonicalRequest instead of a single Handler func.
package compat

import (
	"context"
	"fmt"
	"sync"

	"github.com/routecodex/routecodex/llmswitch"
)

// Stage names the point in the pipeline a hook runs at (spec §4.3).
type Stage string

const (
	StageIncomingPreprocessing  Stage = "incoming_preprocessing"
	StageIncomingValidation     Stage = "incoming_validation"
	StageIncomingPostprocessing Stage = "incoming_postprocessing"
	StageOutgoingPreprocessing  Stage = "outgoing_preprocessing"
	StageOutgoingPostprocessing Stage = "outgoing_postprocessing"
)

// Hook transforms a canonical request in place, or returns an error to
// abort the pipeline (e.g. validation failures).
type Hook func(ctx context.Context, req *llmswitch.CanonicalRequest) error

// Chain runs an ordered list of hooks registered per stage, mirroring
// the teacher's middleware.Chain Use/UseFront shape (with Run in place
// of Then) but keyed by Stage instead of being a single linear list.
type Chain struct {
	mu    sync.RWMutex
	hooks map[Stage][]Hook
}

// NewChain creates an empty hook chain.
func NewChain() *Chain {
	return &Chain{hooks: make(map[Stage][]Hook)}
}

// Use appends a hook to run at the given stage.
func (c *Chain) Use(stage Stage, h Hook) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[stage] = append(c.hooks[stage], h)
	return c
}

// UseFront prepends a hook, running it before any already registered at
// this stage.
func (c *Chain) UseFront(stage Stage, h Hook) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[stage] = append([]Hook{h}, c.hooks[stage]...)
	return c
}

// Run executes every hook registered at a stage in registration order,
// stopping at the first error.
func (c *Chain) Run(ctx context.Context, stage Stage, req *llmswitch.CanonicalRequest) error {
	c.mu.RLock()
	hooks := append([]Hook(nil), c.hooks[stage]...)
	c.mu.RUnlock()

	for _, h := range hooks {
		if err := h(ctx, req); err != nil {
			return fmt.Errorf("compat: stage %s: %w", stage, err)
		}
	}
	return nil
}

// Len reports how many hooks are registered at a stage, for tests.
func (c *Chain) Len(stage Stage) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hooks[stage])
}
