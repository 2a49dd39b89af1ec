package vrouter

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Prober checks whether one runtime is currently reachable. Provider
// runtimes implement this so the health checker can probe them without
// importing the runtime package (avoiding an import cycle).
type Prober interface {
	Probe(ctx context.Context) error
}

// HealthChecker periodically probes every known runtime concurrently,
// generalizing the teacher's ticker-driven HealthChecker.checkAll (which
// probed per-providerCode) to probe per-runtimeKey instead, using
// errgroup to run and wait for the concurrent probes (one goroutine per
// runtime, no concurrency limit) instead of the teacher's sequential
// for-range loop.
type HealthChecker struct {
	health   *HealthStore
	probers  map[string]Prober // runtimeKey -> prober
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	stopCh   chan struct{}
}

// NewHealthChecker creates a HealthChecker over the given runtime probers.
func NewHealthChecker(health *HealthStore, probers map[string]Prober, interval, timeout time.Duration, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HealthChecker{
		health:   health,
		probers:  probers,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the probe loop until ctx is cancelled or Stop is called.
func (h *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.checkAll(ctx)
		}
	}
}

// Stop ends the probe loop.
func (h *HealthChecker) Stop() {
	close(h.stopCh)
}

func (h *HealthChecker) checkAll(ctx context.Context) {
	if len(h.probers) == 0 {
		h.logger.Debug("health checker skipped (no runtimes registered)")
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for runtimeKey, prober := range h.probers {
		runtimeKey, prober := runtimeKey, prober
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, h.timeout)
			defer cancel()
			err := prober.Probe(probeCtx)
			if err != nil {
				h.logger.Warn("runtime health probe failed",
					zap.String("runtime_key", runtimeKey), zap.Error(err))
				h.health.RecordError(runtimeKey, ErrorClassTransient, time.Now(), 0)
				return nil // one failed probe must not cancel the others
			}
			h.health.RecordSuccess(runtimeKey)
			return nil
		})
	}
	_ = g.Wait()
}
