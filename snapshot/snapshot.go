// Package snapshot writes an append-only, per-request-per-stage JSON
// trail to disk for forensic debugging. Writing is fire-and-forget and
// best-effort — per spec, callers never block on or fail because of a
// snapshot write — and disabled by default, grounded on the same
// write-temp/rename atomicity the gateway uses for OAuth token files
// (see runtime/oauth.TokenStore.Save) so a live tail (internal/admin's
// websocket reader, see internal/admin) never observes a half-written
// file.
package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/routecodex/routecodex/internal/pool"
)

// Stage identifies one point in the request lifecycle a snapshot can be
// taken at, in the fixed order the gateway emits them.
type Stage string

const (
	StageClientRequest      Stage = "client-request"
	StageHTTPRequest        Stage = "http-request"
	StageRoutingSelected    Stage = "routing-selected"
	StageLLMSwitchRequest   Stage = "llm-switch-request"
	StageCompatibilityPre   Stage = "compatibility-pre"
	StageCompatibilityPost  Stage = "compatibility-post"
	StageProviderRequest    Stage = "provider-request"
	StageProviderRequestRetry Stage = "provider-request.retry"
	StageProviderResponse   Stage = "provider-response"
	StageProviderRetryResp  Stage = "provider-request.retry-response"
	StageProviderError      Stage = "provider-error"
	StageCompatibilityResp  Stage = "compatibility-response"
	StageLLMSwitchResponse  Stage = "llm-switch-response"
	StageFinalResponse      Stage = "final-response"
	StageHTTPResponse       Stage = "http-response"
)

// stageOrder fixes the monotonic ordering invariant: a writer never
// emits stage N after stage N+1 has already been written for the same
// request, per spec's "monotonically increasing in stage order" rule.
var stageOrder = map[Stage]int{
	StageClientRequest:       0,
	StageHTTPRequest:         1,
	StageRoutingSelected:     2,
	StageLLMSwitchRequest:    3,
	StageCompatibilityPre:    4,
	StageCompatibilityPost:   5,
	StageProviderRequest:     6,
	StageProviderRequestRetry: 7,
	StageProviderResponse:    8,
	StageProviderRetryResp:   9,
	StageProviderError:       10,
	StageCompatibilityResp:   11,
	StageLLMSwitchResponse:   12,
	StageFinalResponse:       13,
	StageHTTPResponse:        14,
}

// Event is one staged artifact, matching the spec's Request Event shape.
type Event struct {
	Stage Stage          `json:"stage"`
	Meta  map[string]any `json:"meta,omitempty"`
	Data  any            `json:"data,omitempty"`
}

// maskedHeaderPattern matches header keys whose values get replaced
// with a redaction marker before hitting disk.
var maskedHeaderPattern = regexp.MustCompile(`(?i)^(authorization|x-api-key|x-goog-api-key|cookie)$`)

// MaskHeaders returns a copy of headers with sensitive values masked,
// applied to every provider-request/provider-request.retry snapshot so
// captured credentials never land on disk in the clear.
func MaskHeaders(headers map[string]string) map[string]string {
	masked := make(map[string]string, len(headers))
	for k, v := range headers {
		if maskedHeaderPattern.MatchString(k) {
			masked[k] = "***MASKED***"
			continue
		}
		masked[k] = v
	}
	return masked
}

// Writer persists Events under
// ~/.routecodex/codex-samples/<endpointFolder>/<providerToken>/<requestId>/.
// The zero value is a disabled writer: Write is then a no-op, matching
// the spec's "disabled by default" requirement without callers needing
// a nil check.
type Writer struct {
	rootDir string
	enabled bool
	logger  *zap.Logger
	workers *pool.GoroutinePool

	mu        sync.Mutex
	lastStage map[string]int // requestId -> last stage index written, for the monotonic check

	tailMu sync.RWMutex
	tail   func(requestID string, ev Event)
}

// SetTailer registers a callback invoked with every event the writer
// accepts, in addition to the disk write, so internal/admin's
// websocket hub can fan a live copy out to connected tailers without
// the disk write path needing to know admin exists. fn is called from
// the writer's worker pool, same as the disk write, so it must not
// block.
func (w *Writer) SetTailer(fn func(requestID string, ev Event)) {
	w.tailMu.Lock()
	w.tail = fn
	w.tailMu.Unlock()
}

// NewWriter creates a snapshot writer rooted at rootDir. When enabled
// is false, Write is a cheap no-op. Writes run on a bounded
// GoroutinePool rather than one bare `go` per call, so a burst of
// in-flight requests can't pile up an unbounded number of disk writers.
func NewWriter(rootDir string, enabled bool, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		rootDir:   rootDir,
		enabled:   enabled,
		logger:    logger,
		workers:   pool.NewGoroutinePool(pool.DefaultGoroutinePoolConfig()),
		lastStage: make(map[string]int),
	}
}

// Write fires off a best-effort snapshot write on the writer's worker
// pool, per spec's "suspension point (e), fire-and-forget, non-blocking,
// errors swallowed" requirement. Callers never wait on or check its
// outcome; a full pool just drops the snapshot, same as a swallowed
// write error.
func (w *Writer) Write(endpointFolder, providerToken, requestID string, ev Event) {
	if w == nil || !w.enabled {
		return
	}
	err := w.workers.Submit(context.Background(), func(context.Context) error {
		w.writeSync(endpointFolder, providerToken, requestID, ev)
		return nil
	})
	if err != nil {
		w.logger.Debug("snapshot: write dropped, pool full", zap.Error(err))
	}
}

// Close drains in-flight snapshot writes and stops accepting new ones.
// Safe on a disabled (zero-value) Writer.
func (w *Writer) Close() {
	if w == nil || w.workers == nil {
		return
	}
	w.workers.Close()
}

func (w *Writer) writeSync(endpointFolder, providerToken, requestID string, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Warn("snapshot: write panicked", zap.Any("recover", r))
		}
	}()

	idx, known := stageOrder[ev.Stage]
	if known {
		w.mu.Lock()
		prior, seen := w.lastStage[requestID]
		if seen && idx < prior {
			w.mu.Unlock()
			w.logger.Debug("snapshot: out-of-order stage dropped",
				zap.String("requestId", requestID), zap.String("stage", string(ev.Stage)))
			return
		}
		w.lastStage[requestID] = idx
		w.mu.Unlock()
	}

	dir := filepath.Join(w.rootDir, endpointFolder, providerToken, requestID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.logger.Warn("snapshot: mkdir failed", zap.Error(err))
		return
	}

	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		w.logger.Warn("snapshot: marshal failed", zap.Error(err))
		return
	}

	// stage values are compile-time constants; filepath.Base guards
	// against a future stage name smuggling a path separator in.
	fileName := filepath.Base(string(ev.Stage)) + "_server.json"
	path := filepath.Join(dir, fileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		w.logger.Warn("snapshot: write failed", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		w.logger.Warn("snapshot: rename failed", zap.Error(err))
	}

	w.tailMu.RLock()
	tail := w.tail
	w.tailMu.RUnlock()
	if tail != nil {
		tail(requestID, ev)
	}
}
