// Package runtime implements the Provider Runtime stage: one Runtime per
// RuntimeKey (providerID.keyAlias) owns that account's HTTP client, auth
// material, and in-flight request execution. Its HTTP-execution core is
// grounded on the teacher's llm/providers/openaicompat.Provider
// (endpoint building, header construction, POST-with-timeout, non-2xx
// typed error mapping, streaming byte exposure) generalized from one
// fixed OpenAI-compatible shape to any of the providerTypes the spec
// names (openai, responses, anthropic, gemini, gemini-cli, mock).
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/routecodex/routecodex/internal/tlsutil"
	"github.com/routecodex/routecodex/llm/circuitbreaker"
	"github.com/routecodex/routecodex/llm/retry"
	"github.com/routecodex/routecodex/snapshot"
	"github.com/routecodex/routecodex/types"
)

// Config configures one Provider Runtime instance.
type Config struct {
	RuntimeKey     string
	ProviderType   string
	BaseURL        string
	EndpointPath   string
	Timeout        time.Duration
	Auth           Authenticator
	BuildHeaders   func(req *http.Request)
	Snapshots      *snapshot.Writer
	EndpointFolder string // e.g. "v1-messages", used as the snapshot path's first segment

	// Breaker trips after BreakerThreshold consecutive failures and
	// holds the runtime out of rotation for BreakerResetTimeout before
	// letting a half-open probe through. Zero values take
	// circuitbreaker.DefaultConfig()'s 5/30s/60s/3.
	BreakerThreshold     int
	BreakerResetTimeout  time.Duration
	// RetryPolicy governs Execute's retries. A nil RetryPolicy uses
	// retry.DefaultRetryPolicy(): up to 3 retries after the first attempt,
	// 1s-30s exponential backoff with jitter. With no RetryableErrors set,
	// every error is retried, whatever its HTTP status.
	RetryPolicy *retry.RetryPolicy
}

type requestIDKey struct{}

// WithRequestID attaches the request id a Runtime's Execute/ExecuteStream
// calls use to key their snapshot artifacts.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Runtime executes HTTP requests against one upstream account. It owns
// its own *http.Client so per-runtime timeouts and (in a fuller build)
// per-runtime TLS material stay isolated, matching the teacher's
// per-provider client instantiation in openaicompat.New.
type Runtime struct {
	cfg     Config
	client  *http.Client
	logger  *zap.Logger
	breaker circuitbreaker.CircuitBreaker
	retryer retry.Retryer
}

// New creates a Runtime, defaulting its timeout to 30s like the
// teacher's openaicompat.New. Each Runtime gets its own circuit breaker
// and retryer, since a breaker trip on one providerId/keyAlias must not
// affect any other runtime's rotation.
func New(cfg Config, logger *zap.Logger) *Runtime {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.Timeout = cfg.Timeout
	if cfg.BreakerThreshold > 0 {
		breakerCfg.Threshold = cfg.BreakerThreshold
	}
	if cfg.BreakerResetTimeout > 0 {
		breakerCfg.ResetTimeout = cfg.BreakerResetTimeout
	}

	return &Runtime{
		cfg:     cfg,
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:  logger,
		breaker: circuitbreaker.NewCircuitBreaker(breakerCfg, logger.With(zap.String("runtime_key", cfg.RuntimeKey))),
		retryer: retry.NewBackoffRetryer(cfg.RetryPolicy, logger.With(zap.String("runtime_key", cfg.RuntimeKey))),
	}
}

func (r *Runtime) endpoint() string {
	return strings.TrimRight(r.cfg.BaseURL, "/") + r.cfg.EndpointPath
}

// Execute sends a JSON body and returns the raw response body and status,
// applying auth headers and mapping non-2xx responses to a *types.Error.
// The call runs through this runtime's retryer (exponential backoff) and
// circuit breaker (a tripped breaker short-circuits without touching the
// network), the same composition the teacher's ResilientProvider applies
// around its own Provider.Completion. Streaming callers use ExecuteStream
// instead, which skips retry since an SSE body can't be replayed.
func (r *Runtime) Execute(ctx context.Context, body []byte) ([]byte, error) {
	requestID := requestIDFrom(ctx)
	result, err := r.retryer.DoWithResult(ctx, func() (any, error) {
		var respBody []byte
		cbErr := r.breaker.Call(ctx, func() error {
			b, execErr := r.doExecute(ctx, requestID, body)
			respBody = b
			return execErr
		})
		return respBody, cbErr
	})
	if err != nil {
		var tErr *types.Error
		if errors.As(err, &tErr) {
			return nil, tErr
		}
		return nil, err
	}
	respBody, _ := result.([]byte)
	return respBody, nil
}

func (r *Runtime) doExecute(ctx context.Context, requestID string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("runtime: build request: %w", err)
	}
	if err := r.applyAuth(ctx, httpReq); err != nil {
		return nil, err
	}
	r.snapshotRequest(requestID, httpReq, body)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		snapErr := types.NewError(types.ErrUpstreamError, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithProvider(r.cfg.RuntimeKey)
		r.snapshotError(requestID, snapErr)
		return nil, snapErr
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		snapErr := types.NewError(types.ErrUpstreamError, err.Error()).WithProvider(r.cfg.RuntimeKey)
		r.snapshotError(requestID, snapErr)
		return nil, snapErr
	}

	if resp.StatusCode >= 400 {
		mapped := MapHTTPError(resp.StatusCode, ReadErrorMessage(respBody), r.cfg.RuntimeKey)
		r.snapshotError(requestID, mapped)
		return nil, mapped
	}
	r.snapshotResponse(requestID, respBody)
	return respBody, nil
}

// ExecuteStream sends a JSON body and returns the live response body for
// the caller to read SSE frames from; the caller owns closing it. Only
// the circuit breaker applies here, not the retryer: an SSE body can't
// be buffered and replayed, so a mid-stream failure must surface to the
// caller rather than trigger a silent second POST.
func (r *Runtime) ExecuteStream(ctx context.Context, body []byte) (io.ReadCloser, error) {
	requestID := requestIDFrom(ctx)
	var stream io.ReadCloser
	err := r.breaker.Call(ctx, func() error {
		s, execErr := r.doExecuteStream(ctx, requestID, body)
		stream = s
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (r *Runtime) doExecuteStream(ctx context.Context, requestID string, body []byte) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("runtime: build request: %w", err)
	}
	if err := r.applyAuth(ctx, httpReq); err != nil {
		return nil, err
	}
	r.snapshotRequest(requestID, httpReq, body)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		snapErr := types.NewError(types.ErrUpstreamError, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).WithRetryable(true).WithProvider(r.cfg.RuntimeKey)
		r.snapshotError(requestID, snapErr)
		return nil, snapErr
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		mapped := MapHTTPError(resp.StatusCode, ReadErrorMessage(msg), r.cfg.RuntimeKey)
		r.snapshotError(requestID, mapped)
		return nil, mapped
	}
	return resp.Body, nil
}

func (r *Runtime) snapshotRequest(requestID string, httpReq *http.Request, body []byte) {
	if r.cfg.Snapshots == nil || requestID == "" {
		return
	}
	headers := make(map[string]string, len(httpReq.Header))
	for k := range httpReq.Header {
		headers[k] = httpReq.Header.Get(k)
	}
	r.cfg.Snapshots.Write(r.cfg.EndpointFolder, r.cfg.RuntimeKey, requestID, snapshot.Event{
		Stage: snapshot.StageProviderRequest,
		Meta:  map[string]any{"headers": snapshot.MaskHeaders(headers), "url": httpReq.URL.String()},
		Data:  json.RawMessage(body),
	})
}

func (r *Runtime) snapshotResponse(requestID string, body []byte) {
	if r.cfg.Snapshots == nil || requestID == "" {
		return
	}
	r.cfg.Snapshots.Write(r.cfg.EndpointFolder, r.cfg.RuntimeKey, requestID, snapshot.Event{
		Stage: snapshot.StageProviderResponse,
		Data:  json.RawMessage(body),
	})
}

func (r *Runtime) snapshotError(requestID string, err *types.Error) {
	if r.cfg.Snapshots == nil || requestID == "" {
		return
	}
	r.cfg.Snapshots.Write(r.cfg.EndpointFolder, r.cfg.RuntimeKey, requestID, snapshot.Event{
		Stage: snapshot.StageProviderError,
		Data:  err,
	})
}

func (r *Runtime) applyAuth(ctx context.Context, req *http.Request) error {
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.BuildHeaders != nil {
		r.cfg.BuildHeaders(req)
	}
	if r.cfg.Auth != nil {
		return r.cfg.Auth.Apply(ctx, req)
	}
	return nil
}

// Probe performs a cheap reachability check, satisfying vrouter.Prober
// so the health checker can probe this runtime without importing it
// from vrouter (runtime imports vrouter indirectly would cycle; instead
// vrouter.Prober is a narrow interface this method happens to satisfy).
func (r *Runtime) Probe(ctx context.Context) error {
	_, err := r.Execute(ctx, []byte(`{}`))
	return err
}

// ReadErrorMessage extracts a human-readable message from an upstream
// error body, preferring a JSON {"error":{"message":...}} envelope and
// falling back to the raw text, mirroring the teacher's
// providers.ReadErrorMessage.
func ReadErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return string(body)
}
