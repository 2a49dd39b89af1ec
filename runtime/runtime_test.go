package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routecodex/routecodex/snapshot"
	"github.com/routecodex/routecodex/types"
)

func TestRuntime_Execute_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	rt := New(Config{
		RuntimeKey: "glm.default",
		BaseURL:    srv.URL,
		Auth:       APIKeyAuth{Key: "secret"},
	}, nil)

	body, err := rt.Execute(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestRuntime_Execute_MapsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	rt := New(Config{RuntimeKey: "glm.default", BaseURL: srv.URL}, nil)
	_, err := rt.Execute(context.Background(), []byte(`{}`))
	require.Error(t, err)

	tErr, ok := err.(*types.Error)
	require.True(t, ok)
	assert.Equal(t, types.HTTPErrorCode(http.StatusTooManyRequests), tErr.Code)
	assert.True(t, tErr.Retryable)
}

func TestAPIKeyAuth_ResolvesEnvIndirection(t *testing.T) {
	t.Setenv("MY_TEST_KEY", "resolved-value")
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	auth := APIKeyAuth{Key: "${MY_TEST_KEY}"}
	require.NoError(t, auth.Apply(context.Background(), req))
	assert.Equal(t, "Bearer resolved-value", req.Header.Get("Authorization"))
}

func TestKeyRotator_CyclesThroughKeys(t *testing.T) {
	r := NewKeyRotator([]string{"a", "b", "c"})
	assert.Equal(t, "a", r.Next())
	assert.Equal(t, "b", r.Next())
	assert.Equal(t, "c", r.Next())
	assert.Equal(t, "a", r.Next())
}

func TestClassifyError_DistinguishesShortVsDailyRateLimit(t *testing.T) {
	short := types.NewError(types.HTTPErrorCode(429), "rate limited, retry in 5s").WithHTTPStatus(429)
	daily := types.NewError(types.HTTPErrorCode(429), "daily quota exceeded").WithHTTPStatus(429)

	assert.Equal(t, "rate_limit_short", ClassifyError(short))
	assert.Equal(t, "rate_limit_daily", ClassifyError(daily))
}

func TestMapHTTPError_QuotaKeywordOn400(t *testing.T) {
	err := MapHTTPError(400, "insufficient quota remaining", "glm.default")
	assert.Equal(t, types.ErrQuotaExceeded, err.Code)
}

func TestRuntime_Execute_WritesProviderRequestAndResponseSnapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	writer := snapshot.NewWriter(dir, true, nil)
	rt := New(Config{
		RuntimeKey:     "glm.default",
		BaseURL:        srv.URL,
		Auth:           APIKeyAuth{Key: "secret"},
		Snapshots:      writer,
		EndpointFolder: "v1-chat-completions",
	}, nil)

	ctx := WithRequestID(context.Background(), "req-123")
	_, err := rt.Execute(ctx, []byte(`{"model":"glm-4"}`))
	require.NoError(t, err)

	base := filepath.Join(dir, "v1-chat-completions", "glm.default", "req-123")
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(base, "provider-response_server.json"))
		return err == nil
	}, time.Second, 10*time.Millisecond)

	reqData, err := os.ReadFile(filepath.Join(base, "provider-request_server.json"))
	require.NoError(t, err)
	assert.Contains(t, string(reqData), "glm-4")
	assert.NotContains(t, string(reqData), "secret")
}
