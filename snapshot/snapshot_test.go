package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_DisabledByDefault_NoOp(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, false, nil)
	w.Write("v1-messages", "anthropic.k1", "req-1", Event{Stage: StageProviderRequest})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriter_WritesFileUnderConventionPath(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, true, nil)
	w.writeSync("v1-messages", "anthropic.k1", "req-1", Event{Stage: StageProviderRequest, Data: map[string]string{"model": "claude"}})

	path := filepath.Join(dir, "v1-messages", "anthropic.k1", "req-1", "provider-request_server.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, StageProviderRequest, ev.Stage)
}

func TestWriter_OutOfOrderStageDropped(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, true, nil)
	w.writeSync("v1-messages", "anthropic.k1", "req-1", Event{Stage: StageProviderResponse})
	w.writeSync("v1-messages", "anthropic.k1", "req-1", Event{Stage: StageProviderRequest})

	path := filepath.Join(dir, "v1-messages", "anthropic.k1", "req-1", "provider-request_server.json")
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestMaskHeaders_MasksSensitiveKeysOnly(t *testing.T) {
	headers := map[string]string{
		"Authorization": "Bearer secret",
		"X-Request-Id":  "abc",
	}
	masked := MaskHeaders(headers)
	assert.Equal(t, "***MASKED***", masked["Authorization"])
	assert.Equal(t, "abc", masked["X-Request-Id"])
}

func TestWriter_WriteIsAsyncFireAndForget(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, true, nil)
	w.Write("v1-messages", "anthropic.k1", "req-2", Event{Stage: StageProviderRequest})

	path := filepath.Join(dir, "v1-messages", "anthropic.k1", "req-2", "provider-request_server.json")
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 10*time.Millisecond)
}
