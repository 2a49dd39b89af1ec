package admin

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/routecodex/routecodex/snapshot"
)

func TestHub_PublishReachesConnectedTailer(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	srv := httptest.NewServer(Handler(hub, zap.NewNop()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + srv.URL[len("http"):] + "/admin/tail"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// Dial returns as soon as the handshake completes, not after
	// Handler's goroutine has registered the client with the hub;
	// give that a moment to happen before publishing.
	time.Sleep(50 * time.Millisecond)

	hub.Publish("req-1", snapshot.Event{Stage: snapshot.StageFinalResponse, Data: map[string]any{"ok": true}})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var got tailEvent
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, snapshot.StageFinalResponse, got.Stage)
}

func TestHub_CloseDisconnectsTailers(t *testing.T) {
	hub := NewHub(zap.NewNop())

	srv := httptest.NewServer(Handler(hub, zap.NewNop()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + srv.URL[len("http"):] + "/admin/tail"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	hub.Close()

	_, _, err = conn.Read(ctx)
	assert.Error(t, err)
}
