package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// writeTimeout bounds how long a single tail event write may block a
// slow client's connection before the server gives up on it.
const writeTimeout = 5 * time.Second

// Handler upgrades GET /admin/tail to a websocket and streams every
// snapshot event the hub publishes until the client disconnects.
// Local-debugging surface only: callers are expected to gate this
// behind the same network boundary (loopback, reverse proxy) as the
// rest of the gateway, same as the teacher's health/metrics endpoints.
func Handler(hub *Hub, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Debug("admin: websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		c := &client{send: make(chan []byte, 64)}
		hub.register <- c
		defer func() { hub.unregister <- c }()

		ctx := r.Context()
		for {
			select {
			case msg, ok := <-c.send:
				if !ok {
					conn.Close(websocket.StatusNormalClosure, "hub closed")
					return
				}
				writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
				err := conn.Write(writeCtx, websocket.MessageText, msg)
				cancel()
				if err != nil {
					return
				}
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "client gone")
				return
			}
		}
	}
}
