// Package admin exposes a local-only websocket live tail of snapshot
// events, grounded on the register/unregister/broadcast Hub shape in
// codefionn-scriptschnell/internal/web/hub.go (one goroutine owning the
// client set, a buffered broadcast channel, per-client send channels so
// one slow tailer can't block the others or the snapshot writer).
package admin

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/routecodex/routecodex/snapshot"
)

// tailEvent is the wire shape sent to each connected tailer.
type tailEvent struct {
	RequestID string         `json:"requestId"`
	Stage     snapshot.Stage `json:"stage"`
	Meta      map[string]any `json:"meta,omitempty"`
	Data      any            `json:"data,omitempty"`
}

// client is one connected tailer's outbound mailbox. send is buffered
// so Hub.run's broadcast loop never blocks on a single slow websocket
// write; a full mailbox just drops the event for that client.
type client struct {
	send chan []byte
}

// Hub fans snapshot events out to every currently connected tailer.
// The zero value is not usable; construct with NewHub.
type Hub struct {
	logger     *zap.Logger
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	clients    map[*client]struct{}
	done       chan struct{}
}

// NewHub creates a Hub and starts its broadcast loop. Call Close to
// stop it and disconnect every tailer.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]struct{}),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Debug("admin: tailer mailbox full, dropping event")
				}
			}
		case <-h.done:
			for c := range h.clients {
				close(c.send)
			}
			return
		}
	}
}

// Tail adapts Hub.Publish to snapshot.Writer.SetTailer's signature.
func (h *Hub) Tail(requestID string, ev snapshot.Event) {
	h.Publish(requestID, ev)
}

// Publish marshals ev and fans it out to every connected tailer.
// Best-effort: a marshal failure or a full broadcast channel just
// drops the event, same as the snapshot writer's own disk-write
// failures are swallowed.
func (h *Hub) Publish(requestID string, ev snapshot.Event) {
	data, err := json.Marshal(tailEvent{RequestID: requestID, Stage: ev.Stage, Meta: ev.Meta, Data: ev.Data})
	if err != nil {
		h.logger.Debug("admin: marshal tail event failed", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Debug("admin: broadcast channel full, dropping event")
	}
}

// Close stops the broadcast loop and disconnects every tailer.
func (h *Hub) Close() {
	close(h.done)
}
