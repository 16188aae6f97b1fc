package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/HerbHall/drivewatch/internal/event"
	"github.com/HerbHall/drivewatch/internal/poller"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Handler provides the WebSocket endpoint streaming snapshot updates.
type Handler struct {
	hub    *Hub
	coord  *poller.Coordinator
	logger *zap.Logger
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a WebSocket handler and subscribes to coordinator events.
func NewHandler(coord *poller.Coordinator, bus *event.Bus, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:    NewHub(logger),
		coord:  coord,
		logger: logger,
	}

	bus.Subscribe(event.TopicSnapshotPublished, func(_ context.Context, e event.Event) {
		if snap, ok := e.Payload.(poller.Snapshot); ok {
			h.hub.Broadcast(Message{Type: MessageSnapshot, Timestamp: time.Now().UTC(), Snapshot: &snap})
		}
	})
	bus.Subscribe(event.TopicReauthRequired, func(_ context.Context, e event.Event) {
		if snap, ok := e.Payload.(poller.Snapshot); ok {
			h.hub.Broadcast(Message{Type: MessageReauthRequired, Timestamp: time.Now().UTC(), Snapshot: &snap})
		}
	})

	return h
}

// RegisterRoutes registers WebSocket routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws", h.handleStream)
}

// handleStream upgrades the connection and streams snapshots. The most
// recent snapshot is sent immediately so clients render without waiting for
// the next cycle.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Local daemon API: same-host dashboards connect from any origin.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		remote: r.RemoteAddr,
		send:   make(chan Message, 16),
		logger: h.logger,
	}

	h.hub.Register(client)

	last := h.coord.LastSnapshot()
	client.send <- Message{Type: MessageSnapshot, Timestamp: time.Now().UTC(), Snapshot: &last}

	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		defer cancel()
		client.readPump(ctx)
	}()

	client.writePump(ctx)

	h.hub.Unregister(client)
	_ = conn.Close(websocket.StatusNormalClosure, "")
}
