package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sessionhub/pkg/interfaces"
	"sessionhub/pkg/types"
)

// WebSocket upgrader with production-ready settings
// ARCHITECTURAL DISCOVERY: Separate upgrader configuration enables reuse
// and consistent WebSocket settings across different handler instances
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development; production deployments should
		// implement stricter origin checking
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Dispatcher consumes inbound frames and disconnect notifications. Satisfied
// by the protocol gateway; narrow on purpose so handler tests can drive the
// read loop with a recording fake.
type Dispatcher interface {
	Dispatch(ctx context.Context, conn interfaces.Connection, data []byte) error
	HandleDisconnect(clientID string)
}

// Handler accepts WebSocket upgrade requests, assigns client ids and runs
// the per-connection read loop
// ARCHITECTURAL DISCOVERY: Clean separation of socket handling from
// coordination logic - the handler never touches sessions or ownership
type Handler struct {
	manager      *Manager
	dispatcher   Dispatcher
	readTimeout  time.Duration
	pingInterval time.Duration
	bufferSize   int
}

// NewHandler creates a WebSocket handler with dependency injection
func NewHandler(manager *Manager, dispatcher Dispatcher, readTimeout, pingInterval time.Duration, bufferSize int) *Handler {
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Handler{
		manager:      manager,
		dispatcher:   dispatcher,
		readTimeout:  readTimeout,
		pingInterval: pingInterval,
		bufferSize:   bufferSize,
	}
}

// HandleWebSocket upgrades the request, registers the connection under a
// fresh server-assigned client id and starts the read loop.
// FUNCTIONAL DISCOVERY: ids are assigned by the server per connection, never
// taken from the client, so identity cannot be forged or collide
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	clientID := uuid.New().String()
	wsConn := NewConnection(conn, clientID, h.bufferSize)

	if err := h.manager.Register(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}

	// The welcome frame carries the assigned id; the client needs it only
	// for display and logging since all authority checks are server-side.
	if err := wsConn.WriteJSON(&types.Welcome{
		Type:     types.ServerTypeWelcome,
		ClientID: clientID,
	}); err != nil {
		log.Printf("Failed to send welcome to %s: %v", clientID, err)
		h.teardown(wsConn)
		return
	}

	go h.handleConnection(wsConn)
}

// handleConnection manages the connection lifecycle with heartbeat monitoring
// ARCHITECTURAL DISCOVERY: Single goroutine per connection handles both
// heartbeat and message reading to prevent goroutine proliferation
func (h *Handler) handleConnection(conn *Connection) {
	defer h.teardown(conn)

	// TECHNICAL DISCOVERY: read deadline twice the ping interval provides
	// reliable connection health monitoring without false positives
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error from %s: %v", conn.ClientID(), err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if err := h.dispatcher.Dispatch(conn.ctx, conn, data); err != nil {
			// Protocol violation: the error frame was already sent, close
			// the connection and let the deferred teardown run once.
			return
		}
	}
}

// teardown runs disconnect processing exactly once per connection.
// FUNCTIONAL DISCOVERY: the manager's Detach is idempotent, so a teardown
// racing an error path cannot double-process ownership transfers
func (h *Handler) teardown(conn *Connection) {
	h.dispatcher.HandleDisconnect(conn.ClientID())
	_ = conn.Close()
}
