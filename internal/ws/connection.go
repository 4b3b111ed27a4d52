package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps one WebSocket client connection
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent
// race conditions - a single writer goroutine owns the socket's write side
type Connection struct {
	conn      *websocket.Conn
	clientID  string
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection creates a connection wrapper with its server-assigned client
// id and starts the single writer goroutine
func NewConnection(conn *websocket.Conn, clientID string, bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:     conn,
		clientID: clientID,
		// FUNCTIONAL DISCOVERY: buffered channel absorbs fan-out bursts so a
		// session's delivery loop is not paced by one slow socket
		writeCh: make(chan []byte, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	// Cancel on every exit path so WriteJSON fails fast once the socket is
	// gone. The channel itself is never closed: concurrent senders race
	// against close, and a send on a closed channel panics.
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// ClientID returns the server-assigned client id, unique per connection
func (c *Connection) ClientID() string {
	return c.clientID
}

// WriteJSON sends a JSON message to the client (thread-safe)
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close closes the connection and stops the writer goroutine. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
