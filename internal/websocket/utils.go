package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// Conn wraps a gorilla connection with a write mutex. gorilla/websocket
// allows at most one concurrent writer per connection, and a session stream
// has two: the note pump and the read loop's pong/error replies. Every
// write must go through this wrapper.
type Conn struct {
	raw *websocket.Conn

	writeMu sync.Mutex
}

// NewConn wraps an upgraded connection.
func NewConn(raw *websocket.Conn) *Conn {
	return &Conn{raw: raw}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
// Safe for concurrent use.
func (c *Conn) WriteTyped(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.raw.SetWriteDeadline(time.Now().Add(writeWait))
	return c.raw.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline. Reads come from a single goroutine, so no
// locking is needed here.
func (c *Conn) ReadJSON(v interface{}) error {
	c.raw.SetReadDeadline(time.Now().Add(readWait))
	return c.raw.ReadJSON(v)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}
