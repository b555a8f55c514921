// Package wsbridge binds Fan-out Plane subscribers to real WebSocket
// connections, with a write-mutex-guarded single-writer-goroutine-per-
// connection pattern: a fanout.Subscriber deliver function wrapping one
// gorilla *websocket.Conn, rather than a spectrum-only buffered channel
// hardcoded into one handler. Establishing the HTTP upgrade itself is
// outside this package's scope (no HTTP route handlers); callers pass in
// an already-upgraded *websocket.Conn.
package wsbridge

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwsl/sdrcore/internal/fanout"
)

const writeDeadline = 10 * time.Second

// Conn wraps a *websocket.Conn with the write-mutex discipline gorilla
// requires (at most one concurrent writer), mirroring wsConn.
type Conn struct {
	conn    *websocket.Conn
	logger  *log.Logger
	writeMu sync.Mutex
}

// NewConn wraps an already-upgraded WebSocket connection.
func NewConn(c *websocket.Conn) *Conn {
	return &Conn{conn: c, logger: log.New(log.Writer(), "[wsbridge] ", log.LstdFlags)}
}

// Deliver writes one fanout.Message to the underlying connection as a
// binary frame (Message.Binary set) or a JSON text frame (Message.JSON
// set), matching writeSpectrumBinary/writeJSON's split. It is the
// function passed to fanout.NewSubscriber; a Conn bound to several
// channels has one writer goroutine per subscriber, so writes are
// serialized on writeMu.
func (c *Conn) Deliver(msg fanout.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))

	if msg.Binary != nil {
		return c.conn.WriteMessage(websocket.BinaryMessage, msg.Binary)
	}

	data, err := json.Marshal(msg.JSON)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Bind registers a new fanout.Subscriber on channel, delivering through
// this connection, and returns the subscriber so the caller can Remove it
// on disconnect.
func (c *Conn) Bind(channel *fanout.Channel, id uint64, kind fanout.Kind) *fanout.Subscriber {
	sub := fanout.NewSubscriber(id, kind, c.Deliver)
	channel.Add(sub)
	return sub
}

// ReadControl runs a read loop decoding each incoming text frame as a JSON
// document of type T, invoking handle for each one, until a read or
// decode fails (for example because the connection closed), and returns
// that error. Mirrors handleMessages'
// read-loop shape, generalized to a decode-and-callback instead of one
// hardcoded ClientMessage switch.
func ReadControl[T any](c *Conn, handle func(T)) error {
	for {
		var msg T
		if err := c.conn.ReadJSON(&msg); err != nil {
			return err
		}
		handle(msg)
	}
}
