package gateway

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"ticketrelay/internal/domain"

	"github.com/gorilla/websocket"
)

// State is the lifecycle position of one connection.
type State int

const (
	StateConnected State = iota
	StateProcessing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateProcessing:
		return "processing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var errClosed = errors.New("connection closed")

// client is one accepted connection. Writes are serialized because several
// ingestions may answer on it at once.
type client struct {
	id   string
	conn *websocket.Conn

	busy atomic.Int32

	mu     sync.Mutex
	closed bool
}

func (c *client) state() State {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	switch {
	case closed:
		return StateClosed
	case c.busy.Load() > 0:
		return StateProcessing
	}
	return StateConnected
}

func (c *client) begin() { c.busy.Add(1) }
func (c *client) end()   { c.busy.Add(-1) }

func (c *client) send(ack domain.Acknowledgment) error {
	data, err := json.Marshal(ack)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.conn.Close()
}
