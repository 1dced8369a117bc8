package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"codesync/internal/models"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// Client is the outbound side of one websocket connection. Frames are queued
// on a buffered channel and drained by a single write pump, so a slow or
// stalled socket never blocks the room that is broadcasting to it.
type Client struct {
	ID   string
	conn *websocket.Conn

	send chan models.WSFrame
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	hook func(models.WSFrame)
}

func NewClient(id string, conn *websocket.Conn) *Client {
	c := &Client{
		ID:   id,
		conn: conn,
		send: make(chan models.WSFrame, sendBuffer),
		done: make(chan struct{}),
	}
	if conn != nil {
		go c.writePump()
	}
	return c
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.WSFrame)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send enqueues a frame without blocking. A full queue or a closed client
// reports false; the caller treats that connection as gone and moves on.
func (c *Client) Send(frame models.WSFrame) bool {
	c.mu.Lock()
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(frame)
		return true
	}

	select {
	case <-c.done:
		return false
	case c.send <- frame:
		return true
	default:
		// Backpressure: drop the client rather than stall the room. It will
		// resynchronize with a fresh join on reconnect.
		c.Close()
		return false
	}
}

// Close shuts the write pump and the underlying socket. Safe to call more
// than once and from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.Close()
				return
			}
		}
	}
}
