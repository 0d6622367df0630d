package websocket

import (
	"sync"

	"github.com/google/uuid"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/rooms"
)

// Client is one live connection as the hub sees it.
type Client struct {
	ID       uuid.UUID
	identity models.Identity

	// guarded by Hub.mu
	rooms map[rooms.RoomID]struct{}

	mu      sync.Mutex
	send    chan OutboundEvent
	closed  bool
	dropped int
	onDrop  func()
}

func newClient(id uuid.UUID, identity models.Identity, bufferSize int, onDrop func()) *Client {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if onDrop == nil {
		onDrop = func() {}
	}
	return &Client{
		ID:       id,
		identity: identity,
		rooms:    make(map[rooms.RoomID]struct{}),
		send:     make(chan OutboundEvent, bufferSize),
		onDrop:   onDrop,
	}
}

// Enqueue never blocks. When the queue is full the oldest pending event is
// discarded to make room. It returns false once the client is closed.
func (c *Client) Enqueue(ev OutboundEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	for {
		select {
		case c.send <- ev:
			return true
		default:
		}
		select {
		case <-c.send:
			c.dropped++
			c.onDrop()
		default:
		}
	}
}

// Identity is captured at handshake and fixed for the connection's lifetime.
func (c *Client) Identity() models.Identity {
	return c.identity
}

// Outbound is drained by the transport writer; it is closed on unregister.
func (c *Client) Outbound() <-chan OutboundEvent {
	return c.send
}

func (c *Client) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
