package websocket

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/rooms"
	"github.com/thereayou/roomchat/pkg/metrics"
)

type AccessPolicy interface {
	CanAccess(group string, id rooms.RoomID) bool
}

// Hub is the session registry: live connections and the room membership
// index. A single lock covers both directions of the index, so a reader never
// sees a client in a room without the room in the client's set, or the reverse.
type Hub struct {
	policy     AccessPolicy
	log        *slog.Logger
	metrics    *metrics.Metrics
	bufferSize int

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	members map[rooms.RoomID]map[uuid.UUID]*Client
}

func NewHub(policy AccessPolicy, log *slog.Logger, m *metrics.Metrics, bufferSize int) *Hub {
	return &Hub{
		policy:     policy,
		log:        log,
		metrics:    m,
		bufferSize: bufferSize,
		clients:    make(map[uuid.UUID]*Client),
		members:    make(map[rooms.RoomID]map[uuid.UUID]*Client),
	}
}

func (h *Hub) Register(id uuid.UUID, identity models.Identity) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateConnection, id)
	}
	client := newClient(id, identity, h.bufferSize, h.metrics.Drop)
	h.clients[id] = client
	h.metrics.ConnectionOpened()

	h.log.Info("Client registered", "conn", id, "user", identity.UserID, "clients", len(h.clients))
	return client, nil
}

// Join checks the access policy against the connection's group and updates
// both sides of the index under one lock.
func (h *Hub) Join(id uuid.UUID, roomID rooms.RoomID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[id]
	if !ok {
		return ErrUnknownConnection
	}
	if !h.policy.CanAccess(client.identity.Group, roomID) {
		return fmt.Errorf("%w: room %q", ErrAccessDenied, roomID)
	}

	if _, ok := h.members[roomID]; !ok {
		h.members[roomID] = make(map[uuid.UUID]*Client)
	}
	h.members[roomID][id] = client
	client.rooms[roomID] = struct{}{}

	h.log.Debug("Client joined room", "conn", id, "room", roomID)
	return nil
}

// Leave is idempotent for rooms the client is not in.
func (h *Hub) Leave(id uuid.UUID, roomID rooms.RoomID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[id]
	if !ok {
		return ErrUnknownConnection
	}
	h.removeFromRoomUnsafe(client, roomID)
	return nil
}

// Unregister drops the client from every room and closes its queue. Unknown
// handles are ignored.
func (h *Hub) Unregister(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[id]
	if !ok {
		return
	}
	for roomID := range client.rooms {
		h.removeFromRoomUnsafe(client, roomID)
	}
	delete(h.clients, id)
	client.close()
	h.metrics.ConnectionClosed()

	h.log.Info("Client unregistered", "conn", id, "user", client.identity.UserID, "clients", len(h.clients))
}

func (h *Hub) removeFromRoomUnsafe(client *Client, roomID rooms.RoomID) {
	room, ok := h.members[roomID]
	if !ok {
		return
	}
	if _, ok := room[client.ID]; !ok {
		return
	}
	delete(room, client.ID)
	delete(client.rooms, roomID)
	if len(room) == 0 {
		delete(h.members, roomID)
	}
	h.log.Debug("Client left room", "conn", client.ID, "room", roomID)
}

// MembersOf returns a point-in-time snapshot of the room's member handles.
func (h *Hub) MembersOf(roomID rooms.RoomID) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.Keys(h.members[roomID])
}

func (h *Hub) memberClients(roomID rooms.RoomID) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.Values(h.members[roomID])
}

// RoomsOf returns the rooms a connection currently belongs to.
func (h *Hub) RoomsOf(id uuid.UUID) []rooms.RoomID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[id]
	if !ok {
		return nil
	}
	return lo.Keys(client.rooms)
}

func (h *Hub) Lookup(id uuid.UUID) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[id]
	return client, ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnlineCount is the number of connections currently in a room.
func (h *Hub) OnlineCount(roomID rooms.RoomID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[roomID])
}

// Shutdown closes every client queue so writers send a close frame and exit.
// Sessions still unregister themselves afterwards.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := lo.Values(h.clients)
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
	h.log.Info("Hub stopped", "closed", len(clients))
}
