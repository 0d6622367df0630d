package websocket

import (
	"log/slog"

	"github.com/thereayou/roomchat/internal/rooms"
	"github.com/thereayou/roomchat/pkg/metrics"
)

// Broadcaster pushes events onto the outbound queues of a room's members.
type Broadcaster struct {
	hub     *Hub
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewBroadcaster(hub *Hub, log *slog.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{hub: hub, log: log, metrics: m}
}

// Broadcast delivers to the members present when it is called and returns how
// many queues accepted the event. A closed or slow member never affects the
// others: enqueue does not block.
func (b *Broadcaster) Broadcast(roomID rooms.RoomID, ev OutboundEvent) int {
	members := b.hub.memberClients(roomID)

	delivered := 0
	for _, client := range members {
		if !client.Enqueue(ev) {
			b.log.Debug("Skipping closed client", "conn", client.ID, "room", roomID)
			continue
		}
		delivered++
	}
	b.metrics.Delivered(string(roomID), delivered)

	b.log.Debug("Broadcast", "room", roomID, "type", ev.Type, "recipients", delivered)
	return delivered
}
