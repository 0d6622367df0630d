package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/thereayou/roomchat/internal/handlers/dto"
	"github.com/thereayou/roomchat/internal/middleware"
	"github.com/thereayou/roomchat/internal/rooms"
	"github.com/thereayou/roomchat/internal/websocket"
)

type RoomHandler struct {
	catalog *rooms.Catalog
	hub     *websocket.Hub
}

func NewRoomHandler(catalog *rooms.Catalog, hub *websocket.Hub) *RoomHandler {
	return &RoomHandler{catalog: catalog, hub: hub}
}

// ListRooms returns the whole catalog, flagging what the caller may enter.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	user := middleware.CurrentUser(c)

	result := lo.Map(h.catalog.Rooms(), func(r rooms.Room, _ int) dto.RoomResponse {
		return dto.RoomResponse{
			ID:         string(r.ID),
			Access:     r.Rule.Class.String(),
			Group:      r.Rule.Group,
			Accessible: h.catalog.CanAccess(user.Group, r.ID),
			Online:     h.hub.OnlineCount(r.ID),
		}
	})
	c.JSON(http.StatusOK, gin.H{"rooms": result})
}
