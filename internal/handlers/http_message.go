package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/roomchat/internal/handlers/dto"
	"github.com/thereayou/roomchat/internal/middleware"
	"github.com/thereayou/roomchat/internal/rooms"
	"github.com/thereayou/roomchat/internal/services"
	"github.com/thereayou/roomchat/internal/websocket"
)

type HTTPMessageHandler struct {
	messages *services.MessageService
	log      *slog.Logger
}

func NewHTTPMessageHandler(messages *services.MessageService, log *slog.Logger) *HTTPMessageHandler {
	return &HTTPMessageHandler{messages: messages, log: log}
}

// GetRoomMessages returns the latest messages of a room, oldest first.
func (h *HTTPMessageHandler) GetRoomMessages(c *gin.Context) {
	user := middleware.CurrentUser(c)
	roomID := rooms.RoomID(c.Param("roomId"))

	limit := 0
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
			return
		}
		limit = parsed
	}

	messages, err := h.messages.History(c.Request.Context(), roomID, user.Group, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewMessagesResponse(messages))
}

// SendMessage posts into a room without a live connection. The message is
// persisted and broadcast like one sent over the socket.
func (h *HTTPMessageHandler) SendMessage(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.Post(c.Request.Context(), user.Identity(), rooms.RoomID(req.RoomID), req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewMessageResponse(msg))
}

func (h *HTTPMessageHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, websocket.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, websocket.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, websocket.ErrPersistence):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("Message request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": websocket.ErrorKind(err)})
}
