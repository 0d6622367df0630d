package handlers

import (
	"context"

	"github.com/thereayou/roomchat/internal/services"
	"github.com/thereayou/roomchat/internal/websocket"
)

// MessageHandler feeds send-message events into the message pipeline.
type MessageHandler struct {
	messages *services.MessageService
}

func NewMessageHandler(messages *services.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

func (h *MessageHandler) HandleMessage(ctx context.Context, client *websocket.Client, ev websocket.InboundEvent) error {
	_, err := h.messages.Send(ctx, client.ID, ev.RoomID, ev.Content)
	return err
}
