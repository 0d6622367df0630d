package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/rooms"
)

type EventType string

const (
	// Inbound
	TypeJoinRoom    EventType = "join-room"
	TypeLeaveRoom   EventType = "leave-room"
	TypeSendMessage EventType = "send-message"

	// Outbound
	TypeNewMessage EventType = "new-message"
	TypeRoomJoined EventType = "room-joined"
	TypeRoomLeft   EventType = "room-left"
	TypeError      EventType = "error"
)

type InboundEvent struct {
	Type    EventType    `json:"type" validate:"required,oneof=join-room leave-room send-message"`
	RoomID  rooms.RoomID `json:"room_id" validate:"required"`
	Content string       `json:"content,omitempty"`
}

type ErrorNotice struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

type OutboundEvent struct {
	Type      EventType       `json:"type"`
	RoomID    rooms.RoomID    `json:"room_id,omitempty"`
	Message   *models.Message `json:"message,omitempty"`
	Error     *ErrorNotice    `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

var validate = validator.New()

// DecodeInbound parses and validates one client frame.
func DecodeInbound(data []byte) (InboundEvent, error) {
	var ev InboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return InboundEvent{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := validate.Struct(ev); err != nil {
		return InboundEvent{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return ev, nil
}

func MessageDelivered(msg models.Message) OutboundEvent {
	return OutboundEvent{
		Type:      TypeNewMessage,
		RoomID:    rooms.RoomID(msg.RoomID),
		Message:   &msg,
		Timestamp: time.Now(),
	}
}

func ErrorEvent(roomID rooms.RoomID, err error) OutboundEvent {
	return OutboundEvent{
		Type:      TypeError,
		RoomID:    roomID,
		Error:     &ErrorNotice{Kind: ErrorKind(err), Detail: err.Error()},
		Timestamp: time.Now(),
	}
}

func roomEvent(t EventType, roomID rooms.RoomID) OutboundEvent {
	return OutboundEvent{Type: t, RoomID: roomID, Timestamp: time.Now()}
}
