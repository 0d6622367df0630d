package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/thereayou/roomchat/internal/models"
)

type SendMessageRequest struct {
	RoomID  string `json:"room_id" binding:"required"`
	Content string `json:"content" binding:"required"`
}

type MessageResponse struct {
	ID        uuid.UUID `json:"id"`
	RoomID    string    `json:"room_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	User      UserInfo  `json:"user"`
}

type UserInfo struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type MessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

func NewMessageResponse(m models.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		RoomID:    m.RoomID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		User:      UserInfo{ID: m.SenderID, Name: m.SenderName},
	}
}

func NewMessagesResponse(messages []models.Message) MessagesResponse {
	return MessagesResponse{Messages: lo.Map(messages, func(m models.Message, _ int) MessageResponse {
		return NewMessageResponse(m)
	})}
}
