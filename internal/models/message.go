package models

import (
	"github.com/google/uuid"
	"time"
)

// Message is immutable once persisted. SenderName is captured at send time.
type Message struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID     string    `gorm:"not null;index:idx_room_created,priority:1" json:"room_id"`
	SenderID   uuid.UUID `gorm:"type:uuid;not null" json:"sender_id"`
	SenderName string    `gorm:"not null" json:"sender_name"`
	Content    string    `gorm:"not null" json:"content"`
	CreatedAt  time.Time `gorm:"index:idx_room_created,priority:2,sort:desc" json:"created_at"`
}
