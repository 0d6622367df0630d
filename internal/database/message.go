package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/thereayou/roomchat/internal/models"
)

func (d *Postgres) Append(ctx context.Context, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	return d.db.WithContext(ctx).Create(msg).Error
}

// Recent returns the newest messages of a room first.
func (d *Postgres) Recent(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := d.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}
