package models

import (
	"github.com/google/uuid"
	"time"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Group        string    `gorm:"column:user_group;not null" json:"group"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is what a connection captures about its user at handshake.
// It never changes for the life of the connection.
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Group  string    `json:"group"`
}

func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Name: u.Name, Group: u.Group}
}
