//go:generate go run go.uber.org/mock/mockgen -source=database.go -destination=../mocks/mock_database.go -package=mocks
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/roomchat/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// MessageStore is the append-only message log.
type MessageStore interface {
	// Append persists msg and assigns msg.ID when it is zero.
	Append(ctx context.Context, msg *models.Message) error
	// Recent returns up to limit messages of a room, newest first.
	Recent(ctx context.Context, roomID string, limit int) ([]models.Message, error)
}

type UserStore interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type TokenBlacklist interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}
