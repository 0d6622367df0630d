package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/services"
)

// Badger is an embedded store for single node deployments.
//
// Messages are keyed "msg:{room}:{unix_nanos}:{id}" with the timestamp padded
// to 19 digits, so a prefix scan is chronological and a reverse scan yields
// the newest first. The id breaks ties between equal timestamps.
type Badger struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadger(db *badger.DB, log *slog.Logger) *Badger {
	return &Badger{db: db, log: log}
}

func OpenBadger(path string, log *slog.Logger) (*Badger, error) {
	options := badger.DefaultOptions(path)
	if log.Enabled(context.Background(), slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return NewBadger(db, log), nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func messagePrefix(roomID string) []byte {
	return []byte("msg:" + roomID + ":")
}

func messageKey(msg *models.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", msg.RoomID, msg.CreatedAt.UnixNano(), msg.ID))
}

func (b *Badger) Append(_ context.Context, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg), data)
	})
}

func (b *Badger) Recent(_ context.Context, roomID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(roomID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Reverse iteration starts at the greatest key <= seek.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			var msg models.Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			})
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// diskUser keeps the password hash, which models.User hides from JSON.
type diskUser struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Group        string    `json:"group"`
	CreatedAt    time.Time `json:"created_at"`
}

func userKey(email string) []byte {
	return []byte("user:" + email)
}

func userIDKey(id uuid.UUID) []byte {
	return []byte("user-id:" + id.String())
}

func (b *Badger) SaveUser(_ context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	data, err := json.Marshal(diskUser(*user))
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		key := userKey(user.Email)
		if _, err := txn.Get(key); err == nil {
			return services.ErrEmailTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(userIDKey(user.ID), []byte(user.Email))
	})
}

func (b *Badger) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	var user *models.User
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = readUser(txn, email)
		return err
	})
	return user, err
}

func (b *Badger) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	var user *models.User
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userIDKey(id))
		if err != nil {
			return keyNotFound(err)
		}
		email, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = readUser(txn, string(email))
		return err
	})
	return user, err
}

func readUser(txn *badger.Txn, email string) (*models.User, error) {
	item, err := txn.Get(userKey(email))
	if err != nil {
		return nil, keyNotFound(err)
	}
	var du diskUser
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &du)
	}); err != nil {
		return nil, err
	}
	user := models.User(du)
	return &user, nil
}

func keyNotFound(err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return services.ErrUserNotFound
	}
	return err
}
