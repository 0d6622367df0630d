package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/rooms"
	"github.com/thereayou/roomchat/internal/websocket"
	"github.com/thereayou/roomchat/pkg/metrics"
)

const (
	DefaultMaxMessageLength = 2000
	DefaultHistoryLimit     = 100
	DefaultMaxHistoryLimit  = 500
)

type Broadcaster interface {
	Broadcast(roomID rooms.RoomID, ev websocket.OutboundEvent) int
}

type ConnectionResolver interface {
	Lookup(id uuid.UUID) (*websocket.Client, bool)
}

type MessageOptions struct {
	MaxLength           int
	DefaultHistoryLimit int
	MaxHistoryLimit     int
}

// roomSequencer serializes append+broadcast for one room and keeps its
// timestamps strictly increasing.
type roomSequencer struct {
	mu   sync.Mutex
	last time.Time
}

// MessageService validates, persists and then fans out messages.
type MessageService struct {
	store       MessageStore
	policy      websocket.AccessPolicy
	conns       ConnectionResolver
	broadcaster Broadcaster
	log         *slog.Logger
	metrics     *metrics.Metrics
	opts        MessageOptions
	now         func() time.Time

	seqMu sync.Mutex
	seqs  map[rooms.RoomID]*roomSequencer
}

func NewMessageService(store MessageStore, policy websocket.AccessPolicy, conns ConnectionResolver,
	broadcaster Broadcaster, log *slog.Logger, m *metrics.Metrics, opts MessageOptions) *MessageService {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxMessageLength
	}
	if opts.DefaultHistoryLimit <= 0 {
		opts.DefaultHistoryLimit = DefaultHistoryLimit
	}
	if opts.MaxHistoryLimit <= 0 {
		opts.MaxHistoryLimit = DefaultMaxHistoryLimit
	}
	if opts.DefaultHistoryLimit > opts.MaxHistoryLimit {
		opts.DefaultHistoryLimit = opts.MaxHistoryLimit
	}
	return &MessageService{
		store:       store,
		policy:      policy,
		conns:       conns,
		broadcaster: broadcaster,
		log:         log,
		metrics:     m,
		opts:        opts,
		now:         time.Now,
		seqs:        make(map[rooms.RoomID]*roomSequencer),
	}
}

// Send runs the pipeline for a live connection.
func (s *MessageService) Send(ctx context.Context, handle uuid.UUID, roomID rooms.RoomID, body string) (models.Message, error) {
	client, ok := s.conns.Lookup(handle)
	if !ok {
		return models.Message{}, websocket.ErrUnknownConnection
	}
	return s.Post(ctx, client.Identity(), roomID, body)
}

// Post runs the pipeline for an already authenticated identity.
func (s *MessageService) Post(ctx context.Context, sender models.Identity, roomID rooms.RoomID, body string) (models.Message, error) {
	content := strings.TrimSpace(body)
	if content == "" {
		return models.Message{}, fmt.Errorf("%w: message content is empty", websocket.ErrValidation)
	}
	if utf8.RuneCountInString(content) > s.opts.MaxLength {
		return models.Message{}, fmt.Errorf("%w: message exceeds %d characters", websocket.ErrValidation, s.opts.MaxLength)
	}

	// Re-checked on every send: joining earlier does not grant anything.
	if !s.policy.CanAccess(sender.Group, roomID) {
		return models.Message{}, fmt.Errorf("%w: room %q", websocket.ErrAccessDenied, roomID)
	}

	seq := s.sequencer(roomID)
	seq.mu.Lock()
	defer seq.mu.Unlock()

	msg := &models.Message{
		RoomID:     string(roomID),
		SenderID:   sender.UserID,
		SenderName: sender.Name,
		Content:    content,
		CreatedAt:  seq.next(s.now().UTC()),
	}

	// The write outlives a disconnect of the sender.
	if err := s.store.Append(context.WithoutCancel(ctx), msg); err != nil {
		s.metrics.PersistFailed(string(roomID))
		s.log.Error("Failed to save message", "room", roomID, "user", sender.UserID, "err", err)
		return models.Message{}, fmt.Errorf("%w: %v", websocket.ErrPersistence, err)
	}
	s.metrics.Persisted(string(roomID))

	recipients := s.broadcaster.Broadcast(roomID, websocket.MessageDelivered(*msg))
	s.log.Debug("Message sent", "room", roomID, "id", msg.ID, "recipients", recipients)

	return *msg, nil
}

// History returns up to limit of the most recent messages, oldest first.
func (s *MessageService) History(ctx context.Context, roomID rooms.RoomID, group string, limit int) ([]models.Message, error) {
	if !s.policy.CanAccess(group, roomID) {
		return nil, fmt.Errorf("%w: room %q", websocket.ErrAccessDenied, roomID)
	}
	switch {
	case limit <= 0:
		limit = s.opts.DefaultHistoryLimit
	case limit > s.opts.MaxHistoryLimit:
		limit = s.opts.MaxHistoryLimit
	}

	messages, err := s.store.Recent(ctx, string(roomID), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", websocket.ErrPersistence, err)
	}
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return lo.Reverse(messages), nil
}

func (s *MessageService) sequencer(roomID rooms.RoomID) *roomSequencer {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	seq, ok := s.seqs[roomID]
	if !ok {
		seq = &roomSequencer{}
		s.seqs[roomID] = seq
	}
	return seq
}

// next works in microseconds, the finest resolution Postgres keeps, so the
// stored order matches the live order.
func (q *roomSequencer) next(now time.Time) time.Time {
	now = now.Truncate(time.Microsecond)
	if !now.After(q.last) {
		now = q.last.Add(time.Microsecond)
	}
	q.last = now
	return now
}
