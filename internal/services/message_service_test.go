package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/roomchat/internal/mocks"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/rooms"
	"github.com/thereayou/roomchat/internal/websocket"
	"go.uber.org/mock/gomock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	hub     *websocket.Hub
	service *MessageService
}

func newFixture(t *testing.T, store MessageStore) fixture {
	t.Helper()
	catalog, err := rooms.ParseCatalog(rooms.DefaultCatalog)
	require.NoError(t, err)

	log := discardLogger()
	hub := websocket.NewHub(catalog, log, nil, 64)
	broadcaster := websocket.NewBroadcaster(hub, log, nil)
	service := NewMessageService(store, catalog, hub, broadcaster, log, nil, MessageOptions{MaxLength: 20})
	return fixture{hub: hub, service: service}
}

func (f fixture) connect(t *testing.T, name, group string, joined ...rooms.RoomID) *websocket.Client {
	t.Helper()
	client, err := f.hub.Register(uuid.New(), models.Identity{UserID: uuid.New(), Name: name, Group: group})
	require.NoError(t, err)
	for _, r := range joined {
		require.NoError(t, f.hub.Join(client.ID, r))
	}
	return client
}

// drain returns every event currently queued without blocking.
func drain(c *websocket.Client) []websocket.OutboundEvent {
	var out []websocket.OutboundEvent
	for {
		select {
		case ev, ok := <-c.Outbound():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func assignID(_ context.Context, msg *models.Message) error {
	msg.ID = uuid.New()
	return nil
}

func TestMessageService_Send_PersistsThenBroadcasts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	f := newFixture(t, store)

	alice := f.connect(t, "Alice", "male", "introvert")
	bob := f.connect(t, "Bob", "female", "introvert")

	// Nothing may be delivered while the write is still pending
	store.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, msg *models.Message) error {
			req.Empty(drain(alice))
			req.Empty(drain(bob))
			req.Equal("introvert", msg.RoomID)
			req.Equal("Alice", msg.SenderName)
			req.Equal("hi", msg.Content)
			req.False(msg.CreatedAt.IsZero())
			return assignID(ctx, msg)
		}).
		Times(1)

	msg, err := f.service.Send(context.Background(), alice.ID, "introvert", "  hi  ")
	req.NoError(err)
	req.NotEqual(uuid.Nil, msg.ID)

	// Sender gets its own message back, like every other member
	for _, c := range []*websocket.Client{alice, bob} {
		events := drain(c)
		req.Len(events, 1)
		req.Equal(websocket.TypeNewMessage, events[0].Type)
		req.Equal(msg.ID, events[0].Message.ID)
	}
}

func TestMessageService_Send_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		group   string
		room    rooms.RoomID
		body    string
		wantErr error
	}{
		{"restricted room for other group", "male", "female", "hello", websocket.ErrAccessDenied},
		{"unknown room", "male", "lobby", "hello", websocket.ErrAccessDenied},
		{"empty body", "male", "introvert", "", websocket.ErrValidation},
		{"whitespace body", "male", "introvert", " \n\t ", websocket.ErrValidation},
		{"body too long", "male", "introvert", strings.Repeat("a", 21), websocket.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			store := mocks.NewMockMessageStore(ctrl)
			f := newFixture(t, store)

			// The store is never reached
			store.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)

			sender := f.connect(t, "Alice", tt.group, "introvert")
			witness := f.connect(t, "Wendy", "female", "female", "introvert")

			_, err := f.service.Send(context.Background(), sender.ID, tt.room, tt.body)
			req.ErrorIs(err, tt.wantErr)
			req.Empty(drain(sender))
			req.Empty(drain(witness))
		})
	}
}

func TestMessageService_Send_RechecksAccessAfterJoin(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)

	catalog, err := rooms.ParseCatalog(rooms.DefaultCatalog)
	req.NoError(err)
	log := discardLogger()
	hub := websocket.NewHub(catalog, log, nil, 8)

	// A policy that flips to deny after the join happened
	policy := &switchPolicy{allow: true}
	service := NewMessageService(store, policy, hub, websocket.NewBroadcaster(hub, log, nil), log, nil, MessageOptions{})

	client, err := hub.Register(uuid.New(), models.Identity{UserID: uuid.New(), Name: "Alice", Group: "male"})
	req.NoError(err)
	req.NoError(hub.Join(client.ID, "male"))

	policy.set(false)
	store.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)

	_, err = service.Send(context.Background(), client.ID, "male", "still here?")
	req.ErrorIs(err, websocket.ErrAccessDenied)
}

type switchPolicy struct {
	mu    sync.Mutex
	allow bool
}

func (p *switchPolicy) set(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allow = v
}

func (p *switchPolicy) CanAccess(string, rooms.RoomID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allow
}

func TestMessageService_Send_UnknownConnection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	f := newFixture(t, store)

	store.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)

	_, err := f.service.Send(context.Background(), uuid.New(), "introvert", "hello")
	req.ErrorIs(err, websocket.ErrUnknownConnection)
}

func TestMessageService_Send_PersistenceErrorIsNotBroadcast(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	f := newFixture(t, store)

	alice := f.connect(t, "Alice", "male", "introvert")
	bob := f.connect(t, "Bob", "female", "introvert")

	store.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		Return(errors.New("connection refused")).
		Times(1)

	_, err := f.service.Send(context.Background(), alice.ID, "introvert", "hello")
	req.ErrorIs(err, websocket.ErrPersistence)
	req.Empty(drain(alice))
	req.Empty(drain(bob))
}

func TestMessageService_Scenario_GroupRooms(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	f := newFixture(t, store)

	store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(assignID).Times(1)

	// Given A (male) and B (female, member of "female")
	a := f.connect(t, "A", "male")
	b := f.connect(t, "B", "female", "female")

	// When A tries the female room, it is refused
	req.ErrorIs(f.hub.Join(a.ID, "female"), websocket.ErrAccessDenied)

	// And A joins the open introvert room
	req.NoError(f.hub.Join(a.ID, "introvert"))

	// And A says hi there
	msg, err := f.service.Send(context.Background(), a.ID, "introvert", "hi")
	req.NoError(err)

	// Then A gets the echo and B gets nothing
	events := drain(a)
	req.Len(events, 1)
	req.Equal(msg.ID, events[0].Message.ID)
	req.Empty(drain(b))
}

func TestMessageService_Send_DisconnectWhilePersisting(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	f := newFixture(t, store)

	alice := f.connect(t, "Alice", "male", "extrovert")

	entered := make(chan struct{})
	release := make(chan struct{})
	store.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, msg *models.Message) error {
			close(entered)
			<-release
			// A cancelled request context does not abort the write
			req.NoError(ctx.Err())
			return assignID(ctx, msg)
		}).
		Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		msg models.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := f.service.Send(ctx, alice.ID, "extrovert", "bye")
		done <- result{msg, err}
	}()

	<-entered
	cancel()
	f.hub.Unregister(alice.ID)
	close(release)

	res := <-done
	req.NoError(res.err)
	req.NotEqual(uuid.Nil, res.msg.ID)
	req.Empty(f.hub.MembersOf("extrovert"))
	req.True(alice.Closed())
	req.Empty(drain(alice))
}

// memoryStore acknowledges appends after a random delay.
type memoryStore struct {
	mu       sync.Mutex
	acked    []models.Message
	maxDelay time.Duration
	block    map[string]chan struct{}
}

func (s *memoryStore) Append(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	gate := s.block[msg.RoomID]
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if s.maxDelay > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(s.maxDelay))))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = uuid.New()
	s.acked = append(s.acked, *msg)
	return nil
}

func (s *memoryStore) Recent(_ context.Context, roomID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for i := len(s.acked) - 1; i >= 0 && len(out) < limit; i-- {
		if s.acked[i].RoomID == roomID {
			out = append(out, s.acked[i])
		}
	}
	return out, nil
}

func TestMessageService_Send_BroadcastFollowsAckOrder(t *testing.T) {
	req := require.New(t)
	store := &memoryStore{maxDelay: 2 * time.Millisecond}
	f := newFixture(t, store)

	listener := f.connect(t, "Listener", "female", "introvert")
	var senders []*websocket.Client
	for i := 0; i < 8; i++ {
		senders = append(senders, f.connect(t, fmt.Sprintf("S%d", i), "male"))
	}

	var wg sync.WaitGroup
	for i, s := range senders {
		wg.Add(1)
		go func(i int, s *websocket.Client) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := f.service.Send(context.Background(), s.ID, "introvert", fmt.Sprintf("%d-%d", i, j))
				req.NoError(err)
			}
		}(i, s)
	}
	wg.Wait()

	events := drain(listener)
	req.Len(events, 40)

	store.mu.Lock()
	defer store.mu.Unlock()
	for i, ev := range events {
		req.Equal(store.acked[i].ID, ev.Message.ID)
		if i > 0 {
			req.True(ev.Message.CreatedAt.After(events[i-1].Message.CreatedAt))
		}
	}
}

func TestMessageService_Send_OtherRoomsAreNotBlocked(t *testing.T) {
	req := require.New(t)
	gate := make(chan struct{})
	store := &memoryStore{block: map[string]chan struct{}{"introvert": gate}}
	f := newFixture(t, store)

	slow := f.connect(t, "Slow", "male")
	fast := f.connect(t, "Fast", "female")

	slowDone := make(chan error, 1)
	go func() {
		_, err := f.service.Send(context.Background(), slow.ID, "introvert", "stuck")
		slowDone <- err
	}()

	fastDone := make(chan error, 1)
	go func() {
		_, err := f.service.Send(context.Background(), fast.ID, "female", "through")
		fastDone <- err
	}()

	select {
	case err := <-fastDone:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("send to another room blocked behind a pending write")
	}

	close(gate)
	req.NoError(<-slowDone)
}

func TestMessageService_History(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	setup := func(t *testing.T) (*mocks.MockMessageStore, fixture) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockMessageStore(ctrl)
		return store, newFixture(t, store)
	}

	t.Run("returns the window oldest first", func(t *testing.T) {
		req := require.New(t)
		store, f := setup(t)
		newestFirst := []models.Message{
			{ID: uuid.New(), RoomID: "male", Content: "3", CreatedAt: base.Add(3 * time.Minute)},
			{ID: uuid.New(), RoomID: "male", Content: "2", CreatedAt: base.Add(2 * time.Minute)},
			{ID: uuid.New(), RoomID: "male", Content: "1", CreatedAt: base.Add(time.Minute)},
		}
		store.EXPECT().Recent(gomock.Any(), "male", 3).Return(newestFirst, nil).Times(1)

		history, err := f.service.History(context.Background(), "male", "male", 3)
		req.NoError(err)
		req.Len(history, 3)
		req.Equal([]string{"1", "2", "3"}, []string{history[0].Content, history[1].Content, history[2].Content})
	})

	t.Run("denies like join does", func(t *testing.T) {
		store, f := setup(t)
		store.EXPECT().Recent(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := f.service.History(context.Background(), "male", "female", 10)
		require.ErrorIs(t, err, websocket.ErrAccessDenied)
	})

	t.Run("defaults and clamps the limit", func(t *testing.T) {
		req := require.New(t)
		store, f := setup(t)
		store.EXPECT().Recent(gomock.Any(), "introvert", DefaultHistoryLimit).Return(nil, nil).Times(1)
		store.EXPECT().Recent(gomock.Any(), "extrovert", DefaultMaxHistoryLimit).Return(nil, nil).Times(1)

		_, err := f.service.History(context.Background(), "introvert", "", 0)
		req.NoError(err)
		_, err = f.service.History(context.Background(), "extrovert", "", 10_000)
		req.NoError(err)
	})

	t.Run("store failure", func(t *testing.T) {
		store, f := setup(t)
		store.EXPECT().Recent(gomock.Any(), "introvert", 5).Return(nil, errors.New("down")).Times(1)

		_, err := f.service.History(context.Background(), "introvert", "male", 5)
		require.ErrorIs(t, err, websocket.ErrPersistence)
	})
}

func TestRoomSequencer_Next(t *testing.T) {
	req := require.New(t)
	seq := &roomSequencer{}
	at := time.Date(2026, 5, 1, 9, 0, 0, 1_234_567, time.UTC)

	first := seq.next(at)
	req.Equal(at.Truncate(time.Microsecond), first)

	// Same microsecond and a clock step backwards both move forward by 1µs
	second := seq.next(at.Add(300 * time.Nanosecond))
	req.Equal(first.Add(time.Microsecond), second)
	third := seq.next(at.Add(-time.Second))
	req.Equal(second.Add(time.Microsecond), third)

	later := at.Add(time.Millisecond)
	req.Equal(later.Truncate(time.Microsecond), seq.next(later))

	for _, ts := range []time.Time{first, second, third} {
		req.Zero(ts.Nanosecond() % 1000)
	}
}
