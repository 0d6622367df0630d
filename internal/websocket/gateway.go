package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/pkg/metrics"
)

type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateIdle
	StateInRoom
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateIdle:
		return "idle"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type Authenticator interface {
	Verify(ctx context.Context, token string) (models.Identity, error)
}

// MessageHandler processes send-message events for a client.
type MessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, ev InboundEvent) error
}

// Gateway authenticates new connections and turns them into sessions.
type Gateway struct {
	auth     Authenticator
	hub      *Hub
	handler  MessageHandler
	log      *slog.Logger
	metrics  *metrics.Metrics
	newID    func() uuid.UUID
	pingTick time.Duration
}

func NewGateway(auth Authenticator, hub *Hub, handler MessageHandler, log *slog.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		auth:     auth,
		hub:      hub,
		handler:  handler,
		log:      log,
		metrics:  m,
		newID:    uuid.New,
		pingTick: pingPeriod,
	}
}

// Accept runs the Connecting -> Authenticated transition. On failure nothing
// is registered.
func (g *Gateway) Accept(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		g.metrics.AuthFailed()
		return nil, fmt.Errorf("%w: missing token", ErrAuthenticationFailed)
	}
	identity, err := g.auth.Verify(ctx, token)
	if err != nil {
		g.metrics.AuthFailed()
		g.log.Info("Connection rejected", "err", err)
		if errors.Is(err, ErrAuthenticationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	client, err := g.hub.Register(g.newID(), identity)
	if err != nil {
		return nil, err
	}

	s := &Session{gw: g, client: client}
	s.state.Store(int32(StateAuthenticated))
	return s, nil
}

// Session is the per-connection worker.
type Session struct {
	gw     *Gateway
	client *Client
	state  atomic.Int32
}

func (s *Session) Client() *Client { return s.client }

func (s *Session) State() State { return State(s.state.Load()) }

// Handle processes one inbound event. Errors go back to this connection only.
func (s *Session) Handle(ctx context.Context, ev InboundEvent) {
	if s.State() == StateDisconnected {
		return
	}
	log := s.gw.log.With("conn", s.client.ID, "room", ev.RoomID)

	switch ev.Type {
	case TypeJoinRoom:
		if err := s.gw.hub.Join(s.client.ID, ev.RoomID); err != nil {
			log.Info("Join refused", "err", err)
			s.reply(ErrorEvent(ev.RoomID, err))
			break
		}
		s.reply(roomEvent(TypeRoomJoined, ev.RoomID))

	case TypeLeaveRoom:
		if err := s.gw.hub.Leave(s.client.ID, ev.RoomID); err != nil {
			log.Debug("Leave on unknown connection", "err", err)
			return
		}
		s.reply(roomEvent(TypeRoomLeft, ev.RoomID))

	case TypeSendMessage:
		if s.gw.handler == nil {
			return
		}
		if err := s.gw.handler.HandleMessage(ctx, s.client, ev); err != nil {
			if errors.Is(err, ErrUnknownConnection) {
				log.Debug("Send on unknown connection dropped")
				return
			}
			log.Info("Send failed", "err", err)
			s.reply(ErrorEvent(ev.RoomID, err))
		}

	default:
		s.reply(ErrorEvent(ev.RoomID, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, ev.Type)))
	}
	s.refreshState()
}

func (s *Session) reply(ev OutboundEvent) {
	s.client.Enqueue(ev)
}

func (s *Session) refreshState() {
	next := StateIdle
	if len(s.gw.hub.RoomsOf(s.client.ID)) > 0 {
		next = StateInRoom
	}
	for {
		cur := s.state.Load()
		if State(cur) == StateDisconnected {
			return
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

// Close moves the session to Disconnected and unregisters it. Idempotent.
func (s *Session) Close() {
	if State(s.state.Swap(int32(StateDisconnected))) == StateDisconnected {
		return
	}
	s.gw.hub.Unregister(s.client.ID)
}

// Run pumps the transport until it fails or ctx ends, then disconnects.
//
// Frames are read on their own goroutine and handled in order on this one.
// A read failure unregisters the session at once, even while an event is
// still being handled.
func (s *Session) Run(ctx context.Context, t Transport) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(ctx, t)
	}()

	frames := make(chan []byte, inboundBuffer)
	go s.readPump(ctx, t, frames)

	for data := range frames {
		ev, err := DecodeInbound(data)
		if err != nil {
			s.reply(ErrorEvent("", err))
			continue
		}
		s.Handle(ctx, ev)
	}

	s.Close()
	_ = t.Close()
	<-writerDone
}

// readPump closes the session as soon as the transport stops delivering, then
// closes frames so Run can finish.
func (s *Session) readPump(ctx context.Context, t Transport, frames chan<- []byte) {
	defer close(frames)
	for {
		data, err := t.Read(ctx)
		if err != nil {
			if IsUnexpectedClose(err) {
				s.gw.log.Warn("WebSocket error", "conn", s.client.ID, "err", err)
			} else {
				s.gw.log.Debug("Connection closed", "conn", s.client.ID, "err", err)
			}
			s.Close()
			return
		}

		select {
		case frames <- data:
		case <-ctx.Done():
			s.Close()
			return
		}
	}
}

func (s *Session) writePump(ctx context.Context, t Transport) {
	ticker := time.NewTicker(s.gw.pingTick)
	defer func() {
		ticker.Stop()
		_ = t.Close()
	}()

	for {
		select {
		case ev, ok := <-s.client.Outbound():
			if !ok {
				return
			}
			if err := t.Write(ctx, ev); err != nil {
				s.gw.log.Debug("Write failed", "conn", s.client.ID, "err", err)
				return
			}

		case <-ticker.C:
			if err := t.Ping(ctx); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
