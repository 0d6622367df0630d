package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	// frames read ahead of the session worker
	inboundBuffer = 32
)

// Transport is the wire side of a connection. Read returns one raw inbound
// frame; any error ends the session.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, ev OutboundEvent) error
	Ping(ctx context.Context) error
	Close() error
}

// ConnTransport adapts a gorilla websocket connection.
type ConnTransport struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewConnTransport(conn *websocket.Conn) *ConnTransport {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &ConnTransport{conn: conn}
}

func (t *ConnTransport) Read(_ context.Context) ([]byte, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *ConnTransport) Write(_ context.Context, ev OutboundEvent) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteJSON(ev)
}

func (t *ConnTransport) Ping(_ context.Context) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.PingMessage, nil)
}

// Close sends a normal close frame (best effort) and closes the socket once.
func (t *ConnTransport) Close() error {
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		t.writeMu.Unlock()
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// IsUnexpectedClose reports read errors worth logging above debug.
func IsUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure)
}
