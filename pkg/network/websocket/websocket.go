// Package websocket wraps gorilla/websocket connections with
// serialized read/write pumps and deadline handling.
package websocket

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frogrtc/frog/pkg/logger"
)

const (
	maxMessageSize = 10 * 1024
	pongTime       = 60 * time.Second
	pingTime       = pongTime * 9 / 10
	writeWait      = 10 * time.Second
)

var ErrClosed = errors.New("connection closed")

// MessageHandler receives every inbound text message.
type MessageHandler func(message []byte, err error)

// WS is one message-oriented connection. Writes go through a channel
// into a single writer pump; reads run in a single reader pump.
type WS struct {
	conn *websocket.Conn
	send chan []byte
	log  *logger.Logger

	OnMessage MessageHandler

	once sync.Once
	Done chan struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	WriteBufferPool: &sync.Pool{},
}

// NewServer upgrades an HTTP request into a WS peer.
func NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*WS, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &WS{
		conn: conn,
		send: make(chan []byte, 32),
		log:  log,
		Done: make(chan struct{}),
	}, nil
}

// Listen starts both pumps. OnMessage must be set before the call.
func (ws *WS) Listen() {
	go ws.writer()
	go ws.reader()
}

// reader pumps inbound messages into OnMessage.
// Serializes all websocket reads.
func (ws *WS) reader() {
	defer ws.shutdown()
	ws.conn.SetReadLimit(maxMessageSize)
	_ = ws.conn.SetReadDeadline(time.Now().Add(pongTime))
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(pongTime))
	})
	for {
		_, message, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				ws.log.Error().Err(err).Msg("ws read")
			}
			return
		}
		ws.OnMessage(message, nil)
	}
}

// writer pumps outbound messages and pings onto the wire.
// Serializes all websocket writes.
func (ws *WS) writer() {
	ticker := time.NewTicker(pingTime)
	defer func() {
		ticker.Stop()
		ws.shutdown()
	}()
	for {
		select {
		case message, ok := <-ws.send:
			if !ok {
				_ = ws.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ws.Done:
			return
		}
	}
}

func (ws *WS) write(t int, message []byte) error {
	if err := ws.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.conn.WriteMessage(t, message)
}

// Write queues a message for delivery. Fails with ErrClosed once the
// connection is gone; it never blocks on a stuck peer.
func (ws *WS) Write(data []byte) error {
	select {
	case <-ws.Done:
		return ErrClosed
	default:
	}
	select {
	case ws.send <- data:
		return nil
	case <-ws.Done:
		return ErrClosed
	case <-time.After(writeWait):
		return ErrClosed
	}
}

func (ws *WS) Close() { ws.shutdown() }

func (ws *WS) shutdown() {
	ws.once.Do(func() {
		close(ws.Done)
		_ = ws.conn.Close()
	})
}
