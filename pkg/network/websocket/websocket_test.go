package websocket

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/frogrtc/frog/pkg/logger"
)

func testLogger() *logger.Logger {
	l := logger.Default()
	return l.Extend(l.Level(zerolog.Disabled).With())
}

func TestEcho(t *testing.T) {
	server := make(chan *WS, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := NewServer(w, r, testLogger())
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		ws.OnMessage = func(message []byte, err error) {
			if err == nil {
				_ = ws.Write(message)
			}
		}
		ws.Listen()
		server <- ws
	}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, echoed, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(echoed) != "hello" {
		t.Errorf("echoed %q", echoed)
	}

	ws := <-server
	_ = conn.Close()
	select {
	case <-ws.Done:
	case <-time.After(3 * time.Second):
		t.Fatal("server side never noticed the close")
	}
	if err := ws.Write([]byte("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("write on a dead connection: %v", err)
	}
}
