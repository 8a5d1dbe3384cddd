package signaler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/frogrtc/frog/pkg/logger"
	"github.com/frogrtc/frog/pkg/media"
	"github.com/frogrtc/frog/pkg/recordings"
)

func testLogger() *logger.Logger {
	l := logger.Default()
	return l.Extend(l.Level(zerolog.Disabled).With())
}

// The engine fakes below let the protocol run without any real media.

type stubEngine struct{}

func (stubEngine) CreatePipeline(context.Context) (media.Pipeline, error) {
	return stubPipeline{}, nil
}

type stubPipeline struct{}

func (stubPipeline) CreateEndpoint(context.Context, media.EndpointOptions) (media.Endpoint, error) {
	return &stubEndpoint{}, nil
}

func (stubPipeline) CreateRecorder(context.Context, string, media.Endpoint) (media.Recorder, error) {
	return stubRecorder{}, nil
}

func (stubPipeline) Release() error { return nil }

type stubEndpoint struct{}

func (*stubEndpoint) ProcessOffer(_ context.Context, sdpOffer string) (string, error) {
	return "answer:" + sdpOffer, nil
}
func (*stubEndpoint) GatherCandidates() error               { return nil }
func (*stubEndpoint) AddIceCandidate(media.Candidate) error { return nil }
func (*stubEndpoint) Connect(media.Endpoint) error          { return nil }
func (*stubEndpoint) OnIceCandidate(func(media.Candidate))  {}
func (*stubEndpoint) Release() error                        { return nil }

type stubRecorder struct{}

func (stubRecorder) Record() error  { return nil }
func (stubRecorder) Release() error { return nil }

type testPeer struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialPeer(t *testing.T, url string) *testPeer {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &testPeer{t: t, conn: conn}
}

func (p *testPeer) send(v any) {
	p.t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		p.t.Fatal(err)
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		p.t.Fatalf("write: %v", err)
	}
}

// expect reads events until one of the given kind shows up.
func (p *testPeer) expect(kind string) map[string]any {
	p.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = p.conn.SetReadDeadline(deadline)
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.t.Fatalf("waiting for %q: %v", kind, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			p.t.Fatalf("bad frame %s: %v", data, err)
		}
		if m["id"] == kind {
			return m
		}
	}
	p.t.Fatalf("no %q event arrived", kind)
	return nil
}

func startHub(t *testing.T) string {
	t.Helper()
	store, err := recordings.NewStore(t.TempDir(), "webm", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	hub := NewHub(stubEngine{}, store, testLogger())
	ts := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestHubGroupCall(t *testing.T) {
	url := startHub(t)

	ann := dialPeer(t, url)
	ann.send(map[string]any{"id": "joinRoom", "name": "ann", "userId": "a1", "room": "r1"})
	roster := ann.expect("existingParticipants")
	if data := roster["data"].([]any); len(data) != 0 {
		t.Errorf("first joiner got a roster of %d", len(data))
	}

	bob := dialPeer(t, url)
	bob.send(map[string]any{"id": "joinRoom", "name": "bob", "userId": "b1", "room": "r1"})
	roster = bob.expect("existingParticipants")
	if data := roster["data"].([]any); len(data) != 1 {
		t.Fatalf("bob's roster has %d entries, want 1", len(data))
	}
	arrival := ann.expect("newParticipantArrived")
	if arrival["userId"] != "b1" {
		t.Errorf("ann heard about %v, want b1", arrival["userId"])
	}

	bob.send(map[string]any{"id": "receiveVideoFrom", "userId": "a1", "sdpOffer": "o1"})
	answer := bob.expect("receiveVideoAnswer")
	if answer["userId"] != "a1" || answer["sdpAnswer"] != "answer:o1" {
		t.Errorf("unexpected answer %v", answer)
	}

	bob.send(map[string]any{"id": "leaveRoom"})
	left := ann.expect("participantLeft")
	if left["userId"] != "b1" {
		t.Errorf("ann saw %v leave, want b1", left["userId"])
	}
}

func TestHubDuplicateLogin(t *testing.T) {
	url := startHub(t)

	first := dialPeer(t, url)
	first.send(map[string]any{"id": "joinRoom", "name": "ann", "userId": "a1", "room": "r1"})
	first.expect("existingParticipants")

	second := dialPeer(t, url)
	second.send(map[string]any{"id": "joinRoom", "name": "ann", "userId": "a1", "room": "r1"})
	second.expect("existingParticipants")

	alert := first.expect("alert")
	if alert["alertId"] != "otherLogin" {
		t.Errorf("kicked peer got alert %v", alert)
	}
}

func TestHubKickedDisconnectKeepsSuccessorReachable(t *testing.T) {
	url := startHub(t)

	first := dialPeer(t, url)
	first.send(map[string]any{"id": "joinRoom", "name": "ann", "userId": "a1", "room": "r1"})
	first.expect("existingParticipants")

	second := dialPeer(t, url)
	second.send(map[string]any{"id": "joinRoom", "name": "ann", "userId": "a1", "room": "r1"})
	second.expect("existingParticipants")
	first.expect("alert")

	// The kicked connection goes away; its teardown must not unregister
	// the successor holding the same id.
	_ = first.conn.Close()
	time.Sleep(200 * time.Millisecond)

	third := dialPeer(t, url)
	third.send(map[string]any{"id": "logIn", "userId": "c1"})
	third.send(map[string]any{"id": "data", "userId": "a1", "payload": map[string]any{"x": 1}})
	relay := second.expect("data")
	if relay["fromId"] != "c1" {
		t.Errorf("relay from %v, want c1", relay["fromId"])
	}
}

func TestHubRoomIdAndData(t *testing.T) {
	url := startHub(t)

	ann := dialPeer(t, url)
	ann.send(map[string]any{"id": "roomId"})
	ev := ann.expect("roomId")
	id, _ := ev["roomId"].(string)
	if len(id) != 6 {
		t.Errorf("room id %q, want six digits", id)
	}

	ann.send(map[string]any{"id": "logIn", "userId": "a1"})
	bob := dialPeer(t, url)
	bob.send(map[string]any{"id": "logIn", "userId": "b1"})

	// The data channel works with no room involved.
	bob.send(map[string]any{"id": "data", "userId": "a1", "payload": map[string]any{"x": 1}})
	relay := ann.expect("data")
	if relay["fromId"] != "b1" {
		t.Errorf("relay from %v, want b1", relay["fromId"])
	}
}

func TestHubMalformedInputKeepsConnection(t *testing.T) {
	url := startHub(t)
	ann := dialPeer(t, url)

	if err := ann.conn.WriteMessage(websocket.TextMessage, []byte("{broken")); err != nil {
		t.Fatal(err)
	}
	ann.send(map[string]any{"id": "wat"})

	// The connection survives garbage; a later join still works.
	ann.send(map[string]any{"id": "joinRoom", "name": "ann", "userId": "a1", "room": "r1"})
	ann.expect("existingParticipants")
}
