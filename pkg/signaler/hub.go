// Package signaler routes inbound transport messages to the room
// orchestration core and serializes outbound events back to clients.
package signaler

import (
	"net/http"

	"github.com/gofrs/uuid"

	"github.com/frogrtc/frog/pkg/com"
	"github.com/frogrtc/frog/pkg/conf"
	"github.com/frogrtc/frog/pkg/logger"
	"github.com/frogrtc/frog/pkg/media"
	"github.com/frogrtc/frog/pkg/recordings"
	"github.com/frogrtc/frog/pkg/network/websocket"
)

// Hub accepts websocket clients and drives the signaling protocol.
type Hub struct {
	rooms *conf.RoomDirectory
	users *conf.SessionDirectory
	// direct maps logged-in user ids to connections for the data relay
	// channel, which works before and without a room join.
	direct *com.Map[string, *client]
	log    *logger.Logger
}

func NewHub(engine media.Engine, store *recordings.Store, log *logger.Logger) *Hub {
	return &Hub{
		rooms:  conf.NewRoomDirectory(engine, store, log),
		users:  conf.NewSessionDirectory(),
		direct: com.NewMap[string, *client](),
		log:    log,
	}
}

// Rooms exposes the room directory for diagnostics.
func (h *Hub) Rooms() *conf.RoomDirectory { return h.rooms }

// HandleConnection upgrades the request and serves the client until
// its transport closes.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.NewServer(w, r, h.log)
	if err != nil {
		h.log.Error().Err(err).Msg("ws upgrade")
		return
	}
	c := &client{
		uid: uuid.Must(uuid.NewV4()).String(),
		ws:  ws,
		hub: h,
	}
	c.log = h.log.Extend(h.log.With().Str("cid", c.uid[:8]))
	c.log.Info().Msg("client connected")
	connections.Inc()

	ws.OnMessage = c.route
	ws.Listen()

	<-ws.Done
	c.disconnect()
	connections.Dec()
	c.log.Info().Msg("client disconnected")
}
