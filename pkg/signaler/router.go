package signaler

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/frogrtc/frog/pkg/api"
	"github.com/frogrtc/frog/pkg/conf"
	"github.com/frogrtc/frog/pkg/media"
)

// route dispatches one inbound packet. Malformed input is logged and
// dropped; the connection stays up.
func (c *client) route(message []byte, err error) {
	if err != nil {
		c.log.Error().Err(err).Msg("transport read")
		return
	}
	env, err := api.Unwrap[api.Envelope](message)
	if err != nil {
		c.log.Error().Err(err).Msgf("bad packet: %s", message)
		return
	}
	c.log.Debug().Msgf("<- %s", env.Id)
	messages.WithLabelValues(string(env.Id)).Inc()

	switch env.Id {
	case api.JoinRoom:
		c.handleJoin(message)
	case api.ReceiveVideoFrom:
		c.handleVideoFrom(message, false)
	case api.ReloadStreamFrom:
		c.handleVideoFrom(message, true)
	case api.OnIceCandidate:
		c.handleIce(message)
	case api.ChangeRole:
		c.handleChangeRole(message)
	case api.NotifyParticipants:
		c.handleNotify(message)
	case api.LeaveRoom:
		c.handleLeave()
	case api.LogIn:
		c.handleLogIn(message)
	case api.LogOut:
		c.setLogin("")
	case api.RoomId:
		c.handleRoomId()
	case api.Data:
		c.handleData(message)
	case api.Info:
		c.log.Info().Msgf("client info: %s", message)
	default:
		c.log.Warn().Msgf("unknown message kind %s", env.Id)
	}
}

func (c *client) fail(err error, what string) {
	c.log.Error().Err(err).Msg(what)
	if err := c.Send(api.Err(what)); err != nil {
		c.log.Error().Err(err).Msg("error notification dropped")
	}
}

func (c *client) handleJoin(message []byte) {
	req, err := api.Unwrap[api.JoinRoomRequest](message)
	if err != nil {
		c.log.Error().Err(err).Msg("bad join request")
		return
	}
	if req.Name == "" || req.Room == "" {
		c.fail(fmt.Errorf("join needs name and room"), "invalid join request")
		return
	}
	if old := c.currentSession(); old != nil {
		// A second join on the same connection is an implicit leave.
		c.hub.leave(old)
		c.setSession(nil)
	}

	room, err := c.hub.rooms.GetRoom(context.Background(), req.Room)
	if err != nil {
		c.fail(err, "room "+req.Room+" is not available")
		return
	}
	u := conf.UserDescriptor{Name: req.Name, Id: req.UserId, Role: req.Role, Record: req.Record}
	s := room.AddUser(u, c, c.hub.users)
	c.setSession(s)
	c.setLogin(s.Id())
	sessions.Inc()
	rooms.Set(float64(c.hub.rooms.RoomCount()))
}

func (c *client) handleVideoFrom(message []byte, reload bool) {
	req, err := api.Unwrap[api.VideoFromRequest](message)
	if err != nil {
		c.log.Error().Err(err).Msg("bad video request")
		return
	}
	s := c.currentSession()
	if s == nil {
		c.fail(fmt.Errorf("no session"), "join a room first")
		return
	}
	sender := c.hub.users.Get(req.UserId)
	if sender == nil || sender.RoomId() != s.RoomId() {
		c.fail(fmt.Errorf("unknown sender %s", req.UserId),
			"user "+req.UserId+" is not in the room")
		return
	}
	if reload {
		err = s.ReloadStreamFrom(context.Background(), sender, req.SdpOffer)
	} else {
		err = s.ReceiveVideoFrom(context.Background(), sender, req.SdpOffer)
	}
	if err != nil {
		// The session already told the client about negotiation
		// failures; anything else still needs surfacing.
		c.log.Error().Err(err).Msgf("video from %s", req.UserId)
	}
}

func (c *client) handleIce(message []byte) {
	req, err := api.Unwrap[api.IceCandidateRequest](message)
	if err != nil {
		c.log.Error().Err(err).Msg("bad candidate")
		return
	}
	s := c.currentSession()
	if s == nil {
		c.log.Warn().Msg("candidate before join, dropped")
		return
	}
	if err := s.AddCandidate(media.Candidate(req.Candidate), req.UserId); err != nil {
		c.log.Error().Err(err).Msgf("candidate for %s", req.UserId)
	}
}

func (c *client) handleChangeRole(message []byte) {
	req, err := api.Unwrap[api.ChangeRoleRequest](message)
	if err != nil {
		c.log.Error().Err(err).Msg("bad role request")
		return
	}
	s := c.currentSession()
	if s == nil {
		c.fail(fmt.Errorf("no session"), "join a room first")
		return
	}
	target := req.UserId
	if target == "" {
		target = s.Id()
	}
	room := c.hub.rooms.Lookup(s.RoomId())
	if room == nil {
		c.log.Error().Msgf("room %s is gone", s.RoomId())
		return
	}
	room.ChangeUserRole(target, req.NewRole)
}

func (c *client) handleNotify(message []byte) {
	req, err := api.Unwrap[api.NotifyRequest](message)
	if err != nil {
		c.log.Error().Err(err).Msg("bad notify request")
		return
	}
	s := c.currentSession()
	if s == nil {
		c.fail(fmt.Errorf("no session"), "join a room first")
		return
	}
	room := c.hub.rooms.Lookup(s.RoomId())
	if room == nil {
		c.log.Error().Msgf("room %s is gone", s.RoomId())
		return
	}
	room.NotifyParticipants(api.Relay(s.Id(), req.Payload))
}

func (c *client) handleLeave() {
	s := c.currentSession()
	if s == nil {
		return
	}
	c.setSession(nil)
	c.hub.leave(s)
}

func (c *client) handleLogIn(message []byte) {
	req, err := api.Unwrap[api.UserIdRequest](message)
	if err != nil || req.UserId == "" {
		c.log.Error().Err(err).Msg("bad login request")
		return
	}
	c.setLogin(req.UserId)
	c.log.Info().Msgf("logged in as %s", req.UserId)
}

// handleRoomId hands the client a fresh numeric room id not currently
// in use. Uniqueness is best-effort: the id is reserved only once
// someone joins it.
func (c *client) handleRoomId() {
	id := ""
	for {
		id = fmt.Sprintf("%06d", rand.Intn(1000000))
		if !c.hub.rooms.RoomExists(id) {
			break
		}
	}
	if err := c.Send(api.NewRoomId(id)); err != nil {
		c.log.Error().Err(err).Msg("room id dropped")
	}
}

// handleData relays an opaque payload to one logged-in user, no room
// membership required.
func (c *client) handleData(message []byte) {
	req, err := api.Unwrap[api.DataRequest](message)
	if err != nil {
		c.log.Error().Err(err).Msg("bad data request")
		return
	}
	from := req.FromId
	if from == "" {
		c.mu.Lock()
		from = c.loginId
		c.mu.Unlock()
	}
	target, err := c.hub.direct.Find(req.UserId)
	if err != nil {
		c.fail(fmt.Errorf("no such user %s", req.UserId),
			"user "+req.UserId+" is not connected")
		return
	}
	if err := target.Send(api.Relay(from, req.Payload)); err != nil {
		c.log.Error().Err(err).Msgf("relay to %s", req.UserId)
	}
}

// leave removes the session from its room and tears the room down once
// it empties. A session whose room is already gone is closed directly.
func (h *Hub) leave(s *conf.Session) {
	room := h.rooms.Lookup(s.RoomId())
	if room == nil {
		h.users.Remove(s.Id())
		s.Close()
		sessions.Dec()
		return
	}
	room.RemoveUser(s, h.users)
	sessions.Dec()
	if room.IsEmpty() {
		h.log.Info().Msgf("room %s is empty, closing", room.Id())
		h.rooms.RemoveRoom(room)
	}
	rooms.Set(float64(h.rooms.RoomCount()))
}
