package signaler

import (
	"sync"

	"github.com/frogrtc/frog/pkg/api"
	"github.com/frogrtc/frog/pkg/conf"
	"github.com/frogrtc/frog/pkg/logger"
	"github.com/frogrtc/frog/pkg/network/websocket"
)

// client is one connected transport peer. It implements the session's
// outbound message sink.
type client struct {
	uid string
	ws  *websocket.WS
	hub *Hub
	log *logger.Logger

	mu      sync.Mutex
	session *conf.Session
	// loginId is the id the peer registered with logIn/joinRoom for
	// the data relay channel.
	loginId string
}

// Send serializes one event onto the wire. A send to a gone transport
// fails; delivery is never retried.
func (c *client) Send(v any) error {
	data, err := api.Marshal(v)
	if err != nil {
		return err
	}
	return c.ws.Write(data)
}

func (c *client) setSession(s *conf.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *client) currentSession() *conf.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *client) setLogin(id string) {
	c.mu.Lock()
	old := c.loginId
	c.loginId = id
	c.mu.Unlock()
	if old != "" && old != id {
		c.dropLogin(old)
	}
	if id != "" {
		c.hub.direct.Put(id, c)
	}
}

// dropLogin removes the relay registration, but only while it is still
// ours: after a duplicate-login kick the id belongs to the successor.
func (c *client) dropLogin(id string) {
	c.hub.direct.RemoveIf(id, func(v *client) bool { return v == c })
}

// disconnect runs the implicit leave when the transport closes.
func (c *client) disconnect() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	login := c.loginId
	c.loginId = ""
	c.mu.Unlock()
	if login != "" {
		c.dropLogin(login)
	}
	if s != nil {
		c.log.Warn().Msgf("transport closed for %s<%s>, leaving room", s.Name(), s.Id())
		c.hub.leave(s)
	}
	c.ws.Close()
}
