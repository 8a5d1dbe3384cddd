package conf

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/frogrtc/frog/pkg/api"
	"github.com/frogrtc/frog/pkg/logger"
	"github.com/frogrtc/frog/pkg/media"
)

// ErrSessionClosed is returned by sends through a closed session.
var ErrSessionClosed = errors.New("session closed")

// MessageSink delivers outbound signaling events to one client.
// Send must fail, not block, when the transport is gone.
type MessageSink interface {
	Send(v any) error
}

// UserDescriptor carries the join parameters of a participant.
type UserDescriptor struct {
	Name   string
	Id     string
	Role   api.Role
	Record bool
}

// Session is one connected, joined participant. It owns the outgoing
// endpoint (absent for watchers) and one incoming endpoint per remote
// peer it consumes media from.
type Session struct {
	name   string
	id     string
	roomId string
	record bool
	recURI string

	pipeline media.Pipeline
	sink     MessageSink
	log      *logger.Logger

	mu       sync.Mutex
	role     api.Role
	out      *Endpoint
	incoming map[string]*Endpoint
	// early holds remote candidates for peers whose incoming endpoint
	// does not exist yet; handed over on creation, in arrival order.
	early    map[string][]media.Candidate
	recorder media.Recorder
	recOnce  sync.Once
	closed   bool
}

// NewSession creates the participant session and, unless the role is
// watcher, immediately starts outgoing media setup. recURI is the
// engine URI recordings go to when the participant asked for them.
func NewSession(u UserDescriptor, roomId string, pipeline media.Pipeline, sink MessageSink,
	recURI string, log *logger.Logger) *Session {
	if u.Id == "" {
		// No id supplied: fall back to the display name. Duplicate
		// logins under the same name are then handled by the room's
		// kick-on-rejoin rule.
		u.Id = u.Name
	}
	if u.Role == "" {
		u.Role = api.RoleNone
	}
	s := &Session{
		name:     u.Name,
		id:       u.Id,
		roomId:   roomId,
		record:   u.Record,
		recURI:   recURI,
		pipeline: pipeline,
		sink:     sink,
		role:     u.Role,
		incoming: make(map[string]*Endpoint),
		early:    make(map[string][]media.Candidate),
		log: log.Extend(log.With().
			Str("user", fmt.Sprintf("%s<%s>", u.Name, u.Id))),
	}
	if s.role != api.RoleWatcher {
		s.SetUpOutgoingMedia()
	}
	s.log.Info().Msgf("session created with role %s", s.role)
	return s
}

func (s *Session) Id() string     { return s.id }
func (s *Session) Name() string   { return s.name }
func (s *Session) RoomId() string { return s.roomId }

func (s *Session) Role() api.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// OutgoingEndpoint returns the session's own media leg, nil for watchers.
func (s *Session) OutgoingEndpoint() *Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out
}

// SetUpOutgoingMedia constructs the outgoing endpoint. Callers must not
// invoke it while one already exists. Recording, when requested,
// attaches once the endpoint is ready and only once per session.
func (s *Session) SetUpOutgoingMedia() {
	ep := NewEndpoint(s.pipeline,
		media.EndpointOptions{Kind: media.Publisher, Tag: s.id},
		s.id, s.id,
		func(c media.Candidate) {
			if err := s.Send(api.Ice(s.name, s.id, c)); err != nil {
				s.log.Error().Err(err).Msg("drop outgoing candidate")
			}
		},
		s.log)
	s.mu.Lock()
	s.out = ep
	s.mu.Unlock()
	if s.record {
		go s.setUpRecording(ep)
	}
}

// setUpRecording waits for the outgoing endpoint and attaches the
// engine recorder to it. The attachment survives role flips: it is
// never re-created for the life of the session.
func (s *Session) setUpRecording(ep *Endpoint) {
	<-ep.Ready()
	s.recOnce.Do(func() {
		handle, err := ep.waitHandle(context.Background())
		if err != nil {
			s.log.Error().Err(err).Msg("recording skipped")
			return
		}
		rec, err := s.pipeline.CreateRecorder(context.Background(), s.recURI, handle)
		if err != nil {
			s.log.Error().Err(err).Msg("recorder create failed")
			return
		}
		if err := rec.Record(); err != nil {
			s.log.Error().Err(err).Msg("recorder start failed")
			return
		}
		s.mu.Lock()
		s.recorder = rec
		s.mu.Unlock()
		s.log.Info().Msgf("recording to %s", s.recURI)
	})
}

// endpointFor resolves the endpoint representing this session's view of
// senderId's stream, creating the incoming leg lazily. Self id resolves
// to the outgoing endpoint.
func (s *Session) endpointFor(senderId string) (*Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if senderId == s.id {
		if s.out == nil {
			return nil, fmt.Errorf("no outgoing media for watcher %s", s.id)
		}
		return s.out, nil
	}
	if ep, ok := s.incoming[senderId]; ok {
		return ep, nil
	}
	ep := NewEndpoint(s.pipeline,
		media.EndpointOptions{Kind: media.Subscriber, Tag: s.id + "<-" + senderId},
		s.id, senderId,
		func(c media.Candidate) {
			if err := s.Send(api.Ice("", senderId, c)); err != nil {
				s.log.Error().Err(err).Msg("drop incoming candidate")
			}
		},
		s.log)
	s.incoming[senderId] = ep
	// Hand over candidates that arrived before the endpoint existed.
	for _, c := range s.early[senderId] {
		_ = ep.AddCandidate(c)
	}
	delete(s.early, senderId)
	return ep, nil
}

// ReceiveVideoFrom negotiates this session's view of sender's stream
// and answers to this session's own client. For a remote sender the
// sender's outgoing endpoint is piped into the freshly negotiated leg.
func (s *Session) ReceiveVideoFrom(ctx context.Context, sender *Session, sdpOffer string) error {
	if sender == nil {
		return errors.New("unknown sender")
	}
	if sdpOffer == "" {
		return errors.New("empty sdp offer")
	}
	s.log.Info().Msgf("wants video from %s<%s>", sender.name, sender.id)

	ep, err := s.endpointFor(sender.id)
	if err != nil {
		return err
	}
	answer, err := ep.ProcessOffer(ctx, sdpOffer)
	if err != nil {
		s.log.Error().Err(err).Msgf("negotiation with %s failed", sender.id)
		if sendErr := s.Send(api.Err("could not negotiate stream from " + sender.id)); sendErr != nil {
			s.log.Error().Err(sendErr).Msg("error notification dropped")
		}
		return err
	}
	if err := s.Send(api.VideoAnswer(sender.id, answer)); err != nil {
		s.log.Error().Err(err).Msg("answer dropped")
	}
	// Gathering starts only now: a local candidate must never reach the
	// client ahead of the answer it belongs to.
	if err := ep.GatherCandidates(ctx); err != nil {
		s.log.Error().Err(err).Msgf("gathering for %s failed", sender.id)
		return err
	}

	if sender.id != s.id {
		senderOut := sender.OutgoingEndpoint()
		if senderOut == nil {
			return fmt.Errorf("%s publishes no media", sender.id)
		}
		if err := senderOut.Connect(ctx, ep); err != nil {
			s.log.Error().Err(err).Msgf("connect %s -> %s", sender.id, s.id)
			return err
		}
	}
	return nil
}

// ReloadStreamFrom tears the incoming leg for sender down and
// renegotiates it from scratch. The old endpoint is fully released
// before the new one exists, so no duplicate media path is possible.
func (s *Session) ReloadStreamFrom(ctx context.Context, sender *Session, sdpOffer string) error {
	if sender == nil {
		return errors.New("unknown sender")
	}
	s.CancelVideoFromId(sender.id)
	return s.ReceiveVideoFrom(ctx, sender, sdpOffer)
}

// CancelVideoFromId releases and forgets the incoming endpoint for the
// peer, if any.
func (s *Session) CancelVideoFromId(id string) {
	s.mu.Lock()
	ep, ok := s.incoming[id]
	delete(s.incoming, id)
	delete(s.early, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.log.Info().Msgf("removing endpoint for %s", id)
	if err := ep.Release(); err != nil {
		s.log.Error().Err(err).Msgf("release endpoint for %s", id)
	}
}

// AddCandidate routes a remote candidate: to the outgoing endpoint when
// id is this session, else to the matching incoming endpoint. For a
// peer without an endpoint yet the candidate is kept until the endpoint
// is created.
func (s *Session) AddCandidate(c media.Candidate, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if id == s.id {
		if s.out == nil {
			return fmt.Errorf("no outgoing media for %s", s.id)
		}
		return s.out.AddCandidate(c)
	}
	if ep, ok := s.incoming[id]; ok {
		return ep.AddCandidate(c)
	}
	s.early[id] = append(s.early[id], c)
	return nil
}

// ChangeUserRole applies a role change seen by this session. A change
// of the session's own role transitions outgoing media; another
// participant turning watcher stops this session consuming their
// stream. The session's client is always notified.
func (s *Session) ChangeUserRole(userId string, newRole api.Role) {
	s.log.Info().Msgf("role of %s becomes %s", userId, newRole)
	if userId == s.id {
		s.mu.Lock()
		current := s.role
		s.mu.Unlock()
		if newRole != current {
			if current == api.RoleWatcher {
				s.SetUpOutgoingMedia()
			} else if newRole == api.RoleWatcher {
				s.releaseOutgoingMedia()
			}
			s.mu.Lock()
			s.role = newRole
			s.mu.Unlock()
		}
	} else if newRole == api.RoleWatcher {
		s.CancelVideoFromId(userId)
	}
	if err := s.Send(api.RoleChanged(userId, newRole)); err != nil {
		s.log.Error().Err(err).Msg("role notification dropped")
	}
}

func (s *Session) releaseOutgoingMedia() {
	s.mu.Lock()
	out := s.out
	s.out = nil
	s.mu.Unlock()
	if out == nil {
		return
	}
	if err := out.Release(); err != nil {
		s.log.Error().Err(err).Msg("release outgoing media")
	}
}

// Send pushes one event to the session's client. Failures are the
// caller's to log; delivery is never retried.
func (s *Session) Send(v any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	sink := s.sink
	s.mu.Unlock()
	return sink.Send(v)
}

// Close releases every endpoint and the recorder. Sends fail afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	out := s.out
	s.out = nil
	incoming := s.incoming
	s.incoming = make(map[string]*Endpoint)
	s.early = make(map[string][]media.Candidate)
	rec := s.recorder
	s.recorder = nil
	s.mu.Unlock()

	s.log.Info().Msg("session close")
	for id, ep := range incoming {
		if err := ep.Release(); err != nil {
			s.log.Error().Err(err).Msgf("release incoming %s", id)
		}
	}
	if out != nil {
		if err := out.Release(); err != nil {
			s.log.Error().Err(err).Msg("release outgoing")
		}
	}
	if rec != nil {
		if err := rec.Release(); err != nil {
			s.log.Error().Err(err).Msg("release recorder")
		}
	}
}
