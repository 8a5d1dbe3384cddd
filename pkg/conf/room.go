package conf

import (
	"sync"
	"time"

	"github.com/frogrtc/frog/pkg/api"
	"github.com/frogrtc/frog/pkg/logger"
	"github.com/frogrtc/frog/pkg/media"
	"github.com/frogrtc/frog/pkg/recordings"
)

// Room is a named set of sessions sharing one media pipeline. It
// mediates joins, leaves, role changes and fan-out notifications.
type Room struct {
	id       string
	pipeline media.Pipeline
	recStore *recordings.Store
	log      *logger.Logger

	mu           sync.Mutex
	participants map[string]*Session
}

func NewRoom(id string, pipeline media.Pipeline, recStore *recordings.Store, log *logger.Logger) *Room {
	r := &Room{
		id:           id,
		pipeline:     pipeline,
		recStore:     recStore,
		participants: make(map[string]*Session),
		log:          log.Extend(log.With().Str("room", id)),
	}
	r.log.Info().Msg("room created")
	return r
}

func (r *Room) Id() string { return r.id }

// AddUser admits a participant. A live session under the same id is
// kicked first (duplicate login, last writer wins), then the newcomer
// is constructed, registered, announced to the others and handed the
// current roster. Membership is updated last, so the roster and the
// arrival broadcast never include the newcomer itself.
func (r *Room) AddUser(u UserDescriptor, sink MessageSink, users *SessionDirectory) *Session {
	if old := r.participant(u.Id); old != nil {
		r.log.Info().Msgf("%s<%s> is already in the room, kick and notify", old.name, old.id)
		if err := old.Send(api.OtherLoginAlert()); err != nil {
			r.log.Error().Err(err).Msg("kick alert dropped")
		}
		r.RemoveUser(old, users)
	}

	recURI := ""
	if u.Record {
		recURI = r.recStore.URI(r.id, u.Name, u.Id, time.Now())
	}
	participant := NewSession(u, r.id, r.pipeline, sink, recURI, r.log)
	users.Register(participant)

	arrived := api.NewParticipant(participant.name, participant.id, participant.Role())
	r.mu.Lock()
	others := make([]*Session, 0, len(r.participants))
	roster := make([]api.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		others = append(others, p)
		roster = append(roster, api.Participant{Name: p.name, Id: p.id, Role: p.Role()})
	}
	r.mu.Unlock()

	r.log.Info().Msgf("notifying %d participants of new participant %s<%s>",
		len(others), participant.name, participant.id)
	for _, p := range others {
		if err := p.Send(arrived); err != nil {
			r.log.Error().Err(err).Msgf("participant %s could not be notified", p.name)
		}
	}
	if err := participant.Send(api.Roster(roster)); err != nil {
		r.log.Error().Err(err).Msg("roster dropped")
	}

	r.mu.Lock()
	r.participants[participant.id] = participant
	r.mu.Unlock()
	return participant
}

// RemoveUser drops the participant from membership, has every remaining
// participant tear down their media path from it and learn of the
// departure, then closes the session. Notification failures are
// collected, they never block the close.
func (r *Room) RemoveUser(user *Session, users *SessionDirectory) {
	r.log.Info().Msgf("%s<%s> is leaving", user.name, user.id)
	r.mu.Lock()
	// A session kicked by a duplicate login is no longer the member
	// under its id; its late leave must not tear the successor down.
	member := r.participants[user.id] == user
	if member {
		delete(r.participants, user.id)
	}
	remaining := r.snapshotLocked()
	r.mu.Unlock()

	if member {
		users.Remove(user.id)
		left := api.Left(user.id)
		var unnotified []string
		for _, p := range remaining {
			p.CancelVideoFromId(user.id)
			if err := p.Send(left); err != nil {
				unnotified = append(unnotified, p.name)
			}
		}
		if len(unnotified) > 0 {
			r.log.Error().Msgf("users %v could not be notified that %s left", unnotified, user.id)
		}
	}
	user.Close()
}

// ChangeUserRole fans the role change out to every session; each one
// adjusts its own endpoints and tells its client.
func (r *Room) ChangeUserRole(userId string, newRole api.Role) {
	for _, p := range r.snapshot() {
		p.ChangeUserRole(userId, newRole)
	}
}

// NotifyParticipants relays an opaque payload to every session.
func (r *Room) NotifyParticipants(payload any) {
	for _, p := range r.snapshot() {
		if err := p.Send(payload); err != nil {
			r.log.Error().Err(err).Msgf("notify %s", p.name)
		}
	}
}

// Participants lists the current roster.
func (r *Room) Participants() []api.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]api.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, api.Participant{Name: p.name, Id: p.id, Role: p.Role()})
	}
	return out
}

func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants) == 0
}

// Close closes every session, clears membership and releases the
// pipeline. Per-session failures are isolated.
func (r *Room) Close() {
	r.mu.Lock()
	sessions := r.snapshotLocked()
	r.participants = make(map[string]*Session)
	r.mu.Unlock()

	for _, p := range sessions {
		p.Close()
	}
	if err := r.pipeline.Release(); err != nil {
		r.log.Error().Err(err).Msg("pipeline release")
	}
	r.log.Info().Msg("room closed")
}

func (r *Room) participant(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participants[id]
}

func (r *Room) snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() []*Session {
	out := make([]*Session, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}
