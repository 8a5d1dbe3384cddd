package conf

import (
	"context"
	"fmt"
	"sync"

	"github.com/frogrtc/frog/pkg/com"
	"github.com/frogrtc/frog/pkg/logger"
	"github.com/frogrtc/frog/pkg/media"
	"github.com/frogrtc/frog/pkg/recordings"
)

// SessionDirectory resolves participant ids to live sessions across
// rooms. Negotiation targets are looked up here.
type SessionDirectory struct {
	users *com.Map[string, *Session]
}

func NewSessionDirectory() *SessionDirectory {
	return &SessionDirectory{users: com.NewMap[string, *Session]()}
}

func (d *SessionDirectory) Register(s *Session) { d.users.Put(s.Id(), s) }
func (d *SessionDirectory) Remove(id string)    { d.users.RemoveByKey(id) }
func (d *SessionDirectory) Exists(id string) bool {
	return d.users.Has(id)
}

func (d *SessionDirectory) Get(id string) *Session {
	s, err := d.users.Find(id)
	if err != nil {
		return nil
	}
	return s
}

// creation marks a room id whose pipeline request is in flight.
// done is closed exactly once when the attempt settles; waiters then
// read err or find the room registered.
type creation struct {
	done chan struct{}
	err  error
}

// RoomDirectory resolves room ids to rooms, creating them on first
// join. Concurrent first-joiners of one id share a single pipeline
// request: late callers block on the in-flight creation instead of
// racing a second one.
type RoomDirectory struct {
	engine   media.Engine
	recStore *recordings.Store
	log      *logger.Logger

	mu       sync.Mutex
	rooms    map[string]*Room
	creating map[string]*creation
}

func NewRoomDirectory(engine media.Engine, recStore *recordings.Store, log *logger.Logger) *RoomDirectory {
	return &RoomDirectory{
		engine:   engine,
		recStore: recStore,
		log:      log,
		rooms:    make(map[string]*Room),
		creating: make(map[string]*creation),
	}
}

// GetRoom resolves the room, requesting a pipeline from the engine for
// an unseen id. At most one pipeline is ever created per id; a failed
// creation propagates its error to every waiter of that attempt.
func (d *RoomDirectory) GetRoom(ctx context.Context, id string) (*Room, error) {
	for {
		d.mu.Lock()
		if room, ok := d.rooms[id]; ok {
			d.mu.Unlock()
			return room, nil
		}
		if c, ok := d.creating[id]; ok {
			d.mu.Unlock()
			select {
			case <-c.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if c.err != nil {
				return nil, c.err
			}
			// Created by someone else; resolve it on the next pass.
			continue
		}
		c := &creation{done: make(chan struct{})}
		d.creating[id] = c
		d.mu.Unlock()

		pipeline, err := d.engine.CreatePipeline(ctx)

		d.mu.Lock()
		delete(d.creating, id)
		if err != nil {
			c.err = fmt.Errorf("%w: pipeline for room %s: %v", media.ErrEngine, id, err)
			d.mu.Unlock()
			close(c.done)
			d.log.Error().Err(err).Msgf("room %s creation failed", id)
			return nil, c.err
		}
		room := NewRoom(id, pipeline, d.recStore, d.log)
		d.rooms[id] = room
		d.mu.Unlock()
		close(c.done)
		return room, nil
	}
}

// Lookup resolves a live room without triggering creation, unlike
// GetRoom. Leave-side paths use it so a departing user never spawns a
// fresh pipeline for an already closed room.
func (d *RoomDirectory) Lookup(id string) *Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rooms[id]
}

// RoomExists reports whether the id maps to a live room.
func (d *RoomDirectory) RoomExists(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.rooms[id]
	return ok
}

// RoomCount reports the number of live rooms.
func (d *RoomDirectory) RoomCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

// RemoveRoom unregisters and closes the room.
func (d *RoomDirectory) RemoveRoom(room *Room) {
	d.mu.Lock()
	delete(d.rooms, room.Id())
	d.mu.Unlock()
	room.Close()
}
