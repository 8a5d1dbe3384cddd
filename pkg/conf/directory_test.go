package conf

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/frogrtc/frog/pkg/media"
)

func TestRoomDirectorySharedCreation(t *testing.T) {
	gate := make(chan struct{})
	engine := &fakeEngine{gate: gate}
	d := NewRoomDirectory(engine, nil, testLogger())

	const joiners = 16
	rooms := make([]*Room, joiners)
	var wg sync.WaitGroup
	wg.Add(joiners)
	for i := 0; i < joiners; i++ {
		go func(i int) {
			defer wg.Done()
			room, err := d.GetRoom(context.Background(), "shared")
			if err != nil {
				t.Errorf("joiner %d: %v", i, err)
				return
			}
			rooms[i] = room
		}(i)
	}
	close(gate)
	wg.Wait()

	if n := engine.pipelineCount(); n != 1 {
		t.Fatalf("%d pipelines for one room id, want 1", n)
	}
	for i := 1; i < joiners; i++ {
		if rooms[i] != rooms[0] {
			t.Fatalf("joiner %d got a different room", i)
		}
	}
	if d.RoomCount() != 1 {
		t.Errorf("%d rooms, want 1", d.RoomCount())
	}
}

func TestRoomDirectoryCreationFailure(t *testing.T) {
	engine := &fakeEngine{errs: []error{errors.New("engine offline")}}
	d := NewRoomDirectory(engine, nil, testLogger())

	if _, err := d.GetRoom(context.Background(), "r"); !errors.Is(err, media.ErrEngine) {
		t.Fatalf("got %v, want engine error", err)
	}
	if d.RoomExists("r") {
		t.Error("failed creation left a room behind")
	}

	// The failure is not sticky: the next joiner retries.
	room, err := d.GetRoom(context.Background(), "r")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if room == nil || !d.RoomExists("r") {
		t.Error("retry did not create the room")
	}
}

func TestRoomDirectoryLookup(t *testing.T) {
	engine := &fakeEngine{}
	d := NewRoomDirectory(engine, nil, testLogger())

	if d.Lookup("ghost") != nil {
		t.Error("lookup invented a room")
	}
	if engine.pipelineCount() != 0 {
		t.Error("lookup reached the engine")
	}

	room, err := d.GetRoom(context.Background(), "r")
	if err != nil {
		t.Fatal(err)
	}
	if d.Lookup("r") != room {
		t.Error("lookup misses a live room")
	}

	d.RemoveRoom(room)
	if d.Lookup("r") != nil {
		t.Error("removed room still resolvable")
	}
	engine.mu.Lock()
	pipe := engine.pipes[0]
	engine.mu.Unlock()
	pipe.mu.Lock()
	released := pipe.released
	pipe.mu.Unlock()
	if !released {
		t.Error("removing the room left its pipeline alive")
	}
}

func TestSessionDirectory(t *testing.T) {
	d := NewSessionDirectory()
	p := &fakePipeline{}
	s := NewSession(UserDescriptor{Name: "ann", Id: "a1"}, "r", p, &fakeSink{}, "", testLogger())
	d.Register(s)
	if !d.Exists("a1") || d.Get("a1") != s {
		t.Fatal("registered session not resolvable")
	}
	if d.Get("nope") != nil {
		t.Error("unknown id resolved")
	}
	d.Remove("a1")
	if d.Exists("a1") {
		t.Error("removed session still resolvable")
	}
}
