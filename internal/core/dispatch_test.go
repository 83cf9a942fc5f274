package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func newDispatchFixture(t *testing.T) (*Dispatcher, *Registry, *fakePeer, *fakePeer) {
	t.Helper()

	rooms := NewRegistry(testLogger())
	d := NewDispatcher(rooms, testLogger())

	sender := &fakePeer{}
	other := &fakePeer{}
	rooms.Join("trip-1", "alice", sender)
	rooms.Join("trip-1", "bob", other)

	return d, rooms, sender, other
}

func dispatchFrom(d *Dispatcher, sender *fakePeer, raw string) {
	d.Dispatch(context.Background(), []byte(raw), &DispatchContext{
		UserID: "alice",
		TripID: "trip-1",
		Peer:   sender,
	})
}

func TestDispatchUnregisteredTypeRelays(t *testing.T) {
	d, _, sender, other := newDispatchFixture(t)

	dispatchFrom(d, sender, `{"type":"cursor:move","x":10,"y":20}`)

	if n := other.countOfType(t, "cursor:move"); n != 1 {
		t.Fatalf("recipient got %d relay frames, want 1", n)
	}
	frame := other.lastOfType(t, "cursor:move")
	if frame["userId"] != "alice" {
		t.Fatalf("relay userId = %v, want alice", frame["userId"])
	}
	if _, ok := frame["timestamp"]; !ok {
		t.Fatal("relay frame has no timestamp")
	}
	if frame["x"] != float64(10) || frame["y"] != float64(20) {
		t.Fatalf("relay dropped payload fields: %v", frame)
	}

	// Sender is excluded from its own relay.
	if n := len(sender.decoded(t)); n != 0 {
		t.Fatalf("sender received %d frames, want 0", n)
	}
}

func TestDispatchMissingTypeRepliesErrorOnly(t *testing.T) {
	d, _, sender, other := newDispatchFixture(t)

	dispatchFrom(d, sender, `{"x":1}`)

	if sender.lastOfType(t, "error") == nil {
		t.Fatal("sender did not receive an error reply")
	}
	if n := len(other.decoded(t)); n != 0 {
		t.Fatalf("missing-type message was broadcast: %d frames", n)
	}
}

func TestDispatchRegisteredHandlerRuns(t *testing.T) {
	d, _, sender, other := newDispatchFixture(t)

	var gotTrip string
	d.Register("vote:cast", func(_ context.Context, _ json.RawMessage, dc *DispatchContext) error {
		gotTrip = dc.TripID
		return nil
	})

	dispatchFrom(d, sender, `{"type":"vote:cast","option":"hotel-a"}`)

	if gotTrip != "trip-1" {
		t.Fatalf("handler context tripId = %q, want trip-1", gotTrip)
	}
	// A registered handler suppresses the default relay.
	if n := len(other.decoded(t)); n != 0 {
		t.Fatalf("registered type was also relayed: %d frames", n)
	}
}

func TestDispatchRegisterLastWins(t *testing.T) {
	d, _, sender, _ := newDispatchFixture(t)

	var called string
	d.Register("vote:cast", func(context.Context, json.RawMessage, *DispatchContext) error {
		called = "first"
		return nil
	})
	d.Register("vote:cast", func(context.Context, json.RawMessage, *DispatchContext) error {
		called = "second"
		return nil
	})

	dispatchFrom(d, sender, `{"type":"vote:cast"}`)

	if called != "second" {
		t.Fatalf("called = %q, want second", called)
	}
}

func TestDispatchHandlerErrorRepliesToSenderOnly(t *testing.T) {
	d, _, sender, other := newDispatchFixture(t)

	d.Register("vote:cast", func(context.Context, json.RawMessage, *DispatchContext) error {
		return errors.New("boom")
	})

	dispatchFrom(d, sender, `{"type":"vote:cast"}`)

	if n := sender.countOfType(t, "error"); n != 1 {
		t.Fatalf("sender got %d error replies, want 1", n)
	}
	if n := len(other.decoded(t)); n != 0 {
		t.Fatalf("handler failure leaked to other members: %d frames", n)
	}
}

func TestDispatchHandlerPanicIsContained(t *testing.T) {
	d, rooms, sender, other := newDispatchFixture(t)

	d.Register("vote:cast", func(context.Context, json.RawMessage, *DispatchContext) error {
		panic("handler bug")
	})

	dispatchFrom(d, sender, `{"type":"vote:cast"}`)

	if n := sender.countOfType(t, "error"); n != 1 {
		t.Fatalf("sender got %d error replies, want 1", n)
	}

	// The room keeps working after a panicking handler.
	rooms.Broadcast("trip-1", map[string]string{"type": "ping"}, "alice")
	if other.lastOfType(t, "ping") == nil {
		t.Fatal("broadcast after panic did not reach other members")
	}
}

func TestDispatchCollabErrorCodePreserved(t *testing.T) {
	d, _, sender, _ := newDispatchFixture(t)

	d.Register("vote:cast", func(context.Context, json.RawMessage, *DispatchContext) error {
		return NewCollabError(ErrCodeBadRequest, "option is required")
	})

	dispatchFrom(d, sender, `{"type":"vote:cast"}`)

	frame := sender.lastOfType(t, "error")
	if frame == nil || frame["code"] != ErrCodeBadRequest || frame["message"] != "option is required" {
		t.Fatalf("unexpected error frame: %v", frame)
	}
}
