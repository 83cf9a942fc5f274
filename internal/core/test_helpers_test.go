package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// fakePeer records every frame sent to it and whether it was force-closed.
type fakePeer struct {
	mu         sync.Mutex
	frames     [][]byte
	sendErr    error
	terminated bool
	reason     string
}

func (p *fakePeer) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	p.frames = append(p.frames, buf)
	return nil
}

func (p *fakePeer) Terminate(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated = true
	p.reason = reason
}

func (p *fakePeer) isTerminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

// decoded returns every recorded frame as a decoded JSON object.
func (p *fakePeer) decoded(t *testing.T) []map[string]any {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]map[string]any, 0, len(p.frames))
	for _, raw := range p.frames {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("frame is not a JSON object: %s", raw)
		}
		out = append(out, m)
	}
	return out
}

// lastOfType returns the most recent frame with the given type tag, or nil.
func (p *fakePeer) lastOfType(t *testing.T, msgType string) map[string]any {
	t.Helper()
	frames := p.decoded(t)
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i]["type"] == msgType {
			return frames[i]
		}
	}
	return nil
}

func (p *fakePeer) countOfType(t *testing.T, msgType string) int {
	t.Helper()
	n := 0
	for _, f := range p.decoded(t) {
		if f["type"] == msgType {
			n++
		}
	}
	return n
}

// mustFrame polls until the peer has received a frame of the given type.
// Needed where the sender is the auth deadline timer goroutine.
func mustFrame(t *testing.T, p *fakePeer, msgType string) map[string]any {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f := p.lastOfType(t, msgType); f != nil {
			return f
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected frame of type %q not received", msgType)
	return nil
}

// fakeVerifier accepts tokens of the form "token-<user>".
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (Identity, error) {
	const prefix = "token-"
	if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
		return Identity{}, errors.New("bad token")
	}
	user := token[len(prefix):]
	return Identity{UserID: user, Name: user, TokenType: "access"}, nil
}

func newTestSession(t *testing.T, rooms *Registry, dispatch *Dispatcher, peer *fakePeer, authTimeout time.Duration) *Session {
	t.Helper()
	return NewSession("s-"+t.Name(), peer, fakeVerifier{}, rooms, dispatch, authTimeout, testLogger())
}

func authenticate(t *testing.T, s *Session, user string) {
	t.Helper()
	s.Start()
	s.HandleMessage(context.Background(), []byte(`{"type":"auth","token":"token-`+user+`"}`))
	if got := s.UserID(); got != user {
		t.Fatalf("authentication failed: userID = %q, want %q", got, user)
	}
}
