package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/tripsync-app/tripsync-server/internal/proto"
)

// SessionState tracks where a connection is in its lifecycle.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticating
	StateAuthenticated
	StateInRoom
	StateClosed
)

// Session is the per-connection state machine. All of its mutable fields are
// owned by the connection's read loop: HandleMessage is called strictly one
// message at a time in arrival order, and Close runs on the same goroutine
// after the read loop exits. The auth deadline timer is the one concurrent
// actor, and it only ever touches the peer, never session fields.
type Session struct {
	id          string
	peer        Peer
	verifier    TokenVerifier
	rooms       *Registry
	dispatch    *Dispatcher
	authTimeout time.Duration
	log         zerolog.Logger

	state     SessionState
	userID    string
	roomID    string
	authTimer *time.Timer
}

// NewSession builds a session for a freshly accepted connection.
func NewSession(id string, peer Peer, verifier TokenVerifier, rooms *Registry, dispatch *Dispatcher, authTimeout time.Duration, logger *zerolog.Logger) *Session {
	return &Session{
		id:          id,
		peer:        peer,
		verifier:    verifier,
		rooms:       rooms,
		dispatch:    dispatch,
		authTimeout: authTimeout,
		log:         logger.With().Str("session", id).Logger(),
		state:       StateConnecting,
	}
}

// Start moves the session into Authenticating and arms the auth deadline.
// If no successful auth happens before the deadline, the connection is told
// why and force-closed with a policy violation status.
func (s *Session) Start() {
	s.state = StateAuthenticating
	s.authTimer = time.AfterFunc(s.authTimeout, func() {
		s.send(proto.AuthError{Type: proto.TypeAuthError, Message: "Authentication timeout"})
		s.peer.Terminate("authentication timeout")
	})
}

// HandleMessage advances the state machine with one inbound frame.
func (s *Session) HandleMessage(ctx context.Context, raw []byte) {
	if s.state == StateClosed {
		return
	}

	msgType := proto.PeekType(raw)
	if msgType == "" {
		s.send(proto.NewError(ErrCodeBadRequest, "Message type is required"))
		return
	}

	switch s.state {
	case StateAuthenticating:
		s.handleAuthenticating(ctx, msgType, raw)
	case StateAuthenticated, StateInRoom:
		s.handleAuthenticated(ctx, msgType, raw)
	}
}

// handleAuthenticating accepts exactly one kind of message: auth. Anything
// else gets an error reply but keeps the connection open; the deadline timer
// is the real enforcement.
func (s *Session) handleAuthenticating(ctx context.Context, msgType string, raw []byte) {
	if msgType != proto.TypeAuth {
		s.send(proto.NewError(ErrCodeAuthRequired, "Authentication required"))
		return
	}

	var msg proto.Auth
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Token == "" {
		s.failAuth("Authentication token is required")
		return
	}

	identity, err := s.verifier.Verify(ctx, msg.Token)
	if err != nil {
		s.log.Warn().Err(err).Msg("token verification failed")
		s.failAuth("Invalid authentication token")
		return
	}

	s.authTimer.Stop()
	s.userID = identity.UserID
	s.state = StateAuthenticated
	s.log.Info().Str("user", s.userID).Str("token_type", identity.TokenType).Msg("session authenticated")
	s.send(proto.AuthSuccess{Type: proto.TypeAuthSuccess, UserID: s.userID})
}

// failAuth replies with an auth error and force-closes; there is no retry on
// the same connection.
func (s *Session) failAuth(reason string) {
	s.authTimer.Stop()
	s.send(proto.AuthError{Type: proto.TypeAuthError, Message: reason})
	s.peer.Terminate("authentication failed")
	s.state = StateClosed
}

func (s *Session) handleAuthenticated(ctx context.Context, msgType string, raw []byte) {
	switch msgType {
	case proto.TypeAuth:
		s.send(proto.NewError(ErrCodeBadRequest, "Already authenticated"))

	case proto.TypeRoomJoin:
		var msg proto.RoomJoin
		if err := json.Unmarshal(raw, &msg); err != nil || msg.TripID == "" {
			s.send(proto.NewError(ErrCodeBadRequest, "tripId is required"))
			return
		}
		s.joinRoom(msg.TripID)

	case proto.TypeRoomLeave:
		if s.roomID == "" {
			s.send(proto.NewError(ErrCodeNotInRoom, "Not in a room"))
			return
		}
		s.leaveRoom()
		s.state = StateAuthenticated
		s.send(proto.RoomLeft{Type: proto.TypeRoomLeft})

	default:
		if s.state != StateInRoom {
			s.send(proto.NewError(ErrCodeNotInRoom, "Must join a room first"))
			return
		}
		s.dispatch.Dispatch(ctx, raw, &DispatchContext{
			UserID: s.userID,
			TripID: s.roomID,
			Peer:   s.peer,
		})
	}
}

// joinRoom moves the session into a room, leaving any current one first: a
// session is a member of at most one room. The joiner is sent the
// authoritative member list as of its join instant, then its presence is
// announced to everyone else.
func (s *Session) joinRoom(tripID string) {
	if s.roomID != "" {
		s.leaveRoom()
	}

	s.rooms.Join(tripID, s.userID, s.peer)
	s.roomID = tripID
	s.state = StateInRoom

	var active []string
	for userID := range s.rooms.Members(tripID) {
		active = append(active, userID)
	}
	s.send(proto.RoomJoined{Type: proto.TypeRoomJoined, TripID: tripID, ActiveUsers: active})

	s.rooms.Broadcast(tripID, proto.Presence{
		Type:      proto.TypePresenceJoin,
		UserID:    s.userID,
		Timestamp: time.Now().UnixMilli(),
	}, s.userID)
}

// leaveRoom removes this session's membership and, if it was actually the
// one removed, announces the departure. A membership already displaced by a
// reconnect belongs to the newer connection and stays untouched.
func (s *Session) leaveRoom() {
	roomID := s.roomID
	s.roomID = ""

	if !s.rooms.Leave(roomID, s.userID, s.peer) {
		return
	}
	s.rooms.Broadcast(roomID, proto.Presence{
		Type:      proto.TypePresenceLeave,
		UserID:    s.userID,
		Timestamp: time.Now().UnixMilli(),
	}, s.userID)
}

// Close tears the session down after the connection is gone. A session that
// joined a room leaves it exactly as an explicit room:leave would; one that
// never authenticated releases silently. Safe to call more than once.
func (s *Session) Close() {
	if s.state == StateClosed {
		return
	}
	if s.authTimer != nil {
		s.authTimer.Stop()
	}
	if s.roomID != "" {
		s.leaveRoom()
	}
	s.state = StateClosed
	s.log.Debug().Str("user", s.userID).Msg("session closed")
}

// UserID reports the authenticated user, empty before auth completes.
func (s *Session) UserID() string { return s.userID }

func (s *Session) send(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal outbound")
		return
	}
	if err := s.peer.Send(data); err != nil {
		s.log.Warn().Err(err).Msg("send outbound")
	}
}
