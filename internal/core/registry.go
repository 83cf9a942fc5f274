package core

import (
	"encoding/json"
	"iter"
	"sync"

	"github.com/rs/zerolog"
)

// membership ties one user to one live connection inside a room. The
// registry does not own the connection's lifecycle; the peer reference is
// dropped, never closed, when a membership is removed.
type membership struct {
	userID string
	peer   Peer
}

type room struct {
	id      string
	members map[string]*membership
}

// Registry owns the room(trip)->members mapping. It is the only piece of
// cross-connection shared mutable state in the process; every mutation of a
// room happens under the registry lock, so join/leave/create/delete-if-empty
// are atomic relative to each other.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
	log   *zerolog.Logger
}

// NewRegistry builds an empty room registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]*room),
		log:   logger,
	}
}

// Join inserts a membership for userID into roomID, creating the room if
// absent. A prior membership for the same userID is replaced, not
// duplicated: the old peer reference is simply dropped, which is how a
// reconnecting client displaces its stale connection. Returns the room size
// after the join.
func (r *Registry) Join(roomID, userID string, p Peer) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{id: roomID, members: make(map[string]*membership)}
		r.rooms[roomID] = rm
		r.log.Debug().Str("room", roomID).Msg("room created")
	}
	rm.members[userID] = &membership{userID: userID, peer: p}

	r.log.Info().Str("room", roomID).Str("user", userID).Int("size", len(rm.members)).Msg("user joined room")
	return len(rm.members)
}

// Leave removes the membership matching both userID and peer identity. The
// peer check guards against removing a newer concurrent connection for the
// same user during a reconnect race. The room is deleted the instant it
// empties. Returns whether a membership was removed.
func (r *Registry) Leave(roomID, userID string, p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	m, ok := rm.members[userID]
	if !ok || m.peer != p {
		return false
	}
	delete(rm.members, userID)

	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
		r.log.Debug().Str("room", roomID).Msg("room removed")
	}
	r.log.Info().Str("room", roomID).Str("user", userID).Int("size", len(rm.members)).Msg("user left room")
	return true
}

// Broadcast serializes msg once and delivers it to every member of roomID
// except excludeUserID (pass "" to deliver to all). Per-member send failures
// are logged and skipped so one bad connection never blocks delivery to the
// rest of the room.
func (r *Registry) Broadcast(roomID string, msg any, excludeUserID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error().Err(err).Str("room", roomID).Msg("marshal broadcast")
		return
	}
	r.BroadcastRaw(roomID, data, excludeUserID)
}

// BroadcastRaw delivers an already-serialized frame, byte-identical to every
// recipient. The membership set is the one present at the instant the
// iteration starts.
func (r *Registry) BroadcastRaw(roomID string, data []byte, excludeUserID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for userID, m := range rm.members {
		if userID == excludeUserID {
			continue
		}
		if err := m.peer.Send(data); err != nil {
			r.log.Warn().Err(err).Str("room", roomID).Str("user", userID).Msg("broadcast send failed, skipping member")
		}
	}
}

// SendToUser delivers msg to a single member of roomID. Returns whether the
// message was handed to a live connection.
func (r *Registry) SendToUser(roomID, userID string, msg any) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error().Err(err).Str("room", roomID).Msg("marshal direct message")
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	m, ok := rm.members[userID]
	if !ok {
		return false
	}
	if err := m.peer.Send(data); err != nil {
		r.log.Warn().Err(err).Str("room", roomID).Str("user", userID).Msg("direct send failed")
		return false
	}
	return true
}

// Members returns a restartable sequence over the userIDs present in roomID
// at the time of the call. Empty if the room is absent.
func (r *Registry) Members(roomID string) iter.Seq[string] {
	r.mu.RLock()
	var ids []string
	if rm, ok := r.rooms[roomID]; ok {
		ids = make([]string, 0, len(rm.members))
		for userID := range rm.members {
			ids = append(ids, userID)
		}
	}
	r.mu.RUnlock()

	return func(yield func(string) bool) {
		for _, id := range ids {
			if !yield(id) {
				return
			}
		}
	}
}

// RoomSize reports the current member count of roomID, zero if absent.
func (r *Registry) RoomSize(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	return len(rm.members)
}

// RoomIDs lists the ids of all rooms that currently have members.
func (r *Registry) RoomIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	return ids
}
