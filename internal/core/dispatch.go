package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tripsync-app/tripsync-server/internal/proto"
)

// DispatchContext carries the sender's identity and room to a handler.
type DispatchContext struct {
	UserID string
	TripID string
	Peer   Peer
	Rooms  *Registry
}

// HandlerFunc processes one inbound message of a registered type. Returned
// errors are reported to the sender as a generic failure for that type and
// never propagate further.
type HandlerFunc func(ctx context.Context, raw json.RawMessage, dc *DispatchContext) error

// Dispatcher routes messages by their type tag. The handler table is
// populated once at startup and read by every dispatch; types without a
// registered handler fall back to a relay broadcast, which keeps simple
// relay-style events (typing, cursor moves, votes) extensible without
// touching the registry.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	rooms    *Registry
	log      *zerolog.Logger
}

// NewDispatcher builds a dispatcher bound to the given room registry.
func NewDispatcher(rooms *Registry, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		rooms:    rooms,
		log:      logger,
	}
}

// Register installs a handler for a message type. Registration is
// last-wins; re-registering a type replaces the previous handler.
func (d *Dispatcher) Register(msgType string, h HandlerFunc) {
	d.handlers[msgType] = h
}

// Dispatch routes one raw frame for an in-room sender. Handler errors and
// panics are contained here: they are logged with the message type and
// answered with a single generic failure reply, leaving the connection and
// the rest of the room untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte, dc *DispatchContext) {
	dc.Rooms = d.rooms

	msgType := proto.PeekType(raw)
	if msgType == "" {
		d.reply(dc.Peer, proto.NewError(ErrCodeBadRequest, "Message type is required"))
		return
	}

	h, ok := d.handlers[msgType]
	if !ok {
		d.relay(msgType, raw, dc)
		return
	}

	if err := d.invoke(ctx, h, raw, dc); err != nil {
		d.log.Error().Err(err).Str("type", msgType).Str("user", dc.UserID).Msg("handler failed")
		var ce *CollabError
		if errors.As(err, &ce) {
			d.reply(dc.Peer, proto.NewError(ce.Code, ce.Message))
			return
		}
		d.reply(dc.Peer, proto.NewError(ErrCodeHandlerFail, fmt.Sprintf("Failed to handle %s", msgType)))
	}
}

// invoke runs a handler with panic containment at the dispatch boundary.
func (d *Dispatcher) invoke(ctx context.Context, h HandlerFunc, raw json.RawMessage, dc *DispatchContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, raw, dc)
}

// relay is the fallback arm: the raw message, augmented with the sender's
// userId and a timestamp, is broadcast to the room excluding the sender.
func (d *Dispatcher) relay(msgType string, raw []byte, dc *DispatchContext) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		d.log.Warn().Err(err).Str("type", msgType).Msg("malformed relay message")
		d.reply(dc.Peer, proto.NewError(ErrCodeBadRequest, "Malformed message"))
		return
	}
	fields["userId"] = dc.UserID
	fields["timestamp"] = time.Now().UnixMilli()

	data, err := json.Marshal(fields)
	if err != nil {
		d.log.Error().Err(err).Str("type", msgType).Msg("marshal relay message")
		return
	}
	d.rooms.BroadcastRaw(dc.TripID, data, dc.UserID)
}

func (d *Dispatcher) reply(p Peer, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		d.log.Error().Err(err).Msg("marshal reply")
		return
	}
	if err := p.Send(data); err != nil {
		d.log.Warn().Err(err).Msg("send reply")
	}
}
