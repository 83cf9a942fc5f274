package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tripsync-app/tripsync-server/internal/core"
)

// outboundBuffer is the per-connection send queue depth. A member that falls
// this far behind starts losing broadcasts instead of blocking the room.
const outboundBuffer = 32

// WSHandler upgrades HTTP connections and drives one collaboration session
// per connection.
type WSHandler struct {
	rooms       *core.Registry
	dispatch    *core.Dispatcher
	verifier    core.TokenVerifier
	authTimeout time.Duration
	log         *zerolog.Logger
}

// NewWSHandler builds the WebSocket entry point.
func NewWSHandler(rooms *core.Registry, dispatch *core.Dispatcher, verifier core.TokenVerifier, authTimeout time.Duration, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		rooms:       rooms,
		dispatch:    dispatch,
		verifier:    verifier,
		authTimeout: authTimeout,
		log:         logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	peer := newWSPeer(conn)
	sess := core.NewSession(uuid.NewString(), peer, h.verifier, h.rooms, h.dispatch, h.authTimeout, h.log)

	go h.writeLoop(ctx, conn, peer)

	sess.Start()
	readErr := h.readLoop(ctx, conn, sess)

	// The session must leave its room before the connection is released,
	// exactly as an explicit room:leave would.
	sess.Close()
	peer.shutdown()
	cancel()

	status := websocket.StatusNormalClosure
	reason := "closing"
	if readErr != nil && !errors.Is(readErr, context.Canceled) {
		if s := websocket.CloseStatus(readErr); s != -1 {
			// Client initiated the close; nothing to report.
			readErr = nil
		} else {
			status = websocket.StatusInternalError
			reason = "read failure"
			h.log.Warn().Err(readErr).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop feeds inbound frames to the session strictly in arrival order.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		sess.HandleMessage(ctx, data)
	}
}

// writeLoop drains the peer's outbound queue onto the wire. Write failures
// are logged but do not close the connection themselves; a dead connection
// surfaces in the read loop.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, peer *wsPeer) {
	for {
		select {
		case data := <-peer.out:
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.log.Warn().Err(err).Msg("write ws frame")
			}
		case <-ctx.Done():
			return
		}
	}
}

// wsPeer adapts a websocket connection to the core.Peer contract: sends are
// non-blocking enqueues consumed by the connection's write loop.
type wsPeer struct {
	conn *websocket.Conn
	out  chan []byte

	once sync.Once
	done chan struct{}
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{
		conn: conn,
		out:  make(chan []byte, outboundBuffer),
		done: make(chan struct{}),
	}
}

func (p *wsPeer) Send(data []byte) error {
	select {
	case <-p.done:
		return errors.New("connection closed")
	default:
	}
	select {
	case p.out <- data:
		return nil
	default:
		return errors.New("outbound buffer full")
	}
}

// Terminate flushes anything still queued (the error notice that precedes a
// forced close) and closes with a policy violation status.
func (p *wsPeer) Terminate(reason string) {
	p.shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		select {
		case data := <-p.out:
			_ = p.conn.Write(ctx, websocket.MessageText, data)
		default:
			_ = p.conn.Close(websocket.StatusPolicyViolation, reason)
			return
		}
	}
}

func (p *wsPeer) shutdown() {
	p.once.Do(func() { close(p.done) })
}
