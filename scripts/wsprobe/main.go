// Command wsprobe is a manual test client for the collaboration socket: it
// authenticates, joins a trip room, prints everything the server sends, and
// relays typed lines as chat messages.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tripsync-app/tripsync-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("wsprobe: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "bearer token (from /api/auth/*)")
	trip := flag.String("trip", "", "trip id to join")
	flag.Parse()

	if *token == "" {
		return errors.New("-token is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(v any) {
		if writeErr := wsjson.Write(ctx, conn, v); writeErr != nil {
			cancel()
			log.Printf("send: %v", writeErr)
		}
	}

	send(proto.Auth{Type: proto.TypeAuth, Token: *token})
	if *trip != "" {
		send(proto.RoomJoin{Type: proto.TypeRoomJoin, TripID: *trip})
	}

	fmt.Printf("Connected to %s\n", *addr)
	fmt.Println("Type messages and press Enter to relay them. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		send(map[string]any{"type": "chat:message", "text": line})
	}
	return scanner.Err()
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame map[string]any
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("read: %v", err)
			}
			return
		}
		pretty, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		fmt.Printf("<- %s\n", pretty)
	}
}
