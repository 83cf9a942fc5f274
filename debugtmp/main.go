package main

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/tripsync-app/tripsync-server/internal/auth"
	"github.com/tripsync-app/tripsync-server/internal/config"
	"github.com/tripsync-app/tripsync-server/internal/core"
	"github.com/tripsync-app/tripsync-server/internal/store/sqlite"
	transport "github.com/tripsync-app/tripsync-server/internal/transport/http"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.DebugLevel)

	dir, _ := os.MkdirTemp("", "dbg")
	st, err := sqlite.New(filepath.Join(dir, "test.db"))
	if err != nil {
		panic(err)
	}
	defer st.Close()

	jwtCfg := &auth.JWTConfig{Secret: []byte("test-secret"), Issuer: "t", Audience: "t", TTL: time.Hour}
	authService := auth.NewService(st, jwtCfg)

	rooms := core.NewRegistry(&logger)
	dispatcher := core.NewDispatcher(rooms, &logger)
	core.RegisterBuiltins(dispatcher, st, &logger)

	verifier := core.TokenVerifierFunc(func(ctx context.Context, token string) (core.Identity, error) {
		id, err := authService.Verify(ctx, token)
		if err != nil {
			return core.Identity{}, err
		}
		return core.Identity{UserID: id.UserID, Name: id.Username, TokenType: id.TokenType}, nil
	})

	ws := transport.NewWSHandler(rooms, dispatcher, verifier, time.Minute, &logger)
	stop := make(chan struct{})
	defer close(stop)
	server := transport.NewServer(config.Config{Addr: ":0", ReadHeaderTimeout: time.Second, ShutdownTimeout: time.Second}, authService, ws, &logger, stop)

	ts := httptest.NewServer(server.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		panic(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	fmt.Println("dialed, sending room:join before auth")
	if err := wsjson.Write(ctx, conn, map[string]string{"type": "room:join", "tripId": "trip-1"}); err != nil {
		panic(err)
	}

	var frame map[string]any
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		fmt.Println("read error:", err)
		return
	}
	fmt.Println("got frame:", frame)
}
