package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tripsync-app/tripsync-server/internal/auth"
	"github.com/tripsync-app/tripsync-server/internal/config"
	"github.com/tripsync-app/tripsync-server/internal/core"
	"github.com/tripsync-app/tripsync-server/internal/store"
	"github.com/tripsync-app/tripsync-server/internal/store/sqlite"
	transporthttp "github.com/tripsync-app/tripsync-server/internal/transport/http"
)

// App wires the collaboration core, its collaborators, and the transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	stop            chan struct{}
	log             *zerolog.Logger
}

// New constructs the application from configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	rooms := core.NewRegistry(logger)
	dispatcher := core.NewDispatcher(rooms, logger)
	core.RegisterBuiltins(dispatcher, st, logger)

	verifier := core.TokenVerifierFunc(func(ctx context.Context, token string) (core.Identity, error) {
		identity, err := authService.Verify(ctx, token)
		if err != nil {
			return core.Identity{}, err
		}
		return core.Identity{
			UserID:    identity.UserID,
			Name:      identity.Username,
			TokenType: identity.TokenType,
		}, nil
	})

	ws := transporthttp.NewWSHandler(rooms, dispatcher, verifier, cfg.AuthTimeout, logger)

	stop := make(chan struct{})
	server := transporthttp.NewServer(cfg, authService, ws, logger, stop)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		stop:            stop,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or a
// fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

func (a *App) cleanup() {
	close(a.stop)
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
