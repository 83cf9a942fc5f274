package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tripsync-app/tripsync-server/internal/auth"
	"github.com/tripsync-app/tripsync-server/internal/config"
)

// authAttemptsPerMinute caps credential-guessing traffic on the auth routes.
const authAttemptsPerMinute = 60

// NewServer builds the HTTP server: the REST auth surface plus the
// collaboration WebSocket entry point.
func NewServer(cfg config.Config, authService *auth.Service, ws *WSHandler, logger *zerolog.Logger, stop <-chan struct{}) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	limiter := newRateLimiter(authAttemptsPerMinute)
	limiter.startReset(stop)

	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	authHandlers := NewAuthHandlers(authService, limiter, logger)
	api := router.Group("/api")
	api.POST("/auth/register", authHandlers.Register)
	api.POST("/auth/login", authHandlers.Login)
	api.POST("/auth/guest", authHandlers.Guest)
	api.GET("/me", AuthMiddleware(authService, logger), authHandlers.Me)

	router.GET("/ws", gin.WrapH(ws))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
