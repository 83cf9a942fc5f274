package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tripsync-app/tripsync-server/internal/auth"
)

// AuthHandlers issues the bearer tokens the collaboration handshake consumes.
type AuthHandlers struct {
	authService *auth.Service
	limiter     *rateLimiter
	log         *zerolog.Logger
}

// NewAuthHandlers creates the REST auth surface.
func NewAuthHandlers(authService *auth.Service, limiter *rateLimiter, logger *zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		limiter:     limiter,
		log:         logger,
	}
}

// RegisterRequest is the registration request body.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest is the login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// GuestRequest is the guest token request body.
type GuestRequest struct {
	DisplayName string `json:"displayName"`
}

// AuthResponse carries a freshly issued bearer token.
type AuthResponse struct {
	Token string `json:"token"`
}

// ErrorResponse is the REST error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandlers) Register(c *gin.Context) {
	if !h.limiter.allow() {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
		return
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "username already taken"})
		case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Msg("register failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "registration failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{Token: token})
}

// Login handles POST /api/auth/login.
func (h *AuthHandlers) Login(c *gin.Context) {
	if !h.limiter.allow() {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Msg("login failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "login failed"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token})
}

// Guest handles POST /api/auth/guest: a throwaway identity for link-invited
// collaborators.
func (h *AuthHandlers) Guest(c *gin.Context) {
	if !h.limiter.allow() {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
		return
	}

	// Body is optional for guests.
	var req GuestRequest
	_ = c.ShouldBindJSON(&req)

	token, err := h.authService.Guest(c.Request.Context(), req.DisplayName)
	if err != nil {
		h.log.Error().Err(err).Msg("guest token failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "guest token failed"})
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{Token: token})
}

// Me handles GET /api/me for a token sanity check.
func (h *AuthHandlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"userId":    c.GetString(ContextKeyUserID),
		"username":  c.GetString(ContextKeyUsername),
		"tokenType": c.GetString(ContextKeyTokenType),
	})
}
