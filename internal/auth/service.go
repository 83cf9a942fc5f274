package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tripsync-app/tripsync-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when registering an existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when a username fails constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when a password fails constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Identity is what a verified bearer token resolves to.
type Identity struct {
	UserID    string
	Username  string
	TokenType string
}

// Service issues and verifies the bearer tokens the collaboration handshake
// consumes.
type Service struct {
	store store.UserStore
	jwt   *JWTConfig
}

// NewService creates an authentication service backed by the user store.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{store: userStore, jwt: jwtConfig}
}

// Register creates a new user with a hashed password and returns a token.
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return "", ErrInvalidUsername
	}
	if len(password) < 6 {
		return "", ErrInvalidPassword
	}

	if existing, err := s.store.GetUserByUsername(ctx, username); err == nil && existing != nil {
		return "", ErrUserExists
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user := &store.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	return GenerateToken(s.jwt, user.ID, user.Username, TokenTypeAccess)
}

// Login validates credentials and returns a fresh token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("get user: %w", err)
	}
	if user.IsGuest || ComparePassword(user.PasswordHash, password) != nil {
		return "", ErrInvalidCredentials
	}

	return GenerateToken(s.jwt, user.ID, user.Username, TokenTypeAccess)
}

// Guest creates a throwaway guest user and returns its token. Guests carry
// no password and cannot log back in once the token expires.
func (s *Service) Guest(ctx context.Context, displayName string) (string, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = "guest"
	}

	user := &store.User{
		ID:       uuid.NewString(),
		Username: fmt.Sprintf("%s-%s", displayName, uuid.NewString()[:8]),
		IsGuest:  true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return "", fmt.Errorf("create guest: %w", err)
	}

	return GenerateToken(s.jwt, user.ID, user.Username, TokenTypeGuest)
}

// Verify resolves a bearer token to the identity it was issued for. This is
// the token collaborator the connection handshake calls.
func (s *Service) Verify(_ context.Context, tokenString string) (*Identity, error) {
	claims, err := ValidateToken(s.jwt, tokenString)
	if err != nil {
		return nil, err
	}
	return &Identity{
		UserID:    claims.UserID,
		Username:  claims.Username,
		TokenType: claims.TokenType,
	}, nil
}
