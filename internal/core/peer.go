package core

import "context"

// Peer is the transport-side handle for one live connection as seen by the
// collaboration core. Implementations must make Send safe to call from any
// goroutine and must never block on a slow consumer.
type Peer interface {
	// Send queues an already-serialized frame for delivery. It returns an
	// error if the frame cannot be queued (closed connection, full buffer).
	Send(data []byte) error

	// Terminate force-closes the underlying connection with a policy
	// violation status. Used for auth timeout and verification failure.
	Terminate(reason string)
}

// Identity is what the token collaborator yields for a valid credential.
type Identity struct {
	UserID    string
	Name      string
	TokenType string
}

// TokenVerifier validates the bearer credential presented during the
// connection handshake.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// TokenVerifierFunc adapts a plain function to TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, token string) (Identity, error)

// Verify implements TokenVerifier.
func (f TokenVerifierFunc) Verify(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}
