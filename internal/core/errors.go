package core

// Error codes surfaced to clients in error replies.
const (
	ErrCodeAuthRequired = "auth_required"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotInRoom    = "not_in_room"
	ErrCodeHandlerFail  = "handler_failed"
)

// CollabError carries a machine code alongside the human-readable message
// sent back to the offending client. Handlers may return one to control the
// reply; any other error becomes a generic handler failure.
type CollabError struct {
	Code    string
	Message string
}

func (e *CollabError) Error() string {
	return e.Message
}

// NewCollabError builds a coded domain error.
func NewCollabError(code, msg string) *CollabError {
	return &CollabError{Code: code, Message: msg}
}
