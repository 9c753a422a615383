package session

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted is returned by Run when the session has already run.
var ErrAlreadyStarted = errors.New("session already started")

// ErrNoBody is returned by Run when the transport opens without error but
// yields no stream.
var ErrNoBody = errors.New("transport returned no body")

// RemoteError is an error reported by the server through an error envelope.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: %s", e.Message)
}
