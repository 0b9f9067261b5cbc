package ami

import (
	"errors"
	"fmt"
)

// ErrClientBroken is returned when a client is used after a failure or Close.
var ErrClientBroken = errors.New("ami: connection is not reusable")

// ConnectionError reports that the switch could not be reached or that the
// control channel failed mid-stream.
type ConnectionError struct {
	Addr string
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ami %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthenticationError reports a rejected Login.
type AuthenticationError struct {
	Username string
	Message  string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ami login rejected for %q", e.Username)
	}
	return fmt.Sprintf("ami login rejected for %q: %s", e.Username, e.Message)
}
