package dialer

import (
	"errors"
	"fmt"

	"github.com/dense-identity/confdialer/internal/callstore"
)

var (
	ErrAlreadyCompleted = errors.New("call already completed")
	ErrAlreadyEnded     = errors.New("call already ended")
	ErrInvalidRequest   = errors.New("invalid call request")
	ErrNoRoom           = errors.New("no free conference room")
	ErrClosed           = errors.New("dialer is shut down")
)

// OriginationError reports a leg the switch would not dial.
type OriginationError struct {
	CallID  string
	Leg     string
	Channel string
	Err     error
}

func (e *OriginationError) Error() string {
	return fmt.Sprintf("could not dial the %s leg (%s): %v", e.Leg, e.Channel, e.Err)
}

func (e *OriginationError) Unwrap() error { return e.Err }

// MonitorError reports that connection monitoring gave up after repeated
// polling failures.
type MonitorError struct {
	CallID   string
	Failures int
	Err      error
}

func (e *MonitorError) Error() string {
	if e.Failures == 0 {
		return fmt.Sprintf("connection monitoring stopped: %v", e.Err)
	}
	return fmt.Sprintf("connection monitoring failed %d times in a row: %v", e.Failures, e.Err)
}

func (e *MonitorError) Unwrap() error { return e.Err }

// PlaybackError reports that every playback strategy was exhausted.
type PlaybackError struct {
	CallID   string
	Attempts int
	Err      error
}

func (e *PlaybackError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("playback for call %s: %v", e.CallID, e.Err)
	}
	return fmt.Sprintf("playback for call %s failed after %d attempts: %v", e.CallID, e.Attempts, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// TeardownError reports that participants could not be evicted. The call
// record is left as it was.
type TeardownError struct {
	CallID string
	Room   string
	Err    error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("could not clear conference %s for call %s: %v", e.Room, e.CallID, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }

// InvalidStateError reports an operation the call is not ready for.
type InvalidStateError struct {
	CallID string
	Status callstore.Status
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s call %s: %s", e.Op, e.CallID, e.Reason)
	}
	return fmt.Sprintf("cannot %s call %s in status %s", e.Op, e.CallID, e.Status)
}
