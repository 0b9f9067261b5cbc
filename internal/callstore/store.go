// Package callstore keeps call records and conference room reservations.
package callstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("call not found")
	ErrExists            = errors.New("call already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRoomAssigned      = errors.New("conference room already assigned")
)

// Store persists call records. Update is an atomic read-modify-write per call
// id: fn sees the latest record, and nothing is written if it returns an
// error.
type Store interface {
	Create(ctx context.Context, rec *CallRecord) error
	Get(ctx context.Context, id string) (*CallRecord, error)
	Update(ctx context.Context, id string, fn func(*CallRecord) error) (*CallRecord, error)
	// ListRecent returns up to limit records, newest first.
	ListRecent(ctx context.Context, limit int) ([]*CallRecord, error)

	// ReserveRoom claims a conference room for a call. It returns false when
	// another call holds it.
	ReserveRoom(ctx context.Context, room, callID string) (bool, error)
	// ReleaseRoom frees a room, but only if callID still holds it.
	ReleaseRoom(ctx context.Context, room, callID string) error

	Close() error
}
