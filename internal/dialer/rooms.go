package dialer

import (
	"context"

	"go.uber.org/zap"
)

const roomAttempts = 10

// reserveRoom picks a random room id that no other active call holds.
func (e *Engine) reserveRoom(ctx context.Context, callID string) (string, error) {
	for i := 0; i < roomAttempts; i++ {
		room, err := e.newRoom()
		if err != nil {
			return "", err
		}
		ok, err := e.store.ReserveRoom(ctx, room, callID)
		if err != nil {
			return "", err
		}
		if ok {
			return room, nil
		}
		e.log.Debug("Conference room taken, retrying", zap.String("room", room))
	}
	return "", ErrNoRoom
}

func (e *Engine) releaseRoom(ctx context.Context, room, callID string) {
	if err := e.store.ReleaseRoom(ctx, room, callID); err != nil {
		e.log.Warn("Could not release conference room",
			zap.String("call_id", callID), zap.String("room", room), zap.Error(err))
	}
}
