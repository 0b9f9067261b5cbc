package dialer

import (
	"context"
	"errors"
	"time"

	"github.com/dense-identity/confdialer/internal/ami"
	"github.com/dense-identity/confdialer/internal/asteriskcli"
	"github.com/dense-identity/confdialer/internal/callstore"
	"github.com/dense-identity/confdialer/internal/datetime"
	"github.com/dense-identity/confdialer/internal/helpers"
	"go.uber.org/zap"
)

// hangupTimeout bounds a shared teardown once it no longer follows any one
// caller's context.
const hangupTimeout = 15 * time.Second

// roomGoneMarker is how the switch answers a kick for a room nobody is in.
const roomGoneMarker = "no conference by that name"

// Hangup evicts everyone from the call's conference and completes the call.
// Concurrent hangups of one call share a single eviction. A completed call
// returns ErrAlreadyCompleted and a failed one ErrAlreadyEnded, both without
// touching the switch. The shared teardown runs to completion even when the
// caller that started it goes away; each caller stops waiting on its own ctx.
func (e *Engine) Hangup(ctx context.Context, callID string) (*callstore.CallRecord, error) {
	ch := e.teardowns.DoChan(callID, func() (any, error) {
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hangupTimeout)
		defer cancel()
		return e.hangup(tctx, callID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		rec, _ := res.Val.(*callstore.CallRecord)
		return rec.Clone(), res.Err
	}
}

func (e *Engine) hangup(ctx context.Context, callID string) (*callstore.CallRecord, error) {
	rec, err := e.store.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case callstore.StatusCompleted:
		return rec, ErrAlreadyCompleted
	case callstore.StatusFailed:
		return rec, ErrAlreadyEnded
	case callstore.StatusInitiated:
		return rec, &InvalidStateError{CallID: callID, Status: rec.Status, Op: "hang up", Reason: "legs are not dialed yet"}
	}

	if err := e.evict(ctx, rec); err != nil {
		return rec, &TeardownError{CallID: callID, Room: rec.ConferenceRoom, Err: err}
	}
	e.stopMonitor(callID)

	updated, err := e.update(ctx, callID, func(r *callstore.CallRecord) error {
		if r.Status == callstore.StatusCompleted {
			return ErrAlreadyCompleted
		}
		return r.Transition(callstore.StatusCompleted, time.Now().UTC())
	})
	if err != nil {
		return rec, err
	}
	e.releaseRoom(ctx, updated.ConferenceRoom, callID)

	e.log.Info("Call completed",
		zap.String("call_id", callID),
		zap.String("room", updated.ConferenceRoom),
		zap.Duration("duration", datetime.Since(updated.StartTime, time.Now())))
	return updated, nil
}

// evict kicks every participant out of the room. A switch that no longer
// knows the room reports it as missing, which counts as already empty.
func (e *Engine) evict(ctx context.Context, rec *callstore.CallRecord) error {
	room := rec.ConferenceRoom
	var errs []error

	if sess, err := e.sw.Connect(ctx); err != nil {
		errs = append(errs, err)
	} else {
		defer sess.Close()
		resp, err := ami.Do(ctx, sess, ami.NewAction("ConfbridgeKick", "Conference", room, "Channel", "all"))
		if err == nil {
			return nil
		}
		if helpers.ContainsFold(resp.Message(), roomGoneMarker) {
			e.log.Debug("Conference already empty", zap.String("call_id", rec.ID), zap.String("room", room))
			return nil
		}
		errs = append(errs, err)
	}

	if e.cli != nil {
		_, err := e.cli.Run(ctx, asteriskcli.KickAll(room))
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
