package dialer

import (
	"context"
	"errors"
	"time"

	"github.com/dense-identity/confdialer/internal/callstore"
	"go.uber.org/zap"
)

// errMonitorDone stops a monitor whose call left dialing by another path.
var errMonitorDone = errors.New("call is no longer dialing")

// settleTimeout bounds the store writes that settle a call at shutdown.
const settleTimeout = 5 * time.Second

// startMonitor runs the connection monitor for a dialing call. There is at
// most one monitor per call; it is cancelled by teardown, failure or Close.
// A monitor cut short by Close settles its call before Close returns.
func (e *Engine) startMonitor(rec *callstore.CallRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if _, running := e.monitors[rec.ID]; running {
		return
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.monitors[rec.ID] = cancel
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer e.stopMonitor(rec.ID)
		e.monitor(ctx, rec)
		if errors.Is(context.Cause(ctx), ErrClosed) {
			e.settle(rec)
		}
	}()
}

// settle applies the monitoring policy to a call still dialing when the
// engine shuts down.
func (e *Engine) settle(rec *callstore.CallRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	if !e.opts.Monitor.Strict {
		if _, err := e.markConnected(ctx, rec.ID); err == nil {
			e.log.Info("Shutting down, assuming connected", zap.String("call_id", rec.ID))
		}
		return
	}
	cause := &MonitorError{CallID: rec.ID, Err: ErrClosed}
	failed, err := e.update(ctx, rec.ID, func(r *callstore.CallRecord) error {
		if r.Status != callstore.StatusDialing {
			return errMonitorDone
		}
		return r.Fail(cause.Error(), time.Now().UTC())
	})
	if err != nil {
		return
	}
	e.releaseRoom(ctx, failed.ConferenceRoom, rec.ID)
	e.log.Warn("Call failed", zap.String("call_id", rec.ID), zap.Error(cause))
}

func (e *Engine) stopMonitor(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.monitors[id]; ok {
		cancel()
		delete(e.monitors, id)
	}
}

// MonitorRunning reports whether a connection monitor is active for the call.
func (e *Engine) MonitorRunning(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.monitors[id]
	return ok
}

// monitor polls the switch until both legs are seen, one leg is seen after
// the grace period, or the wait window runs out. The last two outcomes still
// mark the call connected.
func (e *Engine) monitor(ctx context.Context, rec *callstore.CallRecord) {
	p := e.opts.Monitor
	log := e.log.Named("monitor").With(zap.String("call_id", rec.ID), zap.String("room", rec.ConferenceRoom))

	start := time.Now()
	deadline := start.Add(p.MaxWait)
	timeout := time.NewTimer(p.MaxWait)
	defer timeout.Stop()
	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()

	log.Debug("Monitoring call legs")
	failures := 0
	for {
		pollCtx, cancel := context.WithDeadline(ctx, deadline)
		s := e.discover(pollCtx, rec)
		cancel()
		if ctx.Err() != nil {
			return
		}

		err := s.err()
		if err == nil {
			failures = 0
			done, uerr := e.observe(ctx, rec.ID, s.candidates(), time.Since(start))
			if done || errors.Is(uerr, errMonitorDone) || errors.Is(uerr, callstore.ErrNotFound) {
				return
			}
			err = uerr
		}
		if err != nil && time.Now().Before(deadline) {
			failures++
			log.Warn("Poll failed", zap.Int("failures", failures), zap.Error(err))
			if failures >= p.MaxErrors {
				e.giveUp(ctx, rec, &MonitorError{CallID: rec.ID, Failures: failures, Err: err})
				return
			}
		}

		if !time.Now().Before(deadline) {
			e.windowElapsed(ctx, log, rec.ID, start)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-timeout.C:
			e.windowElapsed(ctx, log, rec.ID, start)
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) windowElapsed(ctx context.Context, log *zap.Logger, id string, start time.Time) {
	if _, err := e.markConnected(ctx, id); err == nil {
		log.Info("Wait window elapsed, assuming connected", zap.Duration("waited", time.Since(start)))
	}
}

// observe records the channels seen in one poll and applies the decision
// rule. It reports whether the call is now connected.
func (e *Engine) observe(ctx context.Context, id string, channels []string, elapsed time.Duration) (bool, error) {
	p := e.opts.Monitor
	connect := len(channels) >= 2 || (len(channels) == 1 && elapsed >= p.Grace)

	rec, err := e.update(ctx, id, func(r *callstore.CallRecord) error {
		if r.Status != callstore.StatusDialing {
			return errMonitorDone
		}
		added := r.AddChannels(channels...)
		if !connect {
			if added == 0 {
				return errUnchanged
			}
			return nil
		}
		return r.Transition(callstore.StatusConnected, time.Now().UTC())
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if connect {
		e.log.Info("Call connected",
			zap.String("call_id", id),
			zap.Int("participants", len(channels)),
			zap.Strings("channels", rec.ConnectedChannels),
			zap.Duration("after", elapsed))
	}
	return connect, nil
}

// errUnchanged skips a write when a poll saw nothing new.
var errUnchanged = errors.New("unchanged")

func (e *Engine) markConnected(ctx context.Context, id string) (*callstore.CallRecord, error) {
	return e.update(ctx, id, func(r *callstore.CallRecord) error {
		if r.Status != callstore.StatusDialing {
			return errMonitorDone
		}
		return r.Transition(callstore.StatusConnected, time.Now().UTC())
	})
}

// giveUp applies the monitoring policy to an unrecoverable monitor error.
func (e *Engine) giveUp(ctx context.Context, rec *callstore.CallRecord, merr *MonitorError) {
	if !e.opts.Monitor.Strict {
		if _, err := e.markConnected(ctx, rec.ID); err == nil {
			e.log.Warn("Monitoring failed, assuming connected",
				zap.String("call_id", rec.ID), zap.Error(merr))
		}
		return
	}
	_, _ = e.failCall(ctx, rec.ID, rec.ConferenceRoom, merr)
}
