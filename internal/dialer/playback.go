package dialer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dense-identity/confdialer/internal/ami"
	"github.com/dense-identity/confdialer/internal/asteriskcli"
	"github.com/dense-identity/confdialer/internal/callstore"
	"go.uber.org/zap"
)

const (
	strategyManager = "manager"
	strategyConsole = "console"
)

var errNoChannels = errors.New("no channels to play into")

// PlaybackResult says where the audio ended up.
type PlaybackResult struct {
	CallID   string
	Channel  string
	Strategy string
	Targets  []string
}

// PlayAudio plays the call's audio asset into its conference. The call
// status is never changed; a failed attempt can be retried.
func (e *Engine) PlayAudio(ctx context.Context, callID string) (*PlaybackResult, error) {
	rec, err := e.store.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case callstore.StatusDialing, callstore.StatusConnected:
	default:
		return nil, &InvalidStateError{CallID: callID, Status: rec.Status, Op: "play audio for"}
	}
	if rec.ConferenceRoom == "" {
		return nil, &InvalidStateError{CallID: callID, Status: rec.Status, Op: "play audio for", Reason: "no conference room"}
	}
	if rec.AudioAssetRef == "" {
		return nil, &InvalidStateError{CallID: callID, Status: rec.Status, Op: "play audio for", Reason: "no audio asset"}
	}
	log := e.log.With(zap.String("call_id", callID), zap.String("room", rec.ConferenceRoom))

	targets, err := e.playbackTargets(ctx, rec)
	if err != nil {
		return nil, &PlaybackError{CallID: callID, Err: err}
	}

	attempts := 0
	ch, n, err := e.playViaManager(ctx, rec, targets)
	attempts += n
	if err == nil {
		log.Info("Audio played", zap.String("channel", ch), zap.String("strategy", strategyManager))
		return &PlaybackResult{CallID: callID, Channel: ch, Strategy: strategyManager, Targets: targets}, nil
	}
	lastErr := err
	log.Debug("Manager playback failed, trying console", zap.Error(err))

	if e.cli != nil {
		for _, ch := range targets {
			attempts++
			if _, err := e.cli.Run(ctx, asteriskcli.PlayToChannel(ch, rec.AudioAssetRef)); err != nil {
				lastErr = err
				continue
			}
			log.Info("Audio played", zap.String("channel", ch), zap.String("strategy", strategyConsole))
			return &PlaybackResult{CallID: callID, Channel: ch, Strategy: strategyConsole, Targets: targets}, nil
		}
	}

	return nil, &PlaybackError{CallID: callID, Attempts: attempts, Err: lastErr}
}

// playbackTargets picks the channels to play into: room members first, then
// channels matching the call's endpoints, and as a last resort every active
// channel if there are few enough of them.
func (e *Engine) playbackTargets(ctx context.Context, rec *callstore.CallRecord) ([]string, error) {
	s := e.discover(ctx, rec)

	if targets := s.roomChannels(); len(targets) > 0 {
		return targets, nil
	}
	if len(s.matched) > 0 {
		return s.matched, nil
	}
	if len(s.active) == 0 {
		if err := s.err(); err != nil {
			return nil, fmt.Errorf("%w: %v", errNoChannels, err)
		}
		return nil, errNoChannels
	}
	if len(s.active) > e.opts.BroadcastCap {
		return nil, fmt.Errorf("%w: %d unrelated active channels exceed the broadcast cap of %d",
			errNoChannels, len(s.active), e.opts.BroadcastCap)
	}
	e.log.Warn("No channels tied to call, broadcasting to all active channels",
		zap.String("call_id", rec.ID), zap.Int("channels", len(s.active)))
	return s.active, nil
}

// playViaManager asks the switch to run the playback application on each
// target in turn until one accepts. It returns the channel and the number
// of attempts made.
func (e *Engine) playViaManager(ctx context.Context, rec *callstore.CallRecord, targets []string) (string, int, error) {
	sess, err := e.sw.Connect(ctx)
	if err != nil {
		return "", 0, err
	}
	defer sess.Close()

	attempts := 0
	lastErr := errNoChannels
	for _, ch := range targets {
		attempts++
		_, err := ami.Do(ctx, sess, ami.NewAction("Originate",
			"Channel", ch,
			"Application", e.opts.PlaybackApp,
			"Data", rec.AudioAssetRef,
			"Async", "true",
		))
		if err == nil {
			return ch, attempts, nil
		}
		lastErr = err
		if errors.Is(err, ami.ErrClientBroken) {
			break
		}
	}
	return "", attempts, lastErr
}
