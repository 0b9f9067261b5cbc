package dialer

import (
	"context"
	"errors"
	"strings"

	"github.com/dense-identity/confdialer/internal/ami"
	"github.com/dense-identity/confdialer/internal/asteriskcli"
	"github.com/dense-identity/confdialer/internal/callstore"
	"go.uber.org/zap"
)

// sighting is what the switch reported about a call's channels in one
// discovery pass.
type sighting struct {
	// every channel on the switch
	active []string
	// conference members from the manager listing
	members []string
	// active channels whose name contains the agent or destination endpoint
	matched []string
	// channel tokens parsed from the console listing of the room
	console []string

	answered bool
	errs     []error
}

// roomChannels are the channels known to be in the conference.
func (s sighting) roomChannels() []string {
	return union(s.members, s.console)
}

// candidates are all channels that plausibly belong to the call.
func (s sighting) candidates() []string {
	return union(s.matched, s.members, s.console)
}

// err is non-nil only when no source answered at all.
func (s sighting) err() error {
	if s.answered {
		return nil
	}
	if len(s.errs) == 0 {
		return errors.New("no channel source available")
	}
	return errors.Join(s.errs...)
}

// discover queries the manager interface for active channels and room
// members, and falls back to the console listing when that yields nothing.
// The session is opened and closed here.
func (e *Engine) discover(ctx context.Context, rec *callstore.CallRecord) sighting {
	var s sighting

	sess, err := e.sw.Connect(ctx)
	if err != nil {
		s.errs = append(s.errs, err)
	} else {
		active, err := ami.ActiveChannels(ctx, sess)
		if err != nil {
			s.errs = append(s.errs, err)
		} else {
			s.active = active
			s.answered = true
		}

		members, err := ami.ConferenceChannels(ctx, sess, rec.ConferenceRoom)
		if err != nil {
			s.errs = append(s.errs, err)
		} else {
			s.members = members
			s.answered = true
		}
		_ = sess.Close()
	}

	s.matched = matchEndpoints(s.active, rec.OriginEndpoint, rec.Destination)

	if len(s.candidates()) == 0 && e.cli != nil && rec.ConferenceRoom != "" {
		out, err := e.cli.Run(ctx, asteriskcli.ListConference(rec.ConferenceRoom))
		if err != nil {
			s.errs = append(s.errs, err)
		} else {
			s.console = asteriskcli.ParseChannels(out)
			s.answered = true
		}
	}

	if len(s.errs) > 0 {
		e.log.Debug("Channel discovery degraded",
			zap.String("call_id", rec.ID),
			zap.Bool("answered", s.answered),
			zap.Error(errors.Join(s.errs...)))
	}
	return s
}

// matchEndpoints keeps the channels whose identifier contains any of the
// endpoints. Short numeric endpoints can match unrelated channels.
func matchEndpoints(channels []string, endpoints ...string) []string {
	var out []string
	for _, ch := range channels {
		for _, ep := range endpoints {
			if ep != "" && strings.Contains(ch, ep) {
				out = append(out, ch)
				break
			}
		}
	}
	return out
}

func union(sets ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range sets {
		for _, v := range set {
			if _, ok := seen[v]; ok || v == "" {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
