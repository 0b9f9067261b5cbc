package ami

import (
	"context"
	"fmt"
)

// Sender is anything that can exchange one action for a raw reply.
type Sender interface {
	SendAction(ctx context.Context, action Action) (string, error)
}

// Do sends the action and scans the reply. A reply that does not indicate
// success is returned together with an error carrying the switch message.
func Do(ctx context.Context, s Sender, action Action) (Response, error) {
	raw, err := s.SendAction(ctx, action)
	if err != nil {
		return Response{}, err
	}
	resp := ParseResponse(raw)
	if !resp.Success() {
		msg := resp.Message()
		if msg == "" {
			msg = "no success response"
		}
		return resp, fmt.Errorf("%s: %s", action.Name, msg)
	}
	return resp, nil
}

// ActiveChannels lists every channel the switch currently knows about.
func ActiveChannels(ctx context.Context, s Sender) ([]string, error) {
	resp, err := Do(ctx, s, NewAction("CoreShowChannels"))
	if err != nil {
		return nil, err
	}
	return resp.Channels(), nil
}

// ConferenceChannels lists the channels that are members of a conference
// room. A room nobody has joined yet is reported by the switch as an error;
// it is returned as an empty list.
func ConferenceChannels(ctx context.Context, s Sender, room string) ([]string, error) {
	raw, err := s.SendAction(ctx, NewAction("ConfbridgeList", "Conference", room))
	if err != nil {
		return nil, err
	}
	resp := ParseResponse(raw)
	if !resp.Success() {
		return nil, nil
	}
	return resp.Channels(), nil
}
