package callstore

import (
	"fmt"
	"slices"
	"time"
)

// CallRecord is the orchestration state of one bridged call.
type CallRecord struct {
	ID     string `json:"id"`
	Status Status `json:"status"`

	CallerID       string `json:"caller_id"`
	Destination    string `json:"destination"`
	OriginEndpoint string `json:"origin_endpoint"`
	TrunkEndpoint  string `json:"trunk_endpoint"`

	ConferenceRoom    string   `json:"conference_room,omitempty"`
	AgentActionID     string   `json:"agent_action_id,omitempty"`
	CustomerActionID  string   `json:"customer_action_id,omitempty"`
	ConnectedChannels []string `json:"connected_channels,omitempty"`

	AudioAssetRef string `json:"audio_asset_ref,omitempty"`
	AudioFileID   string `json:"audio_file_id,omitempty"`
	Message       string `json:"message,omitempty"`
	Voice         string `json:"voice,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Error string `json:"error,omitempty"`
}

// Clone returns a deep copy.
func (r *CallRecord) Clone() *CallRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.ConnectedChannels = slices.Clone(r.ConnectedChannels)
	if r.StartTime != nil {
		t := *r.StartTime
		c.StartTime = &t
	}
	if r.EndTime != nil {
		t := *r.EndTime
		c.EndTime = &t
	}
	return &c
}

// IsActive reports whether the call has not reached a terminal state.
func (r *CallRecord) IsActive() bool {
	return !r.Status.IsTerminal()
}

// Transition moves the record to the given state. Entering dialing stamps the
// start time, entering a terminal state stamps the end time.
func (r *CallRecord) Transition(to Status, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = now
	if to == StatusDialing && r.StartTime == nil {
		t := now
		r.StartTime = &t
	}
	if to.IsTerminal() {
		t := now
		r.EndTime = &t
	}
	return nil
}

// Fail moves the record to failed and keeps the reason.
func (r *CallRecord) Fail(reason string, now time.Time) error {
	if err := r.Transition(StatusFailed, now); err != nil {
		return err
	}
	r.Error = reason
	return nil
}

// AssignRoom sets the conference room once. Assigning the same room again is
// a no-op; assigning a different one fails with ErrRoomAssigned.
func (r *CallRecord) AssignRoom(room string) error {
	if r.ConferenceRoom == room {
		return nil
	}
	if r.ConferenceRoom != "" {
		return fmt.Errorf("%w: call %s already uses room %s", ErrRoomAssigned, r.ID, r.ConferenceRoom)
	}
	r.ConferenceRoom = room
	return nil
}

// AddChannels merges channels into the observed set and returns how many
// were new. The set never shrinks.
func (r *CallRecord) AddChannels(channels ...string) int {
	added := 0
	for _, ch := range channels {
		if ch == "" || slices.Contains(r.ConnectedChannels, ch) {
			continue
		}
		r.ConnectedChannels = append(r.ConnectedChannels, ch)
		added++
	}
	return added
}
