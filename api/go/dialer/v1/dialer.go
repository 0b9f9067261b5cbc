// Package dialerv1 is the wire contract of the dialer service. Messages are
// carried with the JSON codec in codec.go; single-value requests use the
// protobuf wrapper types.
package dialerv1

type PlaceCallRequest struct {
	CallerID      string `json:"caller_id,omitempty"`
	Destination   string `json:"destination"`
	AgentEndpoint string `json:"agent_endpoint"`
	Trunk         string `json:"trunk"`
	Message       string `json:"message,omitempty"`
	Voice         string `json:"voice,omitempty"`
	AudioFileID   string `json:"audio_file_id,omitempty"`
}

type Call struct {
	ID                string   `json:"id"`
	Status            string   `json:"status"`
	CallerID          string   `json:"caller_id,omitempty"`
	Destination       string   `json:"destination"`
	AgentEndpoint     string   `json:"agent_endpoint"`
	Trunk             string   `json:"trunk"`
	ConferenceRoom    string   `json:"conference_room,omitempty"`
	AgentActionID     string   `json:"agent_action_id,omitempty"`
	CustomerActionID  string   `json:"customer_action_id,omitempty"`
	ConnectedChannels []string `json:"connected_channels,omitempty"`
	AudioFileID       string   `json:"audio_file_id,omitempty"`
	Error             string   `json:"error,omitempty"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
	StartTime         string   `json:"start_time,omitempty"`
	EndTime           string   `json:"end_time,omitempty"`
}

type ListCallsResponse struct {
	Calls []*Call `json:"calls"`
}

type PlayAudioResponse struct {
	CallID   string `json:"call_id"`
	Channel  string `json:"channel"`
	Strategy string `json:"strategy"`
}
