package entities

import "time"

// Session is the coordinator's view of one client connection.
type Session struct {
	ConnID        string
	MeetingID     string
	ParticipantID string
	ConnectedAt   time.Time
}

func (s Session) Joined() bool {
	return s.MeetingID != ""
}

func (s Session) Authenticated() bool {
	return s.ParticipantID != ""
}

// UserActivity is the transient "done with this phase" signal of a participant.
type UserActivity struct {
	ParticipantID string `json:"participant_id"`
	ProtocolID    string `json:"protocol_id"`
	IsDone        bool   `json:"is_done"`
}

// UserStateRequest asks every peer on the channel for its done state.
type UserStateRequest struct {
	RequestID   string `json:"request_id"`
	SessionID   string `json:"session_id"`
	ProtocolID  string `json:"protocol_id"`
	RequesterID string `json:"requester_id"`
}

// UserState is one peer's answer to a UserStateRequest.
type UserState struct {
	RequestID     string `json:"request_id"`
	ParticipantID string `json:"participant_id"`
	ProtocolID    string `json:"protocol_id"`
	IsDone        bool   `json:"is_done"`
}

// UserStateSummary aggregates the answers collected for one request. It is
// sent to the requester only.
type UserStateSummary struct {
	RequestID  string      `json:"request_id"`
	SessionID  string      `json:"session_id"`
	ProtocolID string      `json:"protocol_id"`
	States     []UserState `json:"states"`
	Missing    []string    `json:"missing"`
	DoneCount  int         `json:"done_count"`
	TimedOut   bool        `json:"timed_out"`
}
