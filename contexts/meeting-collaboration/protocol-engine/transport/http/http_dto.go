package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Caller identifies who sent a request and on which meeting channel.
type Caller struct {
	ParticipantID string
	MeetingID     string
	RequestID     string
}

type CreateProtocolRequest struct {
	ProtocolTypeID string         `json:"protocol_type_id"`
	Title          string         `json:"title"`
	Data           map[string]any `json:"data,omitempty"`
}

type PhaseRequest struct {
	ProtocolID string `json:"protocol_id"`
	Force      bool   `json:"force,omitempty"`
}

type SetReadyRequest struct {
	ProtocolID string `json:"protocol_id"`
	Ready      bool   `json:"ready"`
}

type CreateItemRequest struct {
	ProtocolID string         `json:"protocol_id"`
	Text       string         `json:"text"`
	Tags       []string       `json:"tags,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	ParentID   string         `json:"parent_id,omitempty"`
}

type CreateItemGroupRequest struct {
	ProtocolID string         `json:"protocol_id"`
	Text       string         `json:"text"`
	Tags       []string       `json:"tags,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	ItemIDs    []string       `json:"item_ids,omitempty"`
}

type UpdateItemRequest struct {
	ItemID string   `json:"protocol_item_id"`
	Text   string   `json:"text"`
	Tags   []string `json:"tags,omitempty"`
}

type SetItemParentRequest struct {
	ItemID   string `json:"protocol_item_id"`
	ParentID string `json:"parent_id"`
}

type SetItemsParentRequest struct {
	ItemIDs  []string `json:"protocol_item_ids"`
	ParentID string   `json:"parent_id"`
}

// PrioritizeItemRequest carries either should_prioritize (true forces the
// item in, false forces it out, null clears) or the explicit flag pair.
type PrioritizeItemRequest struct {
	ItemID                    string `json:"protocol_item_id"`
	ShouldPrioritize          *bool  `json:"should_prioritize"`
	IsForcefullyPrioritized   bool   `json:"is_forcefully_prioritized,omitempty"`
	IsForcefullyDeprioritized bool   `json:"is_forcefully_deprioritized,omitempty"`
}

type DeleteItemRequest struct {
	ItemID string `json:"protocol_item_id"`
}

type CreateItemActionRequest struct {
	ItemID     string `json:"protocol_item_id"`
	ActionType string `json:"action_type,omitempty"`
}

type DeleteItemActionRequest struct {
	ActionID string `json:"protocol_item_action_id"`
}

type ReviewResultsRequest struct {
	ProtocolID string `json:"protocol_id"`
}

type PhaseResponse struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Index        int            `json:"index"`
	Kind         string         `json:"kind"`
	IsCollective bool           `json:"is_collective"`
	Data         map[string]any `json:"data,omitempty"`
}

type ProtocolTypeResponse struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Strategy string          `json:"strategy"`
	Phases   []PhaseResponse `json:"phases"`
}

type ProtocolResponse struct {
	ID                  string         `json:"id"`
	MeetingID           string         `json:"meeting_id"`
	TypeID              string         `json:"type_id"`
	CreatorID           string         `json:"creator_id"`
	Title               string         `json:"title"`
	CurrentPhaseIndex   int            `json:"current_phase_index"`
	CurrentPhase        *PhaseResponse `json:"current_phase,omitempty"`
	IsCompleted         bool           `json:"is_completed"`
	ReadyForNextPhase   bool           `json:"ready_for_next_phase"`
	LastPhaseChangeDate time.Time      `json:"last_phase_change_date"`
	Data                map[string]any `json:"data,omitempty"`
}

type ItemResponse struct {
	ID                        string         `json:"id"`
	Kind                      string         `json:"kind"`
	CreatorID                 string         `json:"creator_id"`
	ProtocolID                string         `json:"protocol_id"`
	ProtocolPhaseID           string         `json:"protocol_phase_id"`
	Text                      string         `json:"text"`
	Tags                      []string       `json:"tags"`
	Data                      map[string]any `json:"data,omitempty"`
	ParentID                  string         `json:"parent_id,omitempty"`
	IsForcefullyPrioritized   bool           `json:"is_forcefully_prioritized"`
	IsForcefullyDeprioritized bool           `json:"is_forcefully_deprioritized"`
	VoteCount                 int            `json:"vote_count,omitempty"`
	CreatedAt                 time.Time      `json:"created_at"`
}

type ItemsResponse struct {
	ProtocolID string         `json:"protocol_id"`
	Items      []ItemResponse `json:"items"`
}

type ActionResponse struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	CreatorID       string    `json:"creator_id"`
	ProtocolItemID  string    `json:"protocol_item_id"`
	ProtocolPhaseID string    `json:"protocol_phase_id"`
	CreatedAt       time.Time `json:"created_at"`
}

type ResultRowResponse struct {
	ItemResponse
	IsPrioritized   bool   `json:"is_prioritized"`
	IsReprioritized bool   `json:"is_reprioritized"`
	IsDeprioritized bool   `json:"is_deprioritized"`
	Bucket          string `json:"bucket,omitempty"`
}

type ReviewResultsResponse struct {
	ProtocolID string              `json:"protocol_id"`
	Strategy   string              `json:"strategy"`
	Items      []ResultRowResponse `json:"items"`
}

type DeletedResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}
