package v1

import (
	"encoding/json"
	"time"
)

// Envelope is the canonical, versioned event envelope broadcast to meeting
// channels. The partition key is always the meeting (channel) id.
// This package is contract-only and must stay backward compatible.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

// Event types shared by the protocol engine and the realtime coordinator.
const (
	EventTypeProtocol                = "Protocol"
	EventTypeMeeting                 = "Meeting"
	EventTypeUpdatedNotes            = "UpdatedNotes"
	EventTypeUpdatedSummaryItems     = "UpdatedSummaryItems"
	EventTypeProtocolItem            = "ProtocolItem"
	EventTypeProtocolUserActivity    = "ProtocolUserActivity"
	EventTypeProtocolUserState       = "ProtocolUserState"
	EventTypeProtocolUserStateReq    = "ProtocolUserStateRequest"
	EventTypeProtocolUserStateResult = "ProtocolUserStateSummary"
)
