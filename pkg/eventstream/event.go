package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/TencentCloudADP/adp-chat-client/pkg/record"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnFinished is emitted after a relayed turn reaches a
	// terminal state.
	EventTypeTurnFinished = "adpchat.turn.finished"
)

// TurnFinishedEvent is a transport-neutral event payload for a finished turn.
type TurnFinishedEvent struct {
	SchemaVersion int                  `json:"schema_version"`
	EventType     string               `json:"event_type"`
	EventID       string               `json:"event_id"`
	EmittedAt     time.Time            `json:"emitted_at"`
	Source        EventSource          `json:"source"`
	RequestMeta   TurnRequestMeta      `json:"request_meta"`
	Conversation  *record.Conversation `json:"conversation,omitempty"`
	Record        record.Record        `json:"record"`
}

// EventSource identifies where the turn was relayed from.
type EventSource struct {
	Upstream      string `json:"upstream"`
	ApplicationID string `json:"application_id,omitempty"`
}

// TurnRequestMeta captures request lifecycle metadata for the event.
type TurnRequestMeta struct {
	SessionID   string    `json:"session_id"`
	Path        string    `json:"path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	HTTPStatus  int       `json:"http_status"`

	// State is the terminal session state: completed, failed or cancelled.
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// NewTurnFinishedEvent stamps a new event with an id and emission time.
func NewTurnFinishedEvent(source EventSource, meta TurnRequestMeta, conv *record.Conversation, rec record.Record) *TurnFinishedEvent {
	return &TurnFinishedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnFinished,
		EventID:       uuid.New().String(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		RequestMeta:   meta,
		Conversation:  conv,
		Record:        rec,
	}
}

// Key returns the partitioning key of the event. Turns of one conversation
// share a key so that brokers keep them ordered.
func (e *TurnFinishedEvent) Key() string {
	if e.Conversation != nil && e.Conversation.ID != "" {
		return e.Conversation.ID
	}
	return e.RequestMeta.SessionID
}
