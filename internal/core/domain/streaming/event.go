package streaming

import (
	"encoding/json"
	"fmt"
	"time"
)

// UpdateEventKind represents the kind of update pushed by the backend
type UpdateEventKind string

const (
	UpdateEventItemAdded   UpdateEventKind = "item.added"
	UpdateEventItemUpdated UpdateEventKind = "item.updated"
	UpdateEventItemRemoved UpdateEventKind = "item.removed"
	UpdateEventHeartbeat   UpdateEventKind = "heartbeat"
)

// UpdateEvent is the versioned envelope for one update pushed by the
// backend over the event stream. The payload is schema-defined per kind
// and stays opaque at this level; unknown kinds pass through so the client
// keeps working against newer backends.
type UpdateEvent struct {
	SchemaVersion int             `json:"schemaVersion"`
	Kind          UpdateEventKind `json:"kind"`
	Seq           int64           `json:"seq"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// DecodeUpdateEvent parses the joined data payload of one stream frame
// into an UpdateEvent. It rejects payloads that are not JSON objects or
// that lack a kind, since those cannot be dispatched to any consumer.
func DecodeUpdateEvent(data []byte) (UpdateEvent, error) {
	var event UpdateEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return UpdateEvent{}, fmt.Errorf("invalid update event payload: %w", err)
	}
	if event.Kind == "" {
		return UpdateEvent{}, fmt.Errorf("update event has no kind")
	}
	return event, nil
}
