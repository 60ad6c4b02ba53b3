package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/escaperoom/go/internal/game/session"
)

// Event is the envelope published for every session change
type Event struct {
	EventID   uuid.UUID       `json:"eventId"`
	EventType string          `json:"eventType"`
	Version   uint64          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Success   *bool           `json:"success,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// EventPublisher delivers events to a message bus
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NewEvent builds the envelope for a session change
func NewEvent(change session.Change) (Event, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Event{}, fmt.Errorf("generate event id: %w", err)
	}

	payload, err := json.Marshal(change.Snapshot)
	if err != nil {
		return Event{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	return Event{
		EventID:   id,
		EventType: string(change.Kind),
		Version:   change.Snapshot.Version,
		Timestamp: change.At,
		Success:   change.Success,
		Payload:   payload,
	}, nil
}
