package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/escaperoom/go/internal/game/session"
)

var (
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Message is the envelope for every websocket frame in both directions
type Message struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EventType names a websocket event
type EventType string

const (
	// server -> client
	EventTypeGameState EventType = "gameState"

	// client -> server
	EventTypeStartGame             EventType = "startGame"
	EventTypePauseGame             EventType = "pauseGame"
	EventTypeResumeGame            EventType = "resumeGame"
	EventTypeAddTime               EventType = "addTime"
	EventTypeResetGame             EventType = "resetGame"
	EventTypeEndGame               EventType = "endGame"
	EventTypeSendClue              EventType = "sendClue"
	EventTypeDeleteClue            EventType = "deleteClue"
	EventTypeUpdateDisplaySettings EventType = "updateDisplaySettings"
)

// StartGamePayload starts a game. Duration is the legacy field name.
type StartGamePayload struct {
	DurationSeconds *int `json:"durationSeconds"`
	Duration        *int `json:"duration"`
}

type AddTimePayload struct {
	Seconds *int `json:"seconds"`
}

type EndGamePayload struct {
	Success bool `json:"success"`
}

type SendCluePayload struct {
	Message string `json:"message"`
}

type DeleteCluePayload struct {
	ClueID string `json:"clueId"`
}

type UpdateDisplaySettingsPayload struct {
	FontSize *int `json:"fontSize"`
	HintSize *int `json:"hintSize"`
}

// NewGameStateMessage wraps a snapshot in a gameState envelope
func NewGameStateMessage(snap session.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return json.Marshal(Message{Type: EventTypeGameState, Data: data})
}

// ParseEventPayload parses the message data into the payload struct for its type.
// Events without a payload return nil.
func ParseEventPayload(msg *Message) (interface{}, error) {
	switch msg.Type {
	case EventTypePauseGame, EventTypeResumeGame, EventTypeResetGame:
		return nil, nil

	case EventTypeStartGame:
		var payload StartGamePayload
		if err := unmarshalData(msg.Data, &payload); err != nil {
			return nil, err
		}
		if payload.DurationSeconds == nil {
			payload.DurationSeconds = payload.Duration
		}
		if payload.DurationSeconds == nil {
			return nil, fmt.Errorf("%w: durationSeconds is required", ErrMalformedPayload)
		}
		return payload, nil

	case EventTypeAddTime:
		var payload AddTimePayload
		if err := unmarshalData(msg.Data, &payload); err != nil {
			return nil, err
		}
		if payload.Seconds == nil {
			return nil, fmt.Errorf("%w: seconds is required", ErrMalformedPayload)
		}
		return payload, nil

	case EventTypeEndGame:
		var payload EndGamePayload
		if len(msg.Data) > 0 {
			if err := unmarshalData(msg.Data, &payload); err != nil {
				return nil, err
			}
		}
		return payload, nil

	case EventTypeSendClue:
		var payload SendCluePayload
		if err := unmarshalData(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeDeleteClue:
		var payload DeleteCluePayload
		if err := unmarshalData(msg.Data, &payload); err != nil {
			return nil, err
		}
		if payload.ClueID == "" {
			return nil, fmt.Errorf("%w: clueId is required", ErrMalformedPayload)
		}
		return payload, nil

	case EventTypeUpdateDisplaySettings:
		var payload UpdateDisplaySettingsPayload
		if err := unmarshalData(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Type)
	}
}

func unmarshalData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
