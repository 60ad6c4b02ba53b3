package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/escaperoom/go/internal/game/session"
	"github.com/rs/zerolog/log"
)

// SessionStore is what the command handler needs from the session store
type SessionStore interface {
	Snapshot() session.Snapshot
	Start(durationSeconds int) session.Snapshot
	Pause() session.Snapshot
	Resume() session.Snapshot
	AddTime(deltaSeconds int) session.Snapshot
	End(success bool) session.Snapshot
	Reset() session.Snapshot
	PostClue(message string) (session.Clue, error)
	DeleteClue(clueID string) session.Snapshot
	SetDisplaySettings(update session.DisplaySettingsUpdate) session.Snapshot
}

// CommandHandler routes client events to session mutations.
// The store publishes the resulting snapshot; the handler never broadcasts itself.
type CommandHandler struct {
	store SessionStore
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(store SessionStore) *CommandHandler {
	return &CommandHandler{store: store}
}

// HandleRaw decodes a websocket frame and applies it
func (h *CommandHandler) HandleRaw(data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return h.Handle(&msg)
}

// Handle validates a client event and applies it to the store.
// Errors mean nothing was changed; callers log them and carry on.
func (h *CommandHandler) Handle(msg *Message) error {
	payload, err := ParseEventPayload(msg)
	if err != nil {
		return err
	}

	log.Debug().Str("event_type", string(msg.Type)).Msg("handling client event")

	switch msg.Type {
	case EventTypeStartGame:
		p := payload.(StartGamePayload)
		h.store.Start(*p.DurationSeconds)

	case EventTypePauseGame:
		h.store.Pause()

	case EventTypeResumeGame:
		h.store.Resume()

	case EventTypeAddTime:
		p := payload.(AddTimePayload)
		h.store.AddTime(*p.Seconds)

	case EventTypeResetGame:
		h.store.Reset()

	case EventTypeEndGame:
		p := payload.(EndGamePayload)
		h.store.End(p.Success)

	case EventTypeSendClue:
		p := payload.(SendCluePayload)
		if _, err := h.store.PostClue(p.Message); err != nil {
			return fmt.Errorf("post clue: %w", err)
		}

	case EventTypeDeleteClue:
		p := payload.(DeleteCluePayload)
		h.store.DeleteClue(p.ClueID)

	case EventTypeUpdateDisplaySettings:
		p := payload.(UpdateDisplaySettingsPayload)
		h.store.SetDisplaySettings(session.DisplaySettingsUpdate{
			FontSize: p.FontSize,
			HintSize: p.HintSize,
		})

	default:
		// gameState and any other server-side type
		return fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Type)
	}

	return nil
}
