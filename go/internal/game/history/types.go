package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome is how a finished game ended
type Outcome string

const (
	OutcomeEscaped Outcome = "escaped"
	OutcomeFailed  Outcome = "failed"
	OutcomeExpired Outcome = "expired"
)

// GameRecord is one finished game
type GameRecord struct {
	ID                   uuid.UUID `json:"id"`
	StartedAt            time.Time `json:"started_at"`
	EndedAt              time.Time `json:"ended_at"`
	DurationSeconds      int       `json:"duration_sec"`
	TimeRemainingSeconds int       `json:"time_remaining_sec"`
	CluesSent            int       `json:"clues_sent"`
	Outcome              Outcome   `json:"outcome"`
}

// Elapsed returns how long the game actually ran
func (r GameRecord) Elapsed() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Repository stores finished games
type Repository interface {
	// Save inserts a record, or replaces the one with the same ID
	Save(ctx context.Context, record GameRecord) error
	ListRecent(ctx context.Context, limit int) ([]GameRecord, error)
	Close() error
}
