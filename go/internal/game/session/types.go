package session

import (
	"time"
)

// Status is the lifecycle state of the game session
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusEnded   Status = "ended"
)

const (
	DefaultDurationSeconds = 60 * 60
	DefaultFontSize        = 100
	DefaultHintSize        = 100
)

// Clue is a hint sent by the game master. Clues are never edited after creation.
type Clue struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sentAt"`
	IsRead  bool      `json:"isRead"`
}

// DisplaySettings are presentation knobs for the player screen, in percent.
type DisplaySettings struct {
	FontSize int `json:"fontSize"`
	HintSize int `json:"hintSize"`
}

// DisplaySettingsUpdate is a partial update; nil fields are left unchanged.
type DisplaySettingsUpdate struct {
	FontSize *int `json:"fontSize,omitempty"`
	HintSize *int `json:"hintSize,omitempty"`
}

// DefaultDisplaySettings returns the settings a fresh session starts with
func DefaultDisplaySettings() DisplaySettings {
	return DisplaySettings{
		FontSize: DefaultFontSize,
		HintSize: DefaultHintSize,
	}
}

// Snapshot is an immutable copy of the session at one instant.
// It is the payload of every gameState message.
type Snapshot struct {
	Status               Status          `json:"status"`
	TimeRemainingSeconds int             `json:"timeRemainingSeconds"`
	StartedAt            *time.Time      `json:"startedAt,omitempty"`
	EndedAt              *time.Time      `json:"endedAt,omitempty"`
	ProjectedEndAt       *time.Time      `json:"projectedEndAt,omitempty"`
	Clues                []Clue          `json:"clues"`
	DisplaySettings      DisplaySettings `json:"displaySettings"`

	// Version increases with every applied change. It orders snapshots
	// inside the process and is not part of the wire format.
	Version uint64 `json:"-"`
}

// ChangeKind names what produced a Change
type ChangeKind string

const (
	ChangeStarted        ChangeKind = "started"
	ChangePaused         ChangeKind = "paused"
	ChangeResumed        ChangeKind = "resumed"
	ChangeTimeAdded      ChangeKind = "time_added"
	ChangeEnded          ChangeKind = "ended"
	ChangeExpired        ChangeKind = "expired"
	ChangeReset          ChangeKind = "reset"
	ChangeCluePosted     ChangeKind = "clue_posted"
	ChangeClueDeleted    ChangeKind = "clue_deleted"
	ChangeDisplayUpdated ChangeKind = "display_updated"
	ChangeTicked         ChangeKind = "ticked"
)

// Change is emitted once per applied mutation or tick
type Change struct {
	Kind     ChangeKind
	Snapshot Snapshot
	// Success is only set for ChangeEnded.
	Success *bool
	At      time.Time
}

// state is the mutable record owned by the Store
type state struct {
	status         Status
	timeRemaining  int
	startedAt      *time.Time
	endedAt        *time.Time
	projectedEndAt *time.Time
	clues          []Clue
	display        DisplaySettings
}

func newState(duration int, display DisplaySettings) state {
	return state{
		status:        StatusIdle,
		timeRemaining: duration,
		clues:         []Clue{},
		display:       display,
	}
}

func (s *state) snapshot(version uint64) Snapshot {
	clues := make([]Clue, len(s.clues))
	copy(clues, s.clues)

	return Snapshot{
		Status:               s.status,
		TimeRemainingSeconds: s.timeRemaining,
		StartedAt:            copyTime(s.startedAt),
		EndedAt:              copyTime(s.endedAt),
		ProjectedEndAt:       copyTime(s.projectedEndAt),
		Clues:                clues,
		DisplaySettings:      s.display,
		Version:              version,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
