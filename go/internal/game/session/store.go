package session

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Options configures a Store
type Options struct {
	// Clock drives timestamps and the countdown ticker. Defaults to the real clock.
	Clock clockwork.Clock
	// TickInterval is the countdown period. Defaults to one second.
	TickInterval time.Duration
	// DefaultDurationSeconds is the remaining time of an idle session.
	DefaultDurationSeconds int
	// PreserveDisplayOnReset keeps display settings across Reset.
	PreserveDisplayOnReset bool
}

// DefaultOptions returns options for a production store
func DefaultOptions() Options {
	return Options{
		Clock:                  clockwork.NewRealClock(),
		TickInterval:           time.Second,
		DefaultDurationSeconds: DefaultDurationSeconds,
	}
}

// Store is the single authoritative game session.
// Mutations and ticks are serialized by one mutex and every applied
// change is handed to the publishers before the lock is released, so
// publishers observe changes in apply order.
type Store struct {
	mu         sync.Mutex
	opts       Options
	clock      clockwork.Clock
	state      state
	version    uint64
	publishers []Publisher

	// Countdown scheduler; nil when no ticker is running.
	ticker     *countdown
	generation uint64
}

// NewStore creates a store holding an idle session
func NewStore(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.DefaultDurationSeconds <= 0 {
		opts.DefaultDurationSeconds = DefaultDurationSeconds
	}

	return &Store{
		opts:  opts,
		clock: opts.Clock,
		state: newState(opts.DefaultDurationSeconds, DefaultDisplaySettings()),
	}
}

// AddPublisher registers a publisher for all subsequent changes
func (s *Store) AddPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishers = append(s.publishers, p)
}

// Snapshot returns the current session state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.snapshot(s.version)
}

// Start begins a new game from any state. Clues are cleared and the
// countdown restarts with durationSeconds.
func (s *Store) Start(durationSeconds int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.state.status = StatusRunning
	s.state.timeRemaining = durationSeconds
	s.state.startedAt = &now
	s.state.endedAt = nil
	s.state.clues = []Clue{}
	s.state.projectedEndAt = s.projectEnd()

	s.startTickerLocked()

	log.Info().
		Int("duration_sec", durationSeconds).
		Msg("game started")

	return s.commitLocked(ChangeStarted, nil)
}

// Pause freezes the countdown. It is a no-op unless the game is running.
func (s *Store) Pause() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.status != StatusRunning {
		log.Debug().Str("status", string(s.state.status)).Msg("pause ignored")
		return s.state.snapshot(s.version)
	}

	s.stopTickerLocked()
	s.state.status = StatusPaused

	log.Info().Int("time_remaining_sec", s.state.timeRemaining).Msg("game paused")
	return s.commitLocked(ChangePaused, nil)
}

// Resume restarts the countdown of a paused game. It is a no-op otherwise.
func (s *Store) Resume() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.status != StatusPaused {
		log.Debug().Str("status", string(s.state.status)).Msg("resume ignored")
		return s.state.snapshot(s.version)
	}

	s.state.status = StatusRunning
	s.startTickerLocked()

	log.Info().Int("time_remaining_sec", s.state.timeRemaining).Msg("game resumed")
	return s.commitLocked(ChangeResumed, nil)
}

// AddTime adjusts the remaining time by deltaSeconds, which may be negative.
// The result never drops below zero.
func (s *Store) AddTime(deltaSeconds int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := max(saturatingAdd(s.state.timeRemaining, deltaSeconds), 0)
	s.state.timeRemaining = remaining
	s.state.projectedEndAt = s.projectEnd()

	log.Info().
		Int("delta_sec", deltaSeconds).
		Int("time_remaining_sec", remaining).
		Msg("time adjusted")

	return s.commitLocked(ChangeTimeAdded, nil)
}

// End finishes the game from any state and stamps endedAt. success is
// passed on to publishers but not kept on the session.
func (s *Store) End(success bool) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTickerLocked()
	now := s.now()
	s.state.status = StatusEnded
	s.state.endedAt = &now

	log.Info().Bool("success", success).Msg("game ended")
	return s.commitLocked(ChangeEnded, &success)
}

// Reset returns the session to its defaults from any state
func (s *Store) Reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTickerLocked()

	display := DefaultDisplaySettings()
	if s.opts.PreserveDisplayOnReset {
		display = s.state.display
	}
	s.state = newState(s.opts.DefaultDurationSeconds, display)

	log.Info().Msg("game reset")
	return s.commitLocked(ChangeReset, nil)
}

// PostClue appends a clue. Blank messages are rejected with ErrEmptyClueMessage.
func (s *Store) PostClue(message string) (Clue, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Clue{}, ErrEmptyClueMessage
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Clue{}, fmt.Errorf("generate clue id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clue := Clue{
		ID:      id.String(),
		Message: message,
		SentAt:  s.now(),
	}
	s.state.clues = append(s.state.clues, clue)

	log.Info().Str("clue_id", clue.ID).Int("clues", len(s.state.clues)).Msg("clue posted")
	s.commitLocked(ChangeCluePosted, nil)
	return clue, nil
}

// DeleteClue removes the clue with the given id. Unknown ids are ignored.
func (s *Store) DeleteClue(clueID string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, clue := range s.state.clues {
		if clue.ID != clueID {
			continue
		}
		clues := make([]Clue, 0, len(s.state.clues)-1)
		clues = append(clues, s.state.clues[:i]...)
		clues = append(clues, s.state.clues[i+1:]...)
		s.state.clues = clues

		log.Info().Str("clue_id", clueID).Msg("clue deleted")
		return s.commitLocked(ChangeClueDeleted, nil)
	}

	log.Debug().Str("clue_id", clueID).Msg("delete ignored, clue not found")
	return s.state.snapshot(s.version)
}

// SetDisplaySettings merges the provided fields into the display settings
func (s *Store) SetDisplaySettings(update DisplaySettingsUpdate) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.FontSize == nil && update.HintSize == nil {
		return s.state.snapshot(s.version)
	}
	if update.FontSize != nil {
		s.state.display.FontSize = *update.FontSize
	}
	if update.HintSize != nil {
		s.state.display.HintSize = *update.HintSize
	}

	log.Debug().
		Int("font_size", s.state.display.FontSize).
		Int("hint_size", s.state.display.HintSize).
		Msg("display settings updated")

	return s.commitLocked(ChangeDisplayUpdated, nil)
}

// Tick applies one countdown step. It does nothing unless the game is running.
// When the remaining time reaches zero the game ends and the ticker stops.
func (s *Store) Tick() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickLocked()
}

func (s *Store) tickLocked() Snapshot {
	if s.state.status != StatusRunning {
		return s.state.snapshot(s.version)
	}

	// Compare before decrementing so a huge negative duration cannot wrap
	if s.state.timeRemaining > 1 {
		s.state.timeRemaining--
		return s.commitLocked(ChangeTicked, nil)
	}

	s.stopTickerLocked()
	now := s.now()
	s.state.timeRemaining = 0
	s.state.status = StatusEnded
	s.state.endedAt = &now

	log.Info().Msg("time expired, game ended")
	return s.commitLocked(ChangeExpired, nil)
}

// commitLocked bumps the version and hands the new snapshot to publishers
func (s *Store) commitLocked(kind ChangeKind, success *bool) Snapshot {
	s.version++
	snap := s.state.snapshot(s.version)

	change := Change{
		Kind:     kind,
		Snapshot: snap,
		Success:  success,
		At:       s.now(),
	}
	for _, p := range s.publishers {
		p.Publish(change)
	}
	return snap
}

func (s *Store) projectEnd() *time.Time {
	if s.state.startedAt == nil {
		return nil
	}
	remaining := min(max(s.state.timeRemaining, -maxProjectionSeconds), maxProjectionSeconds)
	end := s.state.startedAt.Add(time.Duration(remaining) * time.Second)
	return &end
}

// maxProjectionSeconds is the largest offset time.Duration can hold
const maxProjectionSeconds = int(math.MaxInt64 / int64(time.Second))

// saturatingAdd returns a+b pinned to the int range instead of wrapping
func saturatingAdd(a, b int) int {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return math.MaxInt
	case b < 0 && a < math.MinInt-b:
		return math.MinInt
	}
	return a + b
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}
