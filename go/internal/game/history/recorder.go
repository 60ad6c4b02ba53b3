package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/escaperoom/go/internal/game/session"
	"github.com/rs/zerolog/log"
)

// openGame is the game currently being played
type openGame struct {
	startedAt       time.Time
	durationSeconds int
}

// Recorder watches session changes and writes a GameRecord whenever a
// game finishes. Writes happen on the Run goroutine.
type Recorder struct {
	repo    Repository
	queue   chan GameRecord
	timeout time.Duration

	current *openGame
	// last is the most recently finished game until the next start or reset
	last *GameRecord

	wg       sync.WaitGroup
	mu       sync.Mutex
	written  uint64
	failures uint64
}

// NewRecorder creates a recorder with a bounded write queue
func NewRecorder(repo Repository, queueSize int) *Recorder {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Recorder{
		repo:    repo,
		queue:   make(chan GameRecord, queueSize),
		timeout: 5 * time.Second,
	}
}

// Publish implements session.Publisher. Calls are serialized by the store.
func (r *Recorder) Publish(change session.Change) {
	switch change.Kind {
	case session.ChangeStarted:
		r.current = &openGame{
			startedAt:       derefTime(change.Snapshot.StartedAt, change.At),
			durationSeconds: change.Snapshot.TimeRemainingSeconds,
		}
		r.last = nil

	case session.ChangeReset:
		r.current = nil
		r.last = nil

	case session.ChangeEnded:
		outcome := OutcomeFailed
		if change.Success != nil && *change.Success {
			outcome = OutcomeEscaped
		}
		if r.current == nil {
			r.amend(outcome)
			return
		}
		r.finish(change, outcome)

	case session.ChangeExpired:
		r.finish(change, OutcomeExpired)
	}
}

func (r *Recorder) finish(change session.Change, outcome Outcome) {
	if r.current == nil {
		return
	}
	game := r.current
	r.current = nil

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	record := GameRecord{
		ID:                   id,
		StartedAt:            game.startedAt,
		EndedAt:              derefTime(change.Snapshot.EndedAt, change.At),
		DurationSeconds:      game.durationSeconds,
		TimeRemainingSeconds: change.Snapshot.TimeRemainingSeconds,
		CluesSent:            len(change.Snapshot.Clues),
		Outcome:              outcome,
	}
	r.last = &record
	r.enqueue(record)
}

// amend replaces the outcome of the game that just finished, e.g. when the
// game master marks an escape right as the countdown expired.
func (r *Recorder) amend(outcome Outcome) {
	if r.last == nil || r.last.Outcome == outcome {
		return
	}
	record := *r.last
	record.Outcome = outcome
	r.last = &record

	log.Info().
		Str("game_id", record.ID.String()).
		Str("outcome", string(outcome)).
		Msg("game outcome amended")
	r.enqueue(record)
}

func (r *Recorder) enqueue(record GameRecord) {
	select {
	case r.queue <- record:
	default:
		log.Warn().Str("game_id", record.ID.String()).Msg("history queue full, dropping game record")
	}
}

// Start runs the recorder in the background until ctx is cancelled
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Run(ctx)
	}()
}

// Wait blocks until a recorder started with Start has flushed and stopped
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// Run writes queued records until ctx is cancelled, then flushes what is left
func (r *Recorder) Run(ctx context.Context) {
	log.Info().Msg("history recorder started")
	for {
		select {
		case <-ctx.Done():
			r.flush()
			log.Info().Msg("history recorder stopped")
			return
		case record := <-r.queue:
			r.write(context.Background(), record)
		}
	}
}

func (r *Recorder) flush() {
	for {
		select {
		case record := <-r.queue:
			r.write(context.Background(), record)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, record GameRecord) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.repo.Save(ctx, record); err != nil {
		r.mu.Lock()
		r.failures++
		r.mu.Unlock()
		log.Error().Err(err).Str("game_id", record.ID.String()).Msg("failed to write game record")
		return
	}

	r.mu.Lock()
	r.written++
	r.mu.Unlock()

	log.Info().
		Str("game_id", record.ID.String()).
		Str("outcome", string(record.Outcome)).
		Dur("elapsed", record.Elapsed()).
		Msg("game record written")
}

// Stats returns how many records were written and how many writes failed
func (r *Recorder) Stats() (written, failures uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written, r.failures
}

// ListRecent returns the most recent finished games
func (r *Recorder) ListRecent(ctx context.Context, limit int) ([]GameRecord, error) {
	return r.repo.ListRecent(ctx, limit)
}

func derefTime(t *time.Time, fallback time.Time) time.Time {
	if t == nil {
		return fallback
	}
	return *t
}
