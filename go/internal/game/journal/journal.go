package journal

import (
	"context"
	"sync"
	"time"

	"github.com/mcdev12/escaperoom/go/internal/game/session"
	"github.com/rs/zerolog/log"
)

// Journal forwards session changes to an EventPublisher from its own
// goroutine so a slow bus never holds up the session store.
type Journal struct {
	publisher    EventPublisher
	queue        chan session.Change
	includeTicks bool
	timeout      time.Duration

	wg        sync.WaitGroup
	mu        sync.Mutex
	published uint64
	dropped   uint64
	failed    uint64
	lastEvent time.Time
}

// Config controls what the journal forwards
type Config struct {
	QueueSize    int
	IncludeTicks bool
}

// New creates a journal writing to publisher
func New(publisher EventPublisher, cfg Config) *Journal {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}
	return &Journal{
		publisher:    publisher,
		queue:        make(chan session.Change, cfg.QueueSize),
		includeTicks: cfg.IncludeTicks,
		timeout:      5 * time.Second,
	}
}

// Publish implements session.Publisher
func (j *Journal) Publish(change session.Change) {
	if change.Kind == session.ChangeTicked && !j.includeTicks {
		return
	}

	select {
	case j.queue <- change:
	default:
		j.mu.Lock()
		j.dropped++
		j.mu.Unlock()
		log.Warn().
			Str("change", string(change.Kind)).
			Uint64("version", change.Snapshot.Version).
			Msg("journal queue full, dropping change")
	}
}

// Start runs the journal in the background until ctx is cancelled
func (j *Journal) Start(ctx context.Context) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.Run(ctx)
	}()
}

// Wait blocks until a journal started with Start has stopped publishing
func (j *Journal) Wait() {
	j.wg.Wait()
}

// Run publishes queued changes until ctx is cancelled
func (j *Journal) Run(ctx context.Context) {
	log.Info().Bool("include_ticks", j.includeTicks).Msg("journal started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("journal stopped")
			return
		case change := <-j.queue:
			j.process(ctx, change)
		}
	}
}

func (j *Journal) process(ctx context.Context, change session.Change) {
	event, err := NewEvent(change)
	if err != nil {
		log.Error().Err(err).Str("change", string(change.Kind)).Msg("failed to build journal event")
		j.recordFailure()
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if err := j.publisher.Publish(pubCtx, event); err != nil {
		log.Error().
			Err(err).
			Str("event_id", event.EventID.String()).
			Str("event_type", event.EventType).
			Msg("failed to publish journal event")
		j.recordFailure()
		return
	}

	j.mu.Lock()
	j.published++
	j.lastEvent = time.Now()
	j.mu.Unlock()
}

func (j *Journal) recordFailure() {
	j.mu.Lock()
	j.failed++
	j.mu.Unlock()
}

// Stats describes journal throughput
type Stats struct {
	Published uint64    `json:"published"`
	Dropped   uint64    `json:"dropped"`
	Failed    uint64    `json:"failed"`
	Pending   int       `json:"pending"`
	LastEvent time.Time `json:"last_event"`
}

func (j *Journal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Stats{
		Published: j.published,
		Dropped:   j.dropped,
		Failed:    j.failed,
		Pending:   len(j.queue),
		LastEvent: j.lastEvent,
	}
}
