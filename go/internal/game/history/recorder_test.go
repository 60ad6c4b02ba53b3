package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/escaperoom/go/internal/game/session"
)

type memoryRepo struct {
	mu      sync.Mutex
	records []GameRecord
	err     error
	written chan GameRecord
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{written: make(chan GameRecord, 16)}
}

func (m *memoryRepo) Save(ctx context.Context, record GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.written <- record
	for i := range m.records {
		if m.records[i].ID == record.ID {
			m.records[i] = record
			return nil
		}
	}
	m.records = append(m.records, record)
	return nil
}

func (m *memoryRepo) ListRecent(ctx context.Context, limit int) ([]GameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GameRecord(nil), m.records...), nil
}

func (m *memoryRepo) Close() error { return nil }

func setupRecorder(t *testing.T) (*session.Store, *clockwork.FakeClock, *Recorder, *memoryRepo) {
	t.Helper()
	fake := clockwork.NewFakeClockAt(time.Date(2024, 10, 31, 21, 0, 0, 0, time.UTC))
	store := session.NewStore(session.Options{Clock: fake})
	repo := newMemoryRepo()
	rec := NewRecorder(repo, 8)
	store.AddPublisher(rec)

	ctx, cancel := context.WithCancel(context.Background())
	rec.Start(ctx)
	t.Cleanup(func() {
		store.Reset()
		cancel()
		rec.Wait()
	})
	return store, fake, rec, repo
}

func waitRecord(t *testing.T, repo *memoryRepo) GameRecord {
	t.Helper()
	select {
	case r := <-repo.written:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no game record written")
		return GameRecord{}
	}
}

func TestRecorder_Outcomes(t *testing.T) {
	tests := []struct {
		name   string
		finish func(s *session.Store)
		want   Outcome
	}{
		{name: "escaped", finish: func(s *session.Store) { s.End(true) }, want: OutcomeEscaped},
		{name: "failed", finish: func(s *session.Store) { s.End(false) }, want: OutcomeFailed},
		{name: "expired", finish: func(s *session.Store) {
			for i := 0; i < 600; i++ {
				s.Tick()
			}
		}, want: OutcomeExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, fake, _, repo := setupRecorder(t)
			store.Start(600)
			startedAt := fake.Now()
			store.PostClue("check the clock")
			fake.Advance(42 * time.Second)

			tt.finish(store)

			record := waitRecord(t, repo)
			if record.Outcome != tt.want {
				t.Errorf("expected outcome %s, got %s", tt.want, record.Outcome)
			}
			if record.DurationSeconds != 600 {
				t.Errorf("expected duration 600, got %d", record.DurationSeconds)
			}
			if record.CluesSent != 1 {
				t.Errorf("expected 1 clue, got %d", record.CluesSent)
			}
			if !record.StartedAt.Equal(startedAt) {
				t.Errorf("expected startedAt %v, got %v", startedAt, record.StartedAt)
			}
			if record.EndedAt.Before(record.StartedAt) {
				t.Errorf("endedAt %v before startedAt %v", record.EndedAt, record.StartedAt)
			}
		})
	}
}

func TestRecorder_ResetAbandonsGame(t *testing.T) {
	store, _, _, repo := setupRecorder(t)
	store.Start(300)
	store.Reset()
	store.End(true)

	select {
	case r := <-repo.written:
		t.Fatalf("unexpected record %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRecorder_EndAfterExpiryAmendsOutcome(t *testing.T) {
	store, fake, _, repo := setupRecorder(t)
	store.Start(3)
	for i := 0; i < 3; i++ {
		store.Tick()
	}

	expired := waitRecord(t, repo)
	if expired.Outcome != OutcomeExpired {
		t.Fatalf("expected expired record, got %s", expired.Outcome)
	}

	fake.Advance(2 * time.Second)
	store.End(true)

	amended := waitRecord(t, repo)
	if amended.ID != expired.ID {
		t.Errorf("expected the same game %s, got %s", expired.ID, amended.ID)
	}
	if amended.Outcome != OutcomeEscaped {
		t.Errorf("expected escaped after amend, got %s", amended.Outcome)
	}

	// A repeated end with the same outcome writes nothing
	store.End(true)
	select {
	case r := <-repo.written:
		t.Fatalf("unexpected record %+v", r)
	case <-time.After(100 * time.Millisecond):
	}

	records, _ := repo.ListRecent(context.Background(), 10)
	if len(records) != 1 || records[0].Outcome != OutcomeEscaped {
		t.Errorf("expected one escaped game, got %+v", records)
	}
}

func TestRecorder_WaitReturnsAfterFlush(t *testing.T) {
	repo := newMemoryRepo()
	rec := NewRecorder(repo, 4)
	at := time.Date(2024, 10, 31, 21, 0, 0, 0, time.UTC)
	success := false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec.Publish(session.Change{Kind: session.ChangeStarted, Snapshot: session.Snapshot{TimeRemainingSeconds: 60}, At: at})
	rec.Publish(session.Change{Kind: session.ChangeEnded, Success: &success, Snapshot: session.Snapshot{EndedAt: &at}, At: at})

	rec.Start(ctx)
	rec.Wait()

	records, _ := repo.ListRecent(context.Background(), 10)
	if len(records) != 1 || records[0].Outcome != OutcomeFailed {
		t.Fatalf("expected the queued record to be written before Wait returned, got %+v", records)
	}
	if written, _ := rec.Stats(); written != 1 {
		t.Errorf("expected 1 written, got %d", written)
	}
}

func TestRecorder_WriteFailureCounted(t *testing.T) {
	repo := newMemoryRepo()
	repo.err = errors.New("disk full")
	rec := NewRecorder(repo, 1)

	rec.write(context.Background(), GameRecord{Outcome: OutcomeFailed})

	written, failures := rec.Stats()
	if written != 0 || failures != 1 {
		t.Errorf("expected 0 written / 1 failure, got %d / %d", written, failures)
	}
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	repo := newMemoryRepo()
	rec := NewRecorder(repo, 1)
	ended := time.Now()
	success := true

	for i := 0; i < 3; i++ {
		rec.Publish(session.Change{Kind: session.ChangeStarted, Snapshot: session.Snapshot{TimeRemainingSeconds: 60}, At: ended})
		rec.Publish(session.Change{Kind: session.ChangeEnded, Success: &success, Snapshot: session.Snapshot{EndedAt: &ended}, At: ended})
	}

	if got := len(rec.queue); got != 1 {
		t.Errorf("expected queue to hold 1 record, got %d", got)
	}
}
