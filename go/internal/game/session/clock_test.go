package session

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// advanceOneTick moves the fake clock one interval and waits for the ticker
// goroutine to publish. The advance is retried if the goroutine was not yet
// receiving when the ticker fired.
func advanceOneTick(t *testing.T, fake *clockwork.FakeClock, rec *changeRecorder) Change {
	t.Helper()
	for attempt := 0; attempt < 5; attempt++ {
		fake.Advance(time.Second)
		select {
		case c := <-rec.ch:
			return c
		case <-time.After(time.Second):
		}
	}
	t.Fatal("ticker did not publish a change")
	return Change{}
}

func expectNoChange(t *testing.T, rec *changeRecorder, wait time.Duration) {
	t.Helper()
	select {
	case c := <-rec.ch:
		t.Fatalf("unexpected change %s (remaining %d)", c.Kind, c.Snapshot.TimeRemainingSeconds)
	case <-time.After(wait):
	}
}

func drain(rec *changeRecorder) {
	for {
		select {
		case <-rec.ch:
		default:
			return
		}
	}
}

func TestTicker_CountsDownAndExpires(t *testing.T) {
	store, fake, rec := newTestStore(t)
	store.Start(3)
	drain(rec)

	for want := 2; want >= 1; want-- {
		c := advanceOneTick(t, fake, rec)
		if c.Kind != ChangeTicked || c.Snapshot.TimeRemainingSeconds != want {
			t.Fatalf("expected tick to %d, got %s %d", want, c.Kind, c.Snapshot.TimeRemainingSeconds)
		}
	}

	c := advanceOneTick(t, fake, rec)
	if c.Kind != ChangeExpired || c.Snapshot.Status != StatusEnded || c.Snapshot.TimeRemainingSeconds != 0 {
		t.Fatalf("expected expiry, got %s %+v", c.Kind, c.Snapshot)
	}
	if store.Ticking() {
		t.Fatal("ticker still active after expiry")
	}

	fake.Advance(5 * time.Second)
	expectNoChange(t, rec, 100*time.Millisecond)
}

func TestTicker_RestartDoesNotDuplicate(t *testing.T) {
	store, fake, rec := newTestStore(t)
	store.Start(10)
	store.Start(10)
	store.Pause()
	store.Resume()
	drain(rec)

	c := advanceOneTick(t, fake, rec)
	if c.Snapshot.TimeRemainingSeconds != 9 {
		t.Fatalf("expected a single decrement to 9, got %d", c.Snapshot.TimeRemainingSeconds)
	}
	expectNoChange(t, rec, 100*time.Millisecond)

	if got := store.Snapshot().TimeRemainingSeconds; got != 9 {
		t.Errorf("expected 9s remaining, got %d", got)
	}
}

func TestTicker_PauseStopsCountdown(t *testing.T) {
	store, fake, rec := newTestStore(t)
	store.Start(10)
	store.Pause()
	drain(rec)

	fake.Advance(3 * time.Second)
	expectNoChange(t, rec, 100*time.Millisecond)

	if got := store.Snapshot().TimeRemainingSeconds; got != 10 {
		t.Errorf("expected paused countdown to stay at 10, got %d", got)
	}
}

func TestTicker_StoppedByEndAndReset(t *testing.T) {
	for name, stop := range map[string]func(s *Store){
		"end":   func(s *Store) { s.End(false) },
		"reset": func(s *Store) { s.Reset() },
	} {
		t.Run(name, func(t *testing.T) {
			store, fake, rec := newTestStore(t)
			store.Start(10)
			stop(store)
			drain(rec)

			if store.Ticking() {
				t.Fatal("ticker still active")
			}
			fake.Advance(2 * time.Second)
			expectNoChange(t, rec, 100*time.Millisecond)
		})
	}
}

func TestScheduledTick_StaleGenerationDropped(t *testing.T) {
	store, _, rec := newTestStore(t)
	store.Start(10)

	store.mu.Lock()
	stale := store.ticker.generation
	store.mu.Unlock()

	store.Start(10)
	drain(rec)

	if store.scheduledTick(stale) {
		t.Error("stale ticker should be told to exit")
	}
	if got := store.Snapshot().TimeRemainingSeconds; got != 10 {
		t.Errorf("stale tick decremented the countdown to %d", got)
	}
}

func TestClose_StopsTickerWithoutChange(t *testing.T) {
	store, fake, rec := newTestStore(t)
	store.Start(10)
	drain(rec)

	store.Close()

	if store.Ticking() {
		t.Fatal("ticker still active after close")
	}
	expectNoChange(t, rec, 50*time.Millisecond)
	if snap := store.Snapshot(); snap.Status != StatusRunning || snap.TimeRemainingSeconds != 10 {
		t.Errorf("close changed the session: %+v", snap)
	}

	fake.Advance(2 * time.Second)
	expectNoChange(t, rec, 100*time.Millisecond)
}
