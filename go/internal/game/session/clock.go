package session

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// countdown is the handle of the running ticker goroutine
type countdown struct {
	generation uint64
	cancel     context.CancelFunc
}

// Ticking reports whether a countdown ticker is active
func (s *Store) Ticking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

// Close stops the countdown without changing the session.
// A later Start or Resume starts a new ticker.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTickerLocked()
}

// startTickerLocked replaces any running ticker with a new one.
// At most one ticker exists per store.
func (s *Store) startTickerLocked() {
	s.stopTickerLocked()

	s.generation++
	ctx, cancel := context.WithCancel(context.Background())
	ticker := s.clock.NewTicker(s.opts.TickInterval)
	s.ticker = &countdown{generation: s.generation, cancel: cancel}

	go s.runTicker(ctx, ticker, s.generation)

	log.Debug().Uint64("generation", s.generation).Msg("countdown ticker started")
}

// stopTickerLocked cancels the active ticker if there is one
func (s *Store) stopTickerLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.cancel()
	log.Debug().Uint64("generation", s.ticker.generation).Msg("countdown ticker stopped")
	s.ticker = nil
}

func (s *Store) runTicker(ctx context.Context, ticker clockwork.Ticker, generation uint64) {
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !s.scheduledTick(generation) {
				return
			}
		}
	}
}

// scheduledTick applies a tick from the ticker of the given generation.
// A tick that raced with cancellation belongs to a stale generation and is
// dropped. It returns false once the ticker should exit.
func (s *Store) scheduledTick(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil || s.ticker.generation != generation {
		return false
	}
	s.tickLocked()
	return s.ticker != nil
}
