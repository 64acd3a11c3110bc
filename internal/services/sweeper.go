// Package services – Sweeper
//
// This file implements the ledger retention sweep: a lifecycle-managed
// background task that periodically deletes idempotency records older than
// the retention window. The sweep is best-effort housekeeping, not
// correctness-critical; a failed or missed cycle only lets the ledger grow
// until the next one.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// SweepStore is the ledger slice the sweeper needs.
type SweepStore interface {
	DeleteExpired(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}

// Sweeper deletes expired ledger records on a fixed interval. Start launches
// the background goroutine; Stop (or cancelling the Start context) shuts it
// down. RunOnce performs a single sweep synchronously so tests and the CLI
// can drive retention deterministically without waiting on a timer.
type Sweeper struct {
	DB    *gorm.DB
	Store SweepStore

	// Retention is how long records are kept (default 7 days).
	Retention time.Duration
	// Interval is the sweep cadence (default 24h).
	Interval time.Duration

	// now is swappable for tests.
	now func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper constructs a Sweeper with the default retention window and
// cadence where the caller passes zero values.
func NewSweeper(db *gorm.DB, store SweepStore, retention, interval time.Duration) *Sweeper {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Sweeper{
		DB:        db,
		Store:     store,
		Retention: retention,
		Interval:  interval,
		now:       time.Now,
	}
}

// RunOnce deletes every record older than the retention window and returns
// how many were removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.Retention)
	n, err := s.Store.DeleteExpired(ctx, s.DB, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		sweepDeleted.Add(float64(n))
		log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("swept expired idempotency records")
	}
	return n, nil
}

// Start launches the periodic sweep. It is a no-op when the sweeper is
// already running.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Sweep errors are logged and the loop continues; the next
				// cycle retries naturally.
				if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Msg("idempotency sweep failed")
				}
			}
		}
	}()
	log.Info().Dur("interval", s.Interval).Dur("retention", s.Retention).Msg("started idempotency sweeper")
}

// Stop shuts the background sweep down and waits for it to exit. Safe to call
// on a never-started sweeper.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Msg("stopped idempotency sweeper")
}
