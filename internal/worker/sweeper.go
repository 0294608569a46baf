// Package worker runs the background finalization sweeper.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"dfund/internal/ledger"
)

// Finalizer is the ledger operation the sweeper drives.
type Finalizer interface {
	FinalizeDue(ctx context.Context, limit int) ([]ledger.Finalization, error)
}

// Sweeper finalizes projects whose deadline and grace period have passed.
type Sweeper struct {
	ledger   Finalizer
	logger   zerolog.Logger
	interval time.Duration
	batch    int
}

func NewSweeper(l Finalizer, logger zerolog.Logger, interval time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		ledger:   l,
		logger:   logger.With().Str("component", "sweeper").Logger(),
		interval: interval,
		batch:    batch,
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Int("batch", s.batch).Msg("worker: started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep drains due projects batch by batch and reports how many were finalized.
// A batch that finalizes nothing ends the sweep so failing projects are
// retried on the next tick rather than in a loop.
func (s *Sweeper) Sweep(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		done, err := s.ledger.FinalizeDue(ctx, s.batch)
		for _, f := range done {
			s.logger.Info().
				Uint64("project_id", f.ProjectID).
				Str("outcome", f.Outcome.String()).
				Msg("worker: project finalized")
		}
		total += len(done)
		if err != nil {
			s.logger.Error().Err(err).Msg("worker: sweep failed")
			return total
		}
		if len(done) < s.batch {
			break
		}
	}
	if total > 0 {
		s.logger.Info().Int("finalized", total).Msg("worker: sweep complete")
	}
	return total
}
