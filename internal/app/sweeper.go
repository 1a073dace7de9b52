package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/EderamorimTH/rifa-miguel/internal/clock"
	"github.com/EderamorimTH/rifa-miguel/internal/domain"
)

type SweepRepository interface {
	// ReleaseExpired releases up to limit reserved/pending orders whose hold
	// ended before now, using a conditional update on status, and returns them.
	ReleaseExpired(ctx context.Context, now time.Time, limit int) ([]domain.Order, error)
}

// Sweeper releases abandoned holds. Running several sweepers, or a sweeper
// next to the reconciler, is safe: every release is conditional on the order
// still holding, so an approved order never matches.
type Sweeper struct {
	repo      SweepRepository
	clock     clock.Clock
	batchSize int
	events    EventPublisher
	logger    *slog.Logger
}

const defaultSweepBatch = 100

func NewSweeper(repo SweepRepository, clk clock.Clock, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		repo:      repo,
		clock:     clk,
		batchSize: defaultSweepBatch,
		events:    NopPublisher(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SweeperOption func(*Sweeper)

func WithSweepBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithSweeperEvents(pub EventPublisher) SweeperOption {
	return func(s *Sweeper) {
		if pub != nil {
			s.events = pub
		}
	}
}

// Sweep releases every expired hold, batch by batch, and returns how many
// orders it released.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "sweeper.sweep")
	defer span.End()

	now := s.clock.Now()
	total := 0
	for {
		released, err := s.repo.ReleaseExpired(ctx, now, s.batchSize)
		if err != nil {
			span.RecordError(err)
			return total, err
		}
		total += len(released)
		publishAll(ctx, s.events, s.logger, releasedEvents(released, "expired")...)
		for _, o := range released {
			s.logger.Info("hold expired",
				"order_id", o.ID,
				"numbers", o.Numbers,
			)
		}
		if len(released) < s.batchSize {
			break
		}
	}
	sweptTotal.Add(int64(total))
	span.SetAttributes(attribute.Int("sweeper.released", total))
	return total, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			count, err := s.Sweep(sweepCtx)
			cancel()
			if err != nil {
				sweepErrors.Add(1)
				s.logger.Error("expiry sweep failed", "error", err)
				continue
			}
			if count > 0 {
				s.logger.Info("expiry sweep released orders", "count", count)
			}
		}
	}
}
