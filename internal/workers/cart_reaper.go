package workers

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kado-mall/api/internal/repositories"
)

const (
	defaultReapInterval = time.Hour
	defaultReapBatch    = 200
)

// CartReaperDeps wires the dependencies required by the reaper.
type CartReaperDeps struct {
	Cart      repositories.CartRepository
	Logger    *zap.Logger
	Interval  time.Duration
	BatchSize int
	Clock     func() time.Time
}

// CartReaper periodically deletes expired cart lines.
type CartReaper struct {
	cart      repositories.CartRepository
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewCartReaper constructs a CartReaper validating required dependencies.
func NewCartReaper(deps CartReaperDeps) (*CartReaper, error) {
	if deps.Cart == nil {
		return nil, errors.New("cart reaper: cart repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = defaultReapInterval
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultReapBatch
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CartReaper{
		cart:      deps.Cart,
		logger:    logger,
		interval:  interval,
		batchSize: batch,
		now: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// Run reaps immediately, then on a ticker until the context is cancelled.
func (r *CartReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.ReapOnce(ctx)

	for {
		select {
		case <-ticker.C:
			r.ReapOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ReapOnce deletes one batch of expired lines, repeating until the batch
// comes back short.
func (r *CartReaper) ReapOnce(ctx context.Context) {
	total := 0
	for {
		removed, err := r.cart.DeleteExpired(ctx, r.now(), r.batchSize)
		if err != nil {
			r.logger.Error("cart reap failed", zap.Error(err))
			return
		}
		total += removed
		if removed < r.batchSize {
			break
		}
	}
	if total > 0 {
		r.logger.Info("expired cart lines removed", zap.Int("count", total))
	}
}
