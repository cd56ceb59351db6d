package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridianhq/meridian/internal/marketplace"
)

// MarketplaceSyncJob drops the cached marketplace catalog and re-primes it
// so tier listings stay fresh between user visits.
type MarketplaceSyncJob struct {
	Service *marketplace.Service
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewMarketplaceSyncJob wires dependencies for the sync handler.
func NewMarketplaceSyncJob(svc *marketplace.Service, logger *slog.Logger) *MarketplaceSyncJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketplaceSyncJob{
		Service: svc,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes marketplace sync tasks.
func (j *MarketplaceSyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("marketplace sync: handler not configured")
	}

	started := j.clock()
	if err := j.Service.Invalidate(ctx); err != nil {
		return err
	}
	listings, err := j.Service.Catalog(ctx)
	if err != nil {
		return err
	}
	j.Logger.Info("marketplace synced",
		slog.Int("listings", len(listings)),
		slog.Duration("took", j.clock().Sub(started)))
	return nil
}
