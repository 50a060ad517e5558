package authentication

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mehmetcc/calibration-auth-service/internal/metrics"
)

// Purger periodically deletes refresh sessions whose stored expiry passed.
// Expired rows are already useless to Refresh; this only keeps the table small.
type Purger struct {
	store    Store
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewPurger(store Store, interval time.Duration, m *metrics.Metrics, logger *zap.Logger) *Purger {
	return &Purger{
		store:    store,
		interval: interval,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Run purges once immediately and then on every tick until ctx is done.
func (p *Purger) Run(ctx context.Context) {
	if p.interval <= 0 {
		p.logger.Info("refresh token purger disabled")
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.PurgeOnce(ctx)
		select {
		case <-ctx.Done():
			p.logger.Info("refresh token purger stopped")
			return
		case <-ticker.C:
		}
	}
}

// PurgeOnce runs a single sweep and returns how many rows were removed.
func (p *Purger) PurgeOnce(ctx context.Context) int64 {
	n, err := p.store.PurgeExpired(ctx, p.now())
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("failed to purge expired refresh tokens", zap.Error(err))
		}
		return 0
	}
	if n > 0 {
		p.logger.Info("purged expired refresh tokens", zap.Int64("count", n))
	}
	p.metrics.AddPurged(n)
	return n
}
