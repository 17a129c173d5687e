package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	historyRetention = 30 * 24 * time.Hour
	pruneInterval    = time.Hour
)

// Pruner deletes history older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartHistoryPruner launches a background goroutine that trims history to
// retention, once immediately and then every interval. It returns
// immediately; the goroutine ends with ctx.
func StartHistoryPruner(ctx context.Context, p Pruner, retention, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = pruneInterval
	}
	if retention <= 0 {
		retention = historyRetention
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			prune(ctx, p, retention, logger)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func prune(ctx context.Context, p Pruner, retention time.Duration, logger *zap.Logger) {
	n, err := p.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("history prune failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		logger.Info("history pruned", zap.Int64("rows", n))
	}
}
