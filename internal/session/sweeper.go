package session

import (
	"context"
	"log/slog"
	"time"
)

// Pruner removes journal rows past their retention.
type Pruner interface {
	CleanupExchanges(ctx context.Context, retention time.Duration) (int64, error)
}

// StartSweeper runs a background goroutine that periodically drops idle
// tab sessions and prunes old exchanges. pruner may be nil.
func StartSweeper(ctx context.Context, reg *Registry, interval time.Duration, pruner Pruner, retention time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", reg.ttl, "retention", retention)

		for {
			select {
			case now := <-ticker.C:
				sweep(ctx, reg, now, pruner, retention)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, reg *Registry, now time.Time, pruner Pruner, retention time.Duration) {
	if removed := reg.Sweep(now); removed > 0 {
		slog.Info("Session sweeper removed idle sessions", "count", removed, "remaining", reg.Len())
	}

	if pruner == nil || retention <= 0 {
		return
	}
	deleted, err := pruner.CleanupExchanges(ctx, retention)
	if err != nil {
		slog.Error("Session sweeper failed to prune exchanges", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Session sweeper pruned exchanges", "count", deleted)
	}
}
