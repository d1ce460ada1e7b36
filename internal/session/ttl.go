package session

import (
	"context"
	"log/slog"
	"time"
)

const sweepInterval = 5 * time.Minute

// StartTTLWorker runs a background goroutine that periodically sweeps
// sessions idle longer than ttl.
func StartTTLWorker(ctx context.Context, store Store, ttl time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session TTL worker started", "interval", sweepInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				deleted, err := store.DeleteExpired(ctx, ttl)
				if err != nil {
					slog.Error("Session TTL worker sweep failed", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("Session TTL worker removed idle sessions", "count", deleted)
				}
			case <-ctx.Done():
				slog.Info("Session TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
