package service

import (
	"context"
	"log/slog"
	"time"
)

const janitorInterval = time.Minute

// StartJanitor runs a background goroutine that periodically evicts finished
// training sessions older than ttl. It stops when ctx is canceled.
func StartJanitor(ctx context.Context, sessions *TrainSessionService, ttl time.Duration) {
	startJanitor(ctx, sessions, ttl, janitorInterval)
}

func startJanitor(ctx context.Context, sessions *TrainSessionService, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session janitor started", "interval", interval, "ttl", ttl)

		for {
			select {
			case now := <-ticker.C:
				sweepSessions(sessions, now, ttl)
			case <-ctx.Done():
				slog.Info("Session janitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepSessions(sessions *TrainSessionService, now time.Time, ttl time.Duration) {
	removed := sessions.Sweep(now.Add(-ttl))
	if removed > 0 {
		slog.Info("Session janitor evicted finished sessions", "count", removed, "remaining", sessions.Len())
	}
}
