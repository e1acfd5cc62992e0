package widget

import (
	"context"
	"log/slog"
	"time"
)

const defaultSweepInterval = time.Minute

// ConversationSweeper ends conversations that saw no activity for a while.
type ConversationSweeper interface {
	EndStaleConversations(ctx context.Context, idle time.Duration) (int64, error)
}

// StartTTLWorker runs a background goroutine that periodically closes idle
// widget sessions, ends stale conversations and forgets idle visitors.
func StartTTLWorker(ctx context.Context, repo ConversationSweeper, sm *SessionManager, limiter *VisitorLimiter, ttl, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, repo, sm, limiter, ttl)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, repo ConversationSweeper, sm *SessionManager, limiter *VisitorLimiter, ttl time.Duration) {
	if closed := sm.CloseIdle(ttl); closed > 0 {
		slog.Info("TTL worker closed idle widget sessions", "count", closed)
	}

	if repo != nil {
		ended, err := repo.EndStaleConversations(ctx, ttl)
		switch {
		case err != nil && ctx.Err() != nil:
			slog.Debug("TTL worker: context canceled while ending conversations", "error", err)
		case err != nil:
			slog.Error("TTL worker failed to end stale conversations", "error", err)
		case ended > 0:
			slog.Info("TTL worker ended stale conversations", "count", ended)
		}
	}

	if limiter != nil {
		if pruned := limiter.Prune(ttl); pruned > 0 {
			slog.Debug("TTL worker pruned idle visitors", "count", pruned)
		}
	}
}
