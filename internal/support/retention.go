package support

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/jobchat/internal/store"
)

const retentionWorkerInterval = time.Hour

// StartRetentionWorker runs a background goroutine that periodically deletes
// support transcript lines older than retention. A non-positive retention
// disables the worker.
func StartRetentionWorker(ctx context.Context, repo store.Repository, retention time.Duration) {
	if retention <= 0 {
		slog.Info("Support retention worker disabled")
		return
	}

	ticker := time.NewTicker(retentionWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Support retention worker started", "interval", retentionWorkerInterval, "retention", retention)

		pruneTranscripts(ctx, repo, retention, time.Now())
		for {
			select {
			case now := <-ticker.C:
				pruneTranscripts(ctx, repo, retention, now)
			case <-ctx.Done():
				slog.Info("Support retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func pruneTranscripts(ctx context.Context, repo store.Repository, retention time.Duration, now time.Time) int64 {
	deleted, err := repo.PruneSupportMessages(ctx, now.Add(-retention))
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Support retention worker: context canceled during prune", "error", err)
			return 0
		}
		slog.Error("Support retention worker failed to prune transcripts", "error", err)
		return 0
	}
	if deleted > 0 {
		slog.Info("Support retention worker pruned transcripts", "count", deleted)
	}
	return deleted
}
