package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type attemptPruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// pruneAttempts runs one prune and logs the outcome.
func pruneAttempts(ctx context.Context, p attemptPruner, retention time.Duration, log zerolog.Logger) error {
	n, err := p.Prune(ctx, retention)
	if err != nil {
		log.Warn().Err(err).Msg("prune attempt records failed")
		return err
	}
	log.Info().Int64("deleted", n).Dur("retention", retention).Msg("attempt records pruned")
	return nil
}

// runPruner prunes once immediately and then every interval until ctx ends.
// Failures are logged and retried on the next tick.
func runPruner(ctx context.Context, p attemptPruner, interval, retention time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_ = pruneAttempts(ctx, p, retention, log)
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
