package app

import (
	"context"
	"log/slog"
	"time"

	"sessiond/cmd/internal/auth/session"
)

// runJanitor deletes expired session records every interval until ctx ends.
// Stores that expire records natively do not implement session.Purger and
// never reach here.
func runJanitor(ctx context.Context, p session.Purger, interval time.Duration, now func() time.Time, log *slog.Logger) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			purgeOnce(ctx, p, now(), log)
		}
	}
}

func purgeOnce(ctx context.Context, p session.Purger, now time.Time, log *slog.Logger) int64 {
	n, err := p.PurgeExpired(ctx, now)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("session.purge.fail", "error", err)
		}
		return 0
	}
	if n > 0 {
		log.Info("session.purge", "deleted", n)
	}
	return n
}
