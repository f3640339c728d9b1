package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper is implemented by stores that can drop expired entries in bulk.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// RunSweeper calls SweepExpired every interval until ctx is done.
// It blocks; start it with `go`.
func RunSweeper(ctx context.Context, store Sweeper, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Debug().Dur("interval", interval).Msg("Cache sweeper started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("Cache sweeper stopped")
			return
		case <-ticker.C:
			removed, err := store.SweepExpired(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("Cache sweep failed")
				continue
			}
			if removed > 0 {
				logger.Debug().Int("removed", removed).Msg("Swept expired entries")
			}
		}
	}
}
