package cleanup

import (
	"context"
	"time"

	"github.com/italolelis/datacart_status/internal/cartstatus"
	"github.com/italolelis/datacart_status/internal/logctx"
)

// PruneCompleted drops completed status items that are no longer part of an
// active download plan.
func PruneCompleted(ctx context.Context, store *cartstatus.Store) error {
	logger := logctx.LoggerFromContext(ctx)

	removed, err := store.PruneCompleted(ctx)
	if err != nil {
		logger.Error("failed to prune completed status items", "cart", store.Name(), "err", err)

		return err
	}

	for _, key := range removed {
		logger.Info("pruned completed status item", "cart", store.Name(), "key", key)
	}

	return nil
}

// Run prunes store every interval until ctx is done.
func Run(ctx context.Context, store *cartstatus.Store, interval time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down.")

			return
		case <-ticker.C:
			_ = PruneCompleted(ctx, store)
		}
	}
}
