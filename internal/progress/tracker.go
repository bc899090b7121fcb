// Package progress turns byte counts of a running download into status
// updates of the matching cart item.
package progress

import (
	"context"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/datacart_status/internal/cartstatus"
	"github.com/italolelis/datacart_status/internal/logctx"
)

// Tracker records the progress of one cart item.
type Tracker struct {
	store *cartstatus.Store
	key   string
}

// NewTracker tracks the item stored under key.
func NewTracker(store *cartstatus.Store, key string) *Tracker {
	return &Tracker{store: store, key: key}
}

// Update commits percent for the item, marking it completed at 100.
func (t *Tracker) Update(ctx context.Context, percent int) error {
	if percent >= 100 {
		return t.store.SetDownloadCompleted(ctx, t.key)
	}

	return t.store.SetDownloadPercentage(ctx, t.key, percent)
}

// Wrap returns a reader that updates the item while r is consumed. Failed
// updates are logged; they never interrupt the download.
func (t *Tracker) Wrap(ctx context.Context, r io.Reader, total int64) *Reader {
	logger := logctx.LoggerFromContext(ctx).With("cart", t.store.Name(), "key", t.key)

	return NewReader(r, total, func(percent int, written int64, total int64) {
		logger.Debug("download progress",
			"downloaded", humanize.Bytes(uint64(written)),
			"total", humanize.Bytes(uint64(max(total, 0))),
			"percent", percent)

		if err := t.Update(ctx, percent); err != nil {
			logger.Error("failed to record download progress", "percent", percent, "err", err)
		}
	})
}
