// Package cartsync keeps a cart status store in step with writes made by
// other connections to the same storage area.
package cartsync

import (
	"context"
	"fmt"

	"github.com/italolelis/datacart_status/internal/cartstatus"
	"github.com/italolelis/datacart_status/internal/logctx"
	"github.com/italolelis/datacart_status/internal/storage"
	"github.com/italolelis/datacart_status/internal/telemetry"
)

// Watcher reloads a store whenever another connection changes its slot and
// publishes the keys that are completely downloaded afterwards.
type Watcher struct {
	store     *cartstatus.Store
	feed      storage.Feed
	telemetry *telemetry.Telemetry

	OnDownloadsCompleted chan []string
}

// NewWatcher follows feed, a connection to the same area store is bound to.
// Using a connection other than the store's own also reports the store's
// own commits.
func NewWatcher(store *cartstatus.Store, feed storage.Feed, tel *telemetry.Telemetry) *Watcher {
	return &Watcher{
		store:                store,
		feed:                 feed,
		telemetry:            tel,
		OnDownloadsCompleted: make(chan []string),
	}
}

// Close closes the completion channel. Call it after Run has returned.
func (w *Watcher) Close() {
	close(w.OnDownloadsCompleted)
}

// Run handles change events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	events, err := w.feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to storage changes: %w", err)
	}

	logger.Info("watching cart status changes", "cart", w.store.Name())

	for ev := range events {
		if err := w.Handle(ctx, ev); err != nil {
			if ctx.Err() != nil {
				break
			}

			logger.Error("failed to handle storage change", "cart", w.store.Name(), "key", ev.Key, "err", err)
		}
	}

	logger.Info("cart status watcher shutdown", "cart", w.store.Name())

	return ctx.Err()
}

// Handle applies a single change event. Events for other slots are ignored.
// For the store's own slot the store is restored from storage, and the
// completed keys are sent on OnDownloadsCompleted.
func (w *Watcher) Handle(ctx context.Context, ev storage.Event) error {
	if ev.Key != w.store.Name() {
		w.telemetry.RecordChangeEvent(ev.Area, "ignored")

		return nil
	}

	if err := w.store.Restore(ctx); err != nil {
		w.telemetry.RecordChangeEvent(ev.Area, "failed")

		return fmt.Errorf("failed to restore cart status: %w", err)
	}

	w.telemetry.RecordChangeEvent(ev.Area, "applied")

	logctx.LoggerFromContext(ctx).Debug("cart status restored after external change",
		"cart", w.store.Name(), "origin", ev.Origin, "removed", ev.Removed)

	select {
	case w.OnDownloadsCompleted <- w.store.CompletedKeys():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
