package cartstatus

import (
	"context"
	"fmt"
	"sync"

	"github.com/italolelis/datacart_status/internal/logctx"
	"github.com/italolelis/datacart_status/internal/storage"
	"github.com/italolelis/datacart_status/internal/telemetry"
)

const (
	// DefaultName is the slot used when no cart name is given.
	DefaultName = "cartStatus"
	// GlobalName is the slot of the cart holding every item.
	GlobalName = "all"
)

// Store holds the status table of one cart and commits it to a storage
// slot named after the cart.
//
// Stores are safe for concurrent use, but the slot itself is shared with
// every other store bound to the same area and name: the last commit wins
// and there is no merging. Call Restore before reading when another
// connection may have written in between.
type Store struct {
	name      string
	area      storage.Area
	telemetry *telemetry.Telemetry

	mu    sync.Mutex
	table *StatusTable
}

// New binds a store to name, table and area without touching storage.
// A nil table is replaced with an empty one. A nil area yields an unbound
// store whose storage operations fail with ErrStorageUnavailable.
func New(name string, table *StatusTable, area storage.Area) *Store {
	if table == nil {
		table = NewStatusTable()
	}

	return &Store{
		name:  name,
		area:  area,
		table: table,
	}
}

// OpenOrCreate loads the table committed under name in area, or commits an
// empty one tagged CREATE when there is none. An empty name opens DefaultName.
func OpenOrCreate(ctx context.Context, name string, area storage.Area) (*Store, error) {
	return open(ctx, name, area, nil)
}

// Create commits an empty table under name in area, replacing whatever was there.
func Create(ctx context.Context, name string, area storage.Area) (*Store, error) {
	return create(ctx, name, area, nil)
}

func open(ctx context.Context, name string, area storage.Area, tel *telemetry.Telemetry) (*Store, error) {
	if name == "" {
		name = DefaultName
	}

	s := New(name, nil, area)
	s.telemetry = tel

	text, found, err := s.load(ctx, "open")
	if err != nil {
		return nil, err
	}

	if !found {
		return create(ctx, name, area, tel)
	}

	envelope, err := Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to open cart status %s: %w", name, err)
	}

	s.table = envelope.Lookup

	logctx.LoggerFromContext(ctx).Debug("cart status opened", "cart", name, "area", s.areaName(), "items", s.table.Len())

	return s, nil
}

func create(ctx context.Context, name string, area storage.Area, tel *telemetry.Telemetry) (*Store, error) {
	if name == "" {
		name = DefaultName
	}

	s := New(name, nil, area)
	s.telemetry = tel

	if err := s.commit(ctx, ActionCreate); err != nil {
		return nil, err
	}

	logctx.LoggerFromContext(ctx).Debug("cart status created", "cart", name, "area", s.areaName())

	return s, nil
}

// Name returns the slot name the store is bound to.
func (s *Store) Name() string {
	return s.name
}

// Area returns the bound storage area, nil when unbound.
func (s *Store) Area() storage.Area {
	return s.area
}

// Table returns the live in-memory table. It is replaced, not modified, by
// Restore; callers sharing the store across goroutines should use Items.
func (s *Store) Table() *StatusTable {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.table
}

// Items returns a copy of the in-memory table.
func (s *Store) Items() *StatusTable {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.table.Clone()
}

// Len returns the number of tracked items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.table.Len()
}

// Keys returns the composite keys in insertion order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.table.Keys()
}

// Save commits the in-memory table tagged CREATE.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit(ctx, ActionCreate)
}

// Forget removes the slot from storage. The in-memory table is kept, so a
// later Save recreates the slot with it.
func (s *Store) Forget(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.area == nil {
		return &StorageUnavailableError{Operation: "forget", Err: ErrUnbound}
	}

	if err := s.area.RemoveItem(ctx, s.name); err != nil {
		return &StorageUnavailableError{Area: s.area.Name(), Operation: "forget", Err: err}
	}

	logctx.LoggerFromContext(ctx).Debug("cart status forgotten", "cart", s.name, "area", s.areaName())

	return nil
}

// Restore replaces the in-memory table with the committed one, dropping
// uncommitted changes. With nothing committed the table becomes empty. A
// malformed commit leaves the table untouched and is returned as an error.
func (s *Store) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.restore(ctx)
}

func (s *Store) restore(ctx context.Context) error {
	text, found, err := s.load(ctx, "restore")
	if err != nil {
		s.telemetry.RecordRestore("error")

		return err
	}

	if !found {
		s.table = NewStatusTable()
		s.telemetry.RecordRestore("empty")

		return nil
	}

	envelope, err := Parse(text)
	if err != nil {
		s.telemetry.RecordRestore("error")

		return fmt.Errorf("failed to restore cart status %s: %w", s.name, err)
	}

	s.table = envelope.Lookup
	s.telemetry.RecordRestore("success")

	return nil
}

// FindStatusByID returns the item stored under the exact composite key.
func (s *Store) FindStatusByID(key string) (StatusItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.table.Get(key)
}

// SetItem stores item under key in memory only.
func (s *Store) SetItem(key string, item StatusItem) error {
	if err := validatePercentage(key, item.DownloadPercentage); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.table.Set(key, item)

	return nil
}

// RemoveItem deletes key in memory only and reports whether it was present.
func (s *Store) RemoveItem(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.table.Delete(key)
}

// AddItem stores item under key and commits the table tagged ADD_ITEM.
func (s *Store) AddItem(ctx context.Context, key string, item StatusItem) error {
	if err := validatePercentage(key, item.DownloadPercentage); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.table.Set(key, item)

	return s.commit(ctx, ActionAddItem)
}

// RemoveStatusItem reloads the committed table, deletes key and commits the
// result tagged REMOVE_ITEM. A missing key is not an error.
func (s *Store) RemoveStatusItem(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.restore(ctx); err != nil {
		return err
	}

	if !s.table.Delete(key) {
		logctx.LoggerFromContext(ctx).Debug("status item already removed", "cart", s.name, "key", key)

		return nil
	}

	return s.commit(ctx, ActionRemoveItem)
}

// SetDownloadCompleted marks key as fully downloaded and commits the table
// tagged SET_DOWNLOAD_COMPLETE. A missing key is a no-op.
func (s *Store) SetDownloadCompleted(ctx context.Context, key string) error {
	return s.update(ctx, key, ActionSetDownloadComplete, func(item *StatusItem) {
		item.DownloadPercentage = 100
	})
}

// SetDownloadPercentage records the progress of key and commits the table
// tagged SET_DOWNLOAD_PERCENTAGE. A missing key is a no-op.
func (s *Store) SetDownloadPercentage(ctx context.Context, key string, percentage int) error {
	if err := validatePercentage(key, percentage); err != nil {
		return err
	}

	return s.update(ctx, key, ActionSetDownloadPercentage, func(item *StatusItem) {
		item.DownloadPercentage = percentage
	})
}

// SetInUse flags whether key is part of an active download plan and commits
// the table tagged SET_IN_USE. A missing key is a no-op.
func (s *Store) SetInUse(ctx context.Context, key string, inUse bool) error {
	return s.update(ctx, key, ActionSetInUse, func(item *StatusItem) {
		item.IsInUse = inUse
	})
}

func (s *Store) update(ctx context.Context, key string, action ActionTag, mutate func(item *StatusItem)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.table.Get(key)
	if !ok {
		logctx.LoggerFromContext(ctx).Debug("ignoring update for unknown status item",
			"cart", s.name, "key", key, "action", action)

		return nil
	}

	mutate(&item)
	s.table.Set(key, item)

	return s.commit(ctx, action)
}

// CompletedKeys returns the keys whose download is complete.
func (s *Store) CompletedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := []string{}

	s.table.Range(func(key string, item StatusItem) bool {
		if item.IsCompleted() {
			keys = append(keys, key)
		}

		return true
	})

	return keys
}

// HasStatusToDisplay reports whether any item has started downloading.
func (s *Store) HasStatusToDisplay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false

	s.table.Range(func(_ string, item StatusItem) bool {
		found = item.DownloadPercentage > 0

		return !found
	})

	return found
}

// PruneCompleted reloads the committed table and drops completed items that
// are no longer in use, committing the result tagged REMOVE_ITEM when
// anything was removed. It returns the removed keys.
func (s *Store) PruneCompleted(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.restore(ctx); err != nil {
		return nil, err
	}

	var removed []string

	s.table.Range(func(key string, item StatusItem) bool {
		if item.IsCompleted() && !item.IsInUse {
			removed = append(removed, key)
		}

		return true
	})

	if len(removed) == 0 {
		return nil, nil
	}

	for _, key := range removed {
		s.table.Delete(key)
	}

	if err := s.commit(ctx, ActionRemoveItem); err != nil {
		return nil, err
	}

	return removed, nil
}

// commit must be called with s.mu held, except while the store is being built.
func (s *Store) commit(ctx context.Context, action ActionTag) error {
	if s.area == nil {
		return &StorageUnavailableError{Operation: "save", Err: ErrUnbound}
	}

	text, err := Stringify(s.table, action)
	if err != nil {
		return fmt.Errorf("failed to encode cart status %s: %w", s.name, err)
	}

	err = s.telemetry.InstrumentCommit(ctx, string(action), func(ctx context.Context) error {
		return s.area.SetItem(ctx, s.name, text)
	})
	if err != nil {
		return &StorageUnavailableError{Area: s.area.Name(), Operation: "save", Err: err}
	}

	logctx.LoggerFromContext(ctx).Debug("cart status committed",
		"cart", s.name, "area", s.area.Name(), "action", action, "items", s.table.Len())

	return nil
}

func (s *Store) load(ctx context.Context, operation string) (string, bool, error) {
	if s.area == nil {
		return "", false, &StorageUnavailableError{Operation: operation, Err: ErrUnbound}
	}

	text, found, err := s.area.GetItem(ctx, s.name)
	if err != nil {
		return "", false, &StorageUnavailableError{Area: s.area.Name(), Operation: operation, Err: err}
	}

	return text, found, nil
}

func (s *Store) areaName() string {
	if s.area == nil {
		return ""
	}

	return s.area.Name()
}

func validatePercentage(key string, percentage int) error {
	if percentage < 0 || percentage > 100 {
		return &InvalidPercentageError{Key: key, Percentage: percentage}
	}

	return nil
}
