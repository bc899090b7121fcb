package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/italolelis/datacart_status/internal/logctx"
	"github.com/italolelis/datacart_status/internal/storage"
)

const defaultPollInterval = time.Second

// Area is a durable storage area kept in an SQLite database. Several
// processes may open the same file; each Area is one connection identified
// by its origin. Every write is appended to slot_changes, which Subscribe
// polls to report writes made by other origins.
type Area struct {
	db           *sql.DB
	name         string
	origin       string
	pollInterval time.Duration
}

// NewArea binds the area called name in db to origin. A non-positive
// pollInterval defaults to one second.
func NewArea(db *sql.DB, name, origin string, pollInterval time.Duration) *Area {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &Area{
		db:           db,
		name:         name,
		origin:       origin,
		pollInterval: pollInterval,
	}
}

func (a *Area) Name() string {
	return a.name
}

func (a *Area) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := a.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE area = ? AND key = ?`, a.name, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return value, true, nil
}

// SetItem upserts the slot and logs the change. Writing the value already
// stored is not logged.
func (a *Area) SetItem(ctx context.Context, key, value string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	old, existed, err := currentValue(ctx, tx, a.name, key)
	if err != nil {
		return err
	}

	if existed && old.String == value {
		return tx.Commit()
	}

	now := time.Now().Format(time.RFC3339)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO slots (area, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(area, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, a.name, key, value, now)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO slot_changes (area, key, old_value, new_value, removed, origin, changed_at) VALUES (?, ?, ?, ?, 0, ?, ?)`,
		a.name, key, old, value, a.origin, now,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// RemoveItem deletes the slot and logs the change. Removing a missing slot
// is not logged.
func (a *Area) RemoveItem(ctx context.Context, key string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	old, existed, err := currentValue(ctx, tx, a.name, key)
	if err != nil {
		return err
	}

	if !existed {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE area = ? AND key = ?`, a.name, key); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO slot_changes (area, key, old_value, new_value, removed, origin, changed_at) VALUES (?, ?, ?, NULL, 1, ?, ?)`,
		a.name, key, old, a.origin, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Subscribe reports changes logged by other origins after the call.
func (a *Area) Subscribe(ctx context.Context) (<-chan storage.Event, error) {
	var last int64

	err := a.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM slot_changes`).Scan(&last)
	if err != nil {
		return nil, err
	}

	out := make(chan storage.Event)

	go func() {
		defer close(out)

		logger := logctx.LoggerFromContext(ctx)

		ticker := time.NewTicker(a.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				events, seq, err := a.changesSince(ctx, last)
				if err != nil {
					if ctx.Err() != nil {
						return
					}

					logger.Error("failed to poll storage changes", "area", a.name, "err", err)

					continue
				}

				last = seq

				for _, ev := range events {
					select {
					case <-ctx.Done():
						return
					case out <- ev:
					}
				}
			}
		}
	}()

	return out, nil
}

// changesSince returns the changes of other origins after seq, along with
// the highest sequence number seen.
func (a *Area) changesSince(ctx context.Context, seq int64) ([]storage.Event, int64, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT seq, key, old_value, new_value, removed, origin
		FROM slot_changes
		WHERE seq > ? AND area = ?
		ORDER BY seq`, seq, a.name)
	if err != nil {
		return nil, seq, err
	}
	defer rows.Close()

	var events []storage.Event

	for rows.Next() {
		var (
			ev       storage.Event
			oldValue sql.NullString
			newValue sql.NullString
		)

		if err := rows.Scan(&seq, &ev.Key, &oldValue, &newValue, &ev.Removed, &ev.Origin); err != nil {
			return nil, seq, err
		}

		if ev.Origin == a.origin {
			continue
		}

		ev.Area = a.name
		ev.OldValue = oldValue.String
		ev.NewValue = newValue.String

		events = append(events, ev)
	}

	return events, seq, rows.Err()
}

func currentValue(ctx context.Context, tx *sql.Tx, area, key string) (sql.NullString, bool, error) {
	var value sql.NullString

	err := tx.QueryRowContext(ctx, `SELECT value FROM slots WHERE area = ? AND key = ?`, area, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return value, false, nil
	}

	if err != nil {
		return value, false, err
	}

	return value, true, nil
}
