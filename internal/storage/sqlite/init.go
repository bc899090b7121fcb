package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// Connections wait for locks held by other processes sharing the file and
// take the write lock when a transaction begins.
const dsnOptions = "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"

// InitDB opens the SQLite database at path and creates the slot and change
// log tables if they don't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+dsnOptions)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS slots (
		area TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME,
		PRIMARY KEY (area, key)
	)`)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create slots table: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS slot_changes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		area TEXT NOT NULL,
		key TEXT NOT NULL,
		old_value TEXT,
		new_value TEXT,
		removed INTEGER NOT NULL DEFAULT 0,
		origin TEXT NOT NULL,
		changed_at DATETIME
	)`)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create slot_changes table: %w", err)
	}

	return db, nil
}
