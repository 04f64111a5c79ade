package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB initializes the SQLite database and creates the videos table if it doesn't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// SQLite serializes writers anyway; a single connection also keeps ":memory:" databases
	// from being split across pool connections.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS videos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_url TEXT NOT NULL UNIQUE,
		stream_url TEXT,
		title TEXT,
		created_at TEXT NOT NULL,
		watch_progress TEXT NOT NULL DEFAULT 'unwatched'
	)`)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create videos table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_videos_stream_url ON videos (stream_url)`)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create stream_url index: %w", err)
	}

	return db, nil
}
