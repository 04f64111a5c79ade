package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/downtube/internal/storage"
)

// VideoWriteRepository implements storage.VideoWriteRepository
// and stores video records in SQLite.
type VideoWriteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewVideoWriteRepository(db *sql.DB) *VideoWriteRepository {
	return &VideoWriteRepository{db: db, now: time.Now}
}

// CreateVideo inserts a pending record for sourceURL.
func (r *VideoWriteRepository) CreateVideo(ctx context.Context, sourceURL string) (storage.VideoRecord, error) {
	createdAt := r.now().UTC().Truncate(time.Second)

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO videos (source_url, created_at, watch_progress) VALUES (?, ?, ?)`,
		sourceURL, createdAt.Format(time.RFC3339), string(storage.Unwatched),
	)
	if err != nil {
		return storage.VideoRecord{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return storage.VideoRecord{}, err
	}

	return storage.VideoRecord{
		ID:            id,
		SourceURL:     sourceURL,
		CreatedAt:     createdAt,
		WatchProgress: storage.Unwatched,
	}, nil
}

// UpdateVideo persists the mutable fields of record.
func (r *VideoWriteRepository) UpdateVideo(ctx context.Context, record storage.VideoRecord) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE videos SET stream_url = ?, title = ?, watch_progress = ? WHERE id = ?`,
		nullString(record.StreamURL), nullString(record.Title), string(record.WatchProgress), record.ID,
	)
	if err != nil {
		return err
	}

	return expectAffected(res, record.ID)
}

func (r *VideoWriteRepository) DeleteVideo(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return err
	}

	return expectAffected(res, id)
}

func expectAffected(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return fmt.Errorf("video %d: %w", id, storage.ErrNotFound)
	}

	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *s, Valid: true}
}
