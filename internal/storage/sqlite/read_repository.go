package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/italolelis/downtube/internal/storage"
)

const selectVideos = `SELECT id, source_url, stream_url, title, created_at, watch_progress FROM videos`

type VideoReadRepository struct {
	db *sql.DB
}

func NewVideoReadRepository(dbConn *sql.DB) *VideoReadRepository {
	return &VideoReadRepository{db: dbConn}
}

// GetVideos returns every record in catalog order.
func (r *VideoReadRepository) GetVideos(ctx context.Context) ([]storage.VideoRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectVideos+` ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []storage.VideoRecord

	for rows.Next() {
		record, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}

		videos = append(videos, record)
	}

	return videos, rows.Err()
}

func (r *VideoReadRepository) GetVideo(ctx context.Context, id int64) (storage.VideoRecord, error) {
	return scanVideo(r.db.QueryRowContext(ctx, selectVideos+` WHERE id = ?`, id))
}

func (r *VideoReadRepository) GetVideoBySourceURL(ctx context.Context, sourceURL string) (storage.VideoRecord, error) {
	return scanVideo(r.db.QueryRowContext(ctx, selectVideos+` WHERE source_url = ?`, sourceURL))
}

func (r *VideoReadRepository) GetVideoByStreamURL(ctx context.Context, streamURL string) (storage.VideoRecord, error) {
	return scanVideo(r.db.QueryRowContext(ctx, selectVideos+` WHERE stream_url = ? ORDER BY id LIMIT 1`, streamURL))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(row scanner) (storage.VideoRecord, error) {
	var (
		record    storage.VideoRecord
		streamURL sql.NullString
		title     sql.NullString
		createdAt string
		progress  string
	)

	if err := row.Scan(&record.ID, &record.SourceURL, &streamURL, &title, &createdAt, &progress); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.VideoRecord{}, storage.ErrNotFound
		}

		return storage.VideoRecord{}, err
	}

	if streamURL.Valid {
		record.StreamURL = &streamURL.String
	}

	if title.Valid {
		record.Title = &title.String
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return storage.VideoRecord{}, fmt.Errorf("failed to parse created_at for video %d: %w", record.ID, err)
	}

	record.CreatedAt = t
	record.WatchProgress = storage.WatchProgress(progress)

	return record, nil
}
