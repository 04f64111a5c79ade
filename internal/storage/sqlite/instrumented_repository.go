package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/downtube/internal/storage"
	"github.com/italolelis/downtube/internal/telemetry"
)

// InstrumentedVideoRepository wraps VideoRepository with telemetry.
type InstrumentedVideoRepository struct {
	repo      *VideoRepository
	telemetry *telemetry.Telemetry
}

var _ storage.VideoRepository = (*InstrumentedVideoRepository)(nil)

// NewInstrumentedVideoRepository creates a new instrumented video repository.
func NewInstrumentedVideoRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedVideoRepository {
	return &InstrumentedVideoRepository{
		repo:      NewVideoRepository(dbConn),
		telemetry: tel,
	}
}

// GetVideos retrieves all videos with telemetry.
func (r *InstrumentedVideoRepository) GetVideos(ctx context.Context) ([]storage.VideoRecord, error) {
	var result []storage.VideoRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_videos", func(ctx context.Context) error {
		var err error

		result, err = r.repo.GetVideos(ctx)

		return err
	})

	return result, err
}

func (r *InstrumentedVideoRepository) GetVideo(ctx context.Context, id int64) (storage.VideoRecord, error) {
	return r.getOne(ctx, "get_video", func(ctx context.Context) (storage.VideoRecord, error) {
		return r.repo.GetVideo(ctx, id)
	})
}

func (r *InstrumentedVideoRepository) GetVideoBySourceURL(ctx context.Context, sourceURL string) (storage.VideoRecord, error) {
	return r.getOne(ctx, "get_video_by_source_url", func(ctx context.Context) (storage.VideoRecord, error) {
		return r.repo.GetVideoBySourceURL(ctx, sourceURL)
	})
}

func (r *InstrumentedVideoRepository) GetVideoByStreamURL(ctx context.Context, streamURL string) (storage.VideoRecord, error) {
	return r.getOne(ctx, "get_video_by_stream_url", func(ctx context.Context) (storage.VideoRecord, error) {
		return r.repo.GetVideoByStreamURL(ctx, streamURL)
	})
}

// CreateVideo creates a pending video with telemetry.
func (r *InstrumentedVideoRepository) CreateVideo(ctx context.Context, sourceURL string) (storage.VideoRecord, error) {
	return r.getOne(ctx, "create_video", func(ctx context.Context) (storage.VideoRecord, error) {
		return r.repo.CreateVideo(ctx, sourceURL)
	})
}

// UpdateVideo updates a video with telemetry.
func (r *InstrumentedVideoRepository) UpdateVideo(ctx context.Context, record storage.VideoRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "update_video", func(ctx context.Context) error {
		return r.repo.UpdateVideo(ctx, record)
	})
}

// DeleteVideo deletes a video with telemetry.
func (r *InstrumentedVideoRepository) DeleteVideo(ctx context.Context, id int64) error {
	return r.telemetry.InstrumentDBOperation(ctx, "delete_video", func(ctx context.Context) error {
		return r.repo.DeleteVideo(ctx, id)
	})
}

func (r *InstrumentedVideoRepository) getOne(
	ctx context.Context, operation string, fn func(ctx context.Context) (storage.VideoRecord, error),
) (storage.VideoRecord, error) {
	var result storage.VideoRecord

	err := r.telemetry.InstrumentDBOperation(ctx, operation, func(ctx context.Context) error {
		var err error

		result, err = fn(ctx)

		return err
	})

	return result, err
}
