package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a video record does not exist.
var ErrNotFound = errors.New("video not found")

// WatchProgress tracks how much of a video has been watched.
type WatchProgress string

const (
	Unwatched        WatchProgress = "unwatched"
	PartiallyWatched WatchProgress = "partially_watched"
	Watched          WatchProgress = "watched"
)

// Valid reports whether p is one of the known watch states.
func (p WatchProgress) Valid() bool {
	switch p {
	case Unwatched, PartiallyWatched, Watched:
		return true
	}

	return false
}

// VideoRecord represents a video in the catalog. A nil StreamURL marks a record whose
// stream has not been resolved yet.
type VideoRecord struct {
	ID            int64
	SourceURL     string
	StreamURL     *string
	Title         *string
	CreatedAt     time.Time
	WatchProgress WatchProgress
}

// IsResolved reports whether the record has a stream URL.
func (r VideoRecord) IsResolved() bool {
	return r.StreamURL != nil && *r.StreamURL != ""
}

// Stream returns the stream URL or an empty string while pending.
func (r VideoRecord) Stream() string {
	if r.StreamURL == nil {
		return ""
	}

	return *r.StreamURL
}

// DisplayTitle returns the title, falling back to the source URL.
func (r VideoRecord) DisplayTitle() string {
	if r.Title != nil && *r.Title != "" {
		return *r.Title
	}

	return r.SourceURL
}

type VideoReadRepository interface {
	GetVideos(ctx context.Context) ([]VideoRecord, error) // ordered by created_at, id
	GetVideo(ctx context.Context, id int64) (VideoRecord, error)
	GetVideoBySourceURL(ctx context.Context, sourceURL string) (VideoRecord, error)
	GetVideoByStreamURL(ctx context.Context, streamURL string) (VideoRecord, error)
}

type VideoWriteRepository interface {
	CreateVideo(ctx context.Context, sourceURL string) (VideoRecord, error)
	UpdateVideo(ctx context.Context, record VideoRecord) error
	DeleteVideo(ctx context.Context, id int64) error
}

// VideoRepository is the durable catalog of videos.
type VideoRepository interface {
	VideoReadRepository
	VideoWriteRepository
}

// PersistenceError is returned when a catalog mutation could not be persisted. The in-memory
// and durable views can no longer be trusted after one of these.
type PersistenceError struct {
	Operation string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist catalog during %s: %v", e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
