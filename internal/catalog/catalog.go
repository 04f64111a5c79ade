// Package catalog owns identity and cleanup rules for video records on top of the store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/italolelis/downtube/internal/logctx"
	"github.com/italolelis/downtube/internal/storage"
)

// Gateway decides whether a source URL already has a record and keeps pending records from
// piling up. Mutations that fail to persist are returned as *storage.PersistenceError.
type Gateway struct {
	repo storage.VideoRepository

	// mu serializes the check-then-write sequences that enforce record uniqueness.
	mu sync.Mutex

	// order caches the catalog order for index lookups. Every write bumps gen, and a load that
	// overlapped a write is not cached.
	orderMu sync.Mutex
	order   []storage.VideoRecord
	cached  bool
	gen     uint64
}

func NewGateway(repo storage.VideoRepository) *Gateway {
	return &Gateway{repo: repo}
}

// FindOrCreate returns the record for sourceURL, creating a pending one when none exists.
// created reports whether a new record was made.
func (g *Gateway) FindOrCreate(ctx context.Context, sourceURL string) (storage.VideoRecord, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := g.repo.GetVideoBySourceURL(ctx, sourceURL)
	if err == nil {
		return rec, false, nil
	}

	if !errors.Is(err, storage.ErrNotFound) {
		return storage.VideoRecord{}, false, fmt.Errorf("failed to look up source url: %w", err)
	}

	rec, err = g.repo.CreateVideo(ctx, sourceURL)
	g.invalidate()

	if err != nil {
		return storage.VideoRecord{}, false, &storage.PersistenceError{Operation: "create_video", Err: err}
	}

	return rec, true, nil
}

// ResolveComplete stores the resolved stream URL and title on rec. It fails with
// *DuplicateError when another record already owns the stream.
func (g *Gateway) ResolveComplete(ctx context.Context, rec storage.VideoRecord, streamURL, title string) (storage.VideoRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, err := g.repo.GetVideoByStreamURL(ctx, streamURL)

	switch {
	case err == nil && existing.ID != rec.ID:
		return storage.VideoRecord{}, &DuplicateError{SourceURL: existing.SourceURL, ExistingID: existing.ID}
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return storage.VideoRecord{}, fmt.Errorf("failed to look up stream url: %w", err)
	}

	rec.StreamURL = &streamURL
	if title != "" {
		rec.Title = &title
	}

	if err := g.update(ctx, rec); err != nil {
		return storage.VideoRecord{}, err
	}

	return rec, nil
}

// update persists rec. A record deleted in the meantime yields storage.ErrNotFound rather than a
// persistence failure.
func (g *Gateway) update(ctx context.Context, rec storage.VideoRecord) error {
	defer g.invalidate()

	if err := g.repo.UpdateVideo(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("video %d was removed: %w", rec.ID, storage.ErrNotFound)
		}

		return &storage.PersistenceError{Operation: "update_video", Err: err}
	}

	return nil
}

// RemoveUnresolved deletes every pending record and returns their ids.
func (g *Gateway) RemoveUnresolved(ctx context.Context) ([]int64, error) {
	videos, err := g.repo.GetVideos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}

	var removed []int64

	for _, v := range videos {
		if v.IsResolved() {
			continue
		}

		err := g.repo.DeleteVideo(ctx, v.ID)
		g.invalidate()

		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return removed, &storage.PersistenceError{Operation: "delete_video", Err: err}
		}

		removed = append(removed, v.ID)
	}

	if len(removed) > 0 {
		logctx.LoggerFromContext(ctx).InfoContext(ctx, "removed unresolved videos", "ids", removed)
	}

	return removed, nil
}

// All returns every record in catalog order.
func (g *Gateway) All(ctx context.Context) ([]storage.VideoRecord, error) {
	videos, err := g.repo.GetVideos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}

	return videos, nil
}

func (g *Gateway) Get(ctx context.Context, id int64) (storage.VideoRecord, error) {
	rec, err := g.repo.GetVideo(ctx, id)
	if err != nil {
		return storage.VideoRecord{}, fmt.Errorf("failed to get video %d: %w", id, err)
	}

	return rec, nil
}

// Delete removes a record. Deleting a missing record returns storage.ErrNotFound.
func (g *Gateway) Delete(ctx context.Context, id int64) error {
	defer g.invalidate()

	if err := g.repo.DeleteVideo(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}

		return &storage.PersistenceError{Operation: "delete_video", Err: err}
	}

	return nil
}

// SetWatchProgress updates the watch state of a record.
func (g *Gateway) SetWatchProgress(ctx context.Context, id int64, p storage.WatchProgress) (storage.VideoRecord, error) {
	if !p.Valid() {
		return storage.VideoRecord{}, fmt.Errorf("invalid watch progress %q", p)
	}

	rec, err := g.Get(ctx, id)
	if err != nil {
		return storage.VideoRecord{}, err
	}

	if rec.WatchProgress == p {
		return rec, nil
	}

	rec.WatchProgress = p

	if err := g.update(ctx, rec); err != nil {
		return storage.VideoRecord{}, err
	}

	return rec, nil
}

// IndexOfStreamURL returns the catalog position of the record owning streamURL.
func (g *Gateway) IndexOfStreamURL(ctx context.Context, streamURL string) (int, bool) {
	return g.indexOf(ctx, func(v storage.VideoRecord) bool { return v.Stream() == streamURL })
}

// IndexOfID returns the catalog position of the record with the given id.
func (g *Gateway) IndexOfID(ctx context.Context, id int64) (int, bool) {
	return g.indexOf(ctx, func(v storage.VideoRecord) bool { return v.ID == id })
}

// StreamURLs returns the stream URL of every resolved record.
func (g *Gateway) StreamURLs(ctx context.Context) ([]string, error) {
	videos, err := g.All(ctx)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(videos))

	for _, v := range videos {
		if v.IsResolved() {
			urls = append(urls, v.Stream())
		}
	}

	return urls, nil
}

func (g *Gateway) indexOf(ctx context.Context, match func(storage.VideoRecord) bool) (int, bool) {
	videos, err := g.ordered(ctx)
	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to list videos for index lookup", "err", err)

		return -1, false
	}

	for i, v := range videos {
		if match(v) {
			return i, true
		}
	}

	return -1, false
}

// ordered returns the catalog order, loading it from the store only after a write. The returned
// slice is shared and must not be modified.
func (g *Gateway) ordered(ctx context.Context) ([]storage.VideoRecord, error) {
	g.orderMu.Lock()
	if g.cached {
		videos := g.order
		g.orderMu.Unlock()

		return videos, nil
	}

	gen := g.gen
	g.orderMu.Unlock()

	videos, err := g.repo.GetVideos(ctx)
	if err != nil {
		return nil, err
	}

	g.orderMu.Lock()
	if g.gen == gen {
		g.order = videos
		g.cached = true
	}
	g.orderMu.Unlock()

	return videos, nil
}

func (g *Gateway) invalidate() {
	g.orderMu.Lock()
	defer g.orderMu.Unlock()

	g.gen++
	g.order = nil
	g.cached = false
}
