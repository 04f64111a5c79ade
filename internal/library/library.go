// Package library implements the user-facing video operations on top of the catalog and the
// download manager.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/italolelis/downtube/internal/catalog"
	"github.com/italolelis/downtube/internal/downloader"
	"github.com/italolelis/downtube/internal/logctx"
	"github.com/italolelis/downtube/internal/mediapath"
	"github.com/italolelis/downtube/internal/registry"
	"github.com/italolelis/downtube/internal/resolver"
	"github.com/italolelis/downtube/internal/storage"
	"golang.org/x/sync/errgroup"
)

// ErrTransferInProgress is returned when a file operation targets a video that is still
// downloading.
var ErrTransferInProgress = errors.New("video is still downloading")

// ErrNotResolved is returned when an operation needs a stream URL the record does not have yet.
var ErrNotResolved = errors.New("video stream is not resolved yet")

// ResolutionError is returned when a source URL could not be turned into a stream.
type ResolutionError struct {
	SourceURL string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %s: %v", e.SourceURL, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Video is a catalog record together with its local and transfer state.
type Video struct {
	storage.VideoRecord

	Downloaded bool
	Download   *registry.Download
}

// FilesystemGuard orders file changes in the media root. Completions and replacements hold the
// shared side; deletions hold the exclusive side so they run after any in-flight move.
type FilesystemGuard interface {
	Shared() func()
	Exclusive() func()
}

// Library coordinates the catalog, the stream resolver and the download manager.
type Library struct {
	gateway  *catalog.Gateway
	resolver resolver.Resolver
	manager  *downloader.Manager
	paths    *mediapath.Resolver
	guard    FilesystemGuard
	observer downloader.Observer
	onFatal  func(error)

	resolutions errgroup.Group
}

// New creates a library. onFatal is called with every *storage.PersistenceError; the catalog
// cannot be trusted after one.
func New(
	gateway *catalog.Gateway,
	res resolver.Resolver,
	manager *downloader.Manager,
	paths *mediapath.Resolver,
	guard FilesystemGuard,
	observer downloader.Observer,
	onFatal func(error),
) *Library {
	return &Library{
		gateway:  gateway,
		resolver: res,
		manager:  manager,
		paths:    paths,
		guard:    guard,
		observer: observer,
		onFatal:  onFatal,
	}
}

// Add accepts a source URL. It creates a pending record and resolves and downloads it in the
// background. A source URL that is already in the catalog yields *catalog.DuplicateError.
func (l *Library) Add(ctx context.Context, sourceURL string) (storage.VideoRecord, error) {
	rec, created, err := l.gateway.FindOrCreate(ctx, sourceURL)
	if err != nil {
		return storage.VideoRecord{}, l.check(err)
	}

	if !created {
		l.observer.NotifyError("Video already downloaded")

		return rec, &catalog.DuplicateError{SourceURL: sourceURL, ExistingID: rec.ID}
	}

	l.notifyRecord(ctx, rec.ID)
	l.resolveAsync(ctx, rec)

	return rec, nil
}

// ResumePending schedules resolution for records left pending by a previous run.
func (l *Library) ResumePending(ctx context.Context) error {
	videos, err := l.gateway.All(ctx)
	if err != nil {
		return err
	}

	for _, v := range videos {
		if !v.IsResolved() {
			l.resolveAsync(ctx, v)
		}
	}

	return nil
}

// StartResolved starts transfers for every resolved record whose file is missing.
func (l *Library) StartResolved(ctx context.Context) error {
	videos, err := l.gateway.All(ctx)
	if err != nil {
		return err
	}

	for _, v := range videos {
		if v.IsResolved() && !l.paths.Exists(v.Stream()) {
			l.manager.Start(ctx, v)
		}
	}

	return nil
}

// Wait blocks until every background resolution has finished.
func (l *Library) Wait() error {
	return l.resolutions.Wait()
}

func (l *Library) resolveAsync(ctx context.Context, rec storage.VideoRecord) {
	bg := context.WithoutCancel(ctx)

	l.resolutions.Go(func() error {
		l.resolve(bg, rec)

		return nil
	})
}

func (l *Library) resolve(ctx context.Context, rec storage.VideoRecord) {
	logger := logctx.LoggerFromContext(ctx).With("video_id", rec.ID)

	res, err := l.resolver.Resolve(ctx, rec.SourceURL)
	if err != nil {
		l.failResolution(ctx, &ResolutionError{SourceURL: rec.SourceURL, Err: err})

		return
	}

	resolved, err := l.gateway.ResolveComplete(ctx, rec, res.StreamURL, res.Title)
	if err != nil {
		var dup *catalog.DuplicateError
		if errors.As(err, &dup) {
			logger.InfoContext(ctx, "resolved stream already in catalog", "existing_id", dup.ExistingID)

			index, hadIndex := l.gateway.IndexOfID(ctx, rec.ID)

			if err := l.gateway.Delete(ctx, rec.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				l.check(err)

				return
			}

			if hadIndex {
				l.observer.NotifyRowsChanged([]int{index})
			}

			l.observer.NotifyError("Video already downloaded")

			return
		}

		if errors.Is(err, storage.ErrNotFound) {
			logger.InfoContext(ctx, "video removed while its stream was resolving")

			return
		}

		logger.ErrorContext(ctx, "failed to store resolved stream", "err", l.check(err))

		return
	}

	logger.InfoContext(ctx, "stream resolved", "title", resolved.DisplayTitle())

	index, started := l.manager.Start(ctx, resolved)
	if index >= 0 {
		l.observer.NotifyRowsChanged([]int{index})
	}

	if !started {
		logger.DebugContext(ctx, "download not started after resolution")
	}
}

// failResolution drops every pending record and surfaces the error.
func (l *Library) failResolution(ctx context.Context, rerr *ResolutionError) {
	logger := logctx.LoggerFromContext(ctx)

	logger.ErrorContext(ctx, "failed to resolve stream", "source_url", rerr.SourceURL, "err", rerr.Err)

	var indices []int

	if videos, err := l.gateway.All(ctx); err == nil {
		for i, v := range videos {
			if !v.IsResolved() {
				indices = append(indices, i)
			}
		}
	}

	if _, err := l.gateway.RemoveUnresolved(ctx); err != nil {
		l.check(err)

		return
	}

	if len(indices) > 0 {
		l.observer.NotifyRowsChanged(indices)
	}

	l.observer.NotifyError(rerr.Error())
}

// List returns every video in catalog order with its local and transfer state.
func (l *Library) List(ctx context.Context) ([]Video, error) {
	videos, err := l.gateway.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Video, 0, len(videos))
	for _, v := range videos {
		out = append(out, l.view(v))
	}

	return out, nil
}

func (l *Library) Get(ctx context.Context, id int64) (Video, error) {
	rec, err := l.gateway.Get(ctx, id)
	if err != nil {
		return Video{}, err
	}

	return l.view(rec), nil
}

func (l *Library) view(rec storage.VideoRecord) Video {
	v := Video{VideoRecord: rec}

	if rec.IsResolved() {
		v.Downloaded = l.paths.Exists(rec.Stream())

		if d, ok := l.manager.Lookup(rec.Stream()); ok {
			v.Download = &d
		}
	}

	return v
}

// Start starts the transfer for a resolved video.
func (l *Library) Start(ctx context.Context, id int64) (bool, error) {
	rec, err := l.resolvedRecord(ctx, id)
	if err != nil {
		return false, err
	}

	_, started := l.manager.Start(ctx, rec)

	return started, nil
}

func (l *Library) Pause(ctx context.Context, id int64) error {
	rec, err := l.resolvedRecord(ctx, id)
	if err != nil {
		return err
	}

	l.manager.Pause(ctx, rec)

	return nil
}

func (l *Library) Resume(ctx context.Context, id int64) error {
	rec, err := l.resolvedRecord(ctx, id)
	if err != nil {
		return err
	}

	l.manager.Resume(ctx, rec)

	return nil
}

func (l *Library) Cancel(ctx context.Context, id int64) error {
	rec, err := l.resolvedRecord(ctx, id)
	if err != nil {
		return err
	}

	l.manager.Cancel(ctx, rec)

	return nil
}

// Delete cancels any transfer, removes the local file and deletes the record.
func (l *Library) Delete(ctx context.Context, id int64) error {
	logger := logctx.LoggerFromContext(ctx).With("video_id", id)

	rec, err := l.gateway.Get(ctx, id)
	if err != nil {
		return err
	}

	index, hadIndex := l.gateway.IndexOfID(ctx, id)

	if rec.IsResolved() {
		l.manager.Cancel(ctx, rec)

		if path, err := l.paths.LocalPath(rec.Stream()); err == nil {
			release := l.guard.Exclusive()
			err := os.Remove(path)
			release()

			if err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.ErrorContext(ctx, "failed to delete video file",
					"err", &downloader.FileIOError{Operation: "delete", Path: path, Err: err})
			}
		}
	}

	if err := l.gateway.Delete(ctx, id); err != nil {
		return l.check(err)
	}

	if hadIndex {
		l.observer.NotifyRowsChanged([]int{index})
	}

	logger.InfoContext(ctx, "video deleted")

	return nil
}

// ReplaceFile swaps the local file of a downloaded video with an edited copy read from r. A
// partially watched video becomes unwatched.
func (l *Library) ReplaceFile(ctx context.Context, id int64, r io.Reader) (storage.VideoRecord, error) {
	rec, err := l.resolvedRecord(ctx, id)
	if err != nil {
		return storage.VideoRecord{}, err
	}

	if _, ok := l.manager.Lookup(rec.Stream()); ok {
		return storage.VideoRecord{}, ErrTransferInProgress
	}

	dest, err := l.paths.LocalPath(rec.Stream())
	if err != nil {
		return storage.VideoRecord{}, err
	}

	if err := l.writeFile(dest, r); err != nil {
		return storage.VideoRecord{}, &downloader.FileIOError{Operation: "replace", Path: dest, Err: err}
	}

	if rec.WatchProgress == storage.PartiallyWatched {
		rec, err = l.gateway.SetWatchProgress(ctx, id, storage.Unwatched)
		if err != nil {
			return storage.VideoRecord{}, l.check(err)
		}
	}

	l.notifyRecord(ctx, id)

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "video file replaced", "video_id", id)

	return rec, nil
}

// writeFile stages r next to dest and renames it into place under the shared guard.
func (l *Library) writeFile(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".replace-*")
	if err != nil {
		return err
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return err
	}

	release := l.guard.Shared()
	defer release()

	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())

		return err
	}

	return nil
}

// SetWatchProgress records how much of a video was watched.
func (l *Library) SetWatchProgress(ctx context.Context, id int64, p storage.WatchProgress) (storage.VideoRecord, error) {
	rec, err := l.gateway.SetWatchProgress(ctx, id, p)
	if err != nil {
		return storage.VideoRecord{}, l.check(err)
	}

	l.notifyRecord(ctx, id)

	return rec, nil
}

func (l *Library) resolvedRecord(ctx context.Context, id int64) (storage.VideoRecord, error) {
	rec, err := l.gateway.Get(ctx, id)
	if err != nil {
		return storage.VideoRecord{}, err
	}

	if !rec.IsResolved() {
		return storage.VideoRecord{}, ErrNotResolved
	}

	return rec, nil
}

func (l *Library) notifyRecord(ctx context.Context, id int64) {
	if index, ok := l.gateway.IndexOfID(ctx, id); ok {
		l.observer.NotifyRowsChanged([]int{index})
	}
}

// check hands persistence failures to the fatal hook and returns err unchanged.
func (l *Library) check(err error) error {
	var perr *storage.PersistenceError
	if errors.As(err, &perr) && l.onFatal != nil {
		l.onFatal(err)
	}

	return err
}
