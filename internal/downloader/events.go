package downloader

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/downtube/internal/logctx"
	"github.com/italolelis/downtube/internal/registry"
	"github.com/italolelis/downtube/internal/transport"
)

// Run consumes transport events until ctx is done. It is the single place where transfer
// events reach the registry.
func (m *Manager) Run(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	logger.InfoContext(ctx, "watching transfer events")

	events := m.transport.Events()

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "shutting down download manager")

			return
		case ev, ok := <-events:
			if !ok {
				return
			}

			switch ev.Kind {
			case transport.EventProgress:
				m.HandleProgress(ctx, ev.Handle, ev.Written, ev.Expected)
			case transport.EventCompleted:
				m.HandleCompletion(ctx, ev.Handle, ev.TempPath)
			case transport.EventFailed:
				m.HandleFailure(ctx, ev.Handle, ev.Err, ev.Token)
			}
		}
	}
}

// HandleProgress records the latest byte counts for a transfer and forwards them to the
// observer. Events for unknown or paused transfers are dropped.
func (m *Manager) HandleProgress(ctx context.Context, h transport.Handle, written, expected int64) {
	current, ok := m.registry.LookupByHandle(h)
	if !ok {
		return
	}

	p := registry.Fraction(written, expected)
	applied := false

	m.registry.Update(current.StreamURL, func(d *registry.Download) {
		if d.Handle != h || !d.Active {
			return
		}

		d.Progress = p
		d.BytesWritten = written
		d.BytesExpected = expected
		applied = true
	})

	if !applied {
		return
	}

	index, ok := m.indexer.IndexOfStreamURL(ctx, current.StreamURL)
	if !ok {
		return
	}

	totalSize := ""
	if expected > 0 {
		totalSize = humanize.IBytes(uint64(expected))
	}

	m.observer.NotifyProgress(index, p, totalSize)
}

// HandleCompletion moves a finished transfer into the media root and retires its download.
// The download is claimed from the registry while holding the shared side of the guard, so a
// cancel or delete that wins the race leaves the media root untouched and the temporary file is
// discarded. Completions for unknown handles only discard the temporary file.
func (m *Manager) HandleCompletion(ctx context.Context, h transport.Handle, tempPath string) {
	logger := logctx.LoggerFromContext(ctx).With("handle", h)

	d, ok := m.registry.LookupByHandle(h)
	if !ok {
		logger.DebugContext(ctx, "discarding completion for unknown transfer")
		m.discardTemp(ctx, tempPath)

		return
	}

	streamURL := d.StreamURL

	release := m.guard.Shared()

	claimed, ok := m.registry.RemoveHandle(streamURL, h)
	if !ok {
		release()

		logger.InfoContext(ctx, "download cancelled before it was finalized")
		m.discardTemp(ctx, tempPath)

		return
	}

	dest, err := m.paths.LocalPath(streamURL)
	if err != nil {
		logger.ErrorContext(ctx, "failed to finalize download",
			"err", &FileIOError{Operation: "resolve_path", Path: streamURL, Err: err})

		m.discardTemp(ctx, tempPath)
		m.telemetry.RecordFileOperationError(ctx, "resolve_path")
	} else {
		m.finalize(ctx, tempPath, dest)
	}

	release()

	if claimed.ResumeToken != nil {
		m.discard(ctx, claimed.ResumeToken)
	}

	if claimed.Active {
		m.telemetry.RecordDownload(ctx, "completed")
	}

	logger.InfoContext(ctx, "download completed", "file", dest)

	m.notifyRow(ctx, streamURL)
}

// finalize replaces dest with the temporary file. Callers hold the shared side of the guard.
func (m *Manager) finalize(ctx context.Context, tempPath, dest string) {
	logger := logctx.LoggerFromContext(ctx)

	if err := removeIfExists(dest); err != nil {
		logger.ErrorContext(ctx, "failed to replace existing file",
			"err", &FileIOError{Operation: "delete", Path: dest, Err: err})

		m.telemetry.RecordFileOperationError(ctx, "delete")
	}

	n, err := moveFile(ctx, tempPath, dest)
	if err != nil {
		logger.ErrorContext(ctx, "failed to move downloaded file",
			"err", &FileIOError{Operation: "move", Path: dest, Err: err})

		m.telemetry.RecordFileOperationError(ctx, "move")

		return
	}

	m.telemetry.RecordDownloadedBytes(ctx, n)
}

func (m *Manager) discardTemp(ctx context.Context, tempPath string) {
	if tempPath == "" {
		return
	}

	if err := removeIfExists(tempPath); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to discard temporary file", "file", tempPath, "err", err)
	}
}

// HandleFailure parks a failed transfer as an inactive download holding whatever resume token
// survived, so the user can retry it.
func (m *Manager) HandleFailure(ctx context.Context, h transport.Handle, cause error, token *transport.ResumeToken) {
	logger := logctx.LoggerFromContext(ctx).With("handle", h)

	d, ok := m.registry.LookupByHandle(h)
	if !ok {
		if token != nil {
			m.discard(ctx, token)
		}

		return
	}

	parked := false

	m.registry.Update(d.StreamURL, func(cur *registry.Download) {
		if cur.Handle != h || !cur.Active {
			return
		}

		cur.Active = false
		cur.ResumeToken = token
		parked = true
	})

	if !parked {
		if token != nil {
			m.discard(ctx, token)
		}

		return
	}

	m.telemetry.RecordDownload(ctx, "failed")

	logger.ErrorContext(ctx, "transfer failed", "err", cause, "resumable", token != nil)

	m.observer.NotifyError(fmt.Sprintf("Download failed: %v", cause))
	m.notifyRow(ctx, d.StreamURL)
}
