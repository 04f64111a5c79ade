// Package downloader drives transfers for catalog records and finalizes them into the media
// directory.
package downloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/italolelis/downtube/internal/logctx"
	"github.com/italolelis/downtube/internal/mediapath"
	"github.com/italolelis/downtube/internal/registry"
	"github.com/italolelis/downtube/internal/storage"
	"github.com/italolelis/downtube/internal/telemetry"
	"github.com/italolelis/downtube/internal/transport"
)

// Manager starts, pauses, resumes and cancels transfers and consumes their events. The
// registry is the only state shared between control calls and the event loop.
type Manager struct {
	registry  *registry.Registry
	transport transport.Transport
	paths     *mediapath.Resolver
	indexer   Indexer
	observer  Observer
	guard     FilesystemGuard
	telemetry *telemetry.Telemetry
}

func NewManager(
	reg *registry.Registry,
	tr transport.Transport,
	paths *mediapath.Resolver,
	indexer Indexer,
	observer Observer,
	guard FilesystemGuard,
	tel *telemetry.Telemetry,
) *Manager {
	return &Manager{
		registry:  reg,
		transport: tr,
		paths:     paths,
		indexer:   indexer,
		observer:  observer,
		guard:     guard,
		telemetry: tel,
	}
}

// Start begins a transfer for the record's stream URL and returns the record's catalog index.
// It is skipped when the record has no stream URL, its index cannot be found, or a download
// for the stream URL is already registered.
func (m *Manager) Start(ctx context.Context, rec storage.VideoRecord) (int, bool) {
	streamURL := rec.Stream()
	logger := logctx.LoggerFromContext(ctx).With("video_id", rec.ID)

	if streamURL == "" {
		logger.DebugContext(ctx, "skipping start, stream not resolved")

		return -1, false
	}

	index, ok := m.indexer.IndexOfStreamURL(ctx, streamURL)
	if !ok {
		logger.WarnContext(ctx, "skipping start, record not in catalog")

		return -1, false
	}

	h := transport.NewHandle()

	if !m.registry.Register(registry.Download{StreamURL: streamURL, Handle: h, Active: true}) {
		logger.DebugContext(ctx, "skipping start, download already registered")

		return index, false
	}

	if err := m.transport.Start(ctx, h, streamURL); err != nil {
		m.registry.RemoveHandle(streamURL, h)

		logger.ErrorContext(ctx, "failed to start transfer", "err", err)
		m.observer.NotifyError(fmt.Sprintf("Could not start download for %s", rec.DisplayTitle()))

		return index, false
	}

	m.telemetry.RecordDownload(ctx, "started")

	logger.InfoContext(ctx, "download started", "handle", h, "index", index)

	return index, true
}

// Pause stops an active transfer and keeps whatever resume data the transport returns. The
// download stays registered as inactive.
func (m *Manager) Pause(ctx context.Context, rec storage.VideoRecord) {
	streamURL := rec.Stream()
	logger := logctx.LoggerFromContext(ctx).With("video_id", rec.ID)

	paused := false

	d, ok := m.registry.Update(streamURL, func(d *registry.Download) {
		if d.Active {
			d.Active = false
			paused = true
		}
	})
	if !ok || !paused {
		return
	}

	m.telemetry.RecordDownload(ctx, "paused")

	token, err := m.transport.Cancel(ctx, d.Handle, true)
	if err != nil && !errors.Is(err, transport.ErrUnknownHandle) {
		logger.WarnContext(ctx, "failed to cancel transfer for pause", "handle", d.Handle, "err", err)
	}

	if token != nil {
		stored := false

		m.registry.Update(streamURL, func(cur *registry.Download) {
			if cur.Handle == d.Handle && !cur.Active {
				cur.ResumeToken = token
				stored = true
			}
		})

		if !stored {
			// Cancelled or restarted while the transport was stopping.
			m.discard(ctx, token)
		}
	}

	logger.InfoContext(ctx, "download paused", "handle", d.Handle, "resumable", token != nil)

	m.notifyRow(ctx, streamURL)
}

// Resume restarts a paused download from its resume token, or from scratch when there is
// none. It does nothing when no download is registered or it is already active.
func (m *Manager) Resume(ctx context.Context, rec storage.VideoRecord) {
	streamURL := rec.Stream()
	logger := logctx.LoggerFromContext(ctx).With("video_id", rec.ID)

	var (
		token   *transport.ResumeToken
		resumed bool
	)

	d, ok := m.registry.Update(streamURL, func(d *registry.Download) {
		if d.Active {
			return
		}

		token = d.ResumeToken
		if token == nil {
			d.Handle = transport.NewHandle()
		}

		d.ResumeToken = nil
		d.Active = true
		resumed = true
	})
	if !ok || !resumed {
		return
	}

	var err error

	if token != nil {
		err = m.transport.Resume(ctx, d.Handle, token)
	} else {
		err = m.transport.Start(ctx, d.Handle, streamURL)
	}

	if err != nil {
		m.registry.Update(streamURL, func(cur *registry.Download) {
			if cur.Handle == d.Handle {
				cur.Active = false
				cur.ResumeToken = token
			}
		})

		logger.ErrorContext(ctx, "failed to resume transfer", "handle", d.Handle, "err", err)
		m.observer.NotifyError(fmt.Sprintf("Could not resume download for %s", rec.DisplayTitle()))

		return
	}

	m.telemetry.RecordDownload(ctx, "resumed")

	logger.InfoContext(ctx, "download resumed", "handle", d.Handle, "from_token", token != nil)

	m.notifyRow(ctx, streamURL)
}

// Cancel removes the download immediately and discards any partial data. Cancelling an
// unknown download is a no-op.
func (m *Manager) Cancel(ctx context.Context, rec storage.VideoRecord) {
	streamURL := rec.Stream()
	logger := logctx.LoggerFromContext(ctx).With("video_id", rec.ID)

	d, ok := m.registry.Remove(streamURL)
	if !ok {
		return
	}

	if d.Active {
		if _, err := m.transport.Cancel(ctx, d.Handle, false); err != nil && !errors.Is(err, transport.ErrUnknownHandle) {
			logger.WarnContext(ctx, "failed to cancel transfer", "handle", d.Handle, "err", err)
		}

		m.telemetry.RecordDownload(ctx, "cancelled")
	}

	if d.ResumeToken != nil {
		m.discard(ctx, d.ResumeToken)
	}

	logger.InfoContext(ctx, "download cancelled", "handle", d.Handle)

	m.notifyRow(ctx, streamURL)
}

// Lookup returns the registered download for a stream URL.
func (m *Manager) Lookup(streamURL string) (registry.Download, bool) {
	return m.registry.Lookup(streamURL)
}

// ActiveStreamURLs returns every stream URL that still owns a download, paused ones included.
func (m *Manager) ActiveStreamURLs() []string {
	return m.registry.StreamURLs()
}

func (m *Manager) discard(ctx context.Context, token *transport.ResumeToken) {
	if err := m.transport.Discard(token); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to discard resume data", "err", err)
	}
}

func (m *Manager) notifyRow(ctx context.Context, streamURL string) {
	if index, ok := m.indexer.IndexOfStreamURL(ctx, streamURL); ok {
		m.observer.NotifyRowsChanged([]int{index})
	}
}
