// Package httpdl implements transport.Transport over HTTP using grab, which handles range
// resumption of partial files.
package httpdl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"github.com/italolelis/downtube/internal/logctx"
	"github.com/italolelis/downtube/internal/transport"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	defaultProgressInterval = 500 * time.Millisecond
	eventBuffer             = 64
	partialExtension        = ".part"
	copyBufferSize          = 32 * 1024
)

// Options configures the HTTP transport.
type Options struct {
	// TempDir receives partial files. It must not be the media root.
	TempDir          string
	ProgressInterval time.Duration
	// RateLimit caps the combined throughput of all transfers in bytes per second. Zero means
	// unlimited.
	RateLimit int
	UserAgent string
	// HTTPClient overrides the client used for requests.
	HTTPClient grab.HTTPClient
}

type transfer struct {
	url  string
	path string
	resp *grab.Response
	stop context.CancelFunc
}

// Transport downloads streams with a single shared grab client.
type Transport struct {
	client           *grab.Client
	tempDir          string
	progressInterval time.Duration
	limiter          *rate.Limiter
	events           chan transport.Event
	closed           chan struct{}
	closeOnce        sync.Once

	mu        sync.Mutex
	transfers map[transport.Handle]*transfer
	wg        sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

// New creates the temp directory and returns a ready transport.
func New(opts Options) (*Transport, error) {
	if opts.TempDir == "" {
		return nil, errors.New("temp dir is required")
	}

	if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	client := grab.NewClient()
	if opts.UserAgent != "" {
		client.UserAgent = opts.UserAgent
	}

	if opts.HTTPClient != nil {
		client.HTTPClient = opts.HTTPClient
	} else {
		client.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}

	t := &Transport{
		client:           client,
		tempDir:          opts.TempDir,
		progressInterval: interval,
		events:           make(chan transport.Event, eventBuffer),
		closed:           make(chan struct{}),
		transfers:        make(map[transport.Handle]*transfer),
	}

	if opts.RateLimit > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(opts.RateLimit, copyBufferSize))
	}

	return t, nil
}

func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

// Start begins downloading url into a partial file owned by h.
func (t *Transport) Start(ctx context.Context, h transport.Handle, url string) error {
	return t.begin(ctx, h, url, t.partialPath(h), 0)
}

// Resume continues the transfer described by token. When the partial file is gone or the
// server ignores the range, the download starts over.
func (t *Transport) Resume(ctx context.Context, h transport.Handle, token *transport.ResumeToken) error {
	if token == nil {
		return errors.New("resume token is required")
	}

	path := token.PartialPath
	if path == "" {
		path = t.partialPath(h)
	}

	return t.begin(ctx, h, token.URL, path, token.Offset)
}

// Cancel stops the transfer. Cancelled transfers emit no further events.
func (t *Transport) Cancel(ctx context.Context, h transport.Handle, keepResumeData bool) (*transport.ResumeToken, error) {
	t.mu.Lock()
	tr, ok := t.transfers[h]
	delete(t.transfers, h)
	t.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("failed to cancel %s: %w", h, transport.ErrUnknownHandle)
	}

	tr.stop()
	<-tr.resp.Done

	written := tr.resp.BytesComplete()

	logctx.LoggerFromContext(ctx).DebugContext(ctx, "transfer cancelled",
		"handle", h, "written", written, "keep_resume_data", keepResumeData)

	if !keepResumeData || written <= 0 {
		return nil, removePartial(tr.path)
	}

	return &transport.ResumeToken{URL: tr.url, PartialPath: tr.path, Offset: written}, nil
}

// Discard removes the partial file behind token.
func (t *Transport) Discard(token *transport.ResumeToken) error {
	if token == nil {
		return nil
	}

	return removePartial(token.PartialPath)
}

// PurgePartials removes partial files left in the temp directory by an earlier process. Resume
// tokens live in memory only, so nothing can pick those files up again. Files of transfers running
// in this process are kept; call it before any transfer is paused.
func (t *Transport) PurgePartials(ctx context.Context) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(t.tempDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list temp dir: %w", err)
	}

	t.mu.Lock()
	running := make(map[string]struct{}, len(t.transfers))
	for _, tr := range t.transfers {
		running[tr.path] = struct{}{}
	}
	t.mu.Unlock()

	removed := 0

	for _, entry := range entries {
		if !entry.Type().IsRegular() || filepath.Ext(entry.Name()) != partialExtension {
			continue
		}

		path := filepath.Join(t.tempDir, entry.Name())
		if _, ok := running[path]; ok {
			continue
		}

		if err := removePartial(path); err != nil {
			logger.WarnContext(ctx, "failed to purge partial file", "path", path, "err", err)

			continue
		}

		removed++
	}

	if removed > 0 {
		logger.InfoContext(ctx, "purged stale partial files", "count", removed, "temp_dir", t.tempDir)
	}

	return removed, nil
}

// Close stops every running transfer, keeping partial files, and waits for the watchers.
func (t *Transport) Close() {
	t.closeOnce.Do(func() { close(t.closed) })

	t.mu.Lock()
	running := t.transfers
	t.transfers = make(map[transport.Handle]*transfer)
	t.mu.Unlock()

	for _, tr := range running {
		tr.stop()
	}

	t.wg.Wait()
}

func (t *Transport) begin(ctx context.Context, h transport.Handle, url, path string, offset int64) error {
	t.mu.Lock()
	_, exists := t.transfers[h]
	t.mu.Unlock()

	if exists {
		return fmt.Errorf("transfer %s is already running", h)
	}

	req, err := grab.NewRequest(path, url)
	if err != nil {
		return &transport.NetworkError{Operation: "start", Err: err}
	}

	if t.limiter != nil {
		req.RateLimiter = t.limiter
	}

	// The transfer outlives the request that started it.
	tctx, stop := context.WithCancel(context.WithoutCancel(ctx))
	req = req.WithContext(tctx)

	tr := &transfer{url: url, path: path, stop: stop}

	t.mu.Lock()
	t.transfers[h] = tr
	tr.resp = t.client.Do(req)
	t.mu.Unlock()

	t.wg.Add(1)

	go t.watch(tctx, h, tr, offset)

	return nil
}

func (t *Transport) watch(ctx context.Context, h transport.Handle, tr *transfer, offset int64) {
	defer t.wg.Done()
	defer tr.stop()

	logger := logctx.LoggerFromContext(ctx).With("handle", h)

	ticker := time.NewTicker(t.progressInterval)
	defer ticker.Stop()

	resp := tr.resp

loop:
	for {
		select {
		case <-ticker.C:
			t.emitProgress(transport.Event{
				Kind:     transport.EventProgress,
				Handle:   h,
				Written:  resp.BytesComplete(),
				Expected: resp.Size(),
			})
		case <-resp.Done:
			break loop
		}
	}

	t.mu.Lock()
	current, ok := t.transfers[h]
	if ok && current == tr {
		delete(t.transfers, h)
	}
	t.mu.Unlock()

	if !ok || current != tr {
		return
	}

	if err := resp.Err(); err != nil {
		written := resp.BytesComplete()

		var token *transport.ResumeToken
		if written > 0 {
			token = &transport.ResumeToken{URL: tr.url, PartialPath: tr.path, Offset: written}
		}

		t.emit(transport.Event{
			Kind:    transport.EventFailed,
			Handle:  h,
			Written: written,
			Err:     classify(resp, err),
			Token:   token,
		})

		return
	}

	if offset > 0 && !resp.DidResume {
		logger.WarnContext(ctx, "partial data discarded, transfer restarted",
			"err", &transport.RangeNotSupportedError{URL: tr.url}, "offset", offset)
	}

	written := resp.BytesComplete()

	t.emit(transport.Event{
		Kind:     transport.EventCompleted,
		Handle:   h,
		Written:  written,
		Expected: written,
		TempPath: resp.Filename,
	})
}

// emit delivers a terminal event, giving up only once the transport is closed.
func (t *Transport) emit(ev transport.Event) {
	select {
	case t.events <- ev:
	case <-t.closed:
	}
}

// emitProgress never blocks the transfer; progress is dropped when the consumer lags.
func (t *Transport) emitProgress(ev transport.Event) {
	select {
	case t.events <- ev:
	default:
	}
}

func (t *Transport) partialPath(h transport.Handle) string {
	return filepath.Join(t.tempDir, h.String()+partialExtension)
}

func classify(resp *grab.Response, err error) error {
	status := 0
	if resp.HTTPResponse != nil {
		status = resp.HTTPResponse.StatusCode
	}

	return &transport.NetworkError{Operation: "download", StatusCode: status, Err: err}
}

func removePartial(path string) error {
	if path == "" {
		return nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove partial file: %w", err)
	}

	return nil
}
