package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/italolelis/downtube/internal/catalog"
	"github.com/italolelis/downtube/internal/library"
	"github.com/italolelis/downtube/internal/reconcile"
	"github.com/italolelis/downtube/internal/registry"
	"github.com/italolelis/downtube/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockVideoService struct {
	videos   map[int64]library.Video
	addErr   error
	opErr    error
	calls    []string
	replaced string
}

func newMockVideoService() *mockVideoService {
	stream := "https://cdn.example.com/videoplayback?id=aaaaaaaaaaaaaaaaaaaaa"
	title := "Talk"

	return &mockVideoService{
		videos: map[int64]library.Video{
			1: {
				VideoRecord: storage.VideoRecord{
					ID:            1,
					SourceURL:     "https://youtu.be/a",
					StreamURL:     &stream,
					Title:         &title,
					WatchProgress: storage.Unwatched,
				},
				Download: &registry.Download{
					StreamURL:     stream,
					Active:        true,
					Progress:      registry.Progress{Value: 0.5, Known: true},
					BytesWritten:  1024,
					BytesExpected: 2048,
				},
			},
		},
	}
}

func (m *mockVideoService) Add(_ context.Context, sourceURL string) (storage.VideoRecord, error) {
	m.calls = append(m.calls, "add:"+sourceURL)

	if m.addErr != nil {
		return storage.VideoRecord{}, m.addErr
	}

	return storage.VideoRecord{ID: 2, SourceURL: sourceURL, WatchProgress: storage.Unwatched}, nil
}

func (m *mockVideoService) List(context.Context) ([]library.Video, error) {
	return []library.Video{m.videos[1]}, nil
}

func (m *mockVideoService) Get(_ context.Context, id int64) (library.Video, error) {
	v, ok := m.videos[id]
	if !ok {
		return library.Video{}, storage.ErrNotFound
	}

	return v, nil
}

func (m *mockVideoService) Delete(_ context.Context, id int64) error {
	if _, ok := m.videos[id]; !ok {
		return storage.ErrNotFound
	}

	delete(m.videos, id)

	return nil
}

func (m *mockVideoService) Start(_ context.Context, _ int64) (bool, error) {
	m.calls = append(m.calls, "start")

	return true, m.opErr
}

func (m *mockVideoService) Pause(context.Context, int64) error {
	m.calls = append(m.calls, "pause")

	return m.opErr
}

func (m *mockVideoService) Resume(context.Context, int64) error {
	m.calls = append(m.calls, "resume")

	return m.opErr
}

func (m *mockVideoService) Cancel(context.Context, int64) error {
	m.calls = append(m.calls, "cancel")

	return m.opErr
}

func (m *mockVideoService) SetWatchProgress(_ context.Context, id int64, p storage.WatchProgress) (storage.VideoRecord, error) {
	v, ok := m.videos[id]
	if !ok {
		return storage.VideoRecord{}, storage.ErrNotFound
	}

	v.WatchProgress = p
	m.videos[id] = v

	return v.VideoRecord, nil
}

func (m *mockVideoService) ReplaceFile(_ context.Context, _ int64, r io.Reader) (storage.VideoRecord, error) {
	if m.opErr != nil {
		return storage.VideoRecord{}, m.opErr
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return storage.VideoRecord{}, err
	}

	m.replaced = string(b)

	return m.videos[1].VideoRecord, nil
}

type mockReconciler struct {
	result reconcile.Result
	err    error
}

func (m mockReconciler) Run(context.Context) (reconcile.Result, error) {
	return m.result, m.err
}

func serve(t *testing.T, h *VideosHandler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	return rec
}

func TestHandleList(t *testing.T) {
	h := NewVideosHandler(newMockVideoService(), mockReconciler{})

	rec := serve(t, h, http.MethodGet, "/videos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var views []VideoView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views, 1)

	v := views[0]
	assert.Equal(t, "Talk", v.Title)
	require.NotNil(t, v.Download)
	require.NotNil(t, v.Download.Progress)
	assert.InDelta(t, 0.5, *v.Download.Progress, 0.0001)
	assert.Equal(t, "2.0 KiB", v.Download.TotalSize)
	assert.True(t, v.Download.Active)
}

func TestHandleAdd(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		addErr     error
		wantStatus int
	}{
		{name: "accepted", body: `{"url":"https://youtu.be/b"}`, wantStatus: http.StatusAccepted},
		{name: "missing url", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "malformed body", body: `{`, wantStatus: http.StatusBadRequest},
		{
			name:       "duplicate",
			body:       `{"url":"https://youtu.be/a"}`,
			addErr:     &catalog.DuplicateError{SourceURL: "https://youtu.be/a", ExistingID: 1},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "storage failure",
			body:       `{"url":"https://youtu.be/b"}`,
			addErr:     &storage.PersistenceError{Operation: "create_video", Err: errors.New("disk full")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockVideoService()
			svc.addErr = tt.addErr

			rec := serve(t, NewVideosHandler(svc, mockReconciler{}), http.MethodPost, "/videos", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandleAdd_DuplicateCarriesExistingID(t *testing.T) {
	svc := newMockVideoService()
	svc.addErr = &catalog.DuplicateError{SourceURL: "https://youtu.be/a", ExistingID: 1}

	rec := serve(t, NewVideosHandler(svc, mockReconciler{}), http.MethodPost, "/videos", `{"url":"https://youtu.be/a"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(1), body.ExistingID)
	assert.Equal(t, "video already downloaded", body.Error)
}

func TestHandleGet(t *testing.T) {
	h := NewVideosHandler(newMockVideoService(), mockReconciler{})

	assert.Equal(t, http.StatusOK, serve(t, h, http.MethodGet, "/videos/1", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, h, http.MethodGet, "/videos/9", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, h, http.MethodGet, "/videos/abc", "").Code)
}

func TestHandleDelete(t *testing.T) {
	h := NewVideosHandler(newMockVideoService(), mockReconciler{})

	assert.Equal(t, http.StatusNoContent, serve(t, h, http.MethodDelete, "/videos/1", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, h, http.MethodDelete, "/videos/1", "").Code)
}

func TestTransferControls(t *testing.T) {
	for _, action := range []string{"start", "pause", "resume", "cancel"} {
		t.Run(action, func(t *testing.T) {
			svc := newMockVideoService()

			rec := serve(t, NewVideosHandler(svc, mockReconciler{}), http.MethodPost, "/videos/1/"+action, "")
			assert.Contains(t, []int{http.StatusOK, http.StatusAccepted}, rec.Code)
			assert.Equal(t, []string{action}, svc.calls)
		})
	}
}

func TestTransferControls_Unresolved(t *testing.T) {
	svc := newMockVideoService()
	svc.opErr = library.ErrNotResolved

	rec := serve(t, NewVideosHandler(svc, mockReconciler{}), http.MethodPost, "/videos/1/pause", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleWatchProgress(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
	}{
		{name: "watched", target: "/videos/1/watch-progress", body: `{"watch_progress":"watched"}`, wantStatus: http.StatusOK},
		{name: "invalid value", target: "/videos/1/watch-progress", body: `{"watch_progress":"half"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown video", target: "/videos/7/watch-progress", body: `{"watch_progress":"watched"}`, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, NewVideosHandler(newMockVideoService(), mockReconciler{}), http.MethodPut, tt.target, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandleReplaceFile(t *testing.T) {
	svc := newMockVideoService()
	h := NewVideosHandler(svc, mockReconciler{})

	rec := serve(t, h, http.MethodPut, "/videos/1/file", "edited bytes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "edited bytes", svc.replaced)

	svc.opErr = library.ErrTransferInProgress

	rec = serve(t, h, http.MethodPut, "/videos/1/file", "more")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleReconcile(t *testing.T) {
	h := NewVideosHandler(newMockVideoService(), mockReconciler{result: reconcile.Result{Scanned: 3}})

	rec := serve(t, h, http.MethodPost, "/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view ReconcileView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, 3, view.Scanned)
	assert.Empty(t, view.Deleted)

	failing := NewVideosHandler(newMockVideoService(), mockReconciler{err: errors.New("catalog unavailable")})
	assert.Equal(t, http.StatusInternalServerError, serve(t, failing, http.MethodPost, "/reconcile", "").Code)
}

func TestHandleHealth(t *testing.T) {
	rec := serve(t, NewVideosHandler(newMockVideoService(), mockReconciler{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
