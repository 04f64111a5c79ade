package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/italolelis/downtube/internal/catalog"
	"github.com/italolelis/downtube/internal/library"
	"github.com/italolelis/downtube/internal/logctx"
	"github.com/italolelis/downtube/internal/mediapath"
	"github.com/italolelis/downtube/internal/reconcile"
	"github.com/italolelis/downtube/internal/registry"
	"github.com/italolelis/downtube/internal/storage"
)

const maxRequestSize = 64 * 1024

// VideoService is the set of library operations exposed over HTTP.
type VideoService interface {
	Add(ctx context.Context, sourceURL string) (storage.VideoRecord, error)
	List(ctx context.Context) ([]library.Video, error)
	Get(ctx context.Context, id int64) (library.Video, error)
	Delete(ctx context.Context, id int64) error
	Start(ctx context.Context, id int64) (bool, error)
	Pause(ctx context.Context, id int64) error
	Resume(ctx context.Context, id int64) error
	Cancel(ctx context.Context, id int64) error
	SetWatchProgress(ctx context.Context, id int64, p storage.WatchProgress) (storage.VideoRecord, error)
	ReplaceFile(ctx context.Context, id int64, r io.Reader) (storage.VideoRecord, error)
}

// Reconciler runs an on-demand reconciliation pass.
type Reconciler interface {
	Run(ctx context.Context) (reconcile.Result, error)
}

type VideoView struct {
	ID            int64                 `json:"id"`
	SourceURL     string                `json:"source_url"`
	StreamURL     *string               `json:"stream_url,omitempty"`
	Title         string                `json:"title"`
	CreatedAt     time.Time             `json:"created_at"`
	WatchProgress storage.WatchProgress `json:"watch_progress"`
	Downloaded    bool                  `json:"downloaded"`
	Download      *DownloadView         `json:"download,omitempty"`
}

type DownloadView struct {
	Active        bool     `json:"active"`
	Resumable     bool     `json:"resumable"`
	Progress      *float64 `json:"progress"`
	BytesWritten  int64    `json:"bytes_written"`
	BytesExpected int64    `json:"bytes_expected,omitempty"`
	TotalSize     string   `json:"total_size,omitempty"`
}

type ReconcileView struct {
	Scanned int      `json:"scanned"`
	Deleted []string `json:"deleted"`
	Failed  int      `json:"failed"`
}

type addVideoRequest struct {
	URL string `json:"url"`
}

type watchProgressRequest struct {
	WatchProgress storage.WatchProgress `json:"watch_progress"`
}

type errorResponse struct {
	Error      string `json:"error"`
	ExistingID int64  `json:"existing_id,omitempty"`
}

type VideosHandler struct {
	videos     VideoService
	reconciler Reconciler
}

// NewVideosHandler creates the handler for the video library API.
func NewVideosHandler(videos VideoService, reconciler Reconciler) *VideosHandler {
	return &VideosHandler{
		videos:     videos,
		reconciler: reconciler,
	}
}

func (h *VideosHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/videos", h.HandleList)
	r.Post("/videos", h.HandleAdd)

	r.Route("/videos/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Delete("/", h.HandleDelete)
		r.Post("/start", h.HandleStart)
		r.Post("/pause", h.control(h.videos.Pause))
		r.Post("/resume", h.control(h.videos.Resume))
		r.Post("/cancel", h.control(h.videos.Cancel))
		r.Put("/watch-progress", h.HandleWatchProgress)
		r.Put("/file", h.HandleReplaceFile)
	})

	r.Post("/reconcile", h.HandleReconcile)
	r.Get("/healthz", h.HandleHealth)

	return r
}

func (h *VideosHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	videos, err := h.videos.List(r.Context())
	if err != nil {
		writeError(w, r, err)

		return
	}

	views := make([]VideoView, 0, len(videos))
	for _, v := range videos {
		views = append(views, newVideoView(v))
	}

	writeJSON(w, r, http.StatusOK, views)
}

// HandleAdd accepts a source URL. Resolution and download continue in the background, so the
// response carries the pending record.
func (h *VideosHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req addVideoRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize)).Decode(&req); err != nil {
		logger.Debug("failed to decode request", "err", err)
		writeMessage(w, r, http.StatusBadRequest, "invalid request body")

		return
	}

	if req.URL == "" {
		writeMessage(w, r, http.StatusBadRequest, "url is required")

		return
	}

	rec, err := h.videos.Add(r.Context(), req.URL)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusAccepted, newVideoView(library.Video{VideoRecord: rec}))
}

func (h *VideosHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := videoID(w, r)
	if !ok {
		return
	}

	v, err := h.videos.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, newVideoView(v))
}

func (h *VideosHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := videoID(w, r)
	if !ok {
		return
	}

	if err := h.videos.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *VideosHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := videoID(w, r)
	if !ok {
		return
	}

	if _, err := h.videos.Start(r.Context(), id); err != nil {
		writeError(w, r, err)

		return
	}

	h.writeVideo(w, r, id, http.StatusAccepted)
}

// control adapts a transfer control operation into a handler that answers with the updated view.
func (h *VideosHandler) control(op func(context.Context, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := videoID(w, r)
		if !ok {
			return
		}

		if err := op(r.Context(), id); err != nil {
			writeError(w, r, err)

			return
		}

		h.writeVideo(w, r, id, http.StatusOK)
	}
}

func (h *VideosHandler) HandleWatchProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := videoID(w, r)
	if !ok {
		return
	}

	var req watchProgressRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize)).Decode(&req); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "invalid request body")

		return
	}

	if !req.WatchProgress.Valid() {
		writeMessage(w, r, http.StatusBadRequest, "watch_progress must be one of unwatched, partially_watched, watched")

		return
	}

	if _, err := h.videos.SetWatchProgress(r.Context(), id, req.WatchProgress); err != nil {
		writeError(w, r, err)

		return
	}

	h.writeVideo(w, r, id, http.StatusOK)
}

// HandleReplaceFile stores the request body as the video's new local file.
func (h *VideosHandler) HandleReplaceFile(w http.ResponseWriter, r *http.Request) {
	id, ok := videoID(w, r)
	if !ok {
		return
	}

	if _, err := h.videos.ReplaceFile(r.Context(), id, r.Body); err != nil {
		writeError(w, r, err)

		return
	}

	h.writeVideo(w, r, id, http.StatusOK)
}

func (h *VideosHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.reconciler.Run(r.Context())
	if err != nil {
		writeError(w, r, err)

		return
	}

	deleted := res.Deleted
	if deleted == nil {
		deleted = []string{}
	}

	writeJSON(w, r, http.StatusOK, ReconcileView{Scanned: res.Scanned, Deleted: deleted, Failed: res.Failed})
}

func (h *VideosHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *VideosHandler) writeVideo(w http.ResponseWriter, r *http.Request, id int64, status int) {
	v, err := h.videos.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, status, newVideoView(v))
}

func newVideoView(v library.Video) VideoView {
	view := VideoView{
		ID:            v.ID,
		SourceURL:     v.SourceURL,
		StreamURL:     v.StreamURL,
		Title:         v.DisplayTitle(),
		CreatedAt:     v.CreatedAt,
		WatchProgress: v.WatchProgress,
		Downloaded:    v.Downloaded,
	}

	if v.Download != nil {
		view.Download = newDownloadView(*v.Download)
	}

	return view
}

func newDownloadView(d registry.Download) *DownloadView {
	view := &DownloadView{
		Active:        d.Active,
		Resumable:     d.ResumeToken != nil,
		BytesWritten:  d.BytesWritten,
		BytesExpected: d.BytesExpected,
	}

	if d.Progress.Known {
		p := d.Progress.Value
		view.Progress = &p
	}

	if d.BytesExpected > 0 {
		view.TotalSize = humanize.IBytes(uint64(d.BytesExpected))
	}

	return view
}

func videoID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, r, http.StatusBadRequest, "invalid video id")

		return 0, false
	}

	return id, true
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var dup *catalog.DuplicateError

	switch {
	case errors.As(err, &dup):
		writeJSON(w, r, http.StatusConflict, errorResponse{Error: "video already downloaded", ExistingID: dup.ExistingID})
	case errors.Is(err, storage.ErrNotFound):
		writeMessage(w, r, http.StatusNotFound, "video not found")
	case errors.Is(err, library.ErrNotResolved), errors.Is(err, library.ErrTransferInProgress):
		writeMessage(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, mediapath.ErrUnresolvableFilename):
		writeMessage(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to handle request", "err", err)
		writeMessage(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}
