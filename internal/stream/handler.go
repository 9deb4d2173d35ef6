package stream

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fitsyu2/HummingWallet-Server/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	frameContentType    = "image/jpeg"
	segmentContentType  = "video/mp2t"
)

// Handler exposes the live-view and HLS session endpoints using go-chi.
// It serves two session kinds: latest-frame live view ("live") and
// sliding-window HLS ("hls").
type Handler struct {
	live           *Service
	hls            *Service
	log            *slog.Logger
	metrics        *metrics.Metrics
	maxUploadBytes int64
}

// NewHandler returns a Handler over the two services. Metrics may be nil to
// disable metric recording (e.g. in tests). maxUploadBytes caps frame and
// segment bodies; <= 0 means no cap.
func NewHandler(live, hls *Service, log *slog.Logger, m *metrics.Metrics, maxUploadBytes int64) *Handler {
	return &Handler{live: live, hls: hls, log: log, metrics: m, maxUploadBytes: maxUploadBytes}
}

// Routes mounts all session endpoints on r. uploadMiddlewares, if given, wrap
// only the binary upload routes (frame and segment POSTs) — player-facing
// reads such as playlist polling stay unthrottled.
func (h *Handler) Routes(r chi.Router, uploadMiddlewares ...func(http.Handler) http.Handler) {
	r.Get("/live", h.ListLive)
	r.Route("/live/{stream_id}", func(r chi.Router) {
		r.Post("/start", h.StartLive)
		r.Post("/stop", h.StopLive)
		r.With(uploadMiddlewares...).Post("/frame", h.UploadFrame)
		r.Get("/frame", h.GetFrame)
		r.Get("/stats", h.GetStats)
		r.Post("/viewers/{viewer_id}", h.JoinViewer)
		r.Delete("/viewers/{viewer_id}", h.LeaveViewer)
	})

	r.Get("/hls", h.ListHLS)
	r.Route("/hls/{stream_id}", func(r chi.Router) {
		r.Post("/start", h.StartHLS)
		r.Post("/stop", h.StopHLS)
		r.With(uploadMiddlewares...).Post("/segments", h.UploadSegment)
		r.Get("/playlist.m3u8", h.GetPlaylist)
		r.Get("/segments/{filename}", h.GetSegment)
	})

	r.Post("/webrtc/offer", h.WebRTCOffer)
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type startResponse struct {
	envelope
	Session SessionSummary `json:"session"`
}

type frameUploadResponse struct {
	envelope
	FrameCount  int64 `json:"frameCount"`
	TotalBytes  int64 `json:"totalBytes"`
	ViewerCount int   `json:"viewerCount"`
}

type segmentUploadResponse struct {
	envelope
	Filename string `json:"filename"`
	Index    int64  `json:"index"`
}

type viewerResponse struct {
	envelope
	ViewerCount int `json:"viewerCount"`
}

type statsResponse struct {
	envelope
	Stats FrameStats `json:"stats"`
}

type listResponse struct {
	envelope
	Sessions []SessionSummary `json:"sessions"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

// writeServiceError maps core sentinel errors to HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoData):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInactive):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error("unexpected service error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body := r.Body
	if h.maxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "could not read upload body")
		return nil, false
	}
	if len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "empty upload body")
		return nil, false
	}
	return payload, true
}

func streamID(r *http.Request) SessionKey {
	return SessionKey(chi.URLParam(r, "stream_id"))
}

// StartLive handles POST /live/{stream_id}/start.
func (h *Handler) StartLive(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, h.live)
}

// StartHLS handles POST /hls/{stream_id}/start.
func (h *Handler) StartHLS(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, h.hls)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request, svc *Service) {
	key := streamID(r)
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing stream id")
		return
	}

	sum, created := svc.Start(key)
	if created && h.metrics != nil {
		h.metrics.IncSessionsStarted()
	}
	h.log.Info("session started", slog.String("stream_id", string(key)), slog.Bool("created", created))
	writeJSON(w, http.StatusOK, startResponse{
		envelope: envelope{Success: true, Message: "session active"},
		Session:  sum,
	})
}

// StopLive handles POST /live/{stream_id}/stop.
func (h *Handler) StopLive(w http.ResponseWriter, r *http.Request) {
	h.stop(w, r, h.live)
}

// StopHLS handles POST /hls/{stream_id}/stop.
func (h *Handler) StopHLS(w http.ResponseWriter, r *http.Request) {
	h.stop(w, r, h.hls)
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request, svc *Service) {
	key := streamID(r)
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing stream id")
		return
	}

	if svc.Stop(key) && h.metrics != nil {
		h.metrics.IncSessionsStopped()
	}
	h.log.Info("session stopped", slog.String("stream_id", string(key)))
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "session stopped"})
}

// UploadFrame handles POST /live/{stream_id}/frame. The body is the raw frame
// payload; only the most recent frame is retained.
func (h *Handler) UploadFrame(w http.ResponseWriter, r *http.Request) {
	key := streamID(r)
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing stream id")
		return
	}

	payload, ok := h.readBody(w, r)
	if !ok {
		return
	}

	st, err := h.live.UploadFrame(key, payload)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.IncFrames()
	}
	h.log.Debug("frame accepted",
		slog.String("stream_id", string(key)),
		slog.Int("bytes", len(payload)),
		slog.Int64("frame_count", st.FrameCount))
	writeJSON(w, http.StatusOK, frameUploadResponse{
		envelope:    envelope{Success: true, Message: "frame accepted"},
		FrameCount:  st.FrameCount,
		TotalBytes:  st.TotalBytes,
		ViewerCount: st.ViewerCount,
	})
}

// GetFrame handles GET /live/{stream_id}/frame, returning the latest frame
// as a JPEG body.
func (h *Handler) GetFrame(w http.ResponseWriter, r *http.Request) {
	key := streamID(r)
	payload, err := h.live.LatestFrame(key)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", frameContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// GetStats handles GET /live/{stream_id}/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	key := streamID(r)
	st, err := h.live.Stats(key)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		envelope: envelope{Success: true, Message: "ok"},
		Stats:    st,
	})
}

// JoinViewer handles POST /live/{stream_id}/viewers/{viewer_id}.
func (h *Handler) JoinViewer(w http.ResponseWriter, r *http.Request) {
	key := streamID(r)
	viewerID := chi.URLParam(r, "viewer_id")
	if key == "" || viewerID == "" {
		writeError(w, http.StatusBadRequest, "missing stream or viewer id")
		return
	}

	n, err := h.live.Join(key, viewerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewerResponse{
		envelope:    envelope{Success: true, Message: "viewer joined"},
		ViewerCount: n,
	})
}

// LeaveViewer handles DELETE /live/{stream_id}/viewers/{viewer_id}.
// Leaving without a prior join is a no-op.
func (h *Handler) LeaveViewer(w http.ResponseWriter, r *http.Request) {
	key := streamID(r)
	viewerID := chi.URLParam(r, "viewer_id")
	if key == "" || viewerID == "" {
		writeError(w, http.StatusBadRequest, "missing stream or viewer id")
		return
	}

	n := h.live.Leave(key, viewerID)
	writeJSON(w, http.StatusOK, viewerResponse{
		envelope:    envelope{Success: true, Message: "viewer left"},
		ViewerCount: n,
	})
}

// ListLive handles GET /live.
func (h *Handler) ListLive(w http.ResponseWriter, r *http.Request) {
	h.list(w, h.live)
}

// ListHLS handles GET /hls.
func (h *Handler) ListHLS(w http.ResponseWriter, r *http.Request) {
	h.list(w, h.hls)
}

func (h *Handler) list(w http.ResponseWriter, svc *Service) {
	writeJSON(w, http.StatusOK, listResponse{
		envelope: envelope{Success: true, Message: "ok"},
		Sessions: svc.ListActive(),
	})
}

// UploadSegment handles POST /hls/{stream_id}/segments?duration=D. The body
// is the raw MPEG-TS payload; duration is the playback duration in seconds.
func (h *Handler) UploadSegment(w http.ResponseWriter, r *http.Request) {
	key := streamID(r)
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing stream id")
		return
	}

	duration, err := strconv.ParseFloat(r.URL.Query().Get("duration"), 64)
	if err != nil || duration <= 0 {
		writeError(w, http.StatusBadRequest, "duration query parameter must be a positive number of seconds")
		return
	}

	payload, ok := h.readBody(w, r)
	if !ok {
		return
	}

	filename, index, err := h.hls.UploadSegment(key, payload, duration)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.IncSegments()
	}
	h.log.Debug("segment accepted",
		slog.String("stream_id", string(key)),
		slog.String("filename", filename),
		slog.Int64("index", index))
	writeJSON(w, http.StatusCreated, segmentUploadResponse{
		envelope: envelope{Success: true, Message: "segment accepted"},
		Filename: filename,
		Index:    index,
	})
}

// GetPlaylist handles GET /hls/{stream_id}/playlist.m3u8.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	key := streamID(r)
	m3u8, err := h.hls.Playlist(key)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(m3u8))
}

// GetSegment handles GET /hls/{stream_id}/segments/{filename}.
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	key := streamID(r)
	filename := chi.URLParam(r, "filename")
	payload, err := h.hls.SegmentData(key, filename)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", segmentContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// WebRTCOffer handles POST /webrtc/offer. Negotiation is not implemented; the
// endpoint only acknowledges receipt so clients can fall back to HLS.
func (h *Handler) WebRTCOffer(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "offer received"})
}
