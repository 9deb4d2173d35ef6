package stream

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

func newTestRouter(t *testing.T, maxUploadBytes int64) *chi.Mux {
	t.Helper()
	live := NewService(NewRegistry(Config{}))
	hls := NewService(NewRegistry(Config{}))
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	h := NewHandler(live, hls, log, nil, maxUploadBytes)

	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func do(r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_frame_upload_and_fetch(t *testing.T) {
	r := newTestRouter(t, 0)
	payload := bytes.Repeat([]byte{0xff}, 1000)

	rec := do(r, http.MethodPost, "/live/r1/frame", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d", rec.Code)
	}
	var resp struct {
		Success    bool  `json:"success"`
		FrameCount int64 `json:"frameCount"`
		TotalBytes int64 `json:"totalBytes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.FrameCount != 1 || resp.TotalBytes != 1000 {
		t.Errorf("unexpected response: %+v", resp)
	}

	rec = do(r, http.MethodGet, "/live/r1/frame", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Error("fetched frame should be byte-identical to the upload")
	}
}

func TestHandler_frame_empty_body(t *testing.T) {
	r := newTestRouter(t, 0)
	rec := do(r, http.MethodPost, "/live/r1/frame", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty body, got %d", rec.Code)
	}
}

func TestHandler_frame_too_large(t *testing.T) {
	r := newTestRouter(t, 16)
	rec := do(r, http.MethodPost, "/live/r1/frame", bytes.Repeat([]byte{1}, 64))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestHandler_frame_missing_session(t *testing.T) {
	r := newTestRouter(t, 0)
	rec := do(r, http.MethodGet, "/live/missing/frame", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_frame_after_stop(t *testing.T) {
	r := newTestRouter(t, 0)
	do(r, http.MethodPost, "/live/r1/frame", []byte("jpeg"))
	do(r, http.MethodPost, "/live/r1/stop", nil)

	rec := do(r, http.MethodGet, "/live/r1/frame", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for stopped session, got %d", rec.Code)
	}
	rec = do(r, http.MethodPost, "/live/r1/frame", []byte("jpeg"))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for upload after stop, got %d", rec.Code)
	}
}

func TestHandler_restart_after_stop(t *testing.T) {
	r := newTestRouter(t, 0)
	do(r, http.MethodPost, "/live/r1/frame", []byte("jpeg"))
	do(r, http.MethodPost, "/live/r1/stop", nil)

	rec := do(r, http.MethodPost, "/live/r1/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("restart: expected 200, got %d", rec.Code)
	}
	var resp struct {
		Session SessionSummary `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Session.Active {
		t.Error("restart must return an active session descriptor")
	}

	rec = do(r, http.MethodPost, "/live/r1/frame", []byte("jpeg"))
	if rec.Code != http.StatusOK {
		t.Errorf("upload after restart: expected 200, got %d", rec.Code)
	}
}

func TestHandler_upload_rate_limited(t *testing.T) {
	live := NewService(NewRegistry(Config{}))
	hls := NewService(NewRegistry(Config{}))
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	h := NewHandler(live, hls, log, nil, 0)

	r := chi.NewRouter()
	h.Routes(r, httprate.Limit(2, time.Minute))

	for i := 0; i < 2; i++ {
		if rec := do(r, http.MethodPost, "/live/r1/frame", []byte("jpeg")); rec.Code != http.StatusOK {
			t.Fatalf("upload %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := do(r, http.MethodPost, "/live/r1/frame", []byte("jpeg")); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 beyond the burst, got %d", rec.Code)
	}

	// Player-facing reads are not throttled by the upload limiter.
	for i := 0; i < 5; i++ {
		if rec := do(r, http.MethodGet, "/live/r1/frame", nil); rec.Code != http.StatusOK {
			t.Errorf("read %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestHandler_segment_upload_and_playlist(t *testing.T) {
	r := newTestRouter(t, 0)

	rec := do(r, http.MethodPost, "/hls/s1/segments?duration=9.5", []byte("mpegts"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d", rec.Code)
	}
	var resp struct {
		Filename string `json:"filename"`
		Index    int64  `json:"index"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Filename != "segment0.ts" || resp.Index != 0 {
		t.Errorf("unexpected response: %+v", resp)
	}

	rec = do(r, http.MethodGet, "/hls/s1/playlist.m3u8", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("playlist: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.apple.mpegurl" {
		t.Errorf("expected playlist content type, got %s", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "#EXTM3U") || !strings.Contains(body, "segment0.ts") {
		t.Errorf("unexpected playlist body: %s", body)
	}

	rec = do(r, http.MethodGet, "/hls/s1/segments/segment0.ts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("segment fetch: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/mp2t" {
		t.Errorf("expected video/mp2t, got %s", ct)
	}
	if rec.Body.String() != "mpegts" {
		t.Error("segment payload should round-trip")
	}
}

func TestHandler_segment_missing_duration(t *testing.T) {
	r := newTestRouter(t, 0)
	rec := do(r, http.MethodPost, "/hls/s1/segments", []byte("mpegts"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without duration, got %d", rec.Code)
	}
}

func TestHandler_playlist_not_found(t *testing.T) {
	r := newTestRouter(t, 0)
	rec := do(r, http.MethodGet, "/hls/missing/playlist.m3u8", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_segment_not_found(t *testing.T) {
	r := newTestRouter(t, 0)
	do(r, http.MethodPost, "/hls/s1/segments?duration=10", []byte("mpegts"))
	rec := do(r, http.MethodGet, "/hls/s1/segments/segment9.ts", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown filename, got %d", rec.Code)
	}
}

func TestHandler_viewers(t *testing.T) {
	r := newTestRouter(t, 0)
	do(r, http.MethodPost, "/live/r1/start", nil)

	rec := do(r, http.MethodPost, "/live/r1/viewers/v1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", rec.Code)
	}
	var resp struct {
		ViewerCount int `json:"viewerCount"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ViewerCount != 1 {
		t.Errorf("viewerCount = %d, want 1", resp.ViewerCount)
	}

	rec = do(r, http.MethodDelete, "/live/r1/viewers/v1", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusOK || resp.ViewerCount != 0 {
		t.Errorf("leave: code=%d viewerCount=%d", rec.Code, resp.ViewerCount)
	}

	rec = do(r, http.MethodPost, "/live/missing/viewers/v1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("join missing session: expected 404, got %d", rec.Code)
	}
}

func TestHandler_list_active(t *testing.T) {
	r := newTestRouter(t, 0)
	do(r, http.MethodPost, "/live/a/start", nil)
	do(r, http.MethodPost, "/live/b/start", nil)
	do(r, http.MethodPost, "/live/b/stop", nil)

	rec := do(r, http.MethodGet, "/live", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Sessions []SessionSummary `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Sessions) != 1 || resp.Sessions[0].Key != "a" {
		t.Errorf("unexpected listing: %+v", resp.Sessions)
	}
}

func TestHandler_webrtc_stub(t *testing.T) {
	r := newTestRouter(t, 0)
	rec := do(r, http.MethodPost, "/webrtc/offer", []byte(`{"sdp":"..."}`))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "offer received") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}
