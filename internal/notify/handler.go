package notify

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fitsyu2/HummingWallet-Server/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the ride-notification endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler over the given Service. Metrics may be nil to
// disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

// Routes mounts the ride endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/rides/{activity_id}", func(r chi.Router) {
		r.Post("/start", h.StartRide)
		r.Post("/update", h.UpdateRide)
		r.Post("/end", h.EndRide)
	})
}

// rideRequest is the JSON body shared by the ride endpoints. ContentState is
// required on start and update; Attributes only applies to start.
type rideRequest struct {
	PushToken    string          `json:"pushToken"`
	ContentState json.RawMessage `json:"contentState,omitempty"`
	Attributes   json.RawMessage `json:"attributes,omitempty"`
}

type rideResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Delivered bool   `json:"delivered"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (string, rideRequest, bool) {
	activityID := chi.URLParam(r, "activity_id")
	if activityID == "" {
		writeJSON(w, http.StatusBadRequest, rideResponse{Message: "missing activity id"})
		return "", rideRequest{}, false
	}

	var req rideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid ride request body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, rideResponse{Message: "invalid JSON body"})
		return "", rideRequest{}, false
	}
	return activityID, req, true
}

// writeResult renders a committed operation: delivery failure is reported in
// the body with a 200, never as an HTTP error, because the ride state change
// already happened.
func (h *Handler) writeResult(w http.ResponseWriter, activityID string, event Event, res Result) {
	if h.metrics != nil {
		if res.Delivered {
			h.metrics.IncNotificationsSent()
		} else {
			h.metrics.IncNotificationFailures()
		}
	}

	resp := rideResponse{Success: true, Delivered: res.Delivered, Message: "notification delivered"}
	if !res.Delivered {
		resp.Message = "state updated, delivery failed: " + res.DeliveryError.Error()
		h.log.Warn("push delivery failed",
			slog.String("activity_id", activityID),
			slog.String("event", string(event)),
			slog.String("error", res.DeliveryError.Error()))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicateActivity):
		writeJSON(w, http.StatusConflict, rideResponse{Message: err.Error()})
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrInvalidPayload):
		writeJSON(w, http.StatusBadRequest, rideResponse{Message: err.Error()})
	default:
		h.log.Error("unexpected notify error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, rideResponse{Message: "internal error"})
	}
}

// StartRide handles POST /rides/{activity_id}/start.
func (h *Handler) StartRide(w http.ResponseWriter, r *http.Request) {
	activityID, req, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.svc.StartRide(r.Context(), activityID, req.PushToken, req.ContentState, req.Attributes)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.log.Info("ride started", slog.String("activity_id", activityID), slog.Bool("delivered", res.Delivered))
	h.writeResult(w, activityID, EventStart, res)
}

// UpdateRide handles POST /rides/{activity_id}/update.
func (h *Handler) UpdateRide(w http.ResponseWriter, r *http.Request) {
	activityID, req, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.svc.UpdateRide(r.Context(), activityID, req.PushToken, req.ContentState)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeResult(w, activityID, EventUpdate, res)
}

// EndRide handles POST /rides/{activity_id}/end.
func (h *Handler) EndRide(w http.ResponseWriter, r *http.Request) {
	activityID, req, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.svc.EndRide(r.Context(), activityID, req.PushToken, req.ContentState)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.log.Info("ride ended", slog.String("activity_id", activityID), slog.Bool("delivered", res.Delivered))
	h.writeResult(w, activityID, EventEnd, res)
}
