package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/neuropose/internal/app"
	"github.com/ayusman/neuropose/internal/session"
)

// Controller is the part of the App the detection endpoints drive.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Status() app.Status
	Err() error
	SetEnabled(enabled bool)
	IsEnabled() bool
	Aggregator() *session.Aggregator
}

// DetectionHandler serves the live state and the detection controls.
type DetectionHandler struct {
	ctrl Controller
	// ctx outlives the request that starts detection.
	ctx context.Context
}

// NewDetectionHandler creates a DetectionHandler. Loops started over HTTP
// run until ctx is done or they are stopped.
func NewDetectionHandler(ctx context.Context, ctrl Controller) *DetectionHandler {
	return &DetectionHandler{ctrl: ctrl, ctx: ctx}
}

type statusResponse struct {
	Status  app.Status `json:"status"`
	Enabled bool       `json:"enabled"`
	Error   string     `json:"error,omitempty"`
}

type historyResponse struct {
	Values []float64 `json:"values"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *DetectionHandler) status() statusResponse {
	resp := statusResponse{
		Status:  h.ctrl.Status(),
		Enabled: h.ctrl.IsEnabled(),
	}
	if err := h.ctrl.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// State handles GET /api/state.
func (h *DetectionHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Aggregator().Current())
}

// History handles GET /api/history.
func (h *DetectionHandler) History(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, historyResponse{Values: h.ctrl.Aggregator().Current().History})
}

// Status handles GET /api/status.
func (h *DetectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}

// Start handles POST /api/detection/start. A model or camera failure is
// reported as 503 with the resulting status in the body.
func (h *DetectionHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Start(h.ctx); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, app.ErrModelLoad) || errors.Is(err, app.ErrCameraUnavailable) {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, h.status())
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// Stop handles POST /api/detection/stop.
func (h *DetectionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Stop()
	writeJSON(w, http.StatusOK, h.status())
}

// SetEnabled handles PUT /api/detection.
func (h *DetectionHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	h.ctrl.SetEnabled(*req.Enabled)
	writeJSON(w, http.StatusOK, h.status())
}
