package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// cameraHandler exposes capture control over HTTP.
type cameraHandler struct {
	ctrl Controller
}

type cameraStatus struct {
	State     string `json:"state"`
	Device    int    `json:"device"`
	SessionID string `json:"session_id,omitempty"`
}

type deviceRequest struct {
	Device *int `json:"device"`
}

func (h *cameraHandler) snapshot() cameraStatus {
	return cameraStatus{
		State:     h.ctrl.State().String(),
		Device:    h.ctrl.Device(),
		SessionID: h.ctrl.SessionID(),
	}
}

// status handles GET /api/camera.
func (h *cameraHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

// start handles POST /api/camera/start. The body is optional; without a
// device the selected one is used. The open completes asynchronously.
func (h *cameraHandler) start(w http.ResponseWriter, r *http.Request) {
	req, err := decodeDevice(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	device := h.ctrl.Device()
	if req.Device != nil {
		device = *req.Device
	}
	h.ctrl.StartCapture(device)
	writeJSON(w, http.StatusAccepted, h.snapshot())
}

// stop handles POST /api/camera/stop. It returns once the device is released.
func (h *cameraHandler) stop(w http.ResponseWriter, r *http.Request) {
	h.ctrl.StopCapture()
	writeJSON(w, http.StatusOK, h.snapshot())
}

// toggle handles POST /api/camera/toggle.
func (h *cameraHandler) toggle(w http.ResponseWriter, r *http.Request) {
	h.ctrl.ToggleCapture()
	writeJSON(w, http.StatusAccepted, h.snapshot())
}

// switchDevice handles PUT /api/camera/device.
func (h *cameraHandler) switchDevice(w http.ResponseWriter, r *http.Request) {
	req, err := decodeDevice(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Device == nil {
		writeError(w, http.StatusBadRequest, "Device is required")
		return
	}

	h.ctrl.SwitchDevice(*req.Device)
	writeJSON(w, http.StatusOK, h.snapshot())
}

func decodeDevice(r *http.Request) (deviceRequest, error) {
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, errors.New("Invalid JSON")
	}
	if req.Device != nil && *req.Device < 0 {
		return req, errors.New("Device must not be negative")
	}
	return req, nil
}
