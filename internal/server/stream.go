package server

import (
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"time"

	"gocv.io/x/gocv"
)

// streamInterval is the minimum gap between MJPEG frames (~15 FPS).
const streamInterval = 66 * time.Millisecond

// StreamHandler serves the latest captured frames as MJPEG.
type StreamHandler struct {
	hub         *Hub
	onUnwatched func()
	logger      *slog.Logger
	interval    time.Duration
}

// NewStreamHandler creates a StreamHandler reading frames from hub.
// onUnwatched, if set, is called when the last viewer disconnects.
func NewStreamHandler(hub *Hub, onUnwatched func(), logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		hub:         hub,
		onUnwatched: onUnwatched,
		logger:      logger,
		interval:    streamInterval,
	}
}

// ServeHTTP streams MJPEG frames to the client until it disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.hub.addViewer()
	defer func() {
		if h.hub.removeViewer() == 0 && h.onUnwatched != nil {
			h.onUnwatched()
		}
	}()

	var lastSeq uint64
	for {
		result, has, changed := h.hub.Latest()
		if has && result.Frame != nil && result.Seq != lastSeq {
			if err := writePart(w, result.Frame); err != nil {
				h.logger.Debug("preview stream ended", "error", err)
				return
			}
			flusher.Flush()
			lastSeq = result.Seq

			select {
			case <-r.Context().Done():
				return
			case <-time.After(h.interval):
			}
			continue
		}

		select {
		case <-r.Context().Done():
			return
		case <-h.hub.Done():
			return
		case <-changed:
		}
	}
}

// SnapshotHandler serves the latest frame as a single JPEG.
func SnapshotHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, has, _ := hub.Latest()
		if !has || result.Frame == nil {
			writeError(w, http.StatusNotFound, "No frame captured yet")
			return
		}

		buf, err := encodeJPEG(result.Frame)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to encode frame")
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(buf)
	}
}

func writePart(w http.ResponseWriter, img image.Image) error {
	buf, err := encodeJPEG(img)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "--frame\r\n")
	fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
	fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
	if _, err := w.Write(buf); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\r\n")
	return err
}

func encodeJPEG(img image.Image) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
