package cue

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/ayusman/codescan/internal/store"
)

// DefaultWriteTimeout bounds a single history write.
const DefaultWriteTimeout = 2 * time.Second

// ScanWriter persists scans. *store.ScanRepository satisfies it.
type ScanWriter interface {
	Create(ctx context.Context, scan *store.Scan) error
}

// Recorder writes every signal to the scan history. Writes hit the database,
// so wrap a Recorder in Async when it is fed from the capture goroutine.
type Recorder struct {
	w       ScanWriter
	logger  *slog.Logger
	timeout time.Duration
}

// NewRecorder creates a Recorder writing to w.
func NewRecorder(w ScanWriter, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{
		w:       w,
		logger:  logger,
		timeout: DefaultWriteTimeout,
	}
}

// Signal records the scan. Write failures are logged and otherwise ignored.
func (r *Recorder) Signal(s Scan) {
	scan := &store.Scan{
		SessionID: s.SessionID,
		Device:    s.Device,
		Type:      s.Type,
		Content:   s.Content,
		ScannedAt: s.At,
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.w.Create(ctx, scan); err != nil {
		r.logger.Warn("failed to record scan", "type", s.Type, "session", s.SessionID, "error", err)
		return
	}
	r.logger.Debug("scan recorded", "id", scan.ID, "type", s.Type, "session", s.SessionID)
}
