// Package scan turns captured frames into scan results and hands them from
// the capture goroutine to consumers.
package scan

import (
	"image"
	"time"

	"github.com/ayusman/codescan/internal/decoder"
)

// FrameResult is produced once per captured frame.
type FrameResult struct {
	// Frame is the captured image, annotated when a code was found.
	// It is never modified after the result is built.
	Frame image.Image `json:"-"`

	HasDetection bool          `json:"has_detection"`
	Type         string        `json:"type,omitempty"`
	Content      string        `json:"content,omitempty"`
	Points       []image.Point `json:"points,omitempty"`

	// Seq is assigned by the Mailbox and increases with every publish.
	Seq        uint64    `json:"seq"`
	Device     int       `json:"device"`
	SessionID  string    `json:"session_id,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// NewResult builds a result for frame. A nil detection, or one with an empty
// format or content, yields a result without detection.
func NewResult(frame image.Image, d *decoder.Detection) FrameResult {
	r := FrameResult{Frame: frame, CapturedAt: time.Now()}
	if d == nil || d.Format == "" || d.Content == "" {
		return r
	}
	r.HasDetection = true
	r.Type = string(d.Format)
	r.Content = d.Content
	if len(d.Points) > 0 {
		r.Points = append([]image.Point(nil), d.Points...)
	}
	return r
}

// Valid reports whether Type and Content are set exactly when HasDetection is.
func (r FrameResult) Valid() bool {
	if r.HasDetection {
		return r.Type != "" && r.Content != ""
	}
	return r.Type == "" && r.Content == ""
}
