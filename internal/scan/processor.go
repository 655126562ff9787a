package scan

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"unicode/utf8"

	"gocv.io/x/gocv"

	"github.com/ayusman/codescan/internal/cue"
	"github.com/ayusman/codescan/internal/decoder"
)

// Annotation drawing constants
const (
	annotationPadding   = 8
	annotationThickness = 2
	annotationFontScale = 0.6
	annotationMaxText   = 48
)

var annotationColor = color.RGBA{R: 0, G: 220, B: 0, A: 255}

// Processor decodes frames into FrameResults and fires the cue once per
// distinct decode event.
//
// A Processor is used by one capture goroutine at a time.
type Processor struct {
	decoder  decoder.Decoder
	cue      cue.Cue
	logger   *slog.Logger
	annotate bool
	gate     *MotionGate
	// held is the detection of the previous frame, reused while the gate
	// reports a still scene.
	held *decoder.Detection

	device    int
	sessionID string

	lastHad     bool
	lastType    string
	lastContent string
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithoutAnnotation leaves detected frames undrawn.
func WithoutAnnotation() ProcessorOption {
	return func(p *Processor) { p.annotate = false }
}

// WithMotionGate holds the previous detection instead of decoding again
// while gate reports the scene as still. Frames without a held detection are
// always decoded.
func WithMotionGate(gate *MotionGate) ProcessorOption {
	return func(p *Processor) { p.gate = gate }
}

// NewProcessor creates a Processor. A nil cue or logger is replaced with a
// no-op one.
func NewProcessor(d decoder.Decoder, c cue.Cue, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if c == nil {
		c = cue.Nop{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Processor{decoder: d, cue: c, logger: logger, annotate: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StartSession resets the processor and tags the cues it fires from now on
// with device and sessionID. Call it at the start of every capture session.
func (p *Processor) StartSession(device int, sessionID string) {
	p.Reset()
	p.device = device
	p.sessionID = sessionID
}

// Reset forgets the previous detection, so the next code seen cues again.
func (p *Processor) Reset() {
	p.held = nil
	if p.gate != nil {
		p.gate.Reset()
	}
	p.lastHad = false
	p.lastType = ""
	p.lastContent = ""
}

// Process decodes frame and returns its result. Decode failure of any kind
// yields a result without detection. The frame may be drawn on; the caller
// still owns and closes it.
func (p *Processor) Process(frame *gocv.Mat) FrameResult {
	if frame == nil || frame.Empty() {
		p.held = nil
		p.observe(FrameResult{})
		return FrameResult{}
	}

	img, err := frame.ToImage()
	if err != nil {
		p.logger.Debug("frame conversion failed", "type", frame.Type(), "error", err)
		p.held = nil
		p.observe(FrameResult{})
		return FrameResult{}
	}

	var detection *decoder.Detection
	if p.holdStill(frame) {
		detection = p.held
	} else {
		detection = p.decode(img)
	}
	p.held = detection

	if detection != nil && p.annotate {
		if annotated, ok := p.drawDetection(frame, detection); ok {
			img = annotated
		}
	}

	result := NewResult(img, detection)
	p.observe(result)
	return result
}

// Close releases the motion gate, if any.
func (p *Processor) Close() {
	if p.gate != nil {
		p.gate.Close()
	}
}

// holdStill reports whether the held detection can stand for frame.
func (p *Processor) holdStill(frame *gocv.Mat) bool {
	if p.gate == nil {
		return false
	}
	changed, _ := p.gate.Changed(frame)
	return !changed && p.held != nil
}

func (p *Processor) decode(img image.Image) (found *decoder.Detection) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("decoder panicked", "error", fmt.Sprint(r))
			found = nil
		}
	}()

	detections, err := p.decoder.Decode(img)
	if err != nil {
		p.logger.Debug("decode failed", "error", err)
		return nil
	}
	for i := range detections {
		if detections[i].Format != "" && detections[i].Content != "" {
			return &detections[i]
		}
	}
	return nil
}

// observe fires the cue when result starts a new decode event.
func (p *Processor) observe(result FrameResult) {
	if !result.HasDetection {
		p.lastHad = false
		return
	}

	distinct := !p.lastHad || result.Type != p.lastType || result.Content != p.lastContent
	p.lastHad = true
	p.lastType = result.Type
	p.lastContent = result.Content

	if distinct {
		p.cue.Signal(cue.Scan{
			Type:      result.Type,
			Content:   result.Content,
			Device:    p.device,
			SessionID: p.sessionID,
			At:        result.CapturedAt,
		})
	}
}

// drawDetection outlines the code and writes its content above it.
func (p *Processor) drawDetection(frame *gocv.Mat, d *decoder.Detection) (image.Image, bool) {
	if len(d.Points) == 0 {
		return nil, false
	}

	box := boundingBox(d.Points).Inset(-annotationPadding)
	box = box.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if box.Empty() {
		return nil, false
	}

	gocv.Rectangle(frame, box, annotationColor, annotationThickness)

	text := truncateText(d.Content, annotationMaxText)
	origin := image.Pt(box.Min.X, box.Min.Y-annotationPadding)
	if origin.Y < annotationPadding*2 {
		origin.Y = box.Max.Y + annotationPadding*2
	}
	gocv.PutText(frame, string(d.Format)+": "+text, origin, gocv.FontHersheySimplex,
		annotationFontScale, annotationColor, annotationThickness)

	img, err := frame.ToImage()
	if err != nil {
		return nil, false
	}
	return img, true
}

// truncateText shortens s to at most n runes, marking the cut with "...".
func truncateText(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

func boundingBox(points []image.Point) image.Rectangle {
	r := image.Rectangle{Min: points[0], Max: points[0]}
	for _, pt := range points[1:] {
		if pt.X < r.Min.X {
			r.Min.X = pt.X
		}
		if pt.Y < r.Min.Y {
			r.Min.Y = pt.Y
		}
		if pt.X > r.Max.X {
			r.Max.X = pt.X
		}
		if pt.Y > r.Max.Y {
			r.Max.Y = pt.Y
		}
	}
	return r
}
