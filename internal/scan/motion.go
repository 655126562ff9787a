package scan

import (
	"image"

	"gocv.io/x/gocv"
)

// Motion gate tuning
const (
	// motionBlurSize is the Gaussian kernel applied before differencing.
	motionBlurSize = 21
	// motionPixelDelta is the per-pixel gray level change that counts as motion.
	motionPixelDelta = 25
	// DefaultMotionThreshold is the percentage of changed pixels that counts
	// as a moving scene.
	DefaultMotionThreshold = 1.0
)

// MotionGate tells still frames from moving ones by differencing each frame
// against the previous one. While the scene is still a detection can be held
// instead of decoding the frame again.
//
// A MotionGate is used by one goroutine at a time.
type MotionGate struct {
	threshold float64
	prev      gocv.Mat
	hasPrev   bool
}

// NewMotionGate creates a gate. threshold is the percentage of pixels that
// must change for a frame to count as moving; non-positive means
// DefaultMotionThreshold.
func NewMotionGate(threshold float64) *MotionGate {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	return &MotionGate{threshold: threshold, prev: gocv.NewMat()}
}

// Changed reports whether frame differs from the previous frame, and the
// percentage of pixels that changed. The first frame after a reset, and any
// frame whose size differs from the previous one, counts as changed.
func (g *MotionGate) Changed(frame *gocv.Mat) (bool, float64) {
	if frame == nil || frame.Empty() {
		return true, 100
	}

	gray := gocv.NewMat()
	defer gray.Close()
	switch frame.Channels() {
	case 3:
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRAToGray)
	default:
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Pt(motionBlurSize, motionBlurSize), 0, 0, gocv.BorderDefault)

	if !g.hasPrev || g.prev.Rows() != blurred.Rows() || g.prev.Cols() != blurred.Cols() || g.prev.Type() != blurred.Type() {
		g.replace(blurred)
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prev, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, motionPixelDelta, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols()) * 100
	g.replace(blurred)

	return changed > g.threshold, changed
}

// replace makes m the baseline, taking ownership of it.
func (g *MotionGate) replace(m gocv.Mat) {
	g.prev.Close()
	g.prev = m
	g.hasPrev = true
}

// Reset forgets the baseline frame.
func (g *MotionGate) Reset() {
	g.prev.Close()
	g.prev = gocv.NewMat()
	g.hasPrev = false
}

// Close releases the baseline frame. The gate may be reused afterwards.
func (g *MotionGate) Close() {
	g.Reset()
}
