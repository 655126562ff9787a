// Package capture provides camera capture functionality using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 1280
	DefaultHeight = 720
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrEmptyFrame is returned when the device stalls and yields no frame.
	// The camera stays open; the caller decides whether to retry.
	ErrEmptyFrame = errors.New("captured frame is empty")
	// ErrDeviceBusy is returned when the device is held by another handle.
	ErrDeviceBusy = errors.New("camera device is busy")
	// ErrDeviceUnavailable is returned when no device exists at the index.
	ErrDeviceUnavailable = errors.New("camera device is unavailable")
)

// Camera defines the interface for camera capture implementations.
//
// A Camera has exactly one owner at a time and is not safe for concurrent use.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	IsOpen() bool
	DeviceID() int
}

// Factory builds an unopened Camera for a device index.
type Factory func(deviceID int) Camera

// Settings holds the capture properties requested when a device is opened.
// The driver may not honor all of them.
type Settings struct {
	Width  int
	Height int
	FPS    int
}

// DefaultSettings returns the capture properties used when none are given.
func DefaultSettings() Settings {
	return Settings{Width: DefaultWidth, Height: DefaultHeight, FPS: DefaultFPS}
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	deviceID int
	settings Settings
	capture  *gocv.VideoCapture
}

// NewCamera creates a new Camera with the given device ID and default settings.
func NewCamera(deviceID int) Camera {
	return NewCameraWithSettings(deviceID, DefaultSettings())
}

// NewCameraWithSettings creates a new Camera with the given device ID.
// Non-positive settings fall back to the defaults.
func NewCameraWithSettings(deviceID int, s Settings) Camera {
	def := DefaultSettings()
	if s.Width <= 0 {
		s.Width = def.Width
	}
	if s.Height <= 0 {
		s.Height = def.Height
	}
	if s.FPS <= 0 {
		s.FPS = def.FPS
	}
	return &cameraImpl{deviceID: deviceID, settings: s}
}

// GoCVFactory returns a Factory producing GoCV cameras with the given settings.
func GoCVFactory(s Settings) Factory {
	return func(deviceID int) Camera {
		return NewCameraWithSettings(deviceID, s)
	}
}

// Open opens the camera for capturing frames. Opening an open camera is a no-op.
func (c *cameraImpl) Open() error {
	if c.capture != nil {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.deviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open camera %d: %w", c.deviceID, ErrDeviceUnavailable)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.settings.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.settings.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.settings.FPS))

	c.capture = capture
	return nil
}

// Close closes the camera and releases resources. It is safe to call on a
// camera that was never opened.
func (c *cameraImpl) Close() error {
	if c.capture == nil {
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	return err
}

// ReadFrame reads a single frame from the camera.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	if c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, ErrEmptyFrame
	}

	return &mat, nil
}

// IsOpen returns true if the camera is currently open.
func (c *cameraImpl) IsOpen() bool {
	return c.capture != nil
}

// DeviceID returns the device index this camera was created for.
func (c *cameraImpl) DeviceID() int {
	return c.deviceID
}
