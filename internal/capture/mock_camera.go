package capture

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// mockReadTimeout bounds how long a MockCamera waits for a fed frame before
// reporting ErrEmptyFrame.
const mockReadTimeout = 10 * time.Millisecond

// MockDevice describes the behavior of one simulated camera device.
type MockDevice struct {
	// OpenErr, when set, is returned by every Open.
	OpenErr error
	// OpenDelay is slept before Open completes.
	OpenDelay time.Duration
	// OpenGate, when non-nil, blocks Open until it is closed.
	OpenGate chan struct{}
	// ReadDelay is slept before each generated frame is returned.
	ReadDelay time.Duration
	// Frames, when non-nil, supplies frames in order. A read with no frame
	// available returns ErrEmptyFrame. When nil, blank frames are generated.
	Frames chan *gocv.Mat
}

// MockBus simulates a set of camera devices for testing. It tracks open
// handles per device so tests can assert that no handle is leaked.
type MockBus struct {
	mu      sync.Mutex
	devices map[int]*MockDevice
	open    map[int]int
	opens   map[int]int
}

// NewMockBus creates an empty MockBus.
func NewMockBus() *MockBus {
	return &MockBus{
		devices: make(map[int]*MockDevice),
		open:    make(map[int]int),
		opens:   make(map[int]int),
	}
}

// Add registers a device at the given index.
func (b *MockBus) Add(deviceID int, d *MockDevice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[deviceID] = d
}

// Factory returns a Factory that creates cameras attached to this bus.
func (b *MockBus) Factory() Factory {
	return func(deviceID int) Camera {
		return &MockCamera{bus: b, deviceID: deviceID}
	}
}

// OpenHandles returns the number of handles currently holding the device.
func (b *MockBus) OpenHandles(deviceID int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open[deviceID]
}

// Opens returns the number of successful opens of the device so far.
func (b *MockBus) Opens(deviceID int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens[deviceID]
}

func (b *MockBus) device(deviceID int) *MockDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.devices[deviceID]
}

func (b *MockBus) acquire(deviceID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open[deviceID] > 0 {
		return ErrDeviceBusy
	}
	b.open[deviceID]++
	b.opens[deviceID]++
	return nil
}

func (b *MockBus) release(deviceID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open[deviceID] > 0 {
		b.open[deviceID]--
	}
}

// MockCamera is a Camera backed by a MockBus device.
type MockCamera struct {
	bus      *MockBus
	deviceID int
	dev      *MockDevice
}

// Open acquires the simulated device. Only one handle may hold a device.
func (c *MockCamera) Open() error {
	if c.dev != nil {
		return nil
	}

	dev := c.bus.device(c.deviceID)
	if dev == nil {
		return fmt.Errorf("open camera %d: %w", c.deviceID, ErrDeviceUnavailable)
	}
	if dev.OpenGate != nil {
		<-dev.OpenGate
	}
	if dev.OpenDelay > 0 {
		time.Sleep(dev.OpenDelay)
	}
	if dev.OpenErr != nil {
		return fmt.Errorf("open camera %d: %w", c.deviceID, dev.OpenErr)
	}
	if err := c.bus.acquire(c.deviceID); err != nil {
		return fmt.Errorf("open camera %d: %w", c.deviceID, err)
	}

	c.dev = dev
	return nil
}

// Close releases the simulated device. It is a no-op when not open.
func (c *MockCamera) Close() error {
	if c.dev == nil {
		return nil
	}
	c.bus.release(c.deviceID)
	c.dev = nil
	return nil
}

// ReadFrame returns the next fed frame or a generated blank frame.
func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	if c.dev == nil {
		return nil, ErrCameraNotOpen
	}

	if c.dev.Frames != nil {
		select {
		case frame, ok := <-c.dev.Frames:
			if !ok || frame == nil {
				return nil, ErrEmptyFrame
			}
			return frame, nil
		case <-time.After(mockReadTimeout):
			return nil, ErrEmptyFrame
		}
	}

	if c.dev.ReadDelay > 0 {
		time.Sleep(c.dev.ReadDelay)
	}
	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	return &frame, nil
}

// IsOpen reports whether the simulated device is held by this camera.
func (c *MockCamera) IsOpen() bool {
	return c.dev != nil
}

// DeviceID returns the simulated device index.
func (c *MockCamera) DeviceID() int {
	return c.deviceID
}
