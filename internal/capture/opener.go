package capture

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// OpenState is the state of an asynchronous open.
type OpenState int

const (
	OpenPending OpenState = iota
	OpenSucceeded
	OpenFailed
)

func (s OpenState) String() string {
	switch s {
	case OpenPending:
		return "pending"
	case OpenSucceeded:
		return "succeeded"
	case OpenFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Opener opens cameras off the calling goroutine. Device enumeration and USB
// negotiation can stall for seconds, so callers get a Ticket back at once.
type Opener struct {
	newCamera Factory
	logger    *slog.Logger
}

// NewOpener creates an Opener that builds cameras with the given factory.
func NewOpener(factory Factory, logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Opener{newCamera: factory, logger: logger}
}

// RequestOpen schedules an open of the device and returns immediately.
func (o *Opener) RequestOpen(deviceID int) *Ticket {
	t := &Ticket{
		deviceID:  deviceID,
		done:      make(chan struct{}),
		abandoned: make(chan struct{}),
		logger:    o.logger,
	}

	cam := o.newCamera(deviceID)
	go func() {
		err := cam.Open()
		t.complete(cam, err)
	}()

	return t
}

// Ticket represents an in-flight open. The opener, not the requester, is
// responsible for closing a camera whose ticket was abandoned.
type Ticket struct {
	deviceID int
	logger   *slog.Logger

	mu          sync.Mutex
	state       OpenState
	camera      Camera
	err         error
	claimed     bool
	isAbandoned bool

	done      chan struct{}
	abandoned chan struct{}
}

// DeviceID returns the device index being opened.
func (t *Ticket) DeviceID() int {
	return t.deviceID
}

// State returns the current state without blocking.
func (t *Ticket) State() OpenState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the open error once the ticket has failed.
func (t *Ticket) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed when the open attempt completes, successful or not.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the open completes, the ticket is abandoned, or timeout
// elapses, and returns the state at that point. A timeout yields OpenPending.
func (t *Ticket) Wait(timeout time.Duration) OpenState {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.done:
	case <-t.abandoned:
	case <-timer.C:
	}
	return t.State()
}

// Claim transfers ownership of the opened camera to the caller. It succeeds
// at most once, and never after Abandon.
func (t *Ticket) Claim() (Camera, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != OpenSucceeded || t.claimed || t.isAbandoned {
		return nil, false
	}
	t.claimed = true
	cam := t.camera
	t.camera = nil
	return cam, true
}

// Abandon discards interest in the ticket. An unclaimed camera that is
// already open is closed now; one still opening is closed when it completes.
func (t *Ticket) Abandon() {
	t.mu.Lock()
	if t.isAbandoned {
		t.mu.Unlock()
		return
	}
	t.isAbandoned = true
	close(t.abandoned)

	cam := t.camera
	t.camera = nil
	t.mu.Unlock()

	if cam != nil {
		t.discard(cam)
	}
}

func (t *Ticket) complete(cam Camera, err error) {
	t.mu.Lock()
	if err != nil {
		t.state = OpenFailed
		t.err = err
	} else {
		t.state = OpenSucceeded
	}

	var orphan Camera
	if err == nil && t.isAbandoned {
		orphan = cam
	} else if err == nil {
		t.camera = cam
	}
	close(t.done)
	t.mu.Unlock()

	if err != nil {
		// Close is safe on a camera that never opened and releases any
		// partial driver state.
		cam.Close()
		t.logger.Debug("camera open failed", "device", t.deviceID, "error", err)
		return
	}
	if orphan != nil {
		t.discard(orphan)
	}
}

func (t *Ticket) discard(cam Camera) {
	if err := cam.Close(); err != nil {
		t.logger.Warn("closing abandoned camera", "device", t.deviceID, "error", err)
		return
	}
	t.logger.Debug("closed abandoned camera", "device", t.deviceID)
}
