// Package app drives the camera capture state machine and delivers scan
// results to consumers.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/codescan/internal/capture"
	"github.com/ayusman/codescan/internal/cue"
	"github.com/ayusman/codescan/internal/decoder"
	"github.com/ayusman/codescan/internal/scan"
)

// Timing constants.
const (
	// DefaultOpenTimeout bounds how long a start waits for the device to open.
	DefaultOpenTimeout = 5 * time.Second
	// ReadRetryDelay is slept after an empty frame read before retrying.
	// A stop request therefore completes within one ReadFrame, one Process
	// and one ReadRetryDelay.
	ReadRetryDelay = 5 * time.Millisecond
)

// ErrOpenTimeout is reported when a device does not open within the open timeout.
var ErrOpenTimeout = errors.New("camera open timed out")

// State is the capture state.
type State int32

const (
	StateIdle State = iota
	StateOpening
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Lifecycle is a visibility change of the hosting view.
type Lifecycle int

const (
	LifecycleShown Lifecycle = iota
	LifecycleHidden
)

// EventKind identifies a capture lifecycle event.
type EventKind int

const (
	EventOpening EventKind = iota
	EventStarted
	EventOpenFailed
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventOpening:
		return "opening"
	case EventStarted:
		return "started"
	case EventOpenFailed:
		return "open_failed"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event reports a capture lifecycle transition. Err is set for EventOpenFailed.
type Event struct {
	Kind      EventKind
	Device    int
	SessionID string
	Err       error
}

// Config holds configuration options for the application.
type Config struct {
	// CameraID is the device selected initially.
	CameraID int
	// OpenTimeout bounds a device open. Zero means DefaultOpenTimeout.
	OpenTimeout time.Duration
	// Camera builds camera handles. Nil means GoCV cameras with Settings.
	Camera   capture.Factory
	Settings capture.Settings
	// Decoder is the decode capability. Nil means the ZXing decoder.
	Decoder decoder.Decoder
	// MotionThreshold enables holding a detection across still frames when
	// positive. It is the percentage of pixels that must change before a
	// frame is decoded again.
	MotionThreshold float64
	// Cue is signalled once per distinct decode. It is called on the capture
	// goroutine and must not block.
	Cue    cue.Cue
	Logger *slog.Logger
	// OnEvent observes lifecycle events. Events are delivered in the order of
	// the state transitions they report, one at a time, on a goroutine owned
	// by the App. OnEvent may call back into the App, except Close.
	OnEvent func(Event)
}

// session is the state owned by one capture goroutine for one open device.
type session struct {
	id      string
	device  int
	camera  capture.Camera
	running atomic.Bool
	done    chan struct{}
}

// App runs the capture state machine: Idle, Opening, Running, Stopping.
// At most one session exists at a time.
type App struct {
	config    Config
	logger    *slog.Logger
	opener    *capture.Opener
	processor *scan.Processor
	decoder   decoder.Decoder
	mailbox   *scan.Mailbox

	// mu serializes control operations and guards the fields below.
	mu       sync.Mutex
	state    atomic.Int32
	device   int
	ticket   *capture.Ticket
	session  *session
	closed   bool
	handlers []func(scan.FrameResult)

	// pending holds events not yet delivered to OnEvent; guarded by mu.
	pending    []Event
	eventReady chan struct{}
	delivered  chan struct{}

	cancel     context.CancelFunc
	dispatched chan struct{}
}

// New creates a new App instance with the given configuration.
func New(config Config) (*App, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = DefaultOpenTimeout
	}
	if config.Camera == nil {
		config.Camera = capture.GoCVFactory(config.Settings)
	}

	dec := config.Decoder
	if dec == nil {
		z, err := decoder.NewZXing(decoder.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("create decoder: %w", err)
		}
		dec = z
	}

	var opts []scan.ProcessorOption
	if config.MotionThreshold > 0 {
		opts = append(opts, scan.WithMotionGate(scan.NewMotionGate(config.MotionThreshold)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		config:     config,
		logger:     logger,
		opener:     capture.NewOpener(config.Camera, logger),
		processor:  scan.NewProcessor(dec, config.Cue, logger, opts...),
		decoder:    dec,
		mailbox:    scan.NewMailbox(),
		device:     config.CameraID,
		eventReady: make(chan struct{}, 1),
		delivered:  make(chan struct{}),
		cancel:     cancel,
		dispatched: make(chan struct{}),
	}
	go a.dispatch(ctx)
	go a.deliverEvents(ctx)

	return a, nil
}

// OnResult registers fn to be called with each result the consumer side
// observes. Handlers run on the dispatcher goroutine, in registration order;
// results may be coalesced but are never reordered.
func (a *App) OnResult(fn func(scan.FrameResult)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = append(a.handlers, fn)
}

// State returns the current capture state.
func (a *App) State() State {
	return State(a.state.Load())
}

// Device returns the selected device index.
func (a *App) Device() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.device
}

// SessionID returns the ID of the running session, or "" when none runs.
func (a *App) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return ""
	}
	return a.session.id
}

// Mailbox returns the result hand-off used by the capture goroutine.
func (a *App) Mailbox() *scan.Mailbox {
	return a.mailbox
}

// StartCapture begins opening the device and returns immediately. Any
// session or pending open is torn down first. The outcome is reported
// through OnEvent as EventStarted or EventOpenFailed.
func (a *App) StartCapture(device int) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.stopLocked()

	a.device = device
	ticket := a.opener.RequestOpen(device)
	a.ticket = ticket
	a.setState(StateOpening)
	a.emitLocked(Event{Kind: EventOpening, Device: device})
	a.mu.Unlock()

	a.logger.Info("opening camera", "device", device)
	go a.awaitOpen(ticket)
}

// StopCapture tears down the running session or pending open and returns
// once the capture goroutine has exited and the device is released. It is a
// no-op when idle.
func (a *App) StopCapture() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

// ToggleCapture stops an active capture, or starts one on the selected device.
func (a *App) ToggleCapture() {
	switch a.State() {
	case StateIdle:
		a.StartCapture(a.Device())
	default:
		a.StopCapture()
	}
}

// SwitchDevice selects a device. An active capture is restarted on it.
func (a *App) SwitchDevice(device int) {
	a.mu.Lock()
	active := a.ticket != nil || a.session != nil
	if !active {
		a.device = device
	}
	a.mu.Unlock()

	if active {
		a.StartCapture(device)
	}
}

// HandleLifecycle reacts to visibility changes of the hosting view. The
// device is released while the view is hidden.
func (a *App) HandleLifecycle(ev Lifecycle) {
	if ev == LifecycleHidden {
		a.StopCapture()
	}
}

// Close stops capture and result delivery, then releases the decoder.
// Events already queued are delivered before Close returns.
func (a *App) Close() error {
	a.mu.Lock()
	a.stopLocked()
	alreadyClosed := a.closed
	a.closed = true
	a.mu.Unlock()

	if alreadyClosed {
		return nil
	}

	a.cancel()
	<-a.dispatched
	<-a.delivered
	a.processor.Close()
	return a.decoder.Close()
}

// stopLocked abandons any pending open and joins any running session,
// queueing a stop event if there was either.
func (a *App) stopLocked() {
	var ev *Event

	if a.ticket != nil {
		a.ticket.Abandon()
		ev = &Event{Kind: EventStopped, Device: a.ticket.DeviceID()}
		a.ticket = nil
	}

	if s := a.session; s != nil {
		a.setState(StateStopping)
		s.running.Store(false)
		<-s.done
		a.session = nil
		// The device is closed; its last frame must not outlive it.
		a.mailbox.Clear()
		ev = &Event{Kind: EventStopped, Device: s.device, SessionID: s.id}
		a.logger.Info("capture stopped", "device", s.device, "session", s.id)
	}

	a.setState(StateIdle)
	if ev != nil {
		a.emitLocked(*ev)
	}
}

// awaitOpen waits for the ticket and moves to Running or back to Idle,
// unless the ticket was superseded in the meantime.
func (a *App) awaitOpen(ticket *capture.Ticket) {
	result := ticket.Wait(a.config.OpenTimeout)

	a.mu.Lock()
	if a.ticket != ticket {
		// Stopped or restarted while opening; the opener disposes of the device.
		a.mu.Unlock()
		ticket.Abandon()
		return
	}
	a.ticket = nil

	var failure error
	switch result {
	case capture.OpenPending:
		ticket.Abandon()
		failure = fmt.Errorf("camera %d: %w", ticket.DeviceID(), ErrOpenTimeout)
	case capture.OpenFailed:
		failure = ticket.Err()
	case capture.OpenSucceeded:
		cam, ok := ticket.Claim()
		if !ok {
			failure = fmt.Errorf("camera %d: %w", ticket.DeviceID(), capture.ErrCameraNotOpen)
			break
		}
		s := &session{
			id:     uuid.New().String(),
			device: ticket.DeviceID(),
			camera: cam,
			done:   make(chan struct{}),
		}
		s.running.Store(true)
		a.session = s
		a.setState(StateRunning)
		a.emitLocked(Event{Kind: EventStarted, Device: s.device, SessionID: s.id})
		go a.runCapture(s)
		a.mu.Unlock()

		a.logger.Info("capture started", "device", s.device, "session", s.id)
		return
	}

	a.setState(StateIdle)
	a.emitLocked(Event{Kind: EventOpenFailed, Device: ticket.DeviceID(), Err: failure})
	a.mu.Unlock()

	a.logger.Warn("camera open failed", "device", ticket.DeviceID(), "error", failure)
}

func (a *App) setState(s State) {
	a.state.Store(int32(s))
}

// emitLocked queues ev for delivery. Queueing under mu keeps events in the
// order of the transitions that produced them.
func (a *App) emitLocked(ev Event) {
	if a.config.OnEvent == nil {
		return
	}
	a.pending = append(a.pending, ev)
	select {
	case a.eventReady <- struct{}{}:
	default:
	}
}

// deliverEvents hands queued events to OnEvent until ctx is done, then
// delivers whatever is left.
func (a *App) deliverEvents(ctx context.Context) {
	defer close(a.delivered)
	for {
		select {
		case <-ctx.Done():
			a.flushEvents()
			return
		case <-a.eventReady:
			a.flushEvents()
		}
	}
}

func (a *App) flushEvents() {
	for {
		a.mu.Lock()
		events := a.pending
		a.pending = nil
		a.mu.Unlock()

		if len(events) == 0 {
			return
		}
		for _, ev := range events {
			a.config.OnEvent(ev)
		}
	}
}

// dispatch delivers mailbox results to the registered handlers until ctx is done.
func (a *App) dispatch(ctx context.Context) {
	defer close(a.dispatched)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.mailbox.Ready():
			r, ok := a.mailbox.Take()
			if !ok {
				continue
			}
			a.mu.Lock()
			handlers := a.handlers
			a.mu.Unlock()
			for _, h := range handlers {
				h(r)
			}
		}
	}
}
