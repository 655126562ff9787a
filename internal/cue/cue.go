// Package cue signals the user when a new code has been scanned.
package cue

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// Scan describes one distinct decode. Device and SessionID identify the
// capture session the code was seen in.
type Scan struct {
	Type      string
	Content   string
	Device    int
	SessionID string
	At        time.Time
}

// Cue is notified once per distinct successful decode. Implementations must
// return quickly; wrap slow ones in Async.
type Cue interface {
	Signal(s Scan)
}

// Func adapts an ordinary function to the Cue interface.
type Func func(s Scan)

// Signal calls f(s).
func (f Func) Signal(s Scan) {
	f(s)
}

// Multi fans a signal out to several cues in order.
type Multi []Cue

// Signal forwards to every non-nil cue.
func (m Multi) Signal(s Scan) {
	for _, c := range m {
		if c != nil {
			c.Signal(s)
		}
	}
}

// Bell writes the terminal bell character on every signal.
type Bell struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

// NewBell creates a Bell writing to w. Write failures are logged to logger;
// a nil logger discards them.
func NewBell(w io.Writer, logger *slog.Logger) *Bell {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bell{w: w, logger: logger}
}

// Signal rings the bell.
func (b *Bell) Signal(s Scan) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.w.Write([]byte{'\a'}); err != nil {
		b.logger.Warn("failed to ring bell", "type", s.Type, "error", err)
	}
}

// Nop ignores every signal.
type Nop struct{}

// Signal does nothing.
func (Nop) Signal(Scan) {}

// DefaultQueueSize is the number of pending signals Async buffers.
const DefaultQueueSize = 16

// Async delivers signals to a wrapped cue on its own goroutine, so the caller
// never blocks. Signals arriving while the queue is full are dropped.
type Async struct {
	next   Cue
	logger *slog.Logger
	queue  chan Scan
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// NewAsync starts a worker delivering to next. Close stops it.
func NewAsync(next Cue, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &Async{
		next:   next,
		logger: logger,
		queue:  make(chan Scan, size),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Signal queues the signal for delivery.
func (a *Async) Signal(s Scan) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- s:
	default:
		a.logger.Warn("cue queue full, dropping signal", "type", s.Type, "session", s.SessionID)
	}
}

// Close stops accepting signals, delivers those already queued and waits
// for the worker to exit.
func (a *Async) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.done
}

func (a *Async) run() {
	defer close(a.done)
	for s := range a.queue {
		a.next.Signal(s)
	}
}
