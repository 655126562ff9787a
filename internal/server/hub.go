package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/ayusman/codescan/internal/scan"
)

// clientBuffer is the number of result messages queued per feed client.
const clientBuffer = 32

// Hub fans scan results out to preview streams and result feed clients.
// It keeps only the latest frame; slow clients skip frames.
type Hub struct {
	logger  *slog.Logger
	session func() string

	mu      sync.Mutex
	latest  scan.FrameResult
	has     bool
	changed chan struct{}
	clients map[*feedClient]struct{}
	viewers int
	closed  bool
	done    chan struct{}
}

type feedClient struct {
	send chan []byte
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		logger:  logger,
		changed: make(chan struct{}),
		clients: make(map[*feedClient]struct{}),
		done:    make(chan struct{}),
	}
}

// Publish records r as the latest result and queues its metadata for every
// feed client. It never blocks.
func (h *Hub) Publish(r scan.FrameResult) {
	msg, err := json.Marshal(r)
	if err != nil {
		h.logger.Warn("failed to encode result", "seq", r.Seq, "error", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.latest = r
	h.has = true
	close(h.changed)
	h.changed = make(chan struct{})

	if msg == nil {
		return
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("result feed client lagging, dropping result", "seq", r.Seq)
		}
	}
}

// TrackSession makes Latest hide results whose session differs from the one
// current reports. It must be called before the hub is used.
func (h *Hub) TrackSession(current func() string) {
	h.session = current
}

// Latest returns the latest result, whether there is one, and a channel
// closed on the next publish. A result left over from an ended session
// counts as none.
func (h *Hub) Latest() (scan.FrameResult, bool, <-chan struct{}) {
	h.mu.Lock()
	latest, has, changed := h.latest, h.has, h.changed
	h.mu.Unlock()

	if has && h.session != nil && latest.SessionID != h.session() {
		return scan.FrameResult{}, false, changed
	}
	return latest, has, changed
}

// Done is closed when the hub shuts down.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Close disconnects every feed client and ends preview streams.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) subscribe() (*feedClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &feedClient{send: make(chan []byte, clientBuffer)}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unsubscribe(c *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients returns the number of connected result feed clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Viewers returns the number of connected preview streams.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.viewers
}

func (h *Hub) addViewer() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.viewers++
}

// removeViewer returns the number of viewers left.
func (h *Hub) removeViewer() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.viewers > 0 {
		h.viewers--
	}
	return h.viewers
}
