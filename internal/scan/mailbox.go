package scan

import "sync"

// Mailbox is a single-slot hand-off from the capture goroutine to a consumer.
// The latest published result wins: a slow consumer skips intermediate
// results but never sees them out of order or twice.
type Mailbox struct {
	mu     sync.Mutex
	latest FrameResult
	has    bool
	seq    uint64
	taken  uint64
	ready  chan struct{}
}

// NewMailbox creates an empty Mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{ready: make(chan struct{}, 1)}
}

// Publish stores r as the latest result, stamping it with the next sequence
// number, and signals the consumer. It never blocks.
func (m *Mailbox) Publish(r FrameResult) uint64 {
	m.mu.Lock()
	m.seq++
	r.Seq = m.seq
	m.latest = r
	m.has = true
	seq := m.seq
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return seq
}

// Ready receives a value after one or more publishes since the last receive.
func (m *Mailbox) Ready() <-chan struct{} {
	return m.ready
}

// Take returns the latest result if it has not been taken before.
func (m *Mailbox) Take() (FrameResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.has || m.seq == m.taken {
		return FrameResult{}, false
	}
	m.taken = m.seq
	return m.latest, true
}

// Latest returns the most recent result without consuming it.
func (m *Mailbox) Latest() (FrameResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.has {
		return FrameResult{}, false
	}
	return m.latest, true
}

// Clear empties the slot. A result not yet taken is dropped. Sequence
// numbers keep increasing across a Clear.
func (m *Mailbox) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = FrameResult{}
	m.has = false
	m.taken = m.seq
}

// Published returns the number of results published so far.
func (m *Mailbox) Published() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}
