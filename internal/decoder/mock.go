package decoder

import (
	"image"
	"sync"
)

// MockDecoder is a test implementation of the Decoder interface.
// It allows tests to control the decode results.
type MockDecoder struct {
	mu         sync.Mutex
	detections []Detection
	err        error
	panicMsg   string
	calls      int
}

// NewMockDecoder creates a new MockDecoder instance.
func NewMockDecoder() *MockDecoder {
	return &MockDecoder{}
}

// SetDetections sets the detections that will be returned by Decode.
func (m *MockDecoder) SetDetections(detections []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections = detections
}

// SetError sets the error that will be returned by Decode.
func (m *MockDecoder) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetPanic makes Decode panic with the given message.
func (m *MockDecoder) SetPanic(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
}

// Calls returns the number of Decode calls so far.
func (m *MockDecoder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Decode returns the pre-configured detections or error.
func (m *MockDecoder) Decode(img image.Image) ([]Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.detections, nil
}

// Close is a no-op for the mock decoder.
func (m *MockDecoder) Close() error {
	return nil
}

// SequenceDecoder returns a scripted result per Decode call, in order.
// Calls past the end of the script find nothing.
type SequenceDecoder struct {
	mu     sync.Mutex
	script [][]Detection
	next   int
}

// NewSequenceDecoder creates a decoder that plays back script.
func NewSequenceDecoder(script ...[]Detection) *SequenceDecoder {
	return &SequenceDecoder{script: script}
}

// Decode returns the next scripted result.
func (s *SequenceDecoder) Decode(img image.Image) ([]Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.script) {
		s.next++
		return nil, nil
	}
	d := s.script[s.next]
	s.next++
	return d, nil
}

// Calls returns the number of Decode calls so far.
func (s *SequenceDecoder) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Close is a no-op for the sequence decoder.
func (s *SequenceDecoder) Close() error {
	return nil
}

// Found is a convenience for building a single-detection script entry.
func Found(format Format, content string) []Detection {
	return []Detection{{Format: format, Content: content}}
}
