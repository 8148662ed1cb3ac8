package log

import "sync"

// MemoryLogger keeps events in memory. Intended for tests and the
// interactive console's recent-traffic view.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewMemoryLogger creates a MemoryLogger that keeps at most limit events
// (oldest dropped first). limit <= 0 keeps everything.
func NewMemoryLogger(limit int) *MemoryLogger {
	return &MemoryLogger{limit: limit}
}

// Log appends the event.
func (m *MemoryLogger) Log(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	if m.limit > 0 && len(m.events) > m.limit {
		m.events = m.events[len(m.events)-m.limit:]
	}
}

// Events returns a copy of the recorded events.
func (m *MemoryLogger) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Filter returns the recorded events matching f.
func (m *MemoryLogger) Filter(f Filter) []Event {
	var out []Event
	for _, ev := range m.Events() {
		if f.matches(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Reset discards all recorded events.
func (m *MemoryLogger) Reset() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}

var _ Logger = (*MemoryLogger)(nil)
