package journal

import "sync"

// Memory is an in-memory journal, mainly for tests.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

var _ Journal = (*Memory)(nil)

// NewMemory creates an empty in-memory journal.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *Memory) Close() error { return nil }

// Entries returns a copy of everything recorded so far.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// CountByKind returns how many entries of the given kind were recorded.
func (m *Memory) CountByKind(k Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Kind == k {
			n++
		}
	}
	return n
}
