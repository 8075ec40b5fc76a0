package adapters

import "sync"

// MemoryStorageAdapter buffers events in process memory.
// Useful for scenarios where event persistence across restarts is not required.
type MemoryStorageAdapter struct {
	mu        sync.Mutex
	current   []*Event
	batches   [][]*Event
	size      int
	maxEvents int
}

var _ StorageAdapter = (*MemoryStorageAdapter)(nil)

// NewMemoryStorageAdapter creates a new MemoryStorageAdapter instance.
// A maxEvents of zero means unbounded.
func NewMemoryStorageAdapter(maxEvents int) *MemoryStorageAdapter {
	return &MemoryStorageAdapter{maxEvents: maxEvents}
}

// Write stores a copy of the event in the current batch.
func (m *MemoryStorageAdapter) Write(event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxEvents > 0 && m.size >= m.maxEvents {
		return &StorageQuotaExceededError{}
	}
	m.current = append(m.current, event.Clone())
	m.size++
	return nil
}

// Rollover closes the current batch.
func (m *MemoryStorageAdapter) Rollover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.current) == 0 {
		return nil
	}
	m.batches = append(m.batches, m.current)
	m.current = nil
	return nil
}

// ReadEvents returns and removes all closed batches.
func (m *MemoryStorageAdapter) ReadEvents() ([][]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batches := m.batches
	m.batches = nil
	for _, b := range batches {
		m.size -= len(b)
	}
	return batches, nil
}

// Len returns the number of buffered events, closed or not.
func (m *MemoryStorageAdapter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Close does nothing and always returns nil.
func (m *MemoryStorageAdapter) Close() error {
	return nil
}
