package adapters

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// StorageAdapter is an interface for event buffering.
// Implement this interface to use custom storage backends (database, Redis, S3, etc.).
//
// Events are written into a current batch. Rollover closes the current batch
// and ReadEvents returns every closed batch, oldest first, removing them from
// storage in the same step.
type StorageAdapter interface {
	// Write appends an event to the current batch.
	Write(event *Event) error

	// Rollover closes the current batch. It is a no-op when the batch is empty.
	Rollover() error

	// ReadEvents returns and removes all closed batches. It may return the
	// batches it could read together with an error for the rest.
	ReadEvents() ([][]*Event, error)

	// Close releases resources held by the adapter.
	Close() error
}

// StorageQuotaExceededError is returned by Write when the adapter is full.
type StorageQuotaExceededError struct {
	Message string
}

func (e *StorageQuotaExceededError) Error() string {
	if e.Message == "" {
		return "storage quota exceeded"
	}
	return e.Message
}

// storedEvent is the persisted form of an event. Attempts is not part of the
// wire format but must survive a round trip through storage.
type storedEvent struct {
	Event    *Event `json:"event"`
	Attempts int    `json:"attempts,omitempty"`
}

func newStoredEvent(e *Event) storedEvent {
	return storedEvent{Event: e, Attempts: e.Attempts}
}

func (s storedEvent) restore() *Event {
	if s.Event == nil {
		return nil
	}
	s.Event.Attempts = s.Attempts
	return s.Event
}

// ulidSource provides monotonic ULIDs so keys and file names sort in write order.
type ulidSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newULIDSource() *ulidSource {
	return &ulidSource{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (s *ulidSource) Now() ulid.ULID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy)
}
