package adapters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/oklog/ulid/v2"
)

var eventKeyPrefix = []byte("evt/")

const badgerReadBatchSize = 1000

// BadgerStorageAdapter persists events in an embedded BadgerDB. Each event is
// keyed by a monotonic ULID so iteration order equals write order.
type BadgerStorageAdapter struct {
	db  *badger.DB
	ids *ulidSource

	mu       sync.Mutex
	boundary []byte
}

var _ StorageAdapter = (*BadgerStorageAdapter)(nil)

// NewBadgerStorageAdapter opens or creates a database at path.
func NewBadgerStorageAdapter(path string) (*BadgerStorageAdapter, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	return openBadger(opts)
}

// NewInMemoryBadgerStorageAdapter creates a non-persistent database, mostly for tests.
func NewInMemoryBadgerStorageAdapter() (*BadgerStorageAdapter, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerStorageAdapter, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStorageAdapter{db: db, ids: newULIDSource()}, nil
}

// Write stores the event under a fresh key.
func (b *BadgerStorageAdapter) Write(event *Event) error {
	data, err := json.Marshal(newStoredEvent(event))
	if err != nil {
		return err
	}
	key := encodeEventKey(b.ids.Now())
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// Rollover closes the current batch: every event written so far becomes
// readable by the next ReadEvents.
func (b *BadgerStorageAdapter) Rollover() error {
	boundary := encodeEventKey(b.ids.Now())

	b.mu.Lock()
	defer b.mu.Unlock()
	b.boundary = boundary
	return nil
}

// ReadEvents returns and deletes all events written before the last rollover,
// in batches of at most badgerReadBatchSize events. Keys are deleted through
// a write batch so a large backlog does not exceed the transaction limit.
func (b *BadgerStorageAdapter) ReadEvents() ([][]*Event, error) {
	b.mu.Lock()
	boundary := b.boundary
	b.mu.Unlock()

	if boundary == nil {
		return nil, nil
	}

	var (
		batches [][]*Event
		batch   []*Event
		keys    [][]byte
	)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, Prefix: eventKeyPrefix})
		defer it.Close()

		for it.Seek(eventKeyPrefix); it.ValidForPrefix(eventKeyPrefix); it.Next() {
			item := it.Item()
			if bytes.Compare(item.Key(), boundary) >= 0 {
				break
			}
			var stored storedEvent
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return err
			}
			keys = append(keys, item.KeyCopy(nil))
			if e := stored.restore(); e != nil {
				batch = append(batch, e)
			}
			if len(batch) == badgerReadBatchSize {
				batches = append(batches, batch)
				batch = nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(batch) > 0 {
		batches = append(batches, batch)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return nil, fmt.Errorf("failed to delete read events: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return nil, fmt.Errorf("failed to delete read events: %w", err)
	}
	return batches, nil
}

// Close closes the database.
func (b *BadgerStorageAdapter) Close() error {
	return b.db.Close()
}

func encodeEventKey(id ulid.ULID) []byte {
	key := make([]byte, 0, len(eventKeyPrefix)+len(id))
	key = append(key, eventKeyPrefix...)
	return append(key, id[:]...)
}
