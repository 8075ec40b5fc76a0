package adapters

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	currentFileName   = "current.jsonl"
	batchFileSuffix   = ".batch.jsonl"
	corruptFileSuffix = ".corrupt"
)

// FileStorageAdapter is the default durable storage adapter implementation
// using the file system. The current batch is appended to one JSON-lines file;
// Rollover renames it to a batch file named by a monotonic ULID.
type FileStorageAdapter struct {
	mu   sync.Mutex
	dir  string
	ids  *ulidSource
	file *os.File
}

// Ensure FileStorageAdapter implements StorageAdapter interface
var _ StorageAdapter = (*FileStorageAdapter)(nil)

// NewFileStorageAdapter creates a new FileStorageAdapter instance.
// Events left in dir by a previous process are picked up on the next read.
//
// Parameters:
//   - dir: Directory where event batches will be stored
func NewFileStorageAdapter(dir string) (*FileStorageAdapter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &FileStorageAdapter{dir: dir, ids: newULIDSource()}, nil
}

// Write appends the event to the current batch file.
func (f *FileStorageAdapter) Write(event *Event) error {
	data, err := json.Marshal(newStoredEvent(event))
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		file, err := os.OpenFile(f.currentPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		f.file = file
	}
	_, err = f.file.Write(append(data, '\n'))
	return err
}

// Rollover closes the current batch file and renames it into a batch file.
func (f *FileStorageAdapter) Rollover() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file != nil {
		if err := f.file.Close(); err != nil {
			return err
		}
		f.file = nil
	}

	info, err := os.Stat(f.currentPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() == 0 {
		return os.Remove(f.currentPath())
	}
	return os.Rename(f.currentPath(), filepath.Join(f.dir, f.ids.Now().String()+batchFileSuffix))
}

// ReadEvents returns and removes all batch files, oldest first. A file that
// cannot be read is renamed with a .corrupt suffix and skipped; the returned
// error reports it alongside the batches that were read.
func (f *FileStorageAdapter) ReadEvents() ([][]*Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), batchFileSuffix) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var errs []error
	batches := make([][]*Event, 0, len(names))
	for _, name := range names {
		path := filepath.Join(f.dir, name)
		batch, err := readBatchFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to read %s: %w", name, err))
			if err := os.Rename(path, path+corruptFileSuffix); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		// a batch that cannot be removed is left for the next read
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			continue
		}
		if len(batch) > 0 {
			batches = append(batches, batch)
		}
	}
	return batches, errors.Join(errs...)
}

// Close closes the current batch file. Its events stay on disk.
func (f *FileStorageAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

func (f *FileStorageAdapter) currentPath() string {
	return filepath.Join(f.dir, currentFileName)
}

func readBatchFile(path string) ([]*Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []*Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var stored storedEvent
		if err := json.Unmarshal(line, &stored); err != nil {
			// a torn write leaves at most one broken trailing line
			continue
		}
		if e := stored.restore(); e != nil {
			events = append(events, e)
		}
	}
	return events, scanner.Err()
}
