package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Storage persists the user and device id of one instance.
type Storage interface {
	Load() (Identity, error)
	SaveUserID(userID string) error
	SaveDeviceID(deviceID string) error
	Delete() error
}

// MemoryStorage keeps ids in memory. Useful for tests and short-lived processes.
type MemoryStorage struct {
	mu       sync.Mutex
	userID   string
	deviceID string
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Load() (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Identity{UserID: s.userID, DeviceID: s.deviceID}, nil
}

func (s *MemoryStorage) SaveUserID(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	return nil
}

func (s *MemoryStorage) SaveDeviceID(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceID = deviceID
	return nil
}

func (s *MemoryStorage) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID, s.deviceID = "", ""
	return nil
}

const (
	DefaultFilePrefix = "ripple-identity"

	apiKeyKey   = "api_key"
	userIDKey   = "user_id"
	deviceIDKey = "device_id"
)

// FileStorage persists ids as a flat YAML key-value file named
// <prefix>-<instance>.yaml. The stored api key binds the file to one project;
// loading with a different key clears it.
type FileStorage struct {
	mu     sync.Mutex
	path   string
	apiKey string
}

var _ Storage = (*FileStorage)(nil)

// NewFileStorage creates the storage directory if needed.
func NewFileStorage(dir, prefix, instanceName, apiKey string) (*FileStorage, error) {
	if prefix == "" {
		prefix = DefaultFilePrefix
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create identity dir: %w", err)
	}
	return &FileStorage{
		path:   filepath.Join(dir, fmt.Sprintf("%s-%s.yaml", prefix, instanceName)),
		apiKey: apiKey,
	}, nil
}

// Path returns the backing file path.
func (s *FileStorage) Path() string {
	return s.path
}

func (s *FileStorage) Load() (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return Identity{}, err
	}
	if stored, ok := values[apiKeyKey]; ok && s.apiKey != "" && stored != s.apiKey {
		if err := s.removeFile(); err != nil {
			return Identity{}, err
		}
		return Identity{}, nil
	}
	return Identity{UserID: values[userIDKey], DeviceID: values[deviceIDKey]}, nil
}

func (s *FileStorage) SaveUserID(userID string) error {
	return s.put(userIDKey, userID)
}

func (s *FileStorage) SaveDeviceID(deviceID string) error {
	return s.put(deviceIDKey, deviceID)
}

func (s *FileStorage) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeFile()
}

func (s *FileStorage) put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	if s.apiKey != "" {
		values[apiKeyKey] = s.apiKey
	}
	if value == "" {
		delete(values, key)
	} else {
		values[key] = value
	}

	data, err := yaml.Marshal(values)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStorage) read() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	return values, nil
}

func (s *FileStorage) removeFile() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
