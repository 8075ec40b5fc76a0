package identity

import (
	"errors"
	"maps"
	"slices"
	"sync"
)

// Manager is the single source of truth for an instance's identity.
type Manager struct {
	storage Storage

	mu          sync.RWMutex
	identity    Identity
	initialized bool

	// persistMu serializes storage writes; persisted tracks what storage holds.
	persistMu sync.Mutex
	persisted Identity

	listenersMu sync.Mutex
	listeners   []Listener
}

// NewManager creates an uninitialized manager backed by storage.
// A nil storage keeps the identity in memory only.
func NewManager(storage Storage) *Manager {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &Manager{storage: storage}
}

// Load reads the persisted identity and publishes it as the initial value.
func (m *Manager) Load() error {
	id, err := m.storage.Load()
	if err != nil {
		return err
	}
	m.persistMu.Lock()
	m.persisted = Identity{UserID: id.UserID, DeviceID: id.DeviceID}
	m.persistMu.Unlock()

	return m.SetIdentity(id, UpdateInitialized)
}

// Identity returns the current snapshot.
func (m *Manager) Identity() Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity.clone()
}

// IsInitialized reports whether an initial identity has been published.
func (m *Manager) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// SetIdentity replaces the identity. An identical value is a no-op, except
// for the first initialization which is always announced. Changed ids are
// persisted before listeners are notified.
func (m *Manager) SetIdentity(id Identity, updateType UpdateType) error {
	id = id.clone()

	m.mu.Lock()
	if updateType == UpdateInitialized && m.initialized {
		updateType = UpdateUpdated
	}
	previous := m.identity
	if updateType == UpdateUpdated && previous.Equal(id) {
		m.mu.Unlock()
		return nil
	}
	m.identity = id
	if updateType == UpdateInitialized {
		m.initialized = true
	}
	m.mu.Unlock()

	var err error
	if updateType == UpdateUpdated {
		err = m.persist()
	}

	userIDChanged := previous.UserID != id.UserID
	deviceIDChanged := previous.DeviceID != id.DeviceID
	for _, l := range m.snapshotListeners() {
		if userIDChanged {
			l.OnUserIDChange(id.UserID)
		}
		if deviceIDChanged {
			l.OnDeviceIDChange(id.DeviceID)
		}
		l.OnIdentityChanged(id.clone(), updateType)
	}
	return err
}

// persist writes the ids of the latest identity that differ from storage.
// Reading the latest value under persistMu keeps storage converging on the
// in-memory identity when writers race.
func (m *Manager) persist() error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	current := m.Identity()
	var errs []error
	if current.UserID != m.persisted.UserID {
		if err := m.storage.SaveUserID(current.UserID); err != nil {
			errs = append(errs, err)
		} else {
			m.persisted.UserID = current.UserID
		}
	}
	if current.DeviceID != m.persisted.DeviceID {
		if err := m.storage.SaveDeviceID(current.DeviceID); err != nil {
			errs = append(errs, err)
		} else {
			m.persisted.DeviceID = current.DeviceID
		}
	}
	return errors.Join(errs...)
}

// AddListener registers l. Adding the same listener twice has no effect.
func (m *Manager) AddListener(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	if slices.Contains(m.listeners, l) {
		return
	}
	m.listeners = append(m.listeners, l)
}

// RemoveListener unregisters l.
func (m *Manager) RemoveListener(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = slices.DeleteFunc(slices.Clone(m.listeners), func(other Listener) bool {
		return other == l
	})
}

func (m *Manager) snapshotListeners() []Listener {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	return slices.Clone(m.listeners)
}

// EditIdentity returns an editor seeded with the current user and device id.
// User properties are not carried over; set them explicitly to keep them.
func (m *Manager) EditIdentity() *Editor {
	current := m.Identity()
	return &Editor{
		manager:  m,
		userID:   current.UserID,
		deviceID: current.DeviceID,
	}
}

// Editor builds a replacement identity and commits it atomically.
type Editor struct {
	manager        *Manager
	userID         string
	deviceID       string
	userProperties map[string]any
}

func (e *Editor) SetUserID(userID string) *Editor {
	e.userID = userID
	return e
}

func (e *Editor) SetDeviceID(deviceID string) *Editor {
	e.deviceID = deviceID
	return e
}

func (e *Editor) SetUserProperties(props map[string]any) *Editor {
	e.userProperties = maps.Clone(props)
	return e
}

// Commit publishes the edited identity as an update.
func (e *Editor) Commit() error {
	return e.manager.SetIdentity(Identity{
		UserID:         e.userID,
		DeviceID:       e.deviceID,
		UserProperties: e.userProperties,
	}, UpdateUpdated)
}
