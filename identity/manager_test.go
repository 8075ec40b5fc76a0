package identity

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu        sync.Mutex
	userIDs   []string
	deviceIDs []string
	changes   []UpdateType
	last      Identity
}

func (l *recordingListener) OnUserIDChange(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.userIDs = append(l.userIDs, userID)
}

func (l *recordingListener) OnDeviceIDChange(deviceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deviceIDs = append(l.deviceIDs, deviceID)
}

func (l *recordingListener) OnIdentityChanged(identity Identity, updateType UpdateType) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, updateType)
	l.last = identity
}

type countingStorage struct {
	MemoryStorage
	userSaves   int
	deviceSaves int
	failUser    bool
}

func (s *countingStorage) SaveUserID(userID string) error {
	s.userSaves++
	if s.failUser {
		return errors.New("disk full")
	}
	return s.MemoryStorage.SaveUserID(userID)
}

func (s *countingStorage) SaveDeviceID(deviceID string) error {
	s.deviceSaves++
	return s.MemoryStorage.SaveDeviceID(deviceID)
}

func TestManager_EditIdentity(t *testing.T) {
	t.Run("should commit user and device id", func(t *testing.T) {
		m := NewManager(nil)
		require.NoError(t, m.Load())

		require.NoError(t, m.EditIdentity().SetUserID("u").SetDeviceID("d").Commit())

		got := m.Identity()
		assert.True(t, got.Equal(Identity{UserID: "u", DeviceID: "d"}))
	})

	t.Run("should seed editor with current ids only", func(t *testing.T) {
		m := NewManager(nil)
		require.NoError(t, m.SetIdentity(Identity{UserID: "u", DeviceID: "d", UserProperties: map[string]any{"plan": "pro"}}, UpdateUpdated))

		require.NoError(t, m.EditIdentity().SetUserID("u2").Commit())

		got := m.Identity()
		assert.Equal(t, "u2", got.UserID)
		assert.Equal(t, "d", got.DeviceID)
		assert.Empty(t, got.UserProperties)
	})
}

func TestManager_SetIdentity(t *testing.T) {
	t.Run("should notify once for identical values", func(t *testing.T) {
		m := NewManager(nil)
		l := &recordingListener{}
		m.AddListener(l)

		id := Identity{UserID: "u", DeviceID: "d", UserProperties: map[string]any{"a": 1}}
		require.NoError(t, m.SetIdentity(id, UpdateUpdated))
		require.NoError(t, m.SetIdentity(id, UpdateUpdated))

		assert.Equal(t, []UpdateType{UpdateUpdated}, l.changes)
		assert.Equal(t, []string{"u"}, l.userIDs)
		assert.Equal(t, []string{"d"}, l.deviceIDs)
	})

	t.Run("should announce initialization exactly once", func(t *testing.T) {
		storage := &countingStorage{}
		m := NewManager(storage)
		l := &recordingListener{}
		m.AddListener(l)

		require.NoError(t, m.Load())
		require.NoError(t, m.Load())

		assert.True(t, m.IsInitialized())
		assert.Equal(t, []UpdateType{UpdateInitialized}, l.changes)
		assert.Zero(t, storage.userSaves+storage.deviceSaves, "initial load must not write back")
	})

	t.Run("should persist only changed ids", func(t *testing.T) {
		storage := &countingStorage{}
		m := NewManager(storage)
		require.NoError(t, m.Load())

		require.NoError(t, m.SetIdentity(Identity{UserID: "u", DeviceID: "d"}, UpdateUpdated))
		require.NoError(t, m.SetIdentity(Identity{UserID: "u2", DeviceID: "d"}, UpdateUpdated))
		require.NoError(t, m.SetIdentity(Identity{UserID: "u2", DeviceID: "d", UserProperties: map[string]any{"x": true}}, UpdateUpdated))

		assert.Equal(t, 2, storage.userSaves)
		assert.Equal(t, 1, storage.deviceSaves)

		stored, _ := storage.Load()
		assert.Equal(t, "u2", stored.UserID)
	})

	t.Run("should still notify when persistence fails", func(t *testing.T) {
		storage := &countingStorage{failUser: true}
		m := NewManager(storage)
		l := &recordingListener{}
		m.AddListener(l)

		err := m.SetIdentity(Identity{UserID: "u"}, UpdateUpdated)
		require.Error(t, err)
		assert.Len(t, l.changes, 1)
		assert.Equal(t, "u", m.Identity().UserID)
	})

	t.Run("should isolate snapshot from caller mutation", func(t *testing.T) {
		m := NewManager(nil)
		props := map[string]any{"k": "v"}
		require.NoError(t, m.SetIdentity(Identity{UserID: "u", UserProperties: props}, UpdateUpdated))
		props["k"] = "changed"

		assert.Equal(t, "v", m.Identity().UserProperties["k"])
	})

	t.Run("should let listeners read identity during notification", func(t *testing.T) {
		m := NewManager(nil)
		var seen string
		m.AddListener(&ListenerFuncs{IdentityChanged: func(Identity, UpdateType) {
			seen = m.Identity().UserID
		}})

		require.NoError(t, m.SetIdentity(Identity{UserID: "reentrant"}, UpdateUpdated))
		assert.Equal(t, "reentrant", seen)
	})
}

func TestManager_Listeners(t *testing.T) {
	t.Run("should stop notifying removed listeners", func(t *testing.T) {
		m := NewManager(nil)
		l := &recordingListener{}
		m.AddListener(l)
		m.AddListener(l)
		require.NoError(t, m.SetIdentity(Identity{UserID: "a"}, UpdateUpdated))

		m.RemoveListener(l)
		require.NoError(t, m.SetIdentity(Identity{UserID: "b"}, UpdateUpdated))

		assert.Equal(t, []string{"a"}, l.userIDs)
	})

	t.Run("should allow removal during notification", func(t *testing.T) {
		m := NewManager(nil)
		var self *ListenerFuncs
		calls := 0
		self = &ListenerFuncs{IdentityChanged: func(Identity, UpdateType) {
			calls++
			m.RemoveListener(self)
		}}
		m.AddListener(self)

		require.NoError(t, m.SetIdentity(Identity{UserID: "a"}, UpdateUpdated))
		require.NoError(t, m.SetIdentity(Identity{UserID: "b"}, UpdateUpdated))
		assert.Equal(t, 1, calls)
	})
}

func TestManager_ConcurrentWriters(t *testing.T) {
	storage := NewMemoryStorage()
	m := NewManager(storage)
	require.NoError(t, m.Load())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			ids := []string{"alpha", "beta"}
			m.SetIdentity(Identity{UserID: ids[i%2], DeviceID: "d"}, UpdateUpdated)
			_ = m.Identity()
		})
	}
	wg.Wait()

	stored, _ := storage.Load()
	assert.Equal(t, m.Identity().UserID, stored.UserID, "storage must converge on the in-memory identity")
}
