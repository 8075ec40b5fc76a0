// Package identity owns the user and device identifiers stamped on every event
// of one SDK instance.
package identity

import (
	"maps"
	"reflect"
)

// Identity is an immutable snapshot of the current end user.
type Identity struct {
	UserID         string
	DeviceID       string
	UserProperties map[string]any
}

// Equal compares ids and user properties. A nil and an empty property map are equal.
func (i Identity) Equal(other Identity) bool {
	if i.UserID != other.UserID || i.DeviceID != other.DeviceID {
		return false
	}
	if len(i.UserProperties) == 0 && len(other.UserProperties) == 0 {
		return true
	}
	return reflect.DeepEqual(i.UserProperties, other.UserProperties)
}

func (i Identity) clone() Identity {
	i.UserProperties = maps.Clone(i.UserProperties)
	return i
}

// UpdateType distinguishes the first load from later changes.
type UpdateType int

const (
	UpdateInitialized UpdateType = iota
	UpdateUpdated
)

func (u UpdateType) String() string {
	if u == UpdateInitialized {
		return "initialized"
	}
	return "updated"
}

// Listener observes identity changes. Callbacks run outside the manager's
// locks, so a listener may read the identity back.
type Listener interface {
	OnUserIDChange(userID string)
	OnDeviceIDChange(deviceID string)
	OnIdentityChanged(identity Identity, updateType UpdateType)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	UserIDChange    func(userID string)
	DeviceIDChange  func(deviceID string)
	IdentityChanged func(identity Identity, updateType UpdateType)
}

func (f *ListenerFuncs) OnUserIDChange(userID string) {
	if f.UserIDChange != nil {
		f.UserIDChange(userID)
	}
}

func (f *ListenerFuncs) OnDeviceIDChange(deviceID string) {
	if f.DeviceIDChange != nil {
		f.DeviceIDChange(deviceID)
	}
}

func (f *ListenerFuncs) OnIdentityChanged(identity Identity, updateType UpdateType) {
	if f.IdentityChanged != nil {
		f.IdentityChanged(identity, updateType)
	}
}
