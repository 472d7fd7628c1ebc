package device

import "sync"

// StateCache is the in-memory authoritative store for connected devices.
//
// Each entry holds the last committed channel state plus a watcher count.
// Watchers are connections interested in the device (the hardware session
// itself and any controlling clients). An entry is evicted only when its
// watcher count drops to zero, so one client disconnecting never discards
// state another connection still relies on.
//
// Thread Safety: all methods are safe for concurrent use. States are
// cloned on the way in and out, so callers can never mutate a cached
// entry through a shared map reference.
type StateCache struct {
	mu       sync.RWMutex
	states   map[string]State
	watchers map[string]int
}

// NewStateCache creates an empty state cache.
func NewStateCache() *StateCache {
	return &StateCache{
		states:   make(map[string]State),
		watchers: make(map[string]int),
	}
}

// Get returns a copy of the cached state for a device.
// The second return value reports whether the device was cached.
func (c *StateCache) Get(deviceID string) (State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.states[deviceID]
	if !ok {
		return nil, false
	}
	return state.Clone(), true
}

// Set unconditionally replaces the cached state for a device.
// The state is cloned, so the caller's map stays independent.
func (c *StateCache) Set(deviceID string, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[deviceID] = state.Clone()
}

// Delete removes the cached state for a device regardless of watchers.
// Used when a device record is removed entirely.
func (c *StateCache) Delete(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, deviceID)
	delete(c.watchers, deviceID)
}

// Retain records a new watcher for a device and returns the new count.
func (c *StateCache) Retain(deviceID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers[deviceID]++
	return c.watchers[deviceID]
}

// Release removes a watcher for a device. When the last watcher is
// released the cached state is evicted and Release returns true.
// Releasing a device with no watchers is a no-op.
func (c *StateCache) Release(deviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	count, ok := c.watchers[deviceID]
	if !ok {
		return false
	}
	if count > 1 {
		c.watchers[deviceID] = count - 1
		return false
	}

	delete(c.watchers, deviceID)
	delete(c.states, deviceID)
	return true
}

// Watchers returns the current watcher count for a device.
func (c *StateCache) Watchers(deviceID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watchers[deviceID]
}

// Len returns the number of cached device states.
func (c *StateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.states)
}
