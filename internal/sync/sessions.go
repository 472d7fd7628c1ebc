package sync

import stdsync "sync"

// SessionRegistry maps each connection to the single device it currently
// watches. A connection watches at most one device; binding a different
// device silently reassigns the watch (last write wins).
//
// Both directions are indexed: connection to device for disconnect
// cleanup, device to connections for watcher-scoped broadcasts.
//
// Thread Safety: all methods are safe for concurrent use.
type SessionRegistry struct {
	mu          stdsync.RWMutex
	connDevice  map[string]string
	deviceConns map[string]map[string]struct{}
}

// NewSessionRegistry creates an empty session registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		connDevice:  make(map[string]string),
		deviceConns: make(map[string]map[string]struct{}),
	}
}

// Bind records that a connection watches a device, displacing any previous
// watch held by the same connection.
//
// Returns the previously watched device ID ("" if none) and whether the
// registry changed. Binding the device already watched is a no-op.
func (r *SessionRegistry) Bind(connID, deviceID string) (previous string, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous = r.connDevice[connID]
	if previous == deviceID {
		return "", false
	}

	if previous != "" {
		r.dropWatcherLocked(connID, previous)
	}

	r.connDevice[connID] = deviceID
	conns, ok := r.deviceConns[deviceID]
	if !ok {
		conns = make(map[string]struct{})
		r.deviceConns[deviceID] = conns
	}
	conns[connID] = struct{}{}
	return previous, true
}

func (r *SessionRegistry) dropWatcherLocked(connID, deviceID string) {
	if conns, ok := r.deviceConns[deviceID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.deviceConns, deviceID)
		}
	}
}

// Device returns the device ID the connection currently watches.
func (r *SessionRegistry) Device(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	deviceID, ok := r.connDevice[connID]
	return deviceID, ok
}

// Watchers returns the connection IDs watching a device.
func (r *SessionRegistry) Watchers(deviceID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.deviceConns[deviceID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// RemoveConnection drops the connection's watch and returns the device ID
// that was watched ("" if none). Used on disconnect.
func (r *SessionRegistry) RemoveConnection(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deviceID, ok := r.connDevice[connID]
	if !ok {
		return "", false
	}
	delete(r.connDevice, connID)
	r.dropWatcherLocked(connID, deviceID)
	return deviceID, true
}

// Len returns the number of connections with an active watch.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connDevice)
}
