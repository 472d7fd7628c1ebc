package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"

	"github.com/switchsync/switchsync-core/internal/device"
	"github.com/switchsync/switchsync-core/internal/infrastructure/config"
)

// StateUpdate is the payload delivered to connections after reconciliation.
// State always carries the authoritative (cached or committed) state.
type StateUpdate struct {
	DeviceID string       `json:"device_id"`
	State    device.State `json:"state"`
}

// Broadcaster delivers state updates to connected clients.
//
// Implementations must not block: slow consumers are the broadcaster's
// problem, not the engine's.
type Broadcaster interface {
	// BroadcastAll delivers an update to every connected client.
	BroadcastAll(update StateUpdate)

	// BroadcastTo delivers an update to the named connections only.
	BroadcastTo(connIDs []string, update StateUpdate)
}

// Telemetry receives committed channel transitions. Optional.
type Telemetry interface {
	RecordState(deviceID string, state device.State)
}

// StatePublisher mirrors committed state to hardware transports. Optional.
type StatePublisher interface {
	PublishState(deviceID string, state device.State) error
}

// Logger is the minimal logging interface the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the engine's dependencies.
type Deps struct {
	// Repository is the durable device store. Required.
	Repository device.Repository

	// Cache is the in-memory authoritative state store. Required.
	Cache *device.StateCache

	// Sessions tracks connection to device watches. Required.
	Sessions *SessionRegistry

	// Broadcaster delivers updates to connected clients. Required.
	Broadcaster Broadcaster

	// History records committed transitions. Optional.
	History device.StateHistoryRepository

	// Telemetry records committed transitions to the time-series store. Optional.
	Telemetry Telemetry

	// Publisher mirrors committed state to hardware transports. Optional.
	Publisher StatePublisher

	// Logger receives engine events. Optional, defaults to no-op.
	Logger Logger
}

// Engine reconciles reported and requested device state.
//
// Handling for each device is serialized on a per-device mutex so the
// read-compare-write-broadcast sequence is atomic with respect to other
// messages for the same device. Different devices proceed in parallel.
type Engine struct {
	repo        device.Repository
	cache       *device.StateCache
	sessions    *SessionRegistry
	broadcaster Broadcaster
	history     device.StateHistoryRepository
	telemetry   Telemetry
	publisher   StatePublisher
	logger      Logger
	scope       string

	locksMu stdsync.Mutex
	locks   map[string]*stdsync.Mutex
}

// NewEngine creates a reconciliation engine.
//
// Parameters:
//   - scope: broadcast scope, config.BroadcastScopeAll or
//     config.BroadcastScopeWatchers (empty defaults to all)
//   - deps: engine dependencies (Repository, Cache, Sessions and
//     Broadcaster are required)
//
// Returns:
//   - *Engine: Engine ready for use
//   - error: If a required dependency is missing
func NewEngine(scope string, deps Deps) (*Engine, error) {
	if deps.Repository == nil {
		return nil, errors.New("sync: repository is required")
	}
	if deps.Cache == nil {
		return nil, errors.New("sync: cache is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("sync: session registry is required")
	}
	if deps.Broadcaster == nil {
		return nil, errors.New("sync: broadcaster is required")
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if scope == "" {
		scope = config.BroadcastScopeAll
	}
	if scope != config.BroadcastScopeAll && scope != config.BroadcastScopeWatchers {
		return nil, fmt.Errorf("sync: invalid broadcast scope %q", scope)
	}

	return &Engine{
		repo:        deps.Repository,
		cache:       deps.Cache,
		sessions:    deps.Sessions,
		broadcaster: deps.Broadcaster,
		history:     deps.History,
		telemetry:   deps.Telemetry,
		publisher:   deps.Publisher,
		logger:      deps.Logger,
		scope:       scope,
		locks:       make(map[string]*stdsync.Mutex),
	}, nil
}

// Attach registers a connection as the watcher of a device.
//
// A connection watches one device at a time: attaching to a different
// device silently reassigns the watch and releases the previous device's
// cache hold. Attaching to the device already watched is a no-op, as is
// an empty connection or device ID.
func (e *Engine) Attach(connID, deviceID string) {
	if connID == "" || deviceID == "" {
		return
	}
	previous, changed := e.sessions.Bind(connID, deviceID)
	if !changed {
		return
	}
	if previous != "" {
		if evicted := e.cache.Release(previous); evicted {
			e.logger.Debug("cache entry evicted", "device_id", previous)
		}
	}
	count := e.cache.Retain(deviceID)
	e.logger.Debug("watcher attached", "conn_id", connID, "device_id", deviceID, "watchers", count)
}

// HandleReport reconciles a hardware controller's reported state.
//
// Reports are read-only: the database is never written. When the reported
// state disagrees with the authoritative state, the authoritative state is
// broadcast so the reporter corrects itself. When no authoritative state
// exists anywhere, the report is trusted and seeds the cache.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - connID: Connection that sent the report
//   - deviceID: Device the report concerns
//   - reported: Channel state the controller believes it has
//
// Returns:
//   - error: ErrMalformedMessage for invalid input, otherwise a
//     repository read error
func (e *Engine) HandleReport(ctx context.Context, connID, deviceID string, reported device.State) error {
	if deviceID == "" || reported == nil {
		return fmt.Errorf("%w: report requires device id and state", ErrMalformedMessage)
	}

	unlock := e.lockDevice(deviceID)
	defer unlock()

	canonical, ok := e.cache.Get(deviceID)
	if !ok {
		persisted, err := e.repo.GetState(ctx, deviceID)
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			// Nothing known about this device. Trust the reporter so the
			// session can proceed, but flag it for operators.
			e.logger.Warn("report for unknown device, trusting reporter",
				"conn_id", connID, "device_id", deviceID)
			canonical = reported.Clone()
		case err != nil:
			return fmt.Errorf("loading state for report: %w", err)
		default:
			canonical = persisted
		}
		e.cache.Set(deviceID, canonical)
	}

	if canonical.Equal(reported) {
		e.logger.Debug("report in sync", "conn_id", connID, "device_id", deviceID)
		return nil
	}

	e.logger.Info("report out of sync, correcting",
		"conn_id", connID, "device_id", deviceID)
	e.broadcast(deviceID, canonical)
	return nil
}

// HandleChange applies a requested state change.
//
// The change is persisted first. Only the state the database actually
// committed reaches the cache and the broadcast, so a racing writer can
// never be overwritten by a stale echo. On persistence failure nothing
// is cached or broadcast and the error is returned for the caller to
// deliver to the initiating connection alone.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - connID: Connection that requested the change
//   - deviceID: Device to change
//   - desired: Requested channel state
//   - source: History source label (report, change, mqtt); empty means change
//
// Returns:
//   - error: ErrMalformedMessage for invalid input,
//     device.ErrDeviceNotFound for an unknown device, or an error
//     wrapping device.ErrWriteFailed when persistence fails
func (e *Engine) HandleChange(ctx context.Context, connID, deviceID string, desired device.State, source string) error {
	if deviceID == "" || desired == nil {
		return fmt.Errorf("%w: change requires device id and state", ErrMalformedMessage)
	}
	if source == "" {
		source = device.StateHistorySourceChange
	}

	unlock := e.lockDevice(deviceID)
	defer unlock()

	canonical, ok := e.cache.Get(deviceID)
	if !ok {
		persisted, err := e.repo.GetState(ctx, deviceID)
		if err != nil {
			return fmt.Errorf("loading state for change: %w", err)
		}
		canonical = persisted
		e.cache.Set(deviceID, canonical)
	}

	if canonical.Equal(desired) {
		// Idempotent change. Re-broadcast the authoritative state so the
		// initiator still gets a confirmation.
		e.logger.Debug("change is a no-op", "conn_id", connID, "device_id", deviceID)
		e.broadcast(deviceID, canonical)
		return nil
	}

	committed, err := e.repo.SetState(ctx, deviceID, desired)
	if err != nil {
		e.logger.Error("state write failed",
			"conn_id", connID, "device_id", deviceID, "error", err)
		return err
	}

	e.cache.Set(deviceID, committed)
	e.recordTransition(ctx, deviceID, committed, source)
	e.broadcast(deviceID, committed)

	e.logger.Info("state changed",
		"conn_id", connID, "device_id", deviceID, "source", source)
	return nil
}

// HandleDisconnect cleans up after a connection goes away.
//
// The connection's watch is released; a cache entry whose last watcher
// was this connection is evicted. Returns the watched device ID, or ""
// if the connection held no watch.
func (e *Engine) HandleDisconnect(connID string) string {
	deviceID, ok := e.sessions.RemoveConnection(connID)
	if !ok {
		return ""
	}
	if evicted := e.cache.Release(deviceID); evicted {
		e.logger.Debug("cache entry evicted", "device_id", deviceID)
	}
	e.logger.Info("session cleaned up", "conn_id", connID, "device_id", deviceID)
	return deviceID
}

// recordTransition fans a committed state out to the audit trail, the
// time-series store, and the hardware mirror. Failures are logged, never
// surfaced: the change already committed.
func (e *Engine) recordTransition(ctx context.Context, deviceID string, committed device.State, source string) {
	if e.history != nil {
		if err := e.history.RecordStateChange(ctx, deviceID, committed, source); err != nil {
			e.logger.Warn("recording state history failed", "device_id", deviceID, "error", err)
		}
	}
	if e.telemetry != nil {
		e.telemetry.RecordState(deviceID, committed)
	}
	if e.publisher != nil {
		if err := e.publisher.PublishState(deviceID, committed); err != nil {
			e.logger.Warn("publishing state mirror failed", "device_id", deviceID, "error", err)
		}
	}
}

// broadcast delivers an update according to the configured scope.
func (e *Engine) broadcast(deviceID string, state device.State) {
	update := StateUpdate{DeviceID: deviceID, State: state.Clone()}
	if e.scope == config.BroadcastScopeWatchers {
		e.broadcaster.BroadcastTo(e.sessions.Watchers(deviceID), update)
		return
	}
	e.broadcaster.BroadcastAll(update)
}

// lockDevice acquires the per-device mutex and returns its unlock func.
// Lock entries are kept for the process lifetime; the map is bounded by
// the number of distinct devices seen.
func (e *Engine) lockDevice(deviceID string) func() {
	e.locksMu.Lock()
	lock, ok := e.locks[deviceID]
	if !ok {
		lock = &stdsync.Mutex{}
		e.locks[deviceID] = lock
	}
	e.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}
