// Package device provides the device domain model for SwitchSync Core.
//
// A device is a multi-channel relay controller owned by an account. Its
// state is a map of channel names to booleans, persisted as JSON in SQLite
// and mirrored in an in-memory cache while clients are connected.
//
// This package manages:
//   - Device records and channel state (State with structural equality)
//   - Persistence via Repository (SQLite-backed, atomic state writes)
//   - The in-memory StateCache with per-device watcher reference counts
//   - The state-change audit trail (StateHistoryRepository)
//
// The cache is the authoritative source for connected devices. The
// repository is the durable fallback consulted on cache misses and the
// write-through target for every accepted change.
package device
