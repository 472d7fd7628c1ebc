// Package sync implements the state reconciliation protocol for SwitchSync.
//
// Two message kinds drive the protocol:
//
//   - report: a hardware controller announces the state it believes it has.
//     The engine compares it against the authoritative cached state and, when
//     they differ, broadcasts the authoritative state so the controller
//     corrects itself. Reports never write to the database.
//
//   - change: a client requests a new state. The engine persists it through
//     the device repository (write-through, atomic), updates the cache with
//     the committed state, and broadcasts that committed state to every
//     interested connection. The broadcast always carries what the database
//     returned, never the client's request verbatim.
//
// All handling for a given device is serialized on a per-device mutex, so
// a report and a change for the same device can never interleave between
// the cache read and the broadcast.
//
// The SessionRegistry tracks which device each connection watches (one at
// a time, last write wins) and drives cache retention. On disconnect the
// watched device is released, and the cache evicts an entry only when its
// last watcher is gone.
package sync
