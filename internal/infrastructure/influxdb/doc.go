// Package influxdb provides channel telemetry for SwitchSync Core.
//
// Every committed state transition is recorded as one point per relay
// channel (on = 1, off = 0), so dashboards can chart switching activity
// and duty cycles per device. Writes are non-blocking and batched; a
// telemetry outage never blocks the reconciliation path.
package influxdb
