package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/switchsync/switchsync-core/internal/device"
)

// RecordState writes one point per relay channel for a committed state.
//
// Each channel becomes a point in the channel_state measurement with the
// device and channel as tags and the boolean encoded as 0/1, which makes
// duty-cycle and switching-frequency queries trivial. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Implements the sync engine's Telemetry interface.
//
// Parameters:
//   - deviceID: Unique device identifier
//   - state: Committed channel state
func (c *Client) RecordState(deviceID string, state device.State) {
	if !c.IsConnected() {
		return
	}

	now := time.Now()
	for channel, on := range state {
		value := 0
		if on {
			value = 1
		}
		point := write.NewPoint(
			"channel_state",
			map[string]string{
				"device_id": deviceID,
				"channel":   channel,
			},
			map[string]interface{}{
				"value": value,
			},
			now,
		)
		c.writeAPI.WritePoint(point)
	}
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
