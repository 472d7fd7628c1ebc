package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the SwitchSync MQTT scheme.
//
// Device topics use the flat scheme: switchsync/{kind}/{device_id}
const (
	// TopicPrefix is the base for all SwitchSync topics.
	TopicPrefix = "switchsync"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "switchsync/system"
)

// Topics provides builders for SwitchSync MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("3f1a...")
//	// Returns: "switchsync/state/3f1a..."
type Topics struct{}

// DeviceReport returns the topic a controller publishes state reports to.
//
// Example: switchsync/report/3f1a-...
func (Topics) DeviceReport(deviceID string) string {
	return fmt.Sprintf("%s/report/%s", TopicPrefix, deviceID)
}

// DeviceChange returns the topic for state change requests.
//
// Example: switchsync/change/3f1a-...
func (Topics) DeviceChange(deviceID string) string {
	return fmt.Sprintf("%s/change/%s", TopicPrefix, deviceID)
}

// DeviceState returns the canonical device state topic.
// This is the authoritative state published by Core after reconciliation,
// retained so controllers recover state after a power cycle.
//
// Example: switchsync/state/3f1a-...
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// SystemStatus returns the system status topic.
//
// Example: switchsync/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllReports returns a pattern matching all device state reports.
//
// Pattern: switchsync/report/+
func (Topics) AllReports() string {
	return fmt.Sprintf("%s/report/+", TopicPrefix)
}

// AllChanges returns a pattern matching all device change requests.
//
// Pattern: switchsync/change/+
func (Topics) AllChanges() string {
	return fmt.Sprintf("%s/change/+", TopicPrefix)
}

// AllStates returns a pattern matching all canonical device states.
//
// Pattern: switchsync/state/+
func (Topics) AllStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// DeviceIDFromTopic extracts the device ID from a report, change or state
// topic. Returns an empty string if the topic does not match the scheme.
func DeviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefix {
		return ""
	}
	switch parts[1] {
	case "report", "change", "state":
		return parts[2]
	}
	return ""
}
