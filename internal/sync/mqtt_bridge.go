package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/switchsync/switchsync-core/internal/device"
	"github.com/switchsync/switchsync-core/internal/infrastructure/mqtt"
)

// mqttQoS is the QoS level for report and change subscriptions.
// At-least-once: a duplicate report is harmless, a lost change is not.
const mqttQoS = 1

// MQTTBridge feeds MQTT-connected controllers into the reconciliation
// engine. Reports and change requests arrive on the switchsync/report/+
// and switchsync/change/+ topics; the canonical state flows back out via
// the engine's StatePublisher (see StateMirror).
type MQTTBridge struct {
	engine *Engine
	client *mqtt.Client
	logger Logger
}

// NewMQTTBridge creates a bridge. Call Start to begin consuming.
func NewMQTTBridge(engine *Engine, client *mqtt.Client, logger Logger) *MQTTBridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTBridge{engine: engine, client: client, logger: logger}
}

// Start subscribes to the report and change topics.
//
// Handlers run on paho's goroutines; the engine's per-device locking
// keeps them safe alongside WebSocket traffic for the same device.
func (b *MQTTBridge) Start(ctx context.Context) error {
	topics := mqtt.Topics{}

	err := b.client.Subscribe(topics.AllReports(), mqttQoS, func(topic string, payload []byte) error {
		return b.handleReport(ctx, topic, payload)
	})
	if err != nil {
		return fmt.Errorf("subscribing to reports: %w", err)
	}

	err = b.client.Subscribe(topics.AllChanges(), mqttQoS, func(topic string, payload []byte) error {
		return b.handleChange(ctx, topic, payload)
	})
	if err != nil {
		return fmt.Errorf("subscribing to changes: %w", err)
	}

	b.logger.Info("mqtt bridge started")
	return nil
}

func (b *MQTTBridge) handleReport(ctx context.Context, topic string, payload []byte) error {
	deviceID := mqtt.DeviceIDFromTopic(topic)
	if deviceID == "" {
		return fmt.Errorf("%w: unrecognised topic %q", ErrMalformedMessage, topic)
	}

	var state device.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	return b.engine.HandleReport(ctx, mqttConnID(deviceID), deviceID, state)
}

func (b *MQTTBridge) handleChange(ctx context.Context, topic string, payload []byte) error {
	deviceID := mqtt.DeviceIDFromTopic(topic)
	if deviceID == "" {
		return fmt.Errorf("%w: unrecognised topic %q", ErrMalformedMessage, topic)
	}

	var state device.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	return b.engine.HandleChange(ctx, mqttConnID(deviceID), deviceID, state, device.StateHistorySourceMQTT)
}

// mqttConnID builds a synthetic connection ID for MQTT traffic. MQTT
// controllers have no session of their own and take no cache watcher
// refcount, so a device seen only over MQTT keeps its cache entry for
// the process lifetime, refreshed on each report. The ID only shows up
// in logs.
func mqttConnID(deviceID string) string {
	return "mqtt:" + deviceID
}

// StateMirror publishes canonical state to the retained state topic so
// controllers recover the authoritative state after a power cycle.
// Implements the engine's StatePublisher.
type StateMirror struct {
	client *mqtt.Client
}

// NewStateMirror creates a state mirror backed by an MQTT client.
func NewStateMirror(client *mqtt.Client) *StateMirror {
	return &StateMirror{client: client}
}

// PublishState publishes the committed state, retained.
func (m *StateMirror) PublishState(deviceID string, state device.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state mirror: %w", err)
	}
	return m.client.PublishRetained(mqtt.Topics{}.DeviceState(deviceID), payload)
}
