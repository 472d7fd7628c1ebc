// Package mqtt provides MQTT connectivity for SwitchSync Core.
//
// Hardware controllers that speak MQTT instead of WebSocket use three
// topic families:
//
//   - switchsync/report/{device_id}: controllers publish the state they
//     believe they have
//   - switchsync/change/{device_id}: controllers (or gateways) request a
//     state change
//   - switchsync/state/{device_id}: Core publishes the canonical state,
//     retained, so controllers recover state after a power cycle
//
// The client wraps paho.mqtt.golang with automatic reconnection,
// subscription restoration, and a Last Will that flips the system status
// topic to offline on unexpected disconnect.
package mqtt
