// Package mqtt provides MQTT client connectivity for Flockweigh Core.
//
// Core uses MQTT as an optional outbound bus: every device event (calibration
// decisions, delivered heartbeat commands, operator actions) is published
// to flockweigh/device/{serial}/{kind} for farm dashboards and integrators.
// Operators can also request a device reset by publishing to
// flockweigh/command/{serial}/reset.
//
// The initial connection is retried with exponential backoff
// (github.com/cenkalti/backoff/v4); afterwards paho's auto-reconnect restores
// the connection and all tracked subscriptions. A retained status message
// on flockweigh/system/status, backed by a Last Will, tells subscribers
// whether Core is online.
//
// Usage:
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceEvent("7001", "heartbeat.reset")
//	err = client.PublishEvent(topic, payload)
package mqtt
