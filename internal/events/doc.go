// Package events fans device events out to their consumers.
//
// Calibration decisions, delivered heartbeat commands and operator actions
// are published as Events onto a Bus. A single worker drains the Bus's
// bounded queue and hands each event to every Sink: MQTT, the WebSocket
// hub, InfluxDB and the device history table.
//
// Publishing never blocks. When the queue is full the event is dropped and
// counted, because a firmware poll must never wait on a slow consumer.
// The MQTT sink sits behind a circuit breaker (github.com/sony/gobreaker)
// so a dead broker costs one failed publish per open interval rather than
// one per event.
package events
