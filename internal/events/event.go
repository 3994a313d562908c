package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind names what happened. The prefix before the dot is the channel.
type Kind string

const (
	KindCalibrationStep   Kind = "calibration.step"
	KindWeightSubmitted   Kind = "calibration.weight"
	KindCalibrationCancel Kind = "calibration.cancel"

	KindHeartbeatCalibrate Kind = "heartbeat.calibrate"
	KindHeartbeatReset     Kind = "heartbeat.reset"

	KindResetRequested   Kind = "device.reset_requested"
	KindDeviceRegistered Kind = "device.registered"
	KindDeviceUpdated    Kind = "device.updated"
)

// Channel returns the part of the kind before the first dot.
func (k Kind) Channel() string {
	for i := 0; i < len(k); i++ {
		if k[i] == '.' {
			return string(k[:i])
		}
	}
	return string(k)
}

// Source says who caused the event.
type Source string

const (
	SourceFirmware Source = "firmware"
	SourceOperator Source = "operator"
	SourceMQTT     Source = "mqtt"
)

// Data keys shared by publishers and sinks.
const (
	DataReportedStep = "reported_step"
	DataNextStep     = "next_step"
	DataErrorCode    = "error_code"
	DataOutcome      = "outcome"
	DataWeight       = "weight"
	DataSensor       = "sensor"
)

// Event is one thing that happened to one device.
type Event struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Serial    string         `json:"serial"`
	Source    Source         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// New builds an event stamped with a fresh ID and the current time.
func New(kind Kind, serial string, source Source, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Serial:    serial,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Int returns an integer data field, or fallback if absent.
func (e Event) Int(key string, fallback int) int {
	switch v := e.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// Float returns a numeric data field, or fallback if absent.
func (e Event) Float(key string, fallback float64) float64 {
	switch v := e.Data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

// String returns a string data field, or "" if absent.
func (e Event) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Publisher accepts events for asynchronous delivery.
type Publisher interface {
	Publish(e Event)
}

// Discard is a Publisher that drops everything.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(Event) {}
