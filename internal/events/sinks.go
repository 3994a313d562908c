package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/flockweigh/flockweigh-core/internal/audit"
	"github.com/flockweigh/flockweigh-core/internal/infrastructure/mqtt"
)

// EventPublisher is the MQTT publish surface the MQTT sink needs.
type EventPublisher interface {
	PublishEvent(topic string, payload []byte) error
}

// MQTTSink publishes each event as JSON on flockweigh/device/{serial}/{kind}.
type MQTTSink struct {
	client  EventPublisher
	breaker *gobreaker.CircuitBreaker
}

// NewMQTTSink wraps client in a circuit breaker that opens after
// maxFailures consecutive publish failures and stays open for openFor.
func NewMQTTSink(client EventPublisher, maxFailures int, openFor time.Duration) *MQTTSink {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &MQTTSink{
		client: client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "mqtt-events",
			Timeout: openFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= uint32(maxFailures) //nolint:gosec // bounded by config validation
			},
		}),
	}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// State reports the breaker state, for health output.
func (s *MQTTSink) State() string { return s.breaker.State().String() }

// Handle implements Sink.
func (s *MQTTSink) Handle(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	topic := mqtt.Topics{}.DeviceEvent(e.Serial, string(e.Kind))

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.PublishEvent(topic, payload)
	})
	return err
}

// Broadcaster pushes a payload to WebSocket subscribers of a channel.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// HubSink forwards events to the WebSocket hub on the kind's channel.
type HubSink struct {
	hub Broadcaster
}

// NewHubSink creates a HubSink.
func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub}
}

// Name implements Sink.
func (s *HubSink) Name() string { return "websocket" }

// Handle implements Sink.
func (s *HubSink) Handle(_ context.Context, e Event) error {
	s.hub.Broadcast(e.Kind.Channel(), e)
	return nil
}

// PointWriter is the InfluxDB surface the telemetry sink needs.
type PointWriter interface {
	WriteCalibrationStep(serial string, reported, next, errorCode int, outcome string, ts time.Time)
	WriteHeartbeat(serial, command string, ts time.Time)
	WriteOperatorAction(serial, action string, weight float64, ts time.Time)
}

// InfluxSink records events as time-series points.
type InfluxSink struct {
	writer PointWriter
}

// NewInfluxSink creates an InfluxSink.
func NewInfluxSink(writer PointWriter) *InfluxSink {
	return &InfluxSink{writer: writer}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Handle implements Sink. Kinds without a measurement are ignored.
func (s *InfluxSink) Handle(_ context.Context, e Event) error {
	switch e.Kind {
	case KindCalibrationStep:
		s.writer.WriteCalibrationStep(e.Serial,
			e.Int(DataReportedStep, -1),
			e.Int(DataNextStep, -1),
			e.Int(DataErrorCode, 0),
			e.String(DataOutcome),
			e.Timestamp,
		)
	case KindHeartbeatCalibrate:
		s.writer.WriteHeartbeat(e.Serial, "cal", e.Timestamp)
	case KindHeartbeatReset:
		s.writer.WriteHeartbeat(e.Serial, "rst", e.Timestamp)
	case KindWeightSubmitted:
		s.writer.WriteOperatorAction(e.Serial, "weight", e.Float(DataWeight, -1), e.Timestamp)
	case KindCalibrationCancel:
		s.writer.WriteOperatorAction(e.Serial, "cancel", -1, e.Timestamp)
	case KindResetRequested:
		s.writer.WriteOperatorAction(e.Serial, "reset", -1, e.Timestamp)
	}
	return nil
}

// AuditSink appends events to the device history table.
type AuditSink struct {
	repo audit.Repository
}

// NewAuditSink creates an AuditSink.
func NewAuditSink(repo audit.Repository) *AuditSink {
	return &AuditSink{repo: repo}
}

// Name implements Sink.
func (s *AuditSink) Name() string { return "audit" }

// Handle implements Sink.
func (s *AuditSink) Handle(ctx context.Context, e Event) error {
	entry := &audit.Entry{
		ID:        e.ID,
		Serial:    e.Serial,
		Kind:      string(e.Kind),
		Source:    string(e.Source),
		Details:   e.Data,
		CreatedAt: e.Timestamp,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("recording device event: %w", err)
	}
	return nil
}
