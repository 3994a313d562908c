package events

import (
	"context"
	"fmt"
	"time"

	"github.com/flockweigh/flockweigh-core/internal/infrastructure/mqtt"
)

// ActionReset is the only operator command accepted over MQTT.
const ActionReset = "reset"

// commandTimeout bounds the database work done for one MQTT command.
const commandTimeout = 5 * time.Second

// Subscriber is the MQTT subscribe surface the command listener needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Resetter queues a one-shot reset for a device.
type Resetter interface {
	SetPendingReset(ctx context.Context, serial string) error
}

// CommandListener turns messages on flockweigh/command/{serial}/reset into
// queued device resets.
type CommandListener struct {
	sub       Subscriber
	devices   Resetter
	publisher Publisher
	qos       byte
	logger    Logger
}

// NewCommandListener creates a listener. Call Start to subscribe.
func NewCommandListener(sub Subscriber, devices Resetter, publisher Publisher, qos byte) *CommandListener {
	if publisher == nil {
		publisher = Discard{}
	}
	return &CommandListener{
		sub:       sub,
		devices:   devices,
		publisher: publisher,
		qos:       qos,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the listener.
func (l *CommandListener) SetLogger(logger Logger) {
	l.logger = logger
}

// Start subscribes to all device command topics.
func (l *CommandListener) Start() error {
	if err := l.sub.Subscribe(mqtt.Topics{}.AllDeviceCommands(), l.qos, l.handle); err != nil {
		return fmt.Errorf("subscribing to device commands: %w", err)
	}
	return nil
}

// Stop removes the subscription.
func (l *CommandListener) Stop() error {
	return l.sub.Unsubscribe(mqtt.Topics{}.AllDeviceCommands())
}

func (l *CommandListener) handle(topic string, _ []byte) error {
	serial, action, ok := mqtt.ParseDeviceCommand(topic)
	if !ok {
		return fmt.Errorf("malformed command topic %q", topic)
	}
	if action != ActionReset {
		l.logger.Debug("ignoring unsupported device command", "serial", serial, "action", action)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := l.devices.SetPendingReset(ctx, serial); err != nil {
		return fmt.Errorf("reset for %s: %w", serial, err)
	}
	l.publisher.Publish(New(KindResetRequested, serial, SourceMQTT, nil))
	return nil
}
