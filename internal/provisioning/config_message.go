// Package provisioning renders the sensor configuration message sent to a
// device when it asks for its settings.
//
// The firmware parses the message positionally:
//
//	1>-1;2>5;3>-1;4>-1;5>-1;6>-1;1760000000;30#
//
// Six id>parameter pairs in fixed sensor order (-1 disables a sensor), the
// current unix time, the telemetry send frequency in seconds, and a
// terminating '#'.
package provisioning

import (
	"strconv"
	"strings"
	"time"

	"github.com/flockweigh/flockweigh-core/internal/device"
)

// Sensor ids, in the order the firmware expects them.
const (
	SensorTemperature = 1
	SensorLoadCell    = 2
	SensorHumidity    = 3
	SensorCO2         = 4
	SensorAmmonia     = 5
	SensorLight       = 6
)

// DefaultSendFrequency is used when neither the device nor the builder
// names one.
const DefaultSendFrequency = 30

// Terminator ends every configuration message.
const Terminator = '#'

// BuildConfigMessage renders the configuration message for the given sensor
// settings. A nil sendFrequency means DefaultSendFrequency.
func BuildConfigMessage(sensors device.Sensors, sendFrequency *int, now time.Time) string {
	freq := DefaultSendFrequency
	if sendFrequency != nil {
		freq = *sendFrequency
	}

	ordered := [...]struct{ id, param int }{
		{SensorTemperature, sensors.Temperature},
		{SensorLoadCell, sensors.LoadCell},
		{SensorHumidity, sensors.Humidity},
		{SensorCO2, sensors.CO2},
		{SensorAmmonia, sensors.Ammonia},
		{SensorLight, sensors.Light},
	}

	var b strings.Builder
	for _, s := range ordered {
		b.WriteString(strconv.Itoa(s.id))
		b.WriteByte('>')
		b.WriteString(strconv.Itoa(s.param))
		b.WriteByte(';')
	}
	b.WriteString(strconv.FormatInt(now.Unix(), 10))
	b.WriteByte(';')
	b.WriteString(strconv.Itoa(freq))
	b.WriteByte(Terminator)
	return b.String()
}

// Builder renders configuration messages for stored devices.
type Builder struct {
	// DefaultSendFrequency replaces DefaultSendFrequency when positive.
	DefaultSendFrequency int

	now func() time.Time
}

// NewBuilder creates a Builder with the deployment's default frequency.
func NewBuilder(defaultSendFrequency int) *Builder {
	return &Builder{DefaultSendFrequency: defaultSendFrequency, now: time.Now}
}

// Build renders the message for d.
func (b *Builder) Build(d *device.Device) string {
	freq := d.SendFrequency
	if freq == nil && b.DefaultSendFrequency > 0 {
		freq = &b.DefaultSendFrequency
	}
	now := time.Now
	if b.now != nil {
		now = b.now
	}
	return BuildConfigMessage(d.Sensors, freq, now())
}
