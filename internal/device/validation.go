package device

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	maxNameLength   = 100
	maxSerialLength = 64

	// maxSendFrequency is one day in seconds.
	maxSendFrequency = 86400
)

// Serial numbers are printed on the controller label and typed by installers.
var serialRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidateSerial checks a firmware serial number.
func ValidateSerial(serial string) error {
	if serial == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSerial)
	}
	if len(serial) > maxSerialLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidSerial, maxSerialLength)
	}
	if !serialRegex.MatchString(serial) {
		return fmt.Errorf("%w: %q contains invalid characters", ErrInvalidSerial, serial)
	}
	return nil
}

// ValidateName checks a display name. Empty names are allowed.
func ValidateName(name string) error {
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: name has leading or trailing whitespace", ErrInvalidDevice)
	}
	return nil
}

// ValidateSensors checks every slot is SensorDisabled or a non-negative parameter.
func ValidateSensors(s Sensors) error {
	slots := []struct {
		name  string
		value int
	}{
		{"temperature", s.Temperature},
		{"load_cell", s.LoadCell},
		{"humidity", s.Humidity},
		{"co2", s.CO2},
		{"ammonia", s.Ammonia},
		{"light", s.Light},
	}
	for _, slot := range slots {
		if slot.value < SensorDisabled {
			return fmt.Errorf("%w: sensor %s parameter %d", ErrInvalidDevice, slot.name, slot.value)
		}
	}
	return nil
}

// ValidateSendFrequency checks an optional telemetry interval in seconds.
func ValidateSendFrequency(freq *int) error {
	if freq == nil {
		return nil
	}
	if *freq <= 0 || *freq > maxSendFrequency {
		return fmt.Errorf("%w: send_frequency must be between 1 and %d", ErrInvalidDevice, maxSendFrequency)
	}
	return nil
}

// ValidateDevice checks a device before it is created.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if err := ValidateSerial(d.SerialNumber); err != nil {
		return err
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if d.CalibrationStep < MinCalibrationStep || d.CalibrationStep > MaxCalibrationStep {
		return fmt.Errorf("%w: calibration_step %d out of range", ErrInvalidDevice, d.CalibrationStep)
	}
	if err := ValidateSensors(d.Sensors); err != nil {
		return err
	}
	return ValidateSendFrequency(d.SendFrequency)
}

// ValidatePatch checks the operator-editable fields of a patch.
func ValidatePatch(p Patch) error {
	if p.Name != nil {
		if err := ValidateName(*p.Name); err != nil {
			return err
		}
	}
	if p.CalibrationStep != nil {
		if *p.CalibrationStep < MinCalibrationStep || *p.CalibrationStep > MaxCalibrationStep {
			return fmt.Errorf("%w: calibration_step %d out of range", ErrInvalidDevice, *p.CalibrationStep)
		}
	}
	if p.Sensors != nil {
		if err := ValidateSensors(*p.Sensors); err != nil {
			return err
		}
	}
	return ValidateSendFrequency(p.SendFrequency)
}

// GenerateID returns a new internal device identifier.
func GenerateID() string {
	return uuid.New().String()
}
