package device

import "time"

// SensorDisabled marks a sensor slot as switched off.
const SensorDisabled = -1

// Step bounds for calibration_step.
const (
	MinCalibrationStep = 0
	MaxCalibrationStep = 6
)

// Device is one physical weighing controller.
//
// Firmware identifies devices by SerialNumber only; ID is internal.
// Calibration fields are overwritten in place: the pair
// (CalibrationRunning, CalibrationStep) is the whole calibration session.
type Device struct {
	ID           string `json:"id"`
	SerialNumber string `json:"serial_number"`
	Name         string `json:"name"`
	Active       bool   `json:"active"`

	CalibrationStep    int        `json:"calibration_step"`
	CalibrationRunning bool       `json:"calibration_running"`
	CalibrationError   int        `json:"calibration_error"`
	CalibrationWeight  Weight     `json:"calibration_weight"`
	LastCalibrationAt  *time.Time `json:"last_calibration_at,omitempty"`

	// PendingReset is a one-shot command, cleared when delivered.
	PendingReset bool       `json:"pending_reset"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`

	Sensors       Sensors `json:"sensors"`
	SendFrequency *int    `json:"send_frequency,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sensors holds the per-sensor enablement parameters.
// Each is SensorDisabled or a sensor-specific parameter.
type Sensors struct {
	Temperature int `json:"temperature"`
	LoadCell    int `json:"load_cell"`
	Humidity    int `json:"humidity"`
	CO2         int `json:"co2"`
	Ammonia     int `json:"ammonia"`
	Light       int `json:"light"`
}

// DisabledSensors returns a Sensors value with every slot switched off.
func DisabledSensors() Sensors {
	return Sensors{
		Temperature: SensorDisabled,
		LoadCell:    SensorDisabled,
		Humidity:    SensorDisabled,
		CO2:         SensorDisabled,
		Ammonia:     SensorDisabled,
		Light:       SensorDisabled,
	}
}

// Patch is a partial update of a device row. Nil fields are left untouched.
type Patch struct {
	Name               *string
	Active             *bool
	CalibrationStep    *int
	CalibrationRunning *bool
	CalibrationError   *int
	CalibrationWeight  *Weight
	LastCalibrationAt  *time.Time
	PendingReset       *bool
	LastSeenAt         *time.Time
	Sensors            *Sensors
	SendFrequency      *int
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil &&
		p.Active == nil &&
		p.CalibrationStep == nil &&
		p.CalibrationRunning == nil &&
		p.CalibrationError == nil &&
		p.CalibrationWeight == nil &&
		p.LastCalibrationAt == nil &&
		p.PendingReset == nil &&
		p.LastSeenAt == nil &&
		p.Sensors == nil &&
		p.SendFrequency == nil
}

// Apply copies the patch's set fields onto d.
func (p Patch) Apply(d *Device) {
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.Active != nil {
		d.Active = *p.Active
	}
	if p.CalibrationStep != nil {
		d.CalibrationStep = *p.CalibrationStep
	}
	if p.CalibrationRunning != nil {
		d.CalibrationRunning = *p.CalibrationRunning
	}
	if p.CalibrationError != nil {
		d.CalibrationError = *p.CalibrationError
	}
	if p.CalibrationWeight != nil {
		d.CalibrationWeight = *p.CalibrationWeight
	}
	if p.LastCalibrationAt != nil {
		t := *p.LastCalibrationAt
		d.LastCalibrationAt = &t
	}
	if p.PendingReset != nil {
		d.PendingReset = *p.PendingReset
	}
	if p.LastSeenAt != nil {
		t := *p.LastSeenAt
		d.LastSeenAt = &t
	}
	if p.Sensors != nil {
		d.Sensors = *p.Sensors
	}
	if p.SendFrequency != nil {
		f := *p.SendFrequency
		d.SendFrequency = &f
	}
}

// Ptr returns a pointer to v. It keeps Patch literals short.
func Ptr[T any](v T) *T {
	return &v
}
