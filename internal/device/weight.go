package device

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// WeightKind distinguishes the three meanings of a calibration weight.
type WeightKind uint8

const (
	// WeightUnassigned means the operator has not supplied a weight yet.
	WeightUnassigned WeightKind = iota

	// WeightNone means calibrate with an empty scale and skip weighing.
	WeightNone

	// WeightValue carries a positive reference weight.
	WeightValue
)

// Storage sentinels for the calibration_weight column.
const (
	unassignedSentinel = -1.0
	noneSentinel       = 0.0
)

// Weight is the operator-supplied reference weight for calibration.
//
// The zero value is Unassigned. Construct with UnassignedWeight, NoWeight
// or WeightOf; never compare raw floats against -1 or 0.
type Weight struct {
	kind  WeightKind
	value float64
}

// UnassignedWeight returns the "no weight assigned yet" value.
func UnassignedWeight() Weight { return Weight{kind: WeightUnassigned} }

// NoWeight returns the "skip weighing" value.
func NoWeight() Weight { return Weight{kind: WeightNone} }

// WeightOf returns a reference weight. w must be positive; zero maps to
// NoWeight and negative values to UnassignedWeight.
func WeightOf(w float64) Weight {
	return WeightFromFloat(w)
}

// WeightFromFloat decodes the storage and wire representation:
// negative is Unassigned, 0 is None, anything else is a value.
func WeightFromFloat(f float64) Weight {
	switch {
	case f < 0:
		return UnassignedWeight()
	case f == noneSentinel:
		return NoWeight()
	default:
		return Weight{kind: WeightValue, value: f}
	}
}

// Kind reports which of the three meanings w carries.
func (w Weight) Kind() WeightKind { return w.kind }

// IsUnassigned reports whether the operator has not supplied a weight.
func (w Weight) IsUnassigned() bool { return w.kind == WeightUnassigned }

// IsNone reports whether calibration should skip weighing.
func (w Weight) IsNone() bool { return w.kind == WeightNone }

// Value returns the reference weight and true for WeightValue.
func (w Weight) Value() (float64, bool) {
	if w.kind != WeightValue {
		return 0, false
	}
	return w.value, true
}

// Float returns the storage and wire representation (-1, 0 or the value).
func (w Weight) Float() float64 {
	switch w.kind {
	case WeightNone:
		return noneSentinel
	case WeightValue:
		return w.value
	default:
		return unassignedSentinel
	}
}

func (w Weight) String() string {
	switch w.kind {
	case WeightNone:
		return "none"
	case WeightValue:
		return strconv.FormatFloat(w.value, 'f', -1, 64)
	default:
		return "unassigned"
	}
}

// MarshalJSON encodes the weight as its float representation so the web UI
// keeps seeing -1 and 0 as it always has.
func (w Weight) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Float())
}

// UnmarshalJSON decodes a float representation.
func (w *Weight) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decoding weight: %w", err)
	}
	*w = WeightFromFloat(f)
	return nil
}
