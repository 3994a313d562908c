package calibration

import (
	"time"

	"github.com/flockweigh/flockweigh-core/internal/device"
)

// Report is one firmware step report.
type Report struct {
	Step      Step
	Value     float64
	Error     int
	Timestamp int64 // firmware clock, informational only
}

// Outcome is the kind of decision taken for a report.
type Outcome int

const (
	// OutcomeWait means keep polling: the reply body is empty.
	OutcomeWait Outcome = iota
	// OutcomeAdvance hands firmware a next step.
	OutcomeAdvance
	// OutcomeAbort hands firmware a step with the abort advisory set.
	OutcomeAbort
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWait:
		return "wait"
	case OutcomeAdvance:
		return "advance"
	case OutcomeAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Decision is the result of Decide.
//
// Step and Value are what firmware is told; they are meaningless for
// OutcomeWait. Patch is what must be written to the device row.
type Decision struct {
	Outcome Outcome
	Step    Step
	Value   float64
	Patch   device.Patch
}

// Aborted reports whether firmware should see abo=1.
func (d Decision) Aborted() bool { return d.Outcome == OutcomeAbort }

func wait(patch device.Patch) Decision {
	return Decision{Outcome: OutcomeWait, Patch: patch}
}

func advance(step Step, value float64, patch device.Patch) Decision {
	return Decision{Outcome: OutcomeAdvance, Step: step, Value: value, Patch: patch}
}

func abort(step Step, patch device.Patch) Decision {
	return Decision{Outcome: OutcomeAbort, Step: step, Patch: patch}
}

// Decide maps a step report onto the next decision for d. It is pure: d is
// the snapshot read before any write made for this report.
func Decide(d device.Device, r Report, now time.Time) Decision {
	weight := d.CalibrationWeight

	switch r.Step {
	case StepRequest:
		// A new sequence starts without an error; no error field is defined here.
		patch := device.Patch{
			CalibrationStep:  device.Ptr(int(StepUnweighedRunning)),
			CalibrationError: device.Ptr(0),
		}
		if weight.IsUnassigned() {
			return abort(StepUnweighedRunning, patch)
		}
		return advance(StepUnweighedRunning, 0, patch)

	case StepUnweighedRunning, StepWeighedRunning, StepAwaitRemoval:
		if r.Error != 0 {
			return wait(device.Patch{CalibrationError: device.Ptr(r.Error)})
		}
		return wait(device.Patch{})

	case StepUnweighedDone:
		if r.Error != 0 {
			return abort(StepUnweighedDone, device.Patch{CalibrationError: device.Ptr(r.Error)})
		}
		// Only an explicit zero holds at 2. An unassigned weight goes out
		// as its -1 sentinel.
		if weight.IsNone() {
			return advance(StepUnweighedDone, 0, device.Patch{
				CalibrationStep: device.Ptr(int(StepUnweighedDone)),
			})
		}
		return advance(StepWeighedRunning, weight.Float(), device.Patch{
			CalibrationStep: device.Ptr(int(StepWeighedRunning)),
		})

	case StepWeighedDone:
		if r.Error != 0 {
			return abort(StepUnweighedDone, device.Patch{
				CalibrationError: device.Ptr(r.Error),
				CalibrationStep:  device.Ptr(int(StepUnweighedDone)),
			})
		}
		if weight.IsNone() {
			return advance(StepAwaitRemoval, 0, device.Patch{
				CalibrationStep: device.Ptr(int(StepAwaitRemoval)),
			})
		}
		return advance(StepWeighedDone, 0, device.Patch{
			CalibrationStep: device.Ptr(int(StepWeighedDone)),
		})

	case StepFinalize:
		patch := device.Patch{
			CalibrationStep:    device.Ptr(int(StepFinalize)),
			CalibrationRunning: device.Ptr(false),
		}
		if r.Error != 0 {
			patch.CalibrationError = device.Ptr(r.Error)
			return abort(StepFinalize, patch)
		}
		at := now.UTC()
		patch.LastCalibrationAt = &at
		return advance(StepFinalize, 0, patch)

	default:
		return abort(r.Step, device.Patch{})
	}
}
