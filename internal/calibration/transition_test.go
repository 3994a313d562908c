package calibration

import (
	"testing"
	"time"

	"github.com/flockweigh/flockweigh-core/internal/device"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func deviceWith(weight device.Weight) device.Device {
	return device.Device{
		SerialNumber:       "7001",
		Active:             true,
		CalibrationRunning: true,
		CalibrationWeight:  weight,
	}
}

func intField(p *int) int {
	if p == nil {
		return -100
	}
	return *p
}

func TestDecide_Table(t *testing.T) {
	tests := []struct {
		name        string
		weight      device.Weight
		report      Report
		wantOutcome Outcome
		wantStep    Step
		wantValue   float64
		wantStored  int // -100 = step untouched
	}{
		{"step 0 with weight", device.WeightOf(12.5), Report{Step: 0}, OutcomeAdvance, 1, 0, 1},
		{"step 0 with no weighing", device.NoWeight(), Report{Step: 0}, OutcomeAdvance, 1, 0, 1},
		{"step 0 unassigned aborts", device.UnassignedWeight(), Report{Step: 0}, OutcomeAbort, 1, 0, 1},
		{"step 1 waits", device.WeightOf(5), Report{Step: 1}, OutcomeWait, 0, 0, -100},
		{"step 3 waits", device.WeightOf(5), Report{Step: 3}, OutcomeWait, 0, 0, -100},
		{"step 5 waits", device.WeightOf(5), Report{Step: 5}, OutcomeWait, 0, 0, -100},
		{"step 2 hands out weight", device.WeightOf(12.5), Report{Step: 2}, OutcomeAdvance, 3, 12.5, 3},
		{"step 2 without weighing holds", device.NoWeight(), Report{Step: 2}, OutcomeAdvance, 2, 0, 2},
		{"step 2 unassigned hands out sentinel", device.UnassignedWeight(), Report{Step: 2}, OutcomeAdvance, 3, -1, 3},
		{"step 2 error aborts", device.WeightOf(12.5), Report{Step: 2, Error: 7}, OutcomeAbort, 2, 0, -100},
		{"step 4 waits for removal", device.WeightOf(12.5), Report{Step: 4}, OutcomeAdvance, 4, 0, 4},
		{"step 4 without weighing skips removal", device.NoWeight(), Report{Step: 4}, OutcomeAdvance, 5, 0, 5},
		{"step 4 error falls back", device.WeightOf(12.5), Report{Step: 4, Error: 3}, OutcomeAbort, 2, 0, 2},
		{"step 6 finalizes", device.WeightOf(12.5), Report{Step: 6}, OutcomeAdvance, 6, 0, 6},
		{"step 6 error aborts", device.WeightOf(12.5), Report{Step: 6, Error: 9}, OutcomeAbort, 6, 0, 6},
		{"unknown step echoed", device.WeightOf(12.5), Report{Step: 42}, OutcomeAbort, 42, 0, -100},
		{"negative step echoed", device.WeightOf(12.5), Report{Step: -3}, OutcomeAbort, -3, 0, -100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(deviceWith(tt.weight), tt.report, testNow)

			if got.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %v, want %v", got.Outcome, tt.wantOutcome)
			}
			if tt.wantOutcome != OutcomeWait {
				if got.Step != tt.wantStep {
					t.Errorf("Step = %d, want %d", got.Step, tt.wantStep)
				}
				if got.Value != tt.wantValue {
					t.Errorf("Value = %v, want %v", got.Value, tt.wantValue)
				}
			}
			if stored := intField(got.Patch.CalibrationStep); stored != tt.wantStored {
				t.Errorf("stored step = %d, want %d", stored, tt.wantStored)
			}
		})
	}
}

func TestDecide_ErrorsArePersisted(t *testing.T) {
	for _, step := range []Step{1, 2, 3, 4, 5, 6} {
		got := Decide(deviceWith(device.WeightOf(1)), Report{Step: step, Error: 11}, testNow)
		if intField(got.Patch.CalibrationError) != 11 {
			t.Errorf("step %d: stored error = %d, want 11", step, intField(got.Patch.CalibrationError))
		}
	}
}

func TestDecide_SoftStepsWithoutErrorWriteNothing(t *testing.T) {
	for _, step := range []Step{1, 3, 5} {
		got := Decide(deviceWith(device.WeightOf(1)), Report{Step: step}, testNow)
		if !got.Patch.IsEmpty() {
			t.Errorf("step %d: patch = %+v, want empty", step, got.Patch)
		}
	}
}

func TestDecide_StepZeroClearsError(t *testing.T) {
	d := deviceWith(device.WeightOf(1))
	d.CalibrationError = 4

	got := Decide(d, Report{Step: 0}, testNow)
	if intField(got.Patch.CalibrationError) != 0 {
		t.Errorf("stored error = %d, want 0", intField(got.Patch.CalibrationError))
	}
}

func TestDecide_Finalize(t *testing.T) {
	got := Decide(deviceWith(device.WeightOf(1)), Report{Step: 6}, testNow)

	if got.Patch.LastCalibrationAt == nil || !got.Patch.LastCalibrationAt.Equal(testNow) {
		t.Errorf("LastCalibrationAt = %v, want %v", got.Patch.LastCalibrationAt, testNow)
	}
	if got.Patch.CalibrationRunning == nil || *got.Patch.CalibrationRunning {
		t.Error("finalize must clear calibration_running")
	}

	failed := Decide(deviceWith(device.WeightOf(1)), Report{Step: 6, Error: 1}, testNow)
	if failed.Patch.LastCalibrationAt != nil {
		t.Error("failed finalize must not stamp last_calibration_at")
	}
	if failed.Patch.CalibrationRunning == nil || *failed.Patch.CalibrationRunning {
		t.Error("failed finalize must clear calibration_running")
	}
}

// Replaying a report against the row it produced yields the same reply.
func TestDecide_Idempotent(t *testing.T) {
	weights := []device.Weight{device.UnassignedWeight(), device.NoWeight(), device.WeightOf(3.25)}
	for _, w := range weights {
		for step := Step(-1); step <= 7; step++ {
			for _, errCode := range []int{0, 5} {
				d := deviceWith(w)
				r := Report{Step: step, Error: errCode}

				first := Decide(d, r, testNow)
				first.Patch.Apply(&d)
				second := Decide(d, r, testNow)

				if first.Outcome != second.Outcome || first.Step != second.Step || first.Value != second.Value {
					t.Errorf("weight %s step %d err %d: first %+v, second %+v",
						w, step, errCode, first, second)
				}
			}
		}
	}
}

func TestStep_String(t *testing.T) {
	if got := StepAwaitRemoval.String(); got != "await_removal" {
		t.Errorf("String() = %q", got)
	}
	if got := Step(9).String(); got != "unknown(9)" {
		t.Errorf("String() = %q", got)
	}
	if !StepWeighedRunning.InProgress() || StepWeighedDone.InProgress() {
		t.Error("InProgress() mismatch")
	}
}
