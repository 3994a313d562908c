package calibration

import "strconv"

// Step is a calibration_step value as reported by firmware.
type Step int

const (
	StepRequest          Step = 0
	StepUnweighedRunning Step = 1
	StepUnweighedDone    Step = 2
	StepWeighedRunning   Step = 3
	StepWeighedDone      Step = 4
	StepAwaitRemoval     Step = 5
	StepFinalize         Step = 6
)

var stepNames = [...]string{
	StepRequest:          "request",
	StepUnweighedRunning: "unweighed_running",
	StepUnweighedDone:    "unweighed_done",
	StepWeighedRunning:   "weighed_running",
	StepWeighedDone:      "weighed_done",
	StepAwaitRemoval:     "await_removal",
	StepFinalize:         "finalize",
}

// Valid reports whether s is one of the seven known steps.
func (s Step) Valid() bool {
	return s >= StepRequest && s <= StepFinalize
}

// InProgress reports whether firmware is still working at s and only needs
// to be told to keep polling.
func (s Step) InProgress() bool {
	return s == StepUnweighedRunning || s == StepWeighedRunning || s == StepAwaitRemoval
}

func (s Step) String() string {
	if !s.Valid() {
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
	return stepNames[s]
}
