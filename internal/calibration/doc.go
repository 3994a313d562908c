// Package calibration drives the weighing controller's calibration
// sequence through stateless firmware polls.
//
// The device row's (calibration_running, calibration_step) pair is the whole
// session. Firmware reports the step it has just observed; Decide maps that
// report and the device snapshot onto a Decision: wait (empty reply, keep
// polling), advance to a next step, or abort. Machine wraps Decide in a
// per-device transaction so the decision is computed from the row as it was
// before this request wrote to it.
//
// The transition table:
//
//	step 0  request        step=1, abort if no weight assigned yet
//	step 1  running        wait
//	step 2  unweighed done weight>0: step=3 with weight; otherwise stay at 2
//	step 3  running        wait
//	step 4  weighed done   weight=0: step=5; otherwise step=4; error: step=2, abort
//	step 5  await removal  wait
//	step 6  finalize       stamp last_calibration_at, stop running
//
// Operators feed the sequence through SubmitWeight and Cancel, which take
// the same per-device lock as firmware reports.
package calibration
