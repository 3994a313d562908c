package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCalibration = "calibration"
	MeasurementHeartbeat   = "heartbeat"
	MeasurementOperator    = "operator_action"
)

// WriteCalibrationStep records one firmware step report and the decision
// made for it. outcome is "wait", "advance" or "abort".
func (c *Client) WriteCalibrationStep(serial string, reported, next, errorCode int, outcome string, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(calibrationPoint(serial, reported, next, errorCode, outcome, ts))
}

// WriteHeartbeat records a heartbeat poll and the command returned to it.
func (c *Client) WriteHeartbeat(serial, command string, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(heartbeatPoint(serial, command, ts))
}

// WriteOperatorAction records an operator action such as a weight submission.
// weight is ignored for actions that carry none (pass a negative value).
func (c *Client) WriteOperatorAction(serial, action string, weight float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(operatorPoint(serial, action, weight, ts))
}

func calibrationPoint(serial string, reported, next, errorCode int, outcome string, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementCalibration,
		map[string]string{
			"serial":  serial,
			"outcome": outcome,
		},
		map[string]interface{}{
			"reported_step": reported,
			"next_step":     next,
			"error_code":    errorCode,
		},
		ts,
	)
}

func heartbeatPoint(serial, command string, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementHeartbeat,
		map[string]string{
			"serial":  serial,
			"command": command,
		},
		map[string]interface{}{
			"count": 1,
		},
		ts,
	)
}

func operatorPoint(serial, action string, weight float64, ts time.Time) *write.Point {
	fields := map[string]interface{}{
		"count": 1,
	}
	if weight >= 0 {
		fields["weight"] = weight
	}
	return write.NewPoint(
		MeasurementOperator,
		map[string]string{
			"serial": serial,
			"action": action,
		},
		fields,
		ts,
	)
}
