package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Serial is a device serial number as sent by firmware. Older firmware
// sends it as a JSON number, newer firmware as a string; both decode to
// the same text.
type Serial string

// UnmarshalJSON accepts a JSON string or an integer.
func (s *Serial) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Serial(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("dev must be a string or integer: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("dev must be a string or integer: %q", n.String())
	}
	*s = Serial(n.String())
	return nil
}

// HeartbeatRequest is the body of a liveness poll.
type HeartbeatRequest struct {
	Dev Serial `json:"dev"`
}

// StepReport is the body of a calibration step poll.
type StepReport struct {
	Dev Serial `json:"dev"`
	// Step is required; a pointer distinguishes "absent" from step 0.
	Step  *int    `json:"ste"`
	Value float64 `json:"val"`
	Error int     `json:"err"`
	// Timestamp is the firmware's own clock (unix seconds); informational.
	Timestamp int64 `json:"ts"`
}

// ConfigRequest asks for the sensor configuration message.
type ConfigRequest struct {
	Dev Serial `json:"dev"`
}

// DecodeHeartbeat decodes and checks a heartbeat request.
func DecodeHeartbeat(body []byte) (HeartbeatRequest, error) {
	var req HeartbeatRequest
	if err := Decode(body, &req); err != nil {
		return req, err
	}
	if req.Dev == "" {
		return req, fmt.Errorf("%w: %w: dev", ErrMalformed, ErrMissingField)
	}
	return req, nil
}

// DecodeStepReport decodes and checks a calibration step report.
func DecodeStepReport(body []byte) (StepReport, error) {
	var req StepReport
	if err := Decode(body, &req); err != nil {
		return req, err
	}
	if req.Dev == "" {
		return req, fmt.Errorf("%w: %w: dev", ErrMalformed, ErrMissingField)
	}
	if req.Step == nil {
		return req, fmt.Errorf("%w: %w: ste", ErrMalformed, ErrMissingField)
	}
	return req, nil
}

// DecodeConfigRequest decodes and checks a configuration request.
func DecodeConfigRequest(body []byte) (ConfigRequest, error) {
	var req ConfigRequest
	if err := Decode(body, &req); err != nil {
		return req, err
	}
	if req.Dev == "" {
		return req, fmt.Errorf("%w: %w: dev", ErrMalformed, ErrMissingField)
	}
	return req, nil
}

// StepReply tells firmware which calibration step to run next.
// Field order is significant to the firmware parser.
type StepReply struct {
	Dev   string  `json:"dev"`
	Step  int     `json:"ste"`
	Value float64 `json:"val"`
	Abort Flag    `json:"abo"`
}

// Heartbeat replies. Exactly one is sent per poll.
type (
	// CalibrateCommand asks firmware to enter the calibration flow for sensor Sen.
	CalibrateCommand struct {
		Dev string `json:"dev"`
		Cal Flag   `json:"cal"`
		Sen int    `json:"sen"`
	}

	// ResetCommand asks firmware to reboot.
	ResetCommand struct {
		Dev string `json:"dev"`
		Rst Flag   `json:"rst"`
	}

	// IdleReply means nothing is pending.
	IdleReply struct {
		Dev string `json:"dev"`
		Err int    `json:"err"`
	}

	// AbortReply refuses a device. Val carries the reason sentinel.
	AbortReply struct {
		Dev   string  `json:"dev"`
		Abort Flag    `json:"abo"`
		Step  int     `json:"ste"`
		Value float64 `json:"val"`
	}
)

// Abort reason sentinels carried in AbortReply.Value and StepReply.Value.
const (
	ReasonUnknownDevice  = -1
	ReasonInactiveDevice = -2
)

// Flag is a boolean encoded as 0 or 1.
type Flag bool

// MarshalJSON encodes the flag as 0 or 1.
func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}
