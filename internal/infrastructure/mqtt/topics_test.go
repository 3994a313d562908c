package mqtt

import "testing"

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"device event", topics.DeviceEvent("7001", "calibration.step"), "flockweigh/device/7001/calibration.step"},
		{"device command", topics.DeviceCommand("7001", "reset"), "flockweigh/command/7001/reset"},
		{"system status", topics.SystemStatus(), "flockweigh/system/status"},
		{"all events", topics.AllDeviceEvents(), "flockweigh/device/+/+"},
		{"all commands", topics.AllDeviceCommands(), "flockweigh/command/+/+"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestParseDeviceCommand(t *testing.T) {
	tests := []struct {
		topic      string
		wantSerial string
		wantAction string
		wantOK     bool
	}{
		{"flockweigh/command/7001/reset", "7001", "reset", true},
		{"flockweigh/command/7001", "", "", false},
		{"flockweigh/command//reset", "", "", false},
		{"flockweigh/command/7001/reset/extra", "", "", false},
		{"flockweigh/device/7001/reset", "", "", false},
	}

	for _, tt := range tests {
		serial, action, ok := ParseDeviceCommand(tt.topic)
		if serial != tt.wantSerial || action != tt.wantAction || ok != tt.wantOK {
			t.Errorf("ParseDeviceCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.topic, serial, action, ok, tt.wantSerial, tt.wantAction, tt.wantOK)
		}
	}
}
