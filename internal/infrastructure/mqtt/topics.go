package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes.
//
// Device topics use the scheme flockweigh/device/{serial}/{kind}; operator
// commands arrive on flockweigh/command/{serial}/{action}.
const (
	TopicPrefix        = "flockweigh"
	TopicPrefixDevice  = "flockweigh/device"
	TopicPrefixCommand = "flockweigh/command"
	TopicPrefixSystem  = "flockweigh/system"
)

// Topics provides builders for Flockweigh MQTT topics.
//
//	topic := mqtt.Topics{}.DeviceEvent("7001", "calibration.step")
//	// Returns: "flockweigh/device/7001/calibration.step"
type Topics struct{}

// DeviceEvent returns the topic a device event of the given kind is published on.
func (Topics) DeviceEvent(serial, kind string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevice, serial, kind)
}

// DeviceCommand returns the topic an operator command for a device is received on.
//
// Example: flockweigh/command/7001/reset
func (Topics) DeviceCommand(serial, action string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixCommand, serial, action)
}

// SystemStatus returns the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllDeviceEvents matches every device event.
//
// Pattern: flockweigh/device/+/+
func (Topics) AllDeviceEvents() string {
	return TopicPrefixDevice + "/+/+"
}

// AllDeviceCommands matches every operator command.
//
// Pattern: flockweigh/command/+/+
func (Topics) AllDeviceCommands() string {
	return TopicPrefixCommand + "/+/+"
}

// ParseDeviceCommand splits a command topic into serial and action.
// ok is false when topic is not a well-formed command topic.
func ParseDeviceCommand(topic string) (serial, action string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixCommand+"/")
	if !found {
		return "", "", false
	}
	serial, action, found = strings.Cut(rest, "/")
	if !found || serial == "" || action == "" || strings.Contains(action, "/") {
		return "", "", false
	}
	return serial, action, true
}
