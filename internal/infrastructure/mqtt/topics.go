package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every topic the hub publishes or subscribes to.
const TopicPrefix = "grayhub"

// Topics provides builders for the hub's MQTT topic hierarchy:
//
//	grayhub/system/status                          hub online/offline (retained)
//	grayhub/event/{eventType}/{deviceId}           recorded domain events
//	grayhub/announce/{driverId}/{localId}          device self-announcement (retained)
//	grayhub/command/{driverId}/{localId}/{command} command to a device
//	grayhub/report/{driverId}/{localId}            unsolicited state report from a device
type Topics struct{}

// SystemStatus returns the hub status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// Event returns the topic a recorded event is republished on.
func (Topics) Event(eventType, deviceID string) string {
	if deviceID == "" {
		deviceID = "_"
	}
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefix, eventType, deviceID)
}

// AllEvents matches every republished event.
func (Topics) AllEvents() string {
	return TopicPrefix + "/event/#"
}

// DeviceAnnounce returns the retained announcement topic for one device.
func (Topics) DeviceAnnounce(driverID, localID string) string {
	return fmt.Sprintf("%s/announce/%s/%s", TopicPrefix, driverID, localID)
}

// DriverAnnouncements matches every device announcement for a driver.
func (Topics) DriverAnnouncements(driverID string) string {
	return fmt.Sprintf("%s/announce/%s/+", TopicPrefix, driverID)
}

// DeviceCommand returns the topic a command for one device is published on.
func (Topics) DeviceCommand(driverID, localID, command string) string {
	return fmt.Sprintf("%s/command/%s/%s/%s", TopicPrefix, driverID, localID, command)
}

// DeviceReport returns the state report topic for one device.
func (Topics) DeviceReport(driverID, localID string) string {
	return fmt.Sprintf("%s/report/%s/%s", TopicPrefix, driverID, localID)
}

// DriverReports matches every state report for a driver.
func (Topics) DriverReports(driverID string) string {
	return fmt.Sprintf("%s/report/%s/+", TopicPrefix, driverID)
}

// ParseDeviceTopic extracts the driver and local device IDs from an
// announce or report topic.
func ParseDeviceTopic(topic string) (driverID, localID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix {
		return "", "", false
	}
	if parts[1] != "announce" && parts[1] != "report" {
		return "", "", false
	}
	if parts[2] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[2], parts[3], true
}
