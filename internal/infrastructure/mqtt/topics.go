package mqtt

import "fmt"

// Topic prefixes for the Tanklog MQTT namespace.
//
// Collectors publish raw reading batches under the readings prefix; the
// core answers with sync results and publishes its own availability under
// the system prefix.
const (
	// TopicPrefixRoot is the base for all Tanklog topics.
	TopicPrefixRoot = "tanklog"

	// TopicPrefixReadings is the base for inbound reading batches.
	// Scheme: tanklog/readings/{deviceType}/{deviceID}
	TopicPrefixReadings = "tanklog/readings"

	// TopicPrefixSync is the base for outbound sync results.
	TopicPrefixSync = "tanklog/sync"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "tanklog/system"
)

// Topics provides builders for Tanklog MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.Readings("tanks", "tank-main")
//	// Returns: "tanklog/readings/tanks/tank-main"
type Topics struct{}

// Readings returns the topic a collector publishes reading batches on.
//
// Example: tanklog/readings/tanks/tank-main
func (Topics) Readings(deviceType, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixReadings, deviceType, deviceID)
}

// SyncResult returns the topic the core publishes a batch's sync outcome on.
//
// Example: tanklog/sync/tanks/tank-main/result
func (Topics) SyncResult(deviceType, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/result", TopicPrefixSync, deviceType, deviceID)
}

// SystemStatus returns the core availability topic, also used as the LWT.
//
// Example: tanklog/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllReadings returns the pattern the ingest bridge subscribes with to
// receive reading batches from every device.
//
// Pattern: tanklog/readings/+/+
func (Topics) AllReadings() string {
	return fmt.Sprintf("%s/+/+", TopicPrefixReadings)
}
