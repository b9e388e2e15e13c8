package mqtt

import "fmt"

// Topic roots for the Keyfold event bus. Everything lives under
// keyfold/{category}/...
const (
	// TopicPrefixDevice roots the per-device topics.
	TopicPrefixDevice = "keyfold/device"

	// TopicPrefixEvent roots the platform event stream.
	TopicPrefixEvent = "keyfold/event"

	// TopicPrefixSystem roots the platform's own presence topics.
	TopicPrefixSystem = "keyfold/system"
)

// Topics builds the bus topic names, keeping them consistent between
// the publisher and the Last Will registration.
type Topics struct{}

// DeviceState is the retained per-device state topic, e.g.
// keyfold/device/dev-4a1f/state. Subscribers see the last known state
// immediately on subscribing.
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixDevice, deviceID)
}

// Event is the platform-wide event stream topic, e.g.
// keyfold/event/device_state_changed. Not retained.
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvent, eventType)
}

// SystemStatus is the platform presence topic, keyfold/system/status.
// Online/offline messages and the Last Will land here, retained.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
