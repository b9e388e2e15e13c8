// Package events fans device state changes out to the MQTT bus so
// dashboards and integrations can react without polling the API.
package events

import (
	"encoding/json"
	"time"

	"github.com/keyfold/keyfold-core/internal/device"
	"github.com/keyfold/keyfold-core/internal/infrastructure/mqtt"
)

// Bus is the publishing surface the event publisher needs from the MQTT
// client.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the minimal logging interface the publisher needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// StateEvent is the JSON payload published on device state changes.
type StateEvent struct {
	DeviceID   string    `json:"device_id"`
	Name       string    `json:"name,omitempty"`
	Kind       string    `json:"kind"`
	Operation  string    `json:"operation"`
	IsOnline   bool      `json:"is_online"`
	LockState  string    `json:"lock_state,omitempty"`
	Battery    *int      `json:"battery_level,omitempty"`
	PropertyID *string   `json:"property_id,omitempty"`
	UnitID     *string   `json:"unit_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher publishes device state changes to the MQTT bus. It satisfies
// the orchestrator's EventPublisher interface.
//
// Publishing happens on a separate goroutine per event: a slow or
// disconnected broker never stalls command execution. Failures are
// logged and the event is dropped.
type Publisher struct {
	bus    Bus
	qos    byte
	logger Logger
	now    func() time.Time
}

// NewPublisher creates an event publisher on top of an MQTT bus.
// logger may be nil.
func NewPublisher(bus Bus, qos byte, logger Logger) *Publisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Publisher{
		bus:    bus,
		qos:    qos,
		logger: logger,
		now:    time.Now,
	}
}

// DeviceStateChanged publishes the device's post-command state, retained,
// to its state topic and a non-retained copy to the platform event topic.
func (p *Publisher) DeviceStateChanged(dev *device.Device, op device.Operation) {
	if dev == nil {
		return
	}

	event := StateEvent{
		DeviceID:   dev.ID,
		Name:       dev.Name,
		Kind:       string(dev.Kind),
		Operation:  string(op),
		IsOnline:   dev.IsOnline,
		PropertyID: dev.PropertyID,
		UnitID:     dev.UnitID,
		Timestamp:  p.now().UTC(),
	}
	if dev.Lock != nil {
		event.LockState = string(dev.Lock.State)
		event.Battery = dev.Lock.BatteryLevel
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshalling device event failed",
			"device_id", dev.ID, "error", err.Error())
		return
	}

	go p.publish(dev.ID, payload)
}

// publish writes the retained state topic and the event stream topic.
func (p *Publisher) publish(deviceID string, payload []byte) {
	topics := mqtt.Topics{}

	if err := p.bus.Publish(topics.DeviceState(deviceID), payload, p.qos, true); err != nil {
		p.logger.Warn("publishing device state failed",
			"device_id", deviceID, "error", err.Error())
	}
	if err := p.bus.Publish(topics.Event("device_state_changed"), payload, p.qos, false); err != nil {
		p.logger.Warn("publishing device event failed",
			"device_id", deviceID, "error", err.Error())
	}
}
