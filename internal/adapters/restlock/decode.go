package restlock

import (
	"fmt"
	"time"

	"github.com/keyfold/keyfold-core/internal/device"
)

// wireDevice is the vendor's device payload. Pointer fields are optional on
// the wire; absence is preserved, not defaulted.
type wireDevice struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Kind          string         `json:"kind"`
	Online        bool           `json:"online"`
	RemoteEnabled *bool          `json:"remote_enabled,omitempty"`
	Model         *string        `json:"model,omitempty"`
	Firmware      *string        `json:"firmware,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Lock          *wireLock      `json:"lock,omitempty"`
	UpdatedAt     *string        `json:"updated_at,omitempty"`
}

type wireLock struct {
	State   string `json:"state"`
	Battery *int   `json:"battery,omitempty"`
}

type wireDeviceList struct {
	Devices []wireDevice `json:"devices"`
}

type wireError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wireToken struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// toDevice converts a vendor payload into the canonical model.
func (w *wireDevice) toDevice(vendor string) (*device.Device, error) {
	if w.ID == "" {
		return nil, fmt.Errorf("device payload missing id")
	}

	dev := &device.Device{
		ID:       w.ID,
		Name:     w.Name,
		Vendor:   vendor,
		Kind:     parseKind(w.Kind),
		IsOnline: w.Online,
		// Vendors that do not expose the flag permit remote operation;
		// only an explicit false disables it.
		RemoteOperationEnabled: w.RemoteEnabled == nil || *w.RemoteEnabled,
		Model:                  w.Model,
		FirmwareVersion:        w.Firmware,
		Attributes:             w.Attributes,
	}

	if w.Lock != nil {
		dev.Lock = &device.LockStatus{
			State:        parseLockState(w.Lock.State),
			BatteryLevel: w.Lock.Battery,
		}
	}

	if w.UpdatedAt != nil {
		ts, err := time.Parse(time.RFC3339, *w.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at for device %s: %w", w.ID, err)
		}
		dev.StateUpdatedAt = &ts
	}

	return dev, nil
}

// parseKind maps vendor device kinds onto the canonical set. Anything
// unrecognised is treated as a sensor so it still lists without being
// commandable.
func parseKind(kind string) device.Kind {
	switch kind {
	case "lock", "deadbolt", "smart_lock":
		return device.KindLock
	case "thermostat":
		return device.KindThermostat
	default:
		return device.KindSensor
	}
}

// parseLockState maps vendor lock states onto the canonical set. Unknown
// values become the explicit unknown state rather than an error.
func parseLockState(state string) device.LockState {
	switch state {
	case "locked":
		return device.StateLocked
	case "unlocked":
		return device.StateUnlocked
	case "jammed":
		return device.StateJammed
	default:
		return device.StateUnknown
	}
}
