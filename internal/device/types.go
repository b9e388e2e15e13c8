package device

import "time"

// Kind classifies a device by its primary function.
type Kind string

// Kind constants.
const (
	KindLock       Kind = "lock"
	KindThermostat Kind = "thermostat"
	KindSensor     Kind = "sensor"
)

// Device is the vendor-agnostic view of a piece of hardware.
//
// PropertyID and UnitID come from the platform's placement table, not from
// the vendor; a device is reachable through at most one unit and,
// transitively, at most one property. Optional fields are pointers: absent
// means the vendor (or the platform) did not report a value.
type Device struct {
	// Identity
	ID     string `json:"id"`
	Name   string `json:"name"`
	Vendor string `json:"vendor"`

	// Placement in the ownership hierarchy (platform-assigned)
	PropertyID *string `json:"property_id,omitempty"`
	UnitID     *string `json:"unit_id,omitempty"`

	// Classification
	Kind Kind `json:"kind"`

	// Availability
	IsOnline               bool `json:"is_online"`
	RemoteOperationEnabled bool `json:"remote_operation_enabled"`

	// Metadata
	Model           *string `json:"model,omitempty"`
	FirmwareVersion *string `json:"firmware_version,omitempty"`

	// Attributes holds vendor-agnostic extras that don't warrant their own
	// field (e.g. {"door_sense": "closed"}).
	Attributes map[string]any `json:"attributes,omitempty"`

	// Lock is set when Kind == KindLock.
	Lock *LockStatus `json:"lock,omitempty"`

	// StateUpdatedAt is when the vendor last reported state, if known.
	StateUpdatedAt *time.Time `json:"state_updated_at,omitempty"`
}

// LockStatus holds the lock-specific portion of a device's state.
type LockStatus struct {
	State LockState `json:"state"`

	// BatteryLevel is a percentage (0-100). Absent if the vendor did not
	// report one.
	BatteryLevel *int `json:"battery_level,omitempty"`
}

// Clone returns an independent copy of the Device.
// Map fields and nested pointers are copied so modifications to the clone
// do not affect the original.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	if d.Attributes != nil {
		cpy.Attributes = make(map[string]any, len(d.Attributes))
		for k, v := range d.Attributes {
			cpy.Attributes[k] = v
		}
	}

	if d.Lock != nil {
		lock := *d.Lock
		if d.Lock.BatteryLevel != nil {
			level := *d.Lock.BatteryLevel
			lock.BatteryLevel = &level
		}
		cpy.Lock = &lock
	}

	// *string and *time.Time fields point at immutable values

	return &cpy
}

// LockState is the reported state of a lock.
type LockState string

// LockState constants. Jammed and unknown are only ever adapter-reported;
// they can never be requested by a command.
const (
	StateLocked   LockState = "locked"
	StateUnlocked LockState = "unlocked"
	StateJammed   LockState = "jammed"
	StateUnknown  LockState = "unknown"
)

// IsValid returns true for a recognised lock state.
func (s LockState) IsValid() bool {
	switch s {
	case StateLocked, StateUnlocked, StateJammed, StateUnknown:
		return true
	}
	return false
}

// Operation is an action a principal can attempt on a device.
type Operation string

// Operation constants.
const (
	OpLock              Operation = "lock"
	OpUnlock            Operation = "unlock"
	OpViewStatus        Operation = "view_status"
	OpChangeSettings    Operation = "change_settings"
	OpViewAccessHistory Operation = "view_access_history"
)

// AllOperations returns all valid operation values.
func AllOperations() []Operation {
	return []Operation{OpLock, OpUnlock, OpViewStatus, OpChangeSettings, OpViewAccessHistory}
}

// IsValid returns true for a recognised operation.
func (o Operation) IsValid() bool {
	for _, op := range AllOperations() {
		if o == op {
			return true
		}
	}
	return false
}

// IsStateChanging reports whether the operation mutates device state.
// State-changing operations append an access history record, win or lose.
func (o Operation) IsStateChanging() bool {
	switch o {
	case OpLock, OpUnlock, OpChangeSettings:
		return true
	}
	return false
}

// RequestedState returns the lock state a successful command transitions to,
// or false for operations that don't request a state.
func (o Operation) RequestedState() (LockState, bool) {
	switch o {
	case OpLock:
		return StateLocked, true
	case OpUnlock:
		return StateUnlocked, true
	}
	return "", false
}

// Command is a request for a device to perform an operation.
type Command struct {
	Operation Operation `json:"operation"`

	// Settings carries the new values for OpChangeSettings
	// (e.g. {"auto_lock_seconds": 30}).
	Settings map[string]any `json:"settings,omitempty"`
}

// Validate checks that the command is well-formed and requestable.
func (c Command) Validate() error {
	if !c.Operation.IsValid() {
		return ErrInvalidOperation
	}
	switch c.Operation {
	case OpLock, OpUnlock, OpChangeSettings:
		return nil
	default:
		// Read-only operations are served by state fetches, not commands.
		return ErrInvalidCommand
	}
}
