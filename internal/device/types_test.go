package device

import "testing"

func TestOperation_IsStateChanging(t *testing.T) {
	changing := []Operation{OpLock, OpUnlock, OpChangeSettings}
	readOnly := []Operation{OpViewStatus, OpViewAccessHistory}

	for _, op := range changing {
		if !op.IsStateChanging() {
			t.Errorf("%s should be state-changing", op)
		}
	}
	for _, op := range readOnly {
		if op.IsStateChanging() {
			t.Errorf("%s should NOT be state-changing", op)
		}
	}
}

func TestOperation_RequestedState(t *testing.T) {
	if state, ok := OpLock.RequestedState(); !ok || state != StateLocked {
		t.Errorf("lock should request locked, got %q ok=%v", state, ok)
	}
	if state, ok := OpUnlock.RequestedState(); !ok || state != StateUnlocked {
		t.Errorf("unlock should request unlocked, got %q ok=%v", state, ok)
	}

	// Jammed and unknown are observed, never requested; nor do read or
	// settings operations request a state.
	for _, op := range []Operation{OpViewStatus, OpChangeSettings, OpViewAccessHistory} {
		if _, ok := op.RequestedState(); ok {
			t.Errorf("%s should not request a state", op)
		}
	}
}

func TestCommand_Validate(t *testing.T) {
	valid := []Command{
		{Operation: OpLock},
		{Operation: OpUnlock},
		{Operation: OpChangeSettings, Settings: map[string]any{"auto_lock_seconds": 30}},
	}
	for _, cmd := range valid {
		if err := cmd.Validate(); err != nil {
			t.Errorf("Validate(%s) error = %v", cmd.Operation, err)
		}
	}

	if err := (Command{Operation: OpViewStatus}).Validate(); err == nil {
		t.Error("view_status should not be commandable")
	}
	if err := (Command{Operation: Operation("explode")}).Validate(); err == nil {
		t.Error("unknown operation should fail validation")
	}
}

func TestLockState_IsValid(t *testing.T) {
	for _, state := range []LockState{StateLocked, StateUnlocked, StateJammed, StateUnknown} {
		if !state.IsValid() {
			t.Errorf("%s should be valid", state)
		}
	}
	if LockState("ajar").IsValid() {
		t.Error("unrecognised state should be invalid")
	}
}

func TestDevice_Clone(t *testing.T) {
	battery := 80
	unitID := "un-1"
	original := &Device{
		ID:         "d1",
		Name:       "Front Door",
		Vendor:     "lockwise",
		Kind:       KindLock,
		UnitID:     &unitID,
		IsOnline:   true,
		Attributes: map[string]any{"door_sense": "closed"},
		Lock:       &LockStatus{State: StateLocked, BatteryLevel: &battery},
	}

	clone := original.Clone()
	clone.Attributes["door_sense"] = "open"
	clone.Lock.State = StateUnlocked
	*clone.Lock.BatteryLevel = 10

	if original.Attributes["door_sense"] != "closed" {
		t.Error("clone mutation leaked into original attributes")
	}
	if original.Lock.State != StateLocked {
		t.Error("clone mutation leaked into original lock state")
	}
	if *original.Lock.BatteryLevel != 80 {
		t.Error("clone mutation leaked into original battery level")
	}

	var nilDevice *Device
	if nilDevice.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}
