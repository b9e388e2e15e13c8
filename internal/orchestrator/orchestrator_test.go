package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keyfold/keyfold-core/internal/adapters"
	"github.com/keyfold/keyfold-core/internal/device"
	"github.com/keyfold/keyfold-core/internal/hierarchy"
)

// fakeAdapter scripts responses per method and counts invocations.
type fakeAdapter struct {
	name string

	devices  []*device.Device
	fetchErr error

	stateDevice *device.Device
	stateErr    error
	stateCalls  int

	cmdDevice *device.Device
	cmdErr    error
	cmdCalls  int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) FetchDevices(context.Context) ([]*device.Device, error) {
	return f.devices, f.fetchErr
}

func (f *fakeAdapter) DeviceState(context.Context, string) (*device.Device, error) {
	f.stateCalls++
	return f.stateDevice, f.stateErr
}

func (f *fakeAdapter) ExecuteCommand(context.Context, string, device.Command) (*device.Device, error) {
	f.cmdCalls++
	return f.cmdDevice, f.cmdErr
}

func (f *fakeAdapter) RefreshAuth(context.Context) error { return nil }
func (f *fakeAdapter) RevokeAuth(context.Context) error  { return nil }

// memHistory collects appended records in memory.
type memHistory struct {
	records []device.AccessRecord
}

func (m *memHistory) Append(_ context.Context, record *device.AccessRecord) error {
	m.records = append(m.records, *record)
	return nil
}

func (m *memHistory) History(_ context.Context, deviceID string, _ int) ([]device.AccessRecord, error) {
	var out []device.AccessRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].DeviceID == deviceID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *memHistory) Prune(context.Context, time.Duration) (int64, error) { return 0, nil }

// fakePlacements serves placements from a map.
type fakePlacements struct {
	placements map[string]hierarchy.Placement
}

func (f *fakePlacements) Get(_ context.Context, deviceID string) (*hierarchy.Placement, error) {
	p, ok := f.placements[deviceID]
	if !ok {
		return nil, hierarchy.ErrPlacementNotFound
	}
	return &p, nil
}

func (f *fakePlacements) All(context.Context) (map[string]hierarchy.Placement, error) {
	return f.placements, nil
}

func lockDevice(id string) *device.Device {
	return &device.Device{ID: id, Kind: device.KindLock, IsOnline: true, RemoteOperationEnabled: true}
}

func netErr(vendor string) error {
	return adapters.NewError(vendor, "op", adapters.ClassNetwork, errors.New("unreachable"))
}

func notFoundErr(vendor string) error {
	return adapters.NewError(vendor, "op", adapters.ClassNotFound, nil)
}

func TestListDevicesPartialFailure(t *testing.T) {
	a1 := &fakeAdapter{name: "v1", devices: []*device.Device{lockDevice("d1"), lockDevice("d2")}}
	a2 := &fakeAdapter{name: "v2", fetchErr: netErr("v2")}
	a3 := &fakeAdapter{name: "v3", devices: []*device.Device{lockDevice("d3")}}

	o := New([]adapters.Adapter{a1, a2, a3}, nil, nil, nil)

	devices, err := o.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 3 {
		t.Errorf("expected 3 devices with the failing adapter omitted, got %d", len(devices))
	}
}

func TestListDevicesAllFail(t *testing.T) {
	firstErr := netErr("v1")
	a1 := &fakeAdapter{name: "v1", fetchErr: firstErr}
	a2 := &fakeAdapter{name: "v2", fetchErr: netErr("v2")}

	o := New([]adapters.Adapter{a1, a2}, nil, nil, nil)

	_, err := o.ListDevices(context.Background())
	if !errors.Is(err, firstErr) {
		t.Errorf("expected the first adapter's error, got %v", err)
	}
}

func TestListDevicesNoAdapters(t *testing.T) {
	o := New(nil, nil, nil, nil)
	if _, err := o.ListDevices(context.Background()); !errors.Is(err, ErrNoAdapters) {
		t.Errorf("expected ErrNoAdapters, got %v", err)
	}
}

func TestListDevicesDecoratesPlacements(t *testing.T) {
	unitID := "un-1"
	placements := &fakePlacements{placements: map[string]hierarchy.Placement{
		"d1": {DeviceID: "d1", PropertyID: "pr-1", UnitID: &unitID},
	}}
	a1 := &fakeAdapter{name: "v1", devices: []*device.Device{lockDevice("d1"), lockDevice("d2")}}

	o := New([]adapters.Adapter{a1}, placements, nil, nil)

	devices, err := o.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if devices[0].PropertyID == nil || *devices[0].PropertyID != "pr-1" {
		t.Errorf("d1 property: %v", devices[0].PropertyID)
	}
	if devices[0].UnitID == nil || *devices[0].UnitID != "un-1" {
		t.Errorf("d1 unit: %v", devices[0].UnitID)
	}
	if devices[1].PropertyID != nil {
		t.Error("unplaced device should stay without placement")
	}
}

func TestDeviceStateSequentialProbe(t *testing.T) {
	a1 := &fakeAdapter{name: "v1", stateErr: notFoundErr("v1")}
	a2 := &fakeAdapter{name: "v2", stateDevice: lockDevice("d7")}
	a3 := &fakeAdapter{name: "v3", stateErr: netErr("v3")}

	o := New([]adapters.Adapter{a1, a2, a3}, nil, nil, nil)

	dev, err := o.DeviceState(context.Background(), "d7")
	if err != nil {
		t.Fatalf("DeviceState: %v", err)
	}
	if dev.ID != "d7" {
		t.Errorf("device = %s, want d7", dev.ID)
	}

	// First success stops the probe: the unreachable third adapter is
	// never invoked.
	if a1.stateCalls != 1 || a2.stateCalls != 1 {
		t.Errorf("probe calls: a1=%d a2=%d, want 1 each", a1.stateCalls, a2.stateCalls)
	}
	if a3.stateCalls != 0 {
		t.Errorf("a3 calls = %d, want 0", a3.stateCalls)
	}
}

func TestDeviceStateLastErrorSurfaces(t *testing.T) {
	probeErr := netErr("v1")
	a1 := &fakeAdapter{name: "v1", stateErr: probeErr}
	a2 := &fakeAdapter{name: "v2", stateErr: notFoundErr("v2")}

	o := New([]adapters.Adapter{a1, a2}, nil, nil, nil)

	_, err := o.DeviceState(context.Background(), "d-x")
	if !errors.Is(err, probeErr) {
		t.Errorf("expected the remembered probe error, got %v", err)
	}

	// Pure not-found across the board defaults to ErrDeviceNotFound.
	a1.stateErr = notFoundErr("v1")
	_, err = o.DeviceState(context.Background(), "d-x")
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestExecuteCommandUnsupportedTriesNext(t *testing.T) {
	a1 := &fakeAdapter{name: "v1", cmdErr: adapters.NewError("v1", "executeCommand", adapters.ClassUnsupported, nil)}
	a2 := &fakeAdapter{name: "v2", cmdDevice: func() *device.Device {
		d := lockDevice("d1")
		d.Lock = &device.LockStatus{State: device.StateLocked}
		return d
	}()}

	history := &memHistory{}
	o := New([]adapters.Adapter{a1, a2}, nil, history, nil)

	dev, err := o.ExecuteCommand(context.Background(), "u1", "d1", device.Command{Operation: device.OpLock})
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if dev.Lock.State != device.StateLocked {
		t.Errorf("state = %s, want locked", dev.Lock.State)
	}
	if a1.cmdCalls != 1 || a2.cmdCalls != 1 {
		t.Errorf("cmd calls: a1=%d a2=%d", a1.cmdCalls, a2.cmdCalls)
	}

	if len(history.records) != 1 {
		t.Fatalf("expected exactly 1 access record, got %d", len(history.records))
	}
	record := history.records[0]
	if !record.Success || record.Operation != device.OpLock || record.UserID != "u1" {
		t.Errorf("record = %+v", record)
	}
}

func TestExecuteCommandFailureRecorded(t *testing.T) {
	cmdErr := adapters.NewError("v1", "executeCommand", adapters.ClassOperationFailed, errors.New("bolt stuck"))
	a1 := &fakeAdapter{name: "v1", cmdErr: cmdErr}

	history := &memHistory{}
	o := New([]adapters.Adapter{a1}, nil, history, nil)

	_, err := o.ExecuteCommand(context.Background(), "u1", "d1", device.Command{Operation: device.OpUnlock})
	if !errors.Is(err, cmdErr) {
		t.Fatalf("expected the command error, got %v", err)
	}

	if len(history.records) != 1 {
		t.Fatalf("expected exactly 1 access record, got %d", len(history.records))
	}
	record := history.records[0]
	if record.Success {
		t.Error("record should be a failure")
	}
	if record.FailureReason == nil {
		t.Error("failure reason should be set")
	}
}

func TestExecuteCommandRejectsNonCommandable(t *testing.T) {
	a1 := &fakeAdapter{name: "v1"}
	o := New([]adapters.Adapter{a1}, nil, nil, nil)

	_, err := o.ExecuteCommand(context.Background(), "u1", "d1",
		device.Command{Operation: device.OpViewAccessHistory})
	if !errors.Is(err, device.ErrInvalidCommand) {
		t.Errorf("expected ErrInvalidCommand, got %v", err)
	}
	if a1.cmdCalls != 0 {
		t.Error("no adapter should be invoked for an invalid command")
	}
}

func TestEventsPublishedOnCommand(t *testing.T) {
	published := 0
	a1 := &fakeAdapter{name: "v1", cmdDevice: lockDevice("d1")}

	o := New([]adapters.Adapter{a1}, nil, nil, nil)
	o.SetEventPublisher(eventFunc(func(*device.Device, device.Operation) {
		published++
	}))

	if _, err := o.ExecuteCommand(context.Background(), "u1", "d1",
		device.Command{Operation: device.OpLock}); err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if published != 1 {
		t.Errorf("published = %d, want 1", published)
	}
}

// eventFunc adapts a function to the EventPublisher interface.
type eventFunc func(*device.Device, device.Operation)

func (f eventFunc) DeviceStateChanged(dev *device.Device, op device.Operation) { f(dev, op) }
