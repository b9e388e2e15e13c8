package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/keyfold/keyfold-core/internal/adapters"
	"github.com/keyfold/keyfold-core/internal/device"
	"github.com/keyfold/keyfold-core/internal/hierarchy"
)

// ErrNoAdapters is returned when no vendor adapters are registered.
var ErrNoAdapters = errors.New("orchestrator: no adapters registered")

// Placements decorates fetched devices with their hierarchy position.
type Placements interface {
	Get(ctx context.Context, deviceID string) (*hierarchy.Placement, error)
	All(ctx context.Context) (map[string]hierarchy.Placement, error)
}

// EventPublisher receives device state changes, e.g. for MQTT fan-out.
// Implementations must not block.
type EventPublisher interface {
	DeviceStateChanged(dev *device.Device, op device.Operation)
}

// Telemetry receives command timings and adapter failures.
type Telemetry interface {
	RecordCommand(vendor string, op device.Operation, elapsed time.Duration, success bool)
	RecordAdapterError(vendor, op string, class adapters.Class)
}

// Logger is the minimal logging interface the orchestrator needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Orchestrator aggregates vendor adapters behind one device API.
type Orchestrator struct {
	adapters   []adapters.Adapter
	placements Placements
	history    device.HistoryRepository
	logger     Logger

	events    EventPublisher
	telemetry Telemetry
}

// New creates an orchestrator. placements, history and logger may be nil;
// with a nil history, commands are not recorded.
func New(adapterList []adapters.Adapter, placements Placements, history device.HistoryRepository, logger Logger) *Orchestrator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Orchestrator{
		adapters:   adapterList,
		placements: placements,
		history:    history,
		logger:     logger,
	}
}

// SetEventPublisher attaches a device event publisher.
func (o *Orchestrator) SetEventPublisher(events EventPublisher) {
	o.events = events
}

// SetTelemetry attaches a telemetry sink.
func (o *Orchestrator) SetTelemetry(telemetry Telemetry) {
	o.telemetry = telemetry
}

// ListDevices fetches from every adapter concurrently and concatenates the
// results. A failing adapter is logged and omitted; the call only fails when
// every adapter fails, surfacing the first error encountered.
func (o *Orchestrator) ListDevices(ctx context.Context) ([]*device.Device, error) {
	if len(o.adapters) == 0 {
		return nil, ErrNoAdapters
	}

	results := make([][]*device.Device, len(o.adapters))
	errs := make([]error, len(o.adapters))

	// Fan out, join at the barrier. A failing adapter never cancels the rest.
	var wg sync.WaitGroup
	wg.Add(len(o.adapters))
	for i, adapter := range o.adapters {
		go func(i int, adapter adapters.Adapter) {
			defer wg.Done()
			results[i], errs[i] = adapter.FetchDevices(ctx)
		}(i, adapter)
	}
	wg.Wait()

	var devices []*device.Device
	failures := 0
	var firstErr error
	for i, adapter := range o.adapters {
		if errs[i] != nil {
			failures++
			if firstErr == nil {
				firstErr = errs[i]
			}
			o.logger.Warn("adapter fetch failed, omitting its devices",
				"vendor", adapter.Name(), "error", errs[i].Error())
			o.recordAdapterError(adapter.Name(), "fetchDevices", errs[i])
			continue
		}
		devices = append(devices, results[i]...)
	}

	if failures == len(o.adapters) {
		return nil, firstErr
	}

	o.decorateAll(ctx, devices)
	return devices, nil
}

// DeviceState probes adapters sequentially and returns the first success.
// A not-found answer moves to the next adapter; any other failure is
// remembered but probing continues, since a later adapter may still own the
// ID. With no success the last error surfaces, defaulting to not found.
func (o *Orchestrator) DeviceState(ctx context.Context, id string) (*device.Device, error) {
	if len(o.adapters) == 0 {
		return nil, ErrNoAdapters
	}

	var lastErr error
	for _, adapter := range o.adapters {
		dev, err := adapter.DeviceState(ctx, id)
		if err == nil {
			o.decorate(ctx, dev)
			return dev, nil
		}
		if adapters.IsNotFound(err) {
			continue
		}
		o.logger.Debug("adapter state probe failed, trying next",
			"vendor", adapter.Name(), "device_id", id, "error", err.Error())
		lastErr = err
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, device.ErrDeviceNotFound
}

// ExecuteCommand probes adapters sequentially until one executes the
// command, treating unsupported like not found since another adapter may
// still claim the ID. Exactly one access history record is appended for the
// attempt, whether it succeeded or failed.
func (o *Orchestrator) ExecuteCommand(ctx context.Context, userID, id string, cmd device.Command) (*device.Device, error) {
	if len(o.adapters) == 0 {
		return nil, ErrNoAdapters
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	var lastErr error
	for _, adapter := range o.adapters {
		dev, err := adapter.ExecuteCommand(ctx, id, cmd)
		if err == nil {
			o.decorate(ctx, dev)
			o.appendHistory(ctx, userID, id, cmd.Operation, true, nil)
			o.recordCommand(adapter.Name(), cmd.Operation, time.Since(started), true)
			if o.events != nil {
				o.events.DeviceStateChanged(dev, cmd.Operation)
			}
			return dev, nil
		}
		if adapters.IsNotFound(err) || adapters.IsUnsupported(err) {
			continue
		}
		o.logger.Debug("adapter command failed, trying next",
			"vendor", adapter.Name(), "device_id", id, "error", err.Error())
		o.recordAdapterError(adapter.Name(), "executeCommand", err)
		lastErr = err
	}

	if lastErr == nil {
		lastErr = device.ErrDeviceNotFound
	}
	reason := lastErr.Error()
	o.appendHistory(ctx, userID, id, cmd.Operation, false, &reason)
	o.recordCommand("", cmd.Operation, time.Since(started), false)
	return nil, lastErr
}

// AccessHistory returns recent access records for a device, newest first.
func (o *Orchestrator) AccessHistory(ctx context.Context, deviceID string, limit int) ([]device.AccessRecord, error) {
	if o.history == nil {
		return nil, nil
	}
	return o.history.History(ctx, deviceID, limit)
}

// RevokeAll revokes every adapter's credential, for shutdown or teardown.
// Failures are logged, not surfaced: revocation is best effort.
func (o *Orchestrator) RevokeAll(ctx context.Context) {
	for _, adapter := range o.adapters {
		if err := adapter.RevokeAuth(ctx); err != nil {
			o.logger.Warn("revoking adapter credential failed",
				"vendor", adapter.Name(), "error", err.Error())
		}
	}
}

// decorate attaches hierarchy placement to one fetched device.
func (o *Orchestrator) decorate(ctx context.Context, dev *device.Device) {
	if o.placements == nil || dev == nil {
		return
	}
	placement, err := o.placements.Get(ctx, dev.ID)
	if err != nil {
		if !errors.Is(err, hierarchy.ErrPlacementNotFound) {
			o.logger.Warn("placement lookup failed", "device_id", dev.ID, "error", err.Error())
		}
		return
	}
	dev.PropertyID = &placement.PropertyID
	dev.UnitID = placement.UnitID
}

// decorateAll attaches placements to a full listing in one query.
func (o *Orchestrator) decorateAll(ctx context.Context, devices []*device.Device) {
	if o.placements == nil || len(devices) == 0 {
		return
	}
	placements, err := o.placements.All(ctx)
	if err != nil {
		o.logger.Warn("placement listing failed", "error", err.Error())
		return
	}
	for _, dev := range devices {
		if placement, ok := placements[dev.ID]; ok {
			propertyID := placement.PropertyID
			dev.PropertyID = &propertyID
			dev.UnitID = placement.UnitID
		}
	}
}

// appendHistory records one command attempt. History failures are logged,
// never surfaced: the command outcome stands on its own.
func (o *Orchestrator) appendHistory(ctx context.Context, userID, deviceID string, op device.Operation, success bool, reason *string) {
	if o.history == nil {
		return
	}
	record := &device.AccessRecord{
		DeviceID:      deviceID,
		Operation:     op,
		UserID:        userID,
		Success:       success,
		FailureReason: reason,
	}
	if err := o.history.Append(ctx, record); err != nil {
		o.logger.Error("appending access history failed",
			"device_id", deviceID, "error", err.Error())
	}
}

func (o *Orchestrator) recordCommand(vendor string, op device.Operation, elapsed time.Duration, success bool) {
	if o.telemetry != nil {
		o.telemetry.RecordCommand(vendor, op, elapsed, success)
	}
}

func (o *Orchestrator) recordAdapterError(vendor, op string, err error) {
	if o.telemetry != nil {
		o.telemetry.RecordAdapterError(vendor, op, adapters.ClassOf(err))
	}
}
