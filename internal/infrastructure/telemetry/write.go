package telemetry

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/keyfold/keyfold-core/internal/adapters"
	"github.com/keyfold/keyfold-core/internal/device"
)

// RecordCommand writes one device command measurement.
//
// The write is non-blocking; data is batched and sent asynchronously.
// A command that exhausted every adapter carries an empty vendor tag,
// recorded as "none".
//
// Parameters:
//   - vendor: The adapter that executed the command
//   - op: The device operation (lock, unlock, change_settings)
//   - elapsed: Wall time from dispatch to outcome, including retries
//   - success: Whether the command ultimately succeeded
func (c *Client) RecordCommand(vendor string, op device.Operation, elapsed time.Duration, success bool) {
	if !c.IsConnected() {
		return
	}
	if vendor == "" {
		vendor = "none"
	}

	point := write.NewPoint(
		"device_commands",
		map[string]string{
			"vendor":    vendor,
			"operation": string(op),
			"success":   strconv.FormatBool(success),
		},
		map[string]interface{}{
			"duration_ms": float64(elapsed.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordAdapterError writes one classified adapter failure.
//
// Parameters:
//   - vendor: The failing adapter
//   - op: The adapter operation (fetchDevices, executeCommand...)
//   - class: The failure classification (network, rate_limited...)
func (c *Client) RecordAdapterError(vendor, op string, class adapters.Class) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"adapter_errors",
		map[string]string{
			"vendor":    vendor,
			"operation": op,
			"class":     string(class),
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
