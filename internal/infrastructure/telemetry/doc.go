// Package telemetry records operational metrics in InfluxDB.
//
// This package manages:
//   - Connection to InfluxDB v2 with token authentication
//   - Non-blocking, batched metric writes
//   - Command timing and adapter failure measurements
//   - Connection health monitoring
//
// # Architecture
//
// The orchestrator reports every vendor command (duration, outcome) and
// every classified adapter failure. Writes are batched and flushed
// asynchronously so a slow or unavailable InfluxDB never delays a lock
// operation. Async write failures surface through an error callback.
//
// # Usage
//
//	sink, err := telemetry.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sink.Close()
//
//	sink.RecordCommand("restlock-main", device.OpLock, 420*time.Millisecond, true)
package telemetry
