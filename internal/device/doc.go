// Package device defines the canonical device model presented to callers.
//
// Devices are a volatile projection: they are fetched live from vendor
// adapters on every call and are never authoritatively persisted by the
// core. The only durable device data is the append-only access history,
// which records every state-changing operation attempted on a device.
//
// Vendor payloads are normalised into this model by the adapters. Fields a
// vendor does not report stay absent (nil pointers) rather than being
// substituted with placeholder defaults, and an unrecognised lock state
// maps to StateUnknown.
package device
