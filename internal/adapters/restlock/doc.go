// Package restlock implements the adapter contract over a REST lock vendor
// API with bearer-token authentication.
//
// The vendor payload is decoded strictly into the canonical device model:
// optional fields the vendor omits stay absent (nil), never substituted with
// placeholder defaults, and unrecognised lock states map to the explicit
// unknown state. Expired tokens are renewed through a single-flight refresh
// and the failed call is replayed once.
package restlock
