// Package adapters defines the contract vendor lock integrations implement
// and the shared machinery every integration needs: error classification,
// retry with exponential backoff, minimum inter-request spacing, and
// single-flight credential refresh.
//
// Device IDs are adapter-scoped: an ID only has meaning to the vendor that
// issued it, which is why the orchestrator probes adapters in order rather
// than broadcasting.
package adapters
