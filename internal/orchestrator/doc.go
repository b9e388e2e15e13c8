// Package orchestrator aggregates vendor adapters behind one device API.
//
// Listing fans out to every adapter concurrently and joins at a barrier; a
// failing adapter is logged and its devices omitted, and only total failure
// surfaces an error. State reads and commands probe adapters sequentially in
// registration order — device IDs are adapter-scoped, so the first success
// wins and speculative concurrent calls would only burn vendor rate-limit
// budget.
//
// Fetched devices are decorated with their hierarchy placement before being
// returned; every state-changing command appends exactly one access history
// record, success or failure.
package orchestrator
