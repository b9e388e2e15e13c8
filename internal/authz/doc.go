// Package authz resolves whether a user may perform an operation on a device.
//
// Authorisation is hierarchical: a grant at portfolio, property or unit level
// covers every device reachable below it, subject to a per-level whitelist of
// operations for each role. Grants are unioned — a single matching, permitting
// association is sufficient. Users with no qualifying role association may
// still hold a time-boxed guest grant scoped to explicit device IDs.
//
// Denials are a normal typed result (UnauthorizedError with a DenyReason),
// not an internal error. Every decision, granted or denied, is handed to the
// audit sink without blocking the caller.
package authz
