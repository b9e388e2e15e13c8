// Package hierarchy models the ownership tree that authorisation walks:
// portfolios contain properties, properties contain units, and devices are
// placed at either level through device placements.
//
// The tree is platform-owned data persisted in SQLite. Devices themselves are
// not stored here; a placement only pins a vendor device ID to its position so
// that grants higher up the tree can reach it.
package hierarchy
