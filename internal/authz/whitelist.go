package authz

import "github.com/keyfold/keyfold-core/internal/device"

// grantKey pairs a role with the hierarchy level its association sits at.
// A role only carries weight at the levels listed in the whitelist: a
// property_manager association on a unit, for example, grants nothing.
type grantKey struct {
	role  Role
	level EntityType
}

// whitelist is the single source of truth for which operations each
// role/level pairing may perform.
var whitelist = map[grantKey][]device.Operation{
	{RoleTenant, EntityUnit}: {
		device.OpLock,
		device.OpUnlock,
		device.OpViewStatus,
	},
	{RolePropertyManager, EntityProperty}: {
		device.OpLock,
		device.OpUnlock,
		device.OpViewStatus,
		device.OpChangeSettings,
		device.OpViewAccessHistory,
	},
	{RolePortfolioAdmin, EntityPortfolio}: {
		device.OpLock,
		device.OpUnlock,
		device.OpViewStatus,
		device.OpChangeSettings,
		device.OpViewAccessHistory,
	},
	{RoleOwner, EntityPortfolio}: {
		device.OpLock,
		device.OpUnlock,
		device.OpViewStatus,
		device.OpChangeSettings,
		device.OpViewAccessHistory,
	},
}

// guestOperations are the only operations grantable through guest access.
var guestOperations = []device.Operation{
	device.OpLock,
	device.OpUnlock,
	device.OpViewStatus,
}

// roleAllows reports whether a role at a given level whitelists an operation.
func roleAllows(role Role, level EntityType, op device.Operation) bool {
	for _, allowed := range whitelist[grantKey{role, level}] {
		if allowed == op {
			return true
		}
	}
	return false
}

// guestAllows reports whether an operation is grantable to guests at all.
func guestAllows(op device.Operation) bool {
	for _, allowed := range guestOperations {
		if allowed == op {
			return true
		}
	}
	return false
}

// OperationsForRole returns the operations a role may perform at a level.
// Returns nil when the pairing grants nothing.
func OperationsForRole(role Role, level EntityType) []device.Operation {
	ops := whitelist[grantKey{role, level}]
	if ops == nil {
		return nil
	}
	result := make([]device.Operation, len(ops))
	copy(result, ops)
	return result
}
