package authz

import (
	"time"

	"github.com/keyfold/keyfold-core/internal/device"
)

// Role is a named capability level grantable at a point in the hierarchy.
type Role string

// Role constants.
const (
	RoleTenant          Role = "tenant"
	RolePropertyManager Role = "property_manager"
	RolePortfolioAdmin  Role = "portfolio_admin"
	RoleOwner           Role = "owner"
)

// IsValid reports whether the role is one of the known values.
func (r Role) IsValid() bool {
	switch r {
	case RoleTenant, RolePropertyManager, RolePortfolioAdmin, RoleOwner:
		return true
	}
	return false
}

// EntityType identifies the hierarchy level a role association attaches to.
type EntityType string

// EntityType constants.
const (
	EntityPortfolio EntityType = "portfolio"
	EntityProperty  EntityType = "property"
	EntityUnit      EntityType = "unit"
)

// IsValid reports whether the entity type is one of the known values.
func (e EntityType) IsValid() bool {
	switch e {
	case EntityPortfolio, EntityProperty, EntityUnit:
		return true
	}
	return false
}

// RoleAssociation grants a role to a user at a specific entity.
type RoleAssociation struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Role       Role       `json:"role"`
	Position   int        `json:"position"`
	CreatedBy  *string    `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// GuestAccess is a time-boxed grant over explicit device IDs, independent of
// the role hierarchy. A user holds at most one guest grant.
type GuestAccess struct {
	UserID     string    `json:"user_id"`
	DeviceIDs  []string  `json:"device_ids"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`
	PropertyID *string   `json:"property_id,omitempty"`
	UnitID     *string   `json:"unit_id,omitempty"`
	CreatedBy  *string   `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Covers reports whether the grant reaches the given device at the given
// instant. The validity window is inclusive at both ends. Optional property
// and unit constraints must match the device's placement when set.
func (g *GuestAccess) Covers(dev *device.Device, now time.Time) bool {
	return g.matchesDevice(dev) && g.withinWindow(now)
}

// matchesDevice checks device ID membership and placement constraints,
// ignoring the validity window.
func (g *GuestAccess) matchesDevice(dev *device.Device) bool {
	if g == nil || dev == nil {
		return false
	}

	found := false
	for _, id := range g.DeviceIDs {
		if id == dev.ID {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	if g.PropertyID != nil {
		if dev.PropertyID == nil || *dev.PropertyID != *g.PropertyID {
			return false
		}
	}
	if g.UnitID != nil {
		if dev.UnitID == nil || *dev.UnitID != *g.UnitID {
			return false
		}
	}
	return true
}

// withinWindow checks the validity window, inclusive at both ends.
func (g *GuestAccess) withinWindow(now time.Time) bool {
	if g == nil {
		return false
	}
	return !now.Before(g.ValidFrom) && !now.After(g.ValidUntil)
}

// User is a platform account together with everything authorisation needs:
// its role associations (in grant order) and its guest grant, if any.
type User struct {
	ID           string            `json:"id"`
	DisplayName  string            `json:"display_name"`
	Email        *string           `json:"email,omitempty"`
	Associations []RoleAssociation `json:"associations,omitempty"`
	Guest        *GuestAccess      `json:"guest,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
