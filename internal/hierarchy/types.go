package hierarchy

import "time"

// Portfolio is the top-level grouping of properties under one ownership.
type Portfolio struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Property is a managed building or site belonging to a portfolio.
type Property struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Unit is a leasable sub-division of a property.
type Unit struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Placement pins a vendor device ID to its position in the hierarchy.
// UnitID is nil for devices attached directly to a property (lobby doors,
// plant rooms). A device appears in at most one placement.
type Placement struct {
	DeviceID   string    `json:"device_id"`
	PropertyID string    `json:"property_id"`
	UnitID     *string   `json:"unit_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
