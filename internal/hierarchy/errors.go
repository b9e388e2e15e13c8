package hierarchy

import "errors"

var (
	// ErrPortfolioNotFound is returned when a portfolio ID does not exist.
	ErrPortfolioNotFound = errors.New("hierarchy: portfolio not found")

	// ErrPropertyNotFound is returned when a property ID does not exist.
	ErrPropertyNotFound = errors.New("hierarchy: property not found")

	// ErrUnitNotFound is returned when a unit ID does not exist.
	ErrUnitNotFound = errors.New("hierarchy: unit not found")

	// ErrPlacementNotFound is returned when a device has no placement.
	ErrPlacementNotFound = errors.New("hierarchy: placement not found")

	// ErrPortfolioHasProperties is returned when deleting a portfolio that
	// still contains properties.
	ErrPortfolioHasProperties = errors.New("hierarchy: portfolio still has properties")

	// ErrPropertyHasUnits is returned when deleting a property that still
	// contains units.
	ErrPropertyHasUnits = errors.New("hierarchy: property still has units")
)
