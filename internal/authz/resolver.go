package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/keyfold/keyfold-core/internal/device"
)

// PortfolioLookup resolves the owning portfolio of a property. Devices carry
// property and unit placement only; portfolio-level grants need this hop.
type PortfolioLookup interface {
	PortfolioForProperty(ctx context.Context, propertyID string) (string, error)
}

// Decision is the outcome of one authorisation check, handed to the audit
// sink whether granted or denied.
type Decision struct {
	UserID    string
	DeviceID  string
	Operation device.Operation
	Granted   bool
	// Matched describes the grant that permitted the operation, e.g.
	// "tenant@unit:un-1" or "guest". Empty on denial.
	Matched string
	// Reason is set on denial.
	Reason    DenyReason
	Timestamp time.Time
}

// AuditSink receives authorisation decisions. Implementations must not block;
// the resolver calls RecordDecision inline on every check.
type AuditSink interface {
	RecordDecision(decision Decision)
}

// Logger is the minimal logging interface the resolver needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// noopSink is an audit sink that does nothing.
type noopSink struct{}

func (noopSink) RecordDecision(Decision) {}

// Resolver answers whether a user may perform an operation on a device.
// It does no network I/O beyond the injected portfolio lookup.
type Resolver struct {
	portfolios PortfolioLookup
	audit      AuditSink
	logger     Logger
	now        func() time.Time
}

// NewResolver creates a resolver. audit and logger may be nil.
func NewResolver(portfolios PortfolioLookup, audit AuditSink, logger Logger) *Resolver {
	if audit == nil {
		audit = noopSink{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Resolver{
		portfolios: portfolios,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// CanPerform reports whether the user may perform the operation on the
// device. Denial is a false result, not an error; errors mean an input could
// not be resolved.
func (r *Resolver) CanPerform(ctx context.Context, user *User, op device.Operation, dev *device.Device) (bool, error) {
	decision, err := r.evaluate(ctx, user, op, dev)
	if err != nil {
		return false, err
	}
	r.audit.RecordDecision(*decision)
	return decision.Granted, nil
}

// Authorize is the throwing variant of CanPerform: it returns an
// UnauthorizedError on denial and nil on grant, auditing either way.
func (r *Resolver) Authorize(ctx context.Context, user *User, op device.Operation, dev *device.Device) error {
	decision, err := r.evaluate(ctx, user, op, dev)
	if err != nil {
		return err
	}
	r.audit.RecordDecision(*decision)
	if !decision.Granted {
		return &UnauthorizedError{
			UserID:    decision.UserID,
			DeviceID:  decision.DeviceID,
			Operation: string(decision.Operation),
			Reason:    decision.Reason,
		}
	}
	return nil
}

// Visible reports whether the device belongs in the user's device listing:
// the user holds view_status on it through a role association, or an active
// guest grant covers it. Unlike CanPerform, the live-state gates do not
// apply (an offline device is still listed, it just cannot be operated) and
// no audit decision is recorded.
func (r *Resolver) Visible(ctx context.Context, user *User, dev *device.Device) (bool, error) {
	if user == nil {
		return false, ErrUserNotFound
	}
	if dev == nil {
		return false, device.ErrDeviceNotFound
	}

	matched, err := r.walkAssociations(ctx, user, device.OpViewStatus, dev)
	if err != nil {
		return false, err
	}
	if matched != "" {
		return true, nil
	}

	if user.Guest != nil && user.Guest.matchesDevice(dev) && user.Guest.withinWindow(r.now()) {
		return true, nil
	}
	return false, nil
}

// evaluate runs the resolution algorithm and builds the decision record.
func (r *Resolver) evaluate(ctx context.Context, user *User, op device.Operation, dev *device.Device) (*Decision, error) {
	if user == nil {
		return nil, ErrUserNotFound
	}
	if dev == nil {
		return nil, device.ErrDeviceNotFound
	}
	if !op.IsValid() {
		return nil, fmt.Errorf("%w: %s", device.ErrInvalidOperation, op)
	}

	decision := &Decision{
		UserID:    user.ID,
		DeviceID:  dev.ID,
		Operation: op,
		Timestamp: r.now(),
	}

	// An unreachable device is denied to everyone, regardless of role strength.
	if !dev.IsOnline {
		decision.Reason = DenyDeviceOffline
		return decision, nil
	}

	// Remote operation can be switched off per device; state-changing
	// operations are refused before any vendor call is made.
	if op.IsStateChanging() && !dev.RemoteOperationEnabled {
		decision.Reason = DenyRemoteDisabled
		return decision, nil
	}

	matched, err := r.walkAssociations(ctx, user, op, dev)
	if err != nil {
		return nil, err
	}
	if matched != "" {
		decision.Granted = true
		decision.Matched = matched
		return decision, nil
	}

	// Guest fallback.
	if user.Guest != nil && guestAllows(op) && user.Guest.matchesDevice(dev) {
		if user.Guest.withinWindow(decision.Timestamp) {
			decision.Granted = true
			decision.Matched = "guest"
			return decision, nil
		}
		decision.Reason = DenyGuestExpired
		return decision, nil
	}

	decision.Reason = DenyInsufficientPermissions
	return decision, nil
}

// walkAssociations iterates the user's role associations in grant order and
// returns a description of the first permitting match, or "" if none grants
// access. Union semantics: one permitting association is sufficient.
func (r *Resolver) walkAssociations(ctx context.Context, user *User, op device.Operation, dev *device.Device) (string, error) {
	// The device's portfolio is resolved at most once per evaluation.
	portfolioID := ""
	portfolioResolved := false

	for _, assoc := range user.Associations {
		switch assoc.EntityType {
		case EntityUnit:
			if dev.UnitID != nil && assoc.EntityID == *dev.UnitID &&
				roleAllows(assoc.Role, EntityUnit, op) {
				return fmt.Sprintf("%s@unit:%s", assoc.Role, assoc.EntityID), nil
			}

		case EntityProperty:
			if dev.PropertyID != nil && assoc.EntityID == *dev.PropertyID &&
				roleAllows(assoc.Role, EntityProperty, op) {
				return fmt.Sprintf("%s@property:%s", assoc.Role, assoc.EntityID), nil
			}

		case EntityPortfolio:
			if dev.PropertyID == nil {
				continue
			}
			if !portfolioResolved {
				id, err := r.portfolios.PortfolioForProperty(ctx, *dev.PropertyID)
				if err != nil {
					return "", fmt.Errorf("resolving portfolio for property %s: %w", *dev.PropertyID, err)
				}
				portfolioID = id
				portfolioResolved = true
			}
			if assoc.EntityID == portfolioID && roleAllows(assoc.Role, EntityPortfolio, op) {
				return fmt.Sprintf("%s@portfolio:%s", assoc.Role, assoc.EntityID), nil
			}

		default:
			r.logger.Warn("skipping role association with unknown entity type",
				"user_id", user.ID, "entity_type", string(assoc.EntityType))
		}
	}
	return "", nil
}
