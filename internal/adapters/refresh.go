package adapters

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// RefreshGroup coalesces concurrent credential refreshes: when several calls
// discover an expired credential at once, exactly one underlying refresh
// runs and all callers share its result.
type RefreshGroup struct {
	group singleflight.Group
}

// Do runs refresh once for all concurrent callers.
func (g *RefreshGroup) Do(ctx context.Context, refresh func(ctx context.Context) error) error {
	_, err, _ := g.group.Do("refresh", func() (any, error) {
		return nil, refresh(ctx)
	})
	return err
}
