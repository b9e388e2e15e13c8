package device

import (
	"context"
	"time"
)

// PrunerLogger is the minimal logging interface the pruner needs.
type PrunerLogger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopPrunerLogger is a logger that does nothing.
type noopPrunerLogger struct{}

func (noopPrunerLogger) Info(string, ...any)  {}
func (noopPrunerLogger) Error(string, ...any) {}

// HistoryPruner periodically deletes access records older than the
// retention window. One sweep runs immediately on start, then one per
// interval until the context is cancelled.
type HistoryPruner struct {
	history   HistoryRepository
	retention time.Duration
	interval  time.Duration
	logger    PrunerLogger
}

// NewHistoryPruner creates a pruner. logger may be nil.
func NewHistoryPruner(history HistoryRepository, retention, interval time.Duration, logger PrunerLogger) *HistoryPruner {
	if logger == nil {
		logger = noopPrunerLogger{}
	}
	return &HistoryPruner{
		history:   history,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, sweeping on the configured interval.
// A failed sweep is logged and retried on the next tick.
func (p *HistoryPruner) Run(ctx context.Context) {
	p.sweep(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep runs one prune pass.
func (p *HistoryPruner) sweep(ctx context.Context) {
	deleted, err := p.history.Prune(ctx, p.retention)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("access history prune failed", "error", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("access history pruned",
			"deleted", deleted,
			"retention", p.retention.String(),
		)
	}
}
