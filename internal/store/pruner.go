package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
)

type pruneTarget interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner deletes cached riddles past their retention on a cron schedule.
type Pruner struct {
	store     pruneTarget
	expr      *cronexpr.Expression
	retention time.Duration
	logger    *log.Logger
	now       func() time.Time
}

func NewPruner(st *Store, spec string, retentionDays int, logger *log.Logger) (*Pruner, error) {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse prune schedule %q: %w", spec, err)
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Pruner{
		store:     st,
		expr:      expr,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Next returns the next scheduled run after t.
func (p *Pruner) Next(t time.Time) time.Time { return p.expr.Next(t) }

// RunOnce prunes everything older than the retention window.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	p.logger.Printf("pruned %d cached riddles older than %s", n, cutoff.Format(time.RFC3339))
	return n, nil
}

// Start blocks, pruning on schedule until ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	for {
		next := p.Next(p.now())
		if next.IsZero() {
			p.logger.Printf("prune schedule has no future runs, stopping")
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := p.RunOnce(ctx); err != nil {
				p.logger.Printf("prune failed: %v", err)
			}
		}
	}
}
