package event

import (
	"context"
	"time"
)

// Default retention settings.
const (
	DefaultRetention     = 7 * 24 * time.Hour
	DefaultPruneInterval = time.Hour
)

// Pruner periodically deletes events older than the retention window.
type Pruner struct {
	repo      Repository
	retention time.Duration
	interval  time.Duration
	logger    Logger
	now       func() time.Time
}

// NewPruner creates a pruner. Zero durations fall back to the defaults.
func NewPruner(repo Repository, retention, interval time.Duration) *Pruner {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	return &Pruner{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for the pruner.
func (p *Pruner) SetLogger(logger Logger) {
	p.logger = logger
}

// Run prunes once immediately, then on every tick until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.PruneOnce(ctx); err != nil {
			p.logger.Warn("event pruning failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PruneOnce deletes every event older than the retention window.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info("pruned events", "count", n, "before", cutoff.UTC().Format(time.RFC3339))
	}
	return n, nil
}
