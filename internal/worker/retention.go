package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/cds-engine/internal/model"
	"github.com/jwalitptl/cds-engine/pkg/logger"
)

// Retainer applies a retention policy to the history and audit stores.
type Retainer interface {
	ApplyRetentionPolicy(ctx context.Context, policy model.RetentionPolicy) (model.CleanupResult, error)
}

type RetentionWorker struct {
	retainer Retainer
	policy   model.RetentionPolicy
	interval time.Duration
	logger   *logger.Logger
}

func NewRetentionWorker(retainer Retainer, policy model.RetentionPolicy, interval time.Duration, log *logger.Logger) *RetentionWorker {
	if log == nil {
		log = logger.Nop()
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RetentionWorker{
		retainer: retainer,
		policy:   policy,
		interval: interval,
		logger:   log.WithComponent("retention_worker"),
	}
}

// Start runs one cleanup immediately and then on every tick until ctx is done.
func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("retention worker started",
		"interval", w.interval.String(),
		"history_days", w.policy.HistoryDays,
		"audit_days", w.policy.AuditDays,
	)
	w.run(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("retention worker stopped")
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

// RunOnce applies the policy a single time.
func (w *RetentionWorker) RunOnce(ctx context.Context) (model.CleanupResult, error) {
	return w.retainer.ApplyRetentionPolicy(ctx, w.policy)
}

func (w *RetentionWorker) run(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil {
		// Log error but continue
		w.logger.Error(err, "retention cleanup failed")
	}
}
