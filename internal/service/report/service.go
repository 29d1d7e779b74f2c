// Package report aggregates and prunes the history and audit stores.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/cds-engine/internal/model"
	apperrors "github.com/jwalitptl/cds-engine/pkg/errors"
	"github.com/jwalitptl/cds-engine/pkg/logger"
	"github.com/jwalitptl/cds-engine/pkg/metrics"
)

type HistoryStore interface {
	GetPatientAlertHistory(ctx context.Context, patientID string) []model.CDSAlertHistory
	RemoveTriggeredBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type AuditStore interface {
	GetAuditLog(ctx context.Context, patientID string) []model.CDSAuditLog
	RemoveBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type Service struct {
	history HistoryStore
	audit   AuditStore
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(history HistoryStore, audit AuditStore, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		history: history,
		audit:   audit,
		log:     log.WithComponent("cds_report"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetPatientCDSStats counts the patient's entries by status, priority and category.
func (s *Service) GetPatientCDSStats(ctx context.Context, patientID string) model.CDSStats {
	return computeStats(s.history.GetPatientAlertHistory(ctx, patientID))
}

func computeStats(entries []model.CDSAlertHistory) model.CDSStats {
	stats := model.CDSStats{
		Total:      len(entries),
		BySeverity: map[model.Priority]int{},
		ByCategory: map[string]int{},
	}
	for _, h := range entries {
		switch h.Status {
		case model.StatusActive:
			stats.Active++
		case model.StatusAcknowledged:
			stats.Acknowledged++
		case model.StatusDismissed:
			stats.Dismissed++
		case model.StatusResolved:
			stats.Resolved++
		}
		stats.BySeverity[h.Alert.Priority]++
		stats.ByCategory[h.Alert.Category]++
	}
	return stats
}

// CleanupOldHistory applies one retention window to both stores.
func (s *Service) CleanupOldHistory(ctx context.Context, retentionDays int) (model.CleanupResult, error) {
	return s.ApplyRetentionPolicy(ctx, model.RetentionPolicy{HistoryDays: retentionDays, AuditDays: retentionDays})
}

// ApplyRetentionPolicy prunes history by alert trigger time and audit by entry timestamp,
// each against its own cutoff. Entries exactly on a cutoff are kept.
func (s *Service) ApplyRetentionPolicy(ctx context.Context, policy model.RetentionPolicy) (model.CleanupResult, error) {
	if policy.HistoryDays < 0 || policy.AuditDays < 0 {
		return model.CleanupResult{}, apperrors.BadRequest("retention days must not be negative", nil)
	}

	now := s.now().UTC()
	result := model.CleanupResult{
		HistoryCutoff: now.AddDate(0, 0, -policy.HistoryDays),
		AuditCutoff:   now.AddDate(0, 0, -policy.AuditDays),
	}

	var err error
	result.HistoryRemoved, err = s.history.RemoveTriggeredBefore(ctx, result.HistoryCutoff)
	if err != nil {
		return result, fmt.Errorf("history cleanup: %w", err)
	}
	result.AuditRemoved, err = s.audit.RemoveBefore(ctx, result.AuditCutoff)
	if err != nil {
		return result, fmt.Errorf("audit cleanup: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RetentionRemoved.WithLabelValues("history").Add(float64(result.HistoryRemoved))
		s.metrics.RetentionRemoved.WithLabelValues("audit").Add(float64(result.AuditRemoved))
	}
	s.log.Info("retention applied",
		"history_removed", result.HistoryRemoved,
		"audit_removed", result.AuditRemoved,
		"history_cutoff", result.HistoryCutoff,
		"audit_cutoff", result.AuditCutoff,
	)
	return result, nil
}

// ExportPatientCDSHistory is a read-only snapshot of everything held for one patient.
func (s *Service) ExportPatientCDSHistory(ctx context.Context, patientID string) model.CDSHistoryExport {
	history := s.history.GetPatientAlertHistory(ctx, patientID)
	return model.CDSHistoryExport{
		PatientID:  patientID,
		ExportedAt: s.now().UTC(),
		History:    history,
		AuditLog:   s.audit.GetAuditLog(ctx, patientID),
		Stats:      computeStats(history),
	}
}
