// Package history persists triggered alerts per patient and drives their lifecycle.
package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/cds-engine/internal/model"
	"github.com/jwalitptl/cds-engine/internal/repository"
	apperrors "github.com/jwalitptl/cds-engine/pkg/errors"
	"github.com/jwalitptl/cds-engine/pkg/logger"
	"github.com/jwalitptl/cds-engine/pkg/metrics"
)

// AuditLogger records one entry per lifecycle event.
type AuditLogger interface {
	Log(ctx context.Context, action model.AuditAction, patientID, alertID, userID string, details map[string]interface{}) *model.CDSAuditLog
}

// Service owns the alert history collection.
//
// Every write is a whole-collection read-modify-write. mu serializes writers inside this
// process; two processes sharing one store can still lose each other's updates.
type Service struct {
	repo    repository.HistoryRepository
	audit   AuditLogger
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu sync.Mutex
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo repository.HistoryRepository, audit AuditLogger, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		repo:  repo,
		audit: audit,
		log:   log.WithComponent("cds_history"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveAlert stores alert as a new active entry for patientID.
func (s *Service) SaveAlert(ctx context.Context, patientID string, alert model.CDSAlert) (*model.CDSAlertHistory, error) {
	saved, err := s.SaveAlerts(ctx, patientID, []model.CDSAlert{alert})
	if err != nil {
		return nil, err
	}
	return &saved[0], nil
}

// SaveAlerts stores each alert as its own active entry in one write. Each stored alert
// is audited as alert_triggered. Alerts are never deduplicated against earlier entries.
func (s *Service) SaveAlerts(ctx context.Context, patientID string, alerts []model.CDSAlert) ([]model.CDSAlertHistory, error) {
	if patientID == "" {
		return nil, apperrors.BadRequest("patient id is required", nil)
	}
	if len(alerts) == 0 {
		return []model.CDSAlertHistory{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.repo.Load(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	saved := make([]model.CDSAlertHistory, 0, len(alerts))
	for _, a := range alerts {
		a.Dismissed = false
		saved = append(saved, model.CDSAlertHistory{
			ID:        uuid.NewString(),
			PatientID: patientID,
			Alert:     a,
			Status:    model.StatusActive,
		})
	}
	s.persist(ctx, append(entries, saved...), "save")

	for _, h := range saved {
		s.audit.Log(ctx, model.AuditAlertTriggered, patientID, h.ID, "", map[string]interface{}{
			"ruleId":   h.Alert.RuleID,
			"ruleName": h.Alert.RuleName,
			"priority": string(h.Alert.Priority),
			"category": h.Alert.Category,
		})
	}
	return saved, nil
}

func (s *Service) AcknowledgeAlert(ctx context.Context, historyID, by, notes string) error {
	return s.transition(ctx, historyID, model.StatusAcknowledged, by, notes, model.AuditAlertAcknowledged)
}

func (s *Service) DismissAlert(ctx context.Context, historyID, by, notes string) error {
	return s.transition(ctx, historyID, model.StatusDismissed, by, notes, model.AuditAlertDismissed)
}

func (s *Service) ResolveAlert(ctx context.Context, historyID, by, notes string) error {
	return s.transition(ctx, historyID, model.StatusResolved, by, notes, model.AuditAlertResolved)
}

// transition moves one entry along the status graph. A nil error is success; an unknown
// id or an illegal move returns an AppError and leaves both stores untouched.
func (s *Service) transition(ctx context.Context, historyID string, next model.AlertStatus, by, notes string, action model.AuditAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.repo.Load(ctx)
	if err != nil {
		s.observe(action, "error")
		return apperrors.Internal(err)
	}

	i := indexOf(entries, historyID)
	if i < 0 {
		s.observe(action, "not_found")
		return apperrors.NotFound("alert history entry "+historyID, nil)
	}

	entry := &entries[i]
	from := entry.Status
	if !from.CanTransition(next) {
		s.observe(action, "rejected")
		return apperrors.InvalidTransition(string(from), string(next))
	}

	now := s.now().UTC()
	entry.Status = next
	entry.AcknowledgedAt = &now
	if by != "" {
		entry.AcknowledgedBy = by
	}
	if notes != "" {
		entry.Notes = notes
	}
	s.persist(ctx, entries, string(action))

	details := map[string]interface{}{
		"from": string(from),
		"to":   string(next),
	}
	if notes != "" {
		details["notes"] = notes
	}
	s.audit.Log(ctx, action, entry.PatientID, entry.ID, by, details)
	s.observe(action, "ok")
	return nil
}

// AddFollowUp schedules a follow-up without touching the status. Notes are appended to any
// existing notes.
func (s *Service) AddFollowUp(ctx context.Context, historyID string, date time.Time, notes string) error {
	action := model.AuditFollowUpAdded
	if date.IsZero() {
		s.observe(action, "rejected")
		return apperrors.BadRequest("follow-up date is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.repo.Load(ctx)
	if err != nil {
		s.observe(action, "error")
		return apperrors.Internal(err)
	}

	i := indexOf(entries, historyID)
	if i < 0 {
		s.observe(action, "not_found")
		return apperrors.NotFound("alert history entry "+historyID, nil)
	}

	entry := &entries[i]
	date = date.UTC()
	entry.FollowUpRequired = true
	entry.FollowUpDate = &date
	if notes != "" {
		if entry.Notes != "" {
			entry.Notes += "\n" + notes
		} else {
			entry.Notes = notes
		}
	}
	s.persist(ctx, entries, string(action))

	details := map[string]interface{}{"followUpDate": date.Format(time.RFC3339)}
	if notes != "" {
		details["notes"] = notes
	}
	s.audit.Log(ctx, action, entry.PatientID, entry.ID, "", details)
	s.observe(action, "ok")
	return nil
}

// GetPatientAlertHistory returns the patient's entries, most recently triggered first.
func (s *Service) GetPatientAlertHistory(ctx context.Context, patientID string) []model.CDSAlertHistory {
	return s.filter(ctx, func(h model.CDSAlertHistory) bool {
		return h.PatientID == patientID
	})
}

// GetActiveAlerts returns the patient's entries still in the active state.
func (s *Service) GetActiveAlerts(ctx context.Context, patientID string) []model.CDSAlertHistory {
	return s.filter(ctx, func(h model.CDSAlertHistory) bool {
		return h.PatientID == patientID && h.Status == model.StatusActive
	})
}

// GetFollowUpAlerts lists unresolved entries needing follow-up, earliest due first.
// An empty patientID covers every patient.
func (s *Service) GetFollowUpAlerts(ctx context.Context, patientID string) []model.CDSAlertHistory {
	out := s.filter(ctx, func(h model.CDSAlertHistory) bool {
		return h.FollowUpRequired && h.Status != model.StatusResolved &&
			(patientID == "" || h.PatientID == patientID)
	})
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].FollowUpDate, out[j].FollowUpDate
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.Before(*b)
	})
	return out
}

func (s *Service) GetHistoryEntry(ctx context.Context, historyID string) (model.CDSAlertHistory, error) {
	entries, err := s.repo.Load(ctx)
	if err != nil {
		return model.CDSAlertHistory{}, apperrors.Internal(err)
	}
	i := indexOf(entries, historyID)
	if i < 0 {
		return model.CDSAlertHistory{}, apperrors.NotFound("alert history entry "+historyID, nil)
	}
	return entries[i], nil
}

// RemoveTriggeredBefore drops entries whose alert was triggered strictly before cutoff.
func (s *Service) RemoveTriggeredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.repo.Load(ctx)
	if err != nil {
		return 0, err
	}

	kept := entries[:0]
	for _, h := range entries {
		if !h.Alert.TriggeredAt.Before(cutoff) {
			kept = append(kept, h)
		}
	}
	removed := len(entries) - len(kept)
	if removed > 0 {
		s.persist(ctx, kept, "cleanup")
		s.log.Info("history entries removed", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

func (s *Service) filter(ctx context.Context, keep func(model.CDSAlertHistory) bool) []model.CDSAlertHistory {
	entries, _ := s.repo.Load(ctx)

	out := []model.CDSAlertHistory{}
	for i := len(entries) - 1; i >= 0; i-- {
		if keep(entries[i]) {
			out = append(out, entries[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Alert.TriggeredAt.After(out[j].Alert.TriggeredAt)
	})
	return out
}

// persist writes the collection. Failures are logged, not returned: the in-memory result
// the caller already holds stays valid, later reads will not see it.
func (s *Service) persist(ctx context.Context, entries []model.CDSAlertHistory, op string) {
	if err := s.repo.Save(ctx, entries); err != nil {
		s.log.Error(err, "failed to persist alert history", "operation", op)
	}
}

func (s *Service) observe(action model.AuditAction, result string) {
	if s.metrics != nil {
		s.metrics.LifecycleTransitions.WithLabelValues(string(action), result).Inc()
	}
}

func indexOf(entries []model.CDSAlertHistory, id string) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}
	return -1
}
