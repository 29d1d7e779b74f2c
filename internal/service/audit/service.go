package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/cds-engine/internal/model"
	"github.com/jwalitptl/cds-engine/internal/repository"
	"github.com/jwalitptl/cds-engine/pkg/logger"
)

// Service is the append-only CDS audit trail. Entries are only ever removed by retention.
type Service struct {
	repo repository.AuditRepository
	log  *logger.Logger
	now  func() time.Time

	// mu serializes read-modify-write cycles within this process only.
	mu sync.Mutex
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo repository.AuditRepository, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		repo: repo,
		log:  log.WithComponent("cds_audit"),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Log appends one entry and returns it. Persistence failures are logged and swallowed;
// if the existing trail could not be read nothing is written so it is never clobbered.
func (s *Service) Log(ctx context.Context, action model.AuditAction, patientID, alertID, userID string, details map[string]interface{}) *model.CDSAuditLog {
	if details == nil {
		details = map[string]interface{}{}
	}
	entry := model.CDSAuditLog{
		ID:        uuid.NewString(),
		PatientID: patientID,
		Action:    action,
		AlertID:   alertID,
		UserID:    userID,
		Timestamp: s.now().UTC(),
		Details:   details,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.repo.Load(ctx)
	if err != nil {
		s.log.Error(err, "audit entry not persisted", "action", string(action), "alert_id", alertID)
		return &entry
	}
	entries = append(entries, entry)
	if err := s.repo.Save(ctx, entries); err != nil {
		s.log.Error(err, "failed to persist audit entry", "action", string(action), "alert_id", alertID)
	}
	return &entry
}

// GetAuditLog returns entries newest first, optionally limited to one patient.
// Entries with equal timestamps keep the most recently written first.
func (s *Service) GetAuditLog(ctx context.Context, patientID string) []model.CDSAuditLog {
	entries, _ := s.repo.Load(ctx)

	out := make([]model.CDSAuditLog, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if patientID == "" || entries[i].PatientID == patientID {
			out = append(out, entries[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// RemoveBefore drops entries whose timestamp is strictly before cutoff.
func (s *Service) RemoveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.repo.Load(ctx)
	if err != nil {
		return 0, err
	}

	kept := entries[:0]
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	if err := s.repo.Save(ctx, kept); err != nil {
		s.log.Error(err, "failed to persist audit cleanup", "cutoff", cutoff)
	}
	s.log.Info("audit entries removed", "removed", removed, "cutoff", cutoff)
	return removed, nil
}
