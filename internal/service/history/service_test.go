package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/cds-engine/internal/model"
	"github.com/jwalitptl/cds-engine/internal/repository/kv"
	"github.com/jwalitptl/cds-engine/internal/service/audit"
	"github.com/jwalitptl/cds-engine/internal/service/cds"
	apperrors "github.com/jwalitptl/cds-engine/pkg/errors"
	"github.com/jwalitptl/cds-engine/pkg/metrics"
	"github.com/jwalitptl/cds-engine/pkg/store/memory"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	ctx     context.Context
	clock   *clock
	store   *memory.Store
	audit   *audit.Service
	history *Service
	engine  *cds.Engine
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		clock:   &clock{t: time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)},
		store:   memory.New(),
		metrics: metrics.NewMetrics("cds", "test", prometheus.NewRegistry()),
	}
	f.audit = audit.NewService(kv.NewAuditRepository(f.store, "", nil), nil, audit.WithClock(f.clock.now))
	f.history = NewService(kv.NewHistoryRepository(f.store, "", nil), f.audit, nil,
		WithClock(f.clock.now), WithMetrics(f.metrics))
	f.engine = cds.NewEngine(nil, nil, cds.WithClock(f.clock.now))
	return f
}

func (f *fixture) crisisAlert(t *testing.T) model.CDSAlert {
	t.Helper()
	alerts := f.engine.EvaluatePatient(model.PatientContext{
		Vitals: &model.VitalSigns{SystolicBP: model.Float(185), DiastolicBP: model.Float(125)},
	})
	require.Len(t, alerts, 1)
	return alerts[0]
}

func TestSaveAlert(t *testing.T) {
	f := newFixture(t)

	h, err := f.history.SaveAlert(f.ctx, "patient-1", f.crisisAlert(t))
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, model.StatusActive, h.Status)
	assert.Equal(t, "patient-1", h.PatientID)

	got, err := f.history.GetHistoryEntry(f.ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, h.Alert.RuleID, got.Alert.RuleID)

	log := f.audit.GetAuditLog(f.ctx, "patient-1")
	require.Len(t, log, 1)
	assert.Equal(t, model.AuditAlertTriggered, log[0].Action)
	assert.Equal(t, h.ID, log[0].AlertID)

	_, err = f.history.SaveAlert(f.ctx, "", f.crisisAlert(t))
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))
}

func TestLifecycle_AcknowledgeThenResolve(t *testing.T) {
	f := newFixture(t)
	h, err := f.history.SaveAlert(f.ctx, "patient-1", f.crisisAlert(t))
	require.NoError(t, err)
	before := len(f.audit.GetAuditLog(f.ctx, ""))

	f.clock.advance(5 * time.Minute)
	require.NoError(t, f.history.AcknowledgeAlert(f.ctx, h.ID, "dr-a", "reviewed"))
	acked, _ := f.history.GetHistoryEntry(f.ctx, h.ID)
	require.NotNil(t, acked.AcknowledgedAt)
	firstStamp := *acked.AcknowledgedAt

	f.clock.advance(30 * time.Minute)
	require.NoError(t, f.history.ResolveAlert(f.ctx, h.ID, "dr-b", ""))

	final, err := f.history.GetHistoryEntry(f.ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, final.Status)
	assert.True(t, final.AcknowledgedAt.After(firstStamp))
	assert.Equal(t, "dr-b", final.AcknowledgedBy)
	assert.Equal(t, "reviewed", final.Notes)

	log := f.audit.GetAuditLog(f.ctx, "patient-1")
	require.Len(t, log, before+2)
	assert.Equal(t, model.AuditAlertResolved, log[0].Action)
	assert.Equal(t, model.AuditAlertAcknowledged, log[1].Action)
	for _, e := range log[:2] {
		assert.Equal(t, h.ID, e.AlertID)
		assert.Equal(t, "patient-1", e.PatientID)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LifecycleTransitions.WithLabelValues("alert_resolved", "ok")))
}

func TestLifecycle_TerminalStatesRejectTransitions(t *testing.T) {
	for _, terminal := range []model.AlertStatus{model.StatusDismissed, model.StatusResolved} {
		t.Run(string(terminal), func(t *testing.T) {
			f := newFixture(t)
			h, err := f.history.SaveAlert(f.ctx, "p", f.crisisAlert(t))
			require.NoError(t, err)

			if terminal == model.StatusDismissed {
				require.NoError(t, f.history.DismissAlert(f.ctx, h.ID, "", ""))
			} else {
				require.NoError(t, f.history.ResolveAlert(f.ctx, h.ID, "", ""))
			}
			logged := len(f.audit.GetAuditLog(f.ctx, ""))

			for _, op := range []func(context.Context, string, string, string) error{
				f.history.AcknowledgeAlert, f.history.DismissAlert, f.history.ResolveAlert,
			} {
				err := op(f.ctx, h.ID, "x", "again")
				assert.Equal(t, apperrors.ErrInvalidTransition, apperrors.CodeOf(err))
			}

			got, _ := f.history.GetHistoryEntry(f.ctx, h.ID)
			assert.Equal(t, terminal, got.Status)
			assert.Empty(t, got.Notes)
			assert.Len(t, f.audit.GetAuditLog(f.ctx, ""), logged)
		})
	}
}

func TestLifecycle_AcknowledgedCannotBeReacknowledged(t *testing.T) {
	f := newFixture(t)
	h, _ := f.history.SaveAlert(f.ctx, "p", f.crisisAlert(t))

	require.NoError(t, f.history.AcknowledgeAlert(f.ctx, h.ID, "a", ""))
	err := f.history.AcknowledgeAlert(f.ctx, h.ID, "a", "")
	assert.Equal(t, apperrors.ErrInvalidTransition, apperrors.CodeOf(err))
	require.NoError(t, f.history.DismissAlert(f.ctx, h.ID, "a", "false positive"))
}

func TestLifecycle_UnknownID(t *testing.T) {
	f := newFixture(t)

	err := f.history.AcknowledgeAlert(f.ctx, "missing", "a", "")
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
	err = f.history.AddFollowUp(f.ctx, "missing", f.clock.now(), "")
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
	assert.Empty(t, f.audit.GetAuditLog(f.ctx, ""))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LifecycleTransitions.WithLabelValues("alert_acknowledged", "not_found")))
}

func TestAddFollowUp(t *testing.T) {
	f := newFixture(t)
	a, _ := f.history.SaveAlert(f.ctx, "p1", f.crisisAlert(t))
	b, _ := f.history.SaveAlert(f.ctx, "p2", f.crisisAlert(t))
	c, _ := f.history.SaveAlert(f.ctx, "p1", f.crisisAlert(t))

	require.NoError(t, f.history.AcknowledgeAlert(f.ctx, a.ID, "dr", "first"))
	require.NoError(t, f.history.AddFollowUp(f.ctx, a.ID, f.clock.now().Add(72*time.Hour), "recheck BP"))
	require.NoError(t, f.history.AddFollowUp(f.ctx, b.ID, f.clock.now().Add(24*time.Hour), ""))
	require.NoError(t, f.history.AddFollowUp(f.ctx, c.ID, f.clock.now().Add(48*time.Hour), ""))
	require.NoError(t, f.history.ResolveAlert(f.ctx, c.ID, "dr", ""))

	got, _ := f.history.GetHistoryEntry(f.ctx, a.ID)
	assert.Equal(t, model.StatusAcknowledged, got.Status)
	assert.True(t, got.FollowUpRequired)
	assert.Equal(t, "first\nrecheck BP", got.Notes)

	all := f.history.GetFollowUpAlerts(f.ctx, "")
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[0].ID)
	assert.Equal(t, a.ID, all[1].ID)

	p1 := f.history.GetFollowUpAlerts(f.ctx, "p1")
	require.Len(t, p1, 1)
	assert.Equal(t, a.ID, p1[0].ID)

	err := f.history.AddFollowUp(f.ctx, a.ID, time.Time{}, "")
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))

	followUps := 0
	for _, e := range f.audit.GetAuditLog(f.ctx, "") {
		if e.Action == model.AuditFollowUpAdded {
			followUps++
		}
	}
	assert.Equal(t, 3, followUps)
}

func TestReads(t *testing.T) {
	f := newFixture(t)
	first, _ := f.history.SaveAlert(f.ctx, "p1", f.crisisAlert(t))
	f.clock.advance(time.Hour)
	second, _ := f.history.SaveAlert(f.ctx, "p1", f.crisisAlert(t))
	_, _ = f.history.SaveAlert(f.ctx, "p2", f.crisisAlert(t))

	hist := f.history.GetPatientAlertHistory(f.ctx, "p1")
	require.Len(t, hist, 2)
	assert.Equal(t, second.ID, hist[0].ID)
	assert.Equal(t, first.ID, hist[1].ID)

	require.NoError(t, f.history.DismissAlert(f.ctx, second.ID, "", ""))
	active := f.history.GetActiveAlerts(f.ctx, "p1")
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)

	assert.Empty(t, f.history.GetPatientAlertHistory(f.ctx, "p3"))
}

func TestSaveAlerts_NoDeduplication(t *testing.T) {
	f := newFixture(t)
	alert := f.crisisAlert(t)

	saved, err := f.history.SaveAlerts(f.ctx, "p1", []model.CDSAlert{alert, alert})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.NotEqual(t, saved[0].ID, saved[1].ID)
	assert.Len(t, f.history.GetPatientAlertHistory(f.ctx, "p1"), 2)
	assert.Len(t, f.audit.GetAuditLog(f.ctx, "p1"), 2)
}

func TestRemoveTriggeredBefore(t *testing.T) {
	f := newFixture(t)
	old, _ := f.history.SaveAlert(f.ctx, "p1", f.crisisAlert(t))
	f.clock.advance(48 * time.Hour)
	cutoff := f.clock.now()
	onCutoff, _ := f.history.SaveAlert(f.ctx, "p1", f.crisisAlert(t))

	removed, err := f.history.RemoveTriggeredBefore(f.ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = f.history.GetHistoryEntry(f.ctx, old.ID)
	assert.Error(t, err)
	_, err = f.history.GetHistoryEntry(f.ctx, onCutoff.ID)
	assert.NoError(t, err)
}

type flakyStore struct {
	*memory.Store
	failSet bool
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	if s.failSet && key == kv.DefaultHistoryKey {
		return errors.New("write refused")
	}
	return s.Store.Set(ctx, key, value)
}

func TestWriteFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New()}
	auditSvc := audit.NewService(kv.NewAuditRepository(store, "", nil), nil)
	svc := NewService(kv.NewHistoryRepository(store, "", nil), auditSvc, nil)
	alert := cds.NewEngine(nil, nil).EvaluatePatient(model.PatientContext{
		AssessmentScores: map[string]model.AssessmentScore{"phq9-question9": {Score: 1}},
	})[0]

	h, err := svc.SaveAlert(ctx, "p1", alert)
	require.NoError(t, err)

	store.failSet = true
	assert.NoError(t, svc.AcknowledgeAlert(ctx, h.ID, "dr", ""))

	// the write was lost, so the stored entry is still active
	got, err := svc.GetHistoryEntry(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
}

func TestMalformedHistoryReadsEmpty(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set(f.ctx, kv.DefaultHistoryKey, `{"oops":`))

	assert.Empty(t, f.history.GetPatientAlertHistory(f.ctx, "p1"))
	_, err := f.history.SaveAlert(f.ctx, "p1", f.crisisAlert(t))
	require.NoError(t, err)
	assert.Len(t, f.history.GetPatientAlertHistory(f.ctx, "p1"), 1)
}
