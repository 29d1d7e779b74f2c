package cds

import (
	"sort"
	"sync"
	"time"

	"github.com/mohae/deepcopy"

	"github.com/jwalitptl/cds-engine/internal/model"
	"github.com/jwalitptl/cds-engine/pkg/logger"
	"github.com/jwalitptl/cds-engine/pkg/metrics"
)

// Engine applies a rule catalog to patient contexts and keeps a running list of the
// alerts it produced. The running list is process memory only; persisting alerts is
// the history service's job. Past maxRunning entries the oldest alerts are dropped.
type Engine struct {
	mu         sync.RWMutex
	catalog    *Catalog
	alerts     []model.CDSAlert
	maxRunning int

	now     func() time.Time
	log     *logger.Logger
	metrics *metrics.Metrics
}

type Option func(*Engine)

// WithClock overrides the time source used for triggeredAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxRunningAlerts bounds the running list. Zero or less keeps every alert.
func WithMaxRunningAlerts(n int) Option {
	return func(e *Engine) { e.maxRunning = n }
}

func NewEngine(catalog *Catalog, log *logger.Logger, opts ...Option) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if log == nil {
		log = logger.Nop()
	}
	e := &Engine{
		catalog: catalog,
		alerts:  []model.CDSAlert{},
		now:     time.Now,
		log:     log.WithComponent("cds_engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics != nil {
		e.metrics.CatalogRules.Set(float64(catalog.Len()))
	}
	return e
}

// EvaluatePatient runs every enabled rule against pc and returns one alert per action of
// each matching rule, ordered by priority with catalog order kept among equals.
func (e *Engine) EvaluatePatient(pc model.PatientContext) []model.CDSAlert {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	triggeredAt := e.now().UTC()
	alerts := []model.CDSAlert{}
	for _, rule := range e.catalog.rules {
		if !rule.Enabled || !EvaluateRule(rule, &pc) {
			continue
		}
		for _, action := range rule.Actions {
			alerts = append(alerts, model.CDSAlert{
				RuleID:         rule.ID,
				RuleName:       rule.Name,
				Category:       rule.Category,
				Priority:       rule.Priority,
				Action:         action,
				TriggeredAt:    triggeredAt,
				PatientContext: snapshot(pc),
			})
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Priority.Rank() > alerts[j].Priority.Rank()
	})

	e.alerts = append(e.alerts, alerts...)
	if e.maxRunning > 0 && len(e.alerts) > e.maxRunning {
		e.alerts = append([]model.CDSAlert{}, e.alerts[len(e.alerts)-e.maxRunning:]...)
	}

	if e.metrics != nil {
		e.metrics.RuleEvaluations.Inc()
		e.metrics.EvaluationLatency.Observe(time.Since(start).Seconds())
		for _, a := range alerts {
			e.metrics.AlertsTriggered.WithLabelValues(string(a.Priority), a.Category).Inc()
		}
	}
	e.log.Debug("patient evaluated", "alerts", len(alerts))

	return alerts
}

// snapshot detaches the context from the caller's slices and maps.
func snapshot(pc model.PatientContext) model.PatientContext {
	return deepcopy.Copy(pc).(model.PatientContext)
}

// ActiveAlerts returns the running alerts that have not been dismissed.
func (e *Engine) ActiveAlerts() []model.CDSAlert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := []model.CDSAlert{}
	for _, a := range e.alerts {
		if !a.Dismissed {
			out = append(out, a)
		}
	}
	return out
}

func (e *Engine) AllAlerts() []model.CDSAlert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.CDSAlert{}, e.alerts...)
}

// DismissAlert flags every running alert of ruleID as dismissed and returns how many changed.
func (e *Engine) DismissAlert(ruleID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for i := range e.alerts {
		if e.alerts[i].RuleID == ruleID && !e.alerts[i].Dismissed {
			e.alerts[i].Dismissed = true
			n++
		}
	}
	return n
}

func (e *Engine) ClearAlerts() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = []model.CDSAlert{}
}

// AddRule appends a validated rule to the catalog. Only the in-memory catalog changes.
func (e *Engine) AddRule(rule model.CDSRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.catalog.Add(rule); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.CatalogRules.Set(float64(e.catalog.Len()))
	}
	e.log.Info("rule added", "rule_id", rule.ID, "category", rule.Category)
	return nil
}

func (e *Engine) ToggleRule(ruleID string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.catalog.SetEnabled(ruleID, enabled); err != nil {
		return err
	}
	e.log.Info("rule toggled", "rule_id", ruleID, "enabled", enabled)
	return nil
}

func (e *Engine) RulesByCategory(category string) []model.CDSRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.catalog.ByCategory(category)
}

func (e *Engine) RuleStats() model.RuleStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.catalog.Stats()
}

func (e *Engine) Rule(id string) (model.CDSRule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.catalog.Get(id)
}

func (e *Engine) Rules() []model.CDSRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.catalog.Rules()
}
