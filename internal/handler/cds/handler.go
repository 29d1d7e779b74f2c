package cds

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/cds-engine/internal/handler"
	"github.com/jwalitptl/cds-engine/internal/model"
	apperrors "github.com/jwalitptl/cds-engine/pkg/errors"
)

type Engine interface {
	EvaluatePatient(pc model.PatientContext) []model.CDSAlert
	ActiveAlerts() []model.CDSAlert
	AllAlerts() []model.CDSAlert
	DismissAlert(ruleID string) int
	ClearAlerts()
	AddRule(rule model.CDSRule) error
	ToggleRule(ruleID string, enabled bool) error
	RulesByCategory(category string) []model.CDSRule
	RuleStats() model.RuleStats
	Rule(id string) (model.CDSRule, bool)
	Rules() []model.CDSRule
}

type AlertSaver interface {
	SaveAlerts(ctx context.Context, patientID string, alerts []model.CDSAlert) ([]model.CDSAlertHistory, error)
}

type Handler struct {
	engine  Engine
	history AlertSaver
}

func NewHandler(engine Engine, history AlertSaver) *Handler {
	return &Handler{
		engine:  engine,
		history: history,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	cds := r.Group("/cds")
	{
		cds.POST("/evaluate", h.Evaluate)

		cds.GET("/alerts", h.ListAlerts)
		cds.DELETE("/alerts", h.ClearAlerts)
		cds.POST("/alerts/:ruleId/dismiss", h.DismissAlert)

		cds.GET("/rules", h.ListRules)
		cds.POST("/rules", h.AddRule)
		cds.GET("/rules/:id", h.GetRule)
		cds.PATCH("/rules/:id", h.ToggleRule)
		cds.GET("/rule-stats", h.RuleStats)
	}
}

type EvaluateRequest struct {
	PatientID string               `json:"patient_id" binding:"required_if=Persist true"`
	Persist   bool                 `json:"persist"`
	Context   model.PatientContext `json:"context"`
}

type EvaluateResponse struct {
	Alerts  []model.CDSAlert        `json:"alerts"`
	History []model.CDSAlertHistory `json:"history,omitempty"`
}

// Evaluate runs the catalog against the supplied context. With persist set, every alert
// is also stored as an active history entry for the patient.
func (h *Handler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindFail(c, err)
		return
	}

	resp := EvaluateResponse{Alerts: h.engine.EvaluatePatient(req.Context)}
	if req.Persist {
		saved, err := h.history.SaveAlerts(c.Request.Context(), req.PatientID, resp.Alerts)
		if err != nil {
			handler.Fail(c, err)
			return
		}
		resp.History = saved
	}

	handler.OK(c, resp)
}

func (h *Handler) ListAlerts(c *gin.Context) {
	if c.Query("active") == "true" {
		handler.OK(c, h.engine.ActiveAlerts())
		return
	}
	handler.OK(c, h.engine.AllAlerts())
}

func (h *Handler) DismissAlert(c *gin.Context) {
	n := h.engine.DismissAlert(c.Param("ruleId"))
	handler.OK(c, gin.H{"dismissed": n})
}

func (h *Handler) ClearAlerts(c *gin.Context) {
	h.engine.ClearAlerts()
	handler.OK(c, gin.H{"cleared": true})
}

type RuleQuery struct {
	Category string `form:"category"`
	Priority string `form:"priority" binding:"omitempty,cds_priority"`
}

func (h *Handler) ListRules(c *gin.Context) {
	var q RuleQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handler.BindFail(c, err)
		return
	}

	var rules []model.CDSRule
	if q.Category != "" {
		rules = h.engine.RulesByCategory(q.Category)
	} else {
		rules = h.engine.Rules()
	}

	if q.Priority != "" {
		filtered := rules[:0]
		for _, r := range rules {
			if r.Priority == model.Priority(q.Priority) {
				filtered = append(filtered, r)
			}
		}
		rules = filtered
	}

	handler.OK(c, rules)
}

func (h *Handler) GetRule(c *gin.Context) {
	id := c.Param("id")
	rule, ok := h.engine.Rule(id)
	if !ok {
		handler.Fail(c, apperrors.NotFound("rule "+id, nil))
		return
	}
	handler.OK(c, rule)
}

func (h *Handler) AddRule(c *gin.Context) {
	var rule model.CDSRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		handler.BindFail(c, err)
		return
	}
	if err := h.engine.AddRule(rule); err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, rule)
}

type ToggleRuleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) ToggleRule(c *gin.Context) {
	var req ToggleRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindFail(c, err)
		return
	}

	id := c.Param("id")
	if err := h.engine.ToggleRule(id, *req.Enabled); err != nil {
		handler.Fail(c, err)
		return
	}

	rule, _ := h.engine.Rule(id)
	handler.OK(c, rule)
}

func (h *Handler) RuleStats(c *gin.Context) {
	handler.OK(c, h.engine.RuleStats())
}
