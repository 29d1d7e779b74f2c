package alert

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/cds-engine/internal/handler"
	"github.com/jwalitptl/cds-engine/internal/middleware"
	"github.com/jwalitptl/cds-engine/internal/model"
)

type HistoryService interface {
	SaveAlerts(ctx context.Context, patientID string, alerts []model.CDSAlert) ([]model.CDSAlertHistory, error)
	AcknowledgeAlert(ctx context.Context, historyID, by, notes string) error
	DismissAlert(ctx context.Context, historyID, by, notes string) error
	ResolveAlert(ctx context.Context, historyID, by, notes string) error
	AddFollowUp(ctx context.Context, historyID string, date time.Time, notes string) error
	GetPatientAlertHistory(ctx context.Context, patientID string) []model.CDSAlertHistory
	GetActiveAlerts(ctx context.Context, patientID string) []model.CDSAlertHistory
	GetFollowUpAlerts(ctx context.Context, patientID string) []model.CDSAlertHistory
	GetHistoryEntry(ctx context.Context, historyID string) (model.CDSAlertHistory, error)
}

type Handler struct {
	service HistoryService
}

func NewHandler(service HistoryService) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients/:patientId/alerts")
	{
		patients.GET("", h.GetPatientHistory)
		patients.POST("", h.SaveAlerts)
		patients.GET("/active", h.GetActiveAlerts)
	}

	alerts := r.Group("/alerts")
	{
		alerts.GET("/follow-ups", h.GetFollowUps)
		alerts.GET("/:id", h.GetEntry)
		alerts.POST("/:id/acknowledge", h.Acknowledge)
		alerts.POST("/:id/dismiss", h.Dismiss)
		alerts.POST("/:id/resolve", h.Resolve)
		alerts.POST("/:id/follow-up", h.AddFollowUp)
	}
}

type SaveAlertsRequest struct {
	Alerts []model.CDSAlert `json:"alerts" binding:"required,min=1"`
}

func (h *Handler) SaveAlerts(c *gin.Context) {
	var req SaveAlertsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindFail(c, err)
		return
	}

	saved, err := h.service.SaveAlerts(c.Request.Context(), c.Param("patientId"), req.Alerts)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, saved)
}

func (h *Handler) GetPatientHistory(c *gin.Context) {
	handler.OK(c, h.service.GetPatientAlertHistory(c.Request.Context(), c.Param("patientId")))
}

func (h *Handler) GetActiveAlerts(c *gin.Context) {
	handler.OK(c, h.service.GetActiveAlerts(c.Request.Context(), c.Param("patientId")))
}

func (h *Handler) GetFollowUps(c *gin.Context) {
	handler.OK(c, h.service.GetFollowUpAlerts(c.Request.Context(), c.Query("patient_id")))
}

func (h *Handler) GetEntry(c *gin.Context) {
	entry, err := h.service.GetHistoryEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, entry)
}

// TransitionRequest carries optional notes. By is only used when the request is not
// authenticated; an authenticated caller is always recorded as themselves.
type TransitionRequest struct {
	By    string `json:"by"`
	Notes string `json:"notes"`
}

type transitionFunc func(ctx context.Context, historyID, by, notes string) error

func (h *Handler) Acknowledge(c *gin.Context) { h.transition(c, h.service.AcknowledgeAlert) }

func (h *Handler) Dismiss(c *gin.Context) { h.transition(c, h.service.DismissAlert) }

func (h *Handler) Resolve(c *gin.Context) { h.transition(c, h.service.ResolveAlert) }

func (h *Handler) transition(c *gin.Context, fn transitionFunc) {
	var req TransitionRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			handler.BindFail(c, err)
			return
		}
	}

	by := middleware.UserID(c)
	if by == "" {
		by = req.By
	}

	id := c.Param("id")
	if err := fn(c.Request.Context(), id, by, req.Notes); err != nil {
		handler.Fail(c, err)
		return
	}
	h.GetEntry(c)
}

type FollowUpRequest struct {
	Date  time.Time `json:"date" binding:"required"`
	Notes string    `json:"notes"`
}

func (h *Handler) AddFollowUp(c *gin.Context) {
	var req FollowUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindFail(c, err)
		return
	}

	if err := h.service.AddFollowUp(c.Request.Context(), c.Param("id"), req.Date, req.Notes); err != nil {
		handler.Fail(c, err)
		return
	}
	h.GetEntry(c)
}
