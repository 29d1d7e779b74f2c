package audit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/cds-engine/internal/handler"
	"github.com/jwalitptl/cds-engine/internal/model"
	apperrors "github.com/jwalitptl/cds-engine/pkg/errors"
)

type AuditReader interface {
	GetAuditLog(ctx context.Context, patientID string) []model.CDSAuditLog
}

type ReportService interface {
	GetPatientCDSStats(ctx context.Context, patientID string) model.CDSStats
	CleanupOldHistory(ctx context.Context, retentionDays int) (model.CleanupResult, error)
	ApplyRetentionPolicy(ctx context.Context, policy model.RetentionPolicy) (model.CleanupResult, error)
	ExportPatientCDSHistory(ctx context.Context, patientID string) model.CDSHistoryExport
}

type Handler struct {
	audit  AuditReader
	report ReportService
}

func NewHandler(audit AuditReader, report ReportService) *Handler {
	return &Handler{
		audit:  audit,
		report: report,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	audit := r.Group("/audit")
	{
		audit.GET("/logs", h.ListLogs)
	}

	patients := r.Group("/patients/:patientId")
	{
		patients.GET("/stats", h.GetStats)
		patients.GET("/export", h.Export)
	}

	r.POST("/retention/cleanup", h.Cleanup)
}

// ListLogs returns the audit trail newest first, optionally for one patient.
func (h *Handler) ListLogs(c *gin.Context) {
	handler.OK(c, h.audit.GetAuditLog(c.Request.Context(), c.Query("patient_id")))
}

func (h *Handler) GetStats(c *gin.Context) {
	handler.OK(c, h.report.GetPatientCDSStats(c.Request.Context(), c.Param("patientId")))
}

func (h *Handler) Export(c *gin.Context) {
	patientID := c.Param("patientId")
	export := h.report.ExportPatientCDSHistory(c.Request.Context(), patientID)

	if c.Query("download") == "true" {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=cds_history_%s.json", patientID))
		c.JSON(http.StatusOK, export)
		return
	}
	handler.OK(c, export)
}

// CleanupRequest sets either one window for both stores or separate windows.
type CleanupRequest struct {
	RetentionDays *int `json:"retention_days"`
	HistoryDays   *int `json:"history_days"`
	AuditDays     *int `json:"audit_days"`
}

func (h *Handler) Cleanup(c *gin.Context) {
	var req CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindFail(c, err)
		return
	}

	var (
		result model.CleanupResult
		err    error
	)
	switch {
	case req.RetentionDays != nil:
		result, err = h.report.CleanupOldHistory(c.Request.Context(), *req.RetentionDays)
	case req.HistoryDays != nil && req.AuditDays != nil:
		result, err = h.report.ApplyRetentionPolicy(c.Request.Context(), model.RetentionPolicy{
			HistoryDays: *req.HistoryDays,
			AuditDays:   *req.AuditDays,
		})
	default:
		err = apperrors.BadRequest("retention_days or both history_days and audit_days are required", nil)
	}
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, result)
}
