package model

import (
	"time"
)

// AuditAction names one lifecycle event.
type AuditAction string

const (
	AuditAlertTriggered    AuditAction = "alert_triggered"
	AuditAlertAcknowledged AuditAction = "alert_acknowledged"
	AuditAlertDismissed    AuditAction = "alert_dismissed"
	AuditAlertResolved     AuditAction = "alert_resolved"
	AuditFollowUpAdded     AuditAction = "follow_up_added"
)

// CDSAuditLog is immutable once written. AlertID is the history entry id.
type CDSAuditLog struct {
	ID        string                 `json:"id"`
	PatientID string                 `json:"patientId"`
	Action    AuditAction            `json:"action"`
	AlertID   string                 `json:"alertId"`
	UserID    string                 `json:"userId,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details"`
}

// CDSStats is the per-patient summary. BySeverity is keyed by alert priority.
type CDSStats struct {
	Total        int              `json:"total"`
	Active       int              `json:"active"`
	Acknowledged int              `json:"acknowledged"`
	Dismissed    int              `json:"dismissed"`
	Resolved     int              `json:"resolved"`
	BySeverity   map[Priority]int `json:"bySeverity"`
	ByCategory   map[string]int   `json:"byCategory"`
}

// CDSHistoryExport is a read-only snapshot for reporting.
type CDSHistoryExport struct {
	PatientID  string            `json:"patientId"`
	ExportedAt time.Time         `json:"exportedAt"`
	History    []CDSAlertHistory `json:"history"`
	AuditLog   []CDSAuditLog     `json:"auditLog"`
	Stats      CDSStats          `json:"stats"`
}

// RetentionPolicy allows audit evidence to outlive alert bookkeeping.
type RetentionPolicy struct {
	HistoryDays int `json:"historyDays"`
	AuditDays   int `json:"auditDays"`
}

type CleanupResult struct {
	HistoryCutoff  time.Time `json:"historyCutoff"`
	AuditCutoff    time.Time `json:"auditCutoff"`
	HistoryRemoved int       `json:"historyRemoved"`
	AuditRemoved   int       `json:"auditRemoved"`
}
