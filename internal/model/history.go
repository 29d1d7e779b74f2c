package model

import "time"

// AlertStatus is the lifecycle state of a persisted alert.
type AlertStatus string

const (
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusDismissed    AlertStatus = "dismissed"
	StatusResolved     AlertStatus = "resolved"
)

var alertTransitions = map[AlertStatus][]AlertStatus{
	StatusActive:       {StatusAcknowledged, StatusDismissed, StatusResolved},
	StatusAcknowledged: {StatusDismissed, StatusResolved},
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// Dismissed and resolved are terminal.
func (s AlertStatus) CanTransition(next AlertStatus) bool {
	if s.Terminal() {
		return false
	}
	for _, allowed := range alertTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further lifecycle move is possible.
func (s AlertStatus) Terminal() bool {
	return s == StatusDismissed || s == StatusResolved
}

// CDSAlertHistory is one persisted alert for one patient.
type CDSAlertHistory struct {
	ID               string      `json:"id"`
	PatientID        string      `json:"patientId"`
	Alert            CDSAlert    `json:"alert"`
	Status           AlertStatus `json:"status"`
	AcknowledgedBy   string      `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt   *time.Time  `json:"acknowledgedAt,omitempty"`
	Notes            string      `json:"notes,omitempty"`
	FollowUpRequired bool        `json:"followUpRequired,omitempty"`
	FollowUpDate     *time.Time  `json:"followUpDate,omitempty"`
}
