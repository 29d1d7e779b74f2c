package model

import "time"

// ConditionType selects which part of the patient context a condition reads.
type ConditionType string

const (
	ConditionAge             ConditionType = "age"
	ConditionGender          ConditionType = "gender"
	ConditionMedication      ConditionType = "medication"
	ConditionAllergy         ConditionType = "allergy"
	ConditionVitalSign       ConditionType = "vital-sign"
	ConditionLabValue        ConditionType = "lab-value"
	ConditionAssessmentScore ConditionType = "assessment-score"
	ConditionDiagnosis       ConditionType = "diagnosis"
)

func (t ConditionType) Valid() bool {
	switch t {
	case ConditionAge, ConditionGender, ConditionMedication, ConditionAllergy,
		ConditionVitalSign, ConditionLabValue, ConditionAssessmentScore, ConditionDiagnosis:
		return true
	}
	return false
}

// Operator is the comparison a condition applies.
type Operator string

const (
	OpEquals       Operator = "equals"
	OpGreaterThan  Operator = "greater-than"
	OpLessThan     Operator = "less-than"
	OpGreaterEqual Operator = "greater-equal"
	OpLessEqual    Operator = "less-equal"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "not-contains"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual, OpContains, OpNotContains:
		return true
	}
	return false
}

// Severity of a single rule action.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Priority of a rule. Alerts are ordered by Rank, highest first.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns critical=4, high=3, medium=2, low=1 and 0 for anything else.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// CDSCondition is one predicate of a rule.
type CDSCondition struct {
	Type     ConditionType  `json:"type" yaml:"type" validate:"cds_condition_type"`
	Field    string         `json:"field" yaml:"field"`
	Operator Operator       `json:"operator" yaml:"operator" validate:"cds_operator"`
	Value    ConditionValue `json:"value" yaml:"value"`
	Unit     string         `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// CDSAction is what a matching rule reports.
type CDSAction struct {
	Type            string   `json:"type" yaml:"type" validate:"required"`
	Message         string   `json:"message" yaml:"message" validate:"required"`
	Severity        Severity `json:"severity" yaml:"severity" validate:"cds_severity"`
	ActionRequired  bool     `json:"actionRequired,omitempty" yaml:"actionRequired,omitempty"`
	SuggestedAction string   `json:"suggestedAction,omitempty" yaml:"suggestedAction,omitempty"`
}

// CDSRule is a catalog entry. Conditions are combined with logical AND.
type CDSRule struct {
	ID         string         `json:"id" yaml:"id" validate:"required"`
	Name       string         `json:"name" yaml:"name" validate:"required"`
	Category   string         `json:"category" yaml:"category" validate:"required"`
	Priority   Priority       `json:"priority" yaml:"priority" validate:"cds_priority"`
	Conditions []CDSCondition `json:"conditions" yaml:"conditions" validate:"dive"`
	Actions    []CDSAction    `json:"actions" yaml:"actions" validate:"min=1,dive"`
	Sources    []string       `json:"sources,omitempty" yaml:"sources,omitempty"`
	Enabled    bool           `json:"enabled" yaml:"enabled"`
}

// VitalSigns holds the most recent vitals. Nil fields are unknown.
type VitalSigns struct {
	SystolicBP  *float64 `json:"systolicBP,omitempty"`
	DiastolicBP *float64 `json:"diastolicBP,omitempty"`
	HeartRate   *float64 `json:"heartRate,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Weight      *float64 `json:"weight,omitempty"`
	Height      *float64 `json:"height,omitempty"`
}

type LabValue struct {
	Value float64   `json:"value"`
	Unit  string    `json:"unit"`
	Date  time.Time `json:"date"`
}

type AssessmentScore struct {
	Score float64   `json:"score"`
	Date  time.Time `json:"date"`
}

// PatientContext is the snapshot a caller builds for one evaluation.
// A nil slice or map means the data is unknown; an empty one means known to be empty.
type PatientContext struct {
	Age              *int                       `json:"age,omitempty"`
	Gender           string                     `json:"gender,omitempty"`
	Medications      []string                   `json:"medications,omitempty"`
	Allergies        []string                   `json:"allergies,omitempty"`
	Diagnoses        []string                   `json:"diagnoses,omitempty"`
	Vitals           *VitalSigns                `json:"vitals,omitempty"`
	LabValues        map[string]LabValue        `json:"labValues,omitempty"`
	AssessmentScores map[string]AssessmentScore `json:"assessmentScores,omitempty"`
}

// CDSAlert is produced once per action of a matching rule.
type CDSAlert struct {
	RuleID         string         `json:"ruleId"`
	RuleName       string         `json:"ruleName"`
	Category       string         `json:"category"`
	Priority       Priority       `json:"priority"`
	Action         CDSAction      `json:"action"`
	TriggeredAt    time.Time      `json:"triggeredAt"`
	PatientContext PatientContext `json:"patientContext"`
	Dismissed      bool           `json:"dismissed"`
}

// RuleStats summarises the catalog.
type RuleStats struct {
	Total      int              `json:"total"`
	Enabled    int              `json:"enabled"`
	Disabled   int              `json:"disabled"`
	ByCategory map[string]int   `json:"byCategory"`
	ByPriority map[Priority]int `json:"byPriority"`
}

// Float is a small helper for building vitals literals.
func Float(v float64) *float64 { return &v }

// Int is a small helper for building age literals.
func Int(v int) *int { return &v }
