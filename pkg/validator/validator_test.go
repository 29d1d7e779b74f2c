package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/cds-engine/internal/model"
)

func validRule() model.CDSRule {
	return model.CDSRule{
		ID:       "r1",
		Name:     "Rule",
		Category: "vital-signs",
		Priority: model.PriorityHigh,
		Conditions: []model.CDSCondition{
			{Type: model.ConditionVitalSign, Field: "heartRate", Operator: model.OpGreaterThan, Value: model.NumberValue(120)},
		},
		Actions: []model.CDSAction{{Type: "alert", Message: "Tachycardia", Severity: model.SeverityWarning}},
		Enabled: true,
	}
}

func TestValidate(t *testing.T) {
	v := New()
	require.NoError(t, v.Validate(validRule()))

	tests := []struct {
		name   string
		mutate func(r *model.CDSRule)
		want   string
	}{
		{"priority", func(r *model.CDSRule) { r.Priority = "urgent" }, "priority failed cds_priority"},
		{"severity", func(r *model.CDSRule) { r.Actions[0].Severity = "fatal" }, "severity failed cds_severity"},
		{"condition type", func(r *model.CDSRule) { r.Conditions[0].Type = "genotype" }, "type failed cds_condition_type"},
		{"operator", func(r *model.CDSRule) { r.Conditions[0].Operator = "between" }, "operator failed cds_operator"},
		{"no actions", func(r *model.CDSRule) { r.Actions = nil }, "actions failed min"},
		{"no id", func(r *model.CDSRule) { r.ID = "" }, "id failed required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRule()
			tt.mutate(&r)
			err := v.Validate(r)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
