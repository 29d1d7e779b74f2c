package cds

import (
	"strings"

	"github.com/jwalitptl/cds-engine/internal/model"
)

// EvaluateCondition reports whether pc satisfies cond. Missing context data, an unknown
// condition type and an unknown operator all evaluate to false.
func EvaluateCondition(cond model.CDSCondition, pc *model.PatientContext) bool {
	if pc == nil {
		return false
	}
	actual, ok := resolve(cond, pc)
	if !ok {
		return false
	}

	switch cond.Operator {
	case model.OpEquals:
		return actual.Equal(cond.Value)
	case model.OpGreaterThan, model.OpLessThan, model.OpGreaterEqual, model.OpLessEqual:
		return compareNumbers(cond.Operator, actual, cond.Value)
	case model.OpContains:
		return contains(actual, cond.Value)
	case model.OpNotContains:
		if !actual.IsList() {
			return false
		}
		return !contains(actual, cond.Value)
	default:
		return false
	}
}

// EvaluateRule is the AND of all conditions; a rule without conditions always matches.
func EvaluateRule(rule model.CDSRule, pc *model.PatientContext) bool {
	for _, cond := range rule.Conditions {
		if !EvaluateCondition(cond, pc) {
			return false
		}
	}
	return true
}

func resolve(cond model.CDSCondition, pc *model.PatientContext) (model.ConditionValue, bool) {
	switch cond.Type {
	case model.ConditionAge:
		if pc.Age == nil {
			return model.ConditionValue{}, false
		}
		return model.NumberValue(float64(*pc.Age)), true
	case model.ConditionGender:
		if pc.Gender == "" {
			return model.ConditionValue{}, false
		}
		return model.StringValue(pc.Gender), true
	case model.ConditionMedication:
		return listValue(pc.Medications)
	case model.ConditionAllergy:
		return listValue(pc.Allergies)
	case model.ConditionDiagnosis:
		return listValue(pc.Diagnoses)
	case model.ConditionVitalSign:
		return vitalSign(pc.Vitals, cond.Field)
	case model.ConditionLabValue:
		lab, ok := lookup(pc.LabValues, cond.Field)
		if !ok {
			return model.ConditionValue{}, false
		}
		return model.NumberValue(lab.Value), true
	case model.ConditionAssessmentScore:
		score, ok := lookup(pc.AssessmentScores, cond.Field)
		if !ok {
			return model.ConditionValue{}, false
		}
		return model.NumberValue(score.Score), true
	default:
		return model.ConditionValue{}, false
	}
}

func listValue(items []string) (model.ConditionValue, bool) {
	if items == nil {
		return model.ConditionValue{}, false
	}
	return model.ListValue(items...), true
}

func vitalSign(v *model.VitalSigns, field string) (model.ConditionValue, bool) {
	if v == nil {
		return model.ConditionValue{}, false
	}
	var p *float64
	switch field {
	case "systolicBP":
		p = v.SystolicBP
	case "diastolicBP":
		p = v.DiastolicBP
	case "heartRate":
		p = v.HeartRate
	case "temperature":
		p = v.Temperature
	case "weight":
		p = v.Weight
	case "height":
		p = v.Height
	}
	if p == nil {
		return model.ConditionValue{}, false
	}
	return model.NumberValue(*p), true
}

// lookup tries the exact key first, then a case-insensitive match. When several keys
// differ only by case the lexically smallest one wins, so results never depend on map order.
func lookup[V any](m map[string]V, key string) (V, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	match, found := "", false
	for k := range m {
		if strings.EqualFold(k, key) && (!found || k < match) {
			match, found = k, true
		}
	}
	if !found {
		var zero V
		return zero, false
	}
	return m[match], true
}

func compareNumbers(op model.Operator, actual, expected model.ConditionValue) bool {
	l, ok := actual.Number()
	if !ok {
		return false
	}
	r, ok := expected.Number()
	if !ok {
		return false
	}

	switch op {
	case model.OpGreaterThan:
		return l > r
	case model.OpLessThan:
		return l < r
	case model.OpGreaterEqual:
		return l >= r
	case model.OpLessEqual:
		return l <= r
	default:
		return false
	}
}

func contains(actual, expected model.ConditionValue) bool {
	switch {
	case actual.IsList() && expected.IsList():
		for _, want := range expected.List() {
			for _, have := range actual.List() {
				if containsFold(have, want) {
					return true
				}
			}
		}
		return false
	case actual.IsList():
		want := expected.Text()
		for _, have := range actual.List() {
			if containsFold(have, want) {
				return true
			}
		}
		return false
	default:
		return containsFold(actual.Text(), expected.Text())
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
