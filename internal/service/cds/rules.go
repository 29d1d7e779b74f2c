package cds

import "github.com/jwalitptl/cds-engine/internal/model"

// Rule categories used by the built-in catalog.
const (
	CategoryDrugInteraction = "drug-interaction"
	CategoryAllergy         = "allergy"
	CategoryVitals          = "vital-signs"
	CategoryLab             = "lab-results"
	CategoryMentalHealth    = "mental-health"
	CategoryPrevention      = "preventive-care"
	CategoryGeriatrics      = "geriatrics"
	CategoryCardiology      = "cardiology"
	CategoryPregnancy       = "pregnancy"
)

var (
	aceInhibitorsAndARBs = []string{
		"lisinopril", "enalapril", "ramipril", "benazepril", "captopril", "quinapril",
		"losartan", "valsartan", "irbesartan", "olmesartan", "candesartan",
	}
	statins        = []string{"atorvastatin", "rosuvastatin", "simvastatin", "pravastatin", "lovastatin", "pitavastatin"}
	anticoagulants = []string{"warfarin", "apixaban", "rivaroxaban", "dabigatran", "edoxaban"}
)

func cond(t model.ConditionType, field string, op model.Operator, v model.ConditionValue) model.CDSCondition {
	return model.CDSCondition{Type: t, Field: field, Operator: op, Value: v}
}

func medsContain(names ...string) model.CDSCondition {
	return cond(model.ConditionMedication, "medications", model.OpContains, model.ListValue(names...))
}

func vital(field string, op model.Operator, v float64, unit string) model.CDSCondition {
	c := cond(model.ConditionVitalSign, field, op, model.NumberValue(v))
	c.Unit = unit
	return c
}

func lab(name string, op model.Operator, v float64, unit string) model.CDSCondition {
	c := cond(model.ConditionLabValue, name, op, model.NumberValue(v))
	c.Unit = unit
	return c
}

func score(name string, op model.Operator, v float64) model.CDSCondition {
	return cond(model.ConditionAssessmentScore, name, op, model.NumberValue(v))
}

// DefaultRules is the built-in catalog, in evaluation order.
func DefaultRules() []model.CDSRule {
	return []model.CDSRule{
		{
			ID:       "ddi-ace-arb-potassium",
			Name:     "ACE inhibitor or ARB with potassium supplement",
			Category: CategoryDrugInteraction,
			Priority: model.PriorityHigh,
			Conditions: []model.CDSCondition{
				medsContain(aceInhibitorsAndARBs...),
				medsContain("potassium"),
			},
			Actions: []model.CDSAction{{
				Type:            "alert",
				Message:         "ACE inhibitor/ARB combined with potassium supplementation increases the risk of hyperkalemia.",
				Severity:        model.SeverityWarning,
				ActionRequired:  true,
				SuggestedAction: "Check serum potassium and renal function; reconsider the potassium supplement.",
			}},
			Sources: []string{"Lexicomp drug interactions", "FDA lisinopril prescribing information"},
			Enabled: true,
		},
		{
			ID:       "ddi-warfarin-nsaid",
			Name:     "Warfarin with antiplatelet or NSAID",
			Category: CategoryDrugInteraction,
			Priority: model.PriorityHigh,
			Conditions: []model.CDSCondition{
				medsContain("warfarin"),
				medsContain("aspirin", "ibuprofen", "naproxen", "diclofenac", "celecoxib"),
			},
			Actions: []model.CDSAction{{
				Type:            "alert",
				Message:         "Warfarin with aspirin or an NSAID significantly increases bleeding risk.",
				Severity:        model.SeverityError,
				ActionRequired:  true,
				SuggestedAction: "Avoid the combination or monitor INR closely and add GI protection.",
			}},
			Sources: []string{"CHEST antithrombotic guideline"},
			Enabled: true,
		},
		{
			ID:       "ddi-serotonergic",
			Name:     "SSRI with tramadol or linezolid",
			Category: CategoryDrugInteraction,
			Priority: model.PriorityHigh,
			Conditions: []model.CDSCondition{
				medsContain("sertraline", "fluoxetine", "escitalopram", "citalopram", "paroxetine"),
				medsContain("tramadol", "linezolid"),
			},
			Actions: []model.CDSAction{{
				Type:            "alert",
				Message:         "Serotonergic combination: risk of serotonin syndrome.",
				Severity:        model.SeverityWarning,
				SuggestedAction: "Review the need for both agents and counsel the patient on warning signs.",
			}},
			Sources: []string{"Lexicomp drug interactions"},
			Enabled: true,
		},
		{
			ID:       "allergy-penicillin-beta-lactam",
			Name:     "Penicillin allergy with penicillin-class antibiotic",
			Category: CategoryAllergy,
			Priority: model.PriorityCritical,
			Conditions: []model.CDSCondition{
				cond(model.ConditionAllergy, "allergies", model.OpContains, model.StringValue("penicillin")),
				medsContain("amoxicillin", "ampicillin", "penicillin", "piperacillin"),
			},
			Actions: []model.CDSAction{{
				Type:            "alert",
				Message:         "Patient has a documented penicillin allergy and is prescribed a penicillin-class antibiotic.",
				Severity:        model.SeverityCritical,
				ActionRequired:  true,
				SuggestedAction: "Discontinue and select a non-beta-lactam alternative.",
			}},
			Sources: []string{"AAAAI drug allergy practice parameter"},
			Enabled: true,
		},
		{
			ID:       "vitals-hypertensive-crisis",
			Name:     "Hypertensive crisis",
			Category: CategoryVitals,
			Priority: model.PriorityCritical,
			Conditions: []model.CDSCondition{
				vital("systolicBP", model.OpGreaterThan, 180, "mmHg"),
				vital("diastolicBP", model.OpGreaterThan, 120, "mmHg"),
			},
			Actions: []model.CDSAction{{
				Type:            "alert",
				Message:         "Blood pressure above 180/120 mmHg indicates hypertensive crisis.",
				Severity:        model.SeverityCritical,
				ActionRequired:  true,
				SuggestedAction: "Assess for target organ damage immediately; consider emergency referral.",
			}},
			Sources: []string{"2017 ACC/AHA Hypertension Guideline"},
			Enabled: true,
		},
		{
			ID:       "vitals-stage2-hypertension",
			Name:     "Stage 2 hypertension",
			Category: CategoryVitals,
			Priority: model.PriorityMedium,
			Conditions: []model.CDSCondition{
				vital("systolicBP", model.OpGreaterEqual, 140, "mmHg"),
				vital("systolicBP", model.OpLessEqual, 180, "mmHg"),
			},
			Actions: []model.CDSAction{{
				Type:            "recommendation",
				Message:         "Systolic blood pressure in the stage 2 hypertension range.",
				Severity:        model.SeverityWarning,
				SuggestedAction: "Confirm with repeat readings and start or intensify antihypertensive therapy.",
			}},
			Sources: []string{"2017 ACC/AHA Hypertension Guideline"},
			Enabled: true,
		},
		{
			ID:       "vitals-tachycardia",
			Name:     "Resting tachycardia",
			Category: CategoryVitals,
			Priority: model.PriorityMedium,
			Conditions: []model.CDSCondition{
				vital("heartRate", model.OpGreaterThan, 120, "bpm"),
			},
			Actions: []model.CDSAction{{
				Type:            "alert",
				Message:         "Heart rate above 120 bpm.",
				Severity:        model.SeverityWarning,
				SuggestedAction: "Obtain an ECG and evaluate for underlying cause.",
			}},
			Enabled: true,
		},
		{
			ID:       "vitals-fever",
			Name:     "Fever",
			Category: CategoryVitals,
			Priority: model.PriorityLow,
			Conditions: []model.CDSCondition{
				vital("temperature", model.OpGreaterEqual, 38.3, "C"),
			},
			Actions: []model.CDSAction{{
				Type:     "alert",
				Message:  "Temperature at or above 38.3 C.",
				Severity: model.SeverityInfo,
			}},
			Enabled: true,
		},
		{
			ID:       "lab-a1c-uncontrolled",
			Name:     "Uncontrolled diabetes",
			Category: CategoryLab,
			Priority: model.PriorityHigh,
			Conditions: []model.CDSCondition{
				lab("hba1c", model.OpGreaterThan, 9, "%"),
			},
			Actions: []model.CDSAction{
				{
					Type:     "alert",
					Message:  "HbA1c above 9% indicates poorly controlled diabetes.",
					Severity: model.SeverityWarning,
				},
				{
					Type:            "recommendation",
					Message:         "Intensify glucose-lowering therapy.",
					Severity:        model.SeverityInfo,
					SuggestedAction: "Consider adding a GLP-1 receptor agonist or basal insulin; recheck HbA1c in 3 months.",
				},
			},
			Sources: []string{"ADA Standards of Care in Diabetes"},
			Enabled: true,
		},
		{
			ID:       "lab-hyperkalemia",
			Name:     "Hyperkalemia",
			Category: CategoryLab,
			Priority: model.PriorityHigh,
			Conditions: []model.CDSCondition{
				lab("potassium", model.OpGreaterThan, 5.5, "mmol/L"),
			},
			Actions: []model.CDSAction{{
				Type:            "alert",
				Message:         "Serum potassium above 5.5 mmol/L.",
				Severity:        model.SeverityError,
				ActionRequired:  true,
				SuggestedAction: "Repeat the level, obtain an ECG and review potassium-raising medications.",
			}},
			Enabled: true,
		},
		{
			ID:       "lab-metformin-low-egfr",
			Name:     "Metformin with severely reduced eGFR",
			Category: CategoryLab,
			Priority: model.PriorityHigh,
			Conditions: []model.CDSCondition{
				medsContain("metformin"),
				lab("egfr", model.OpLessThan, 30, "mL/min/1.73m2"),
			},
			Actions: []model.CDSAction{{
				Type:            "alert",
				Message:         "Metformin is contraindicated with eGFR below 30.",
				Severity:        model.SeverityError,
				ActionRequired:  true,
				SuggestedAction: "Discontinue metformin.",
			}},
			Sources: []string{"FDA metformin labeling (2016)"},
			Enabled: true,
		},
		{
			ID:       "prevention-ascvd-statin",
			Name:     "High ASCVD risk without statin",
			Category: CategoryPrevention,
			Priority: model.PriorityMedium,
			Conditions: []model.CDSCondition{
				score("ascvd", model.OpGreaterEqual, 20),
				cond(model.ConditionMedication, "medications", model.OpNotContains, model.ListValue(statins...)),
			},
			Actions: []model.CDSAction{{
				Type:            "recommendation",
				Message:         "10-year ASCVD risk of 20% or more and no statin on the medication list.",
				Severity:        model.SeverityWarning,
				SuggestedAction: "Discuss high-intensity statin therapy.",
			}},
			Sources: []string{"2018 AHA/ACC Cholesterol Guideline"},
			Enabled: true,
		},
		{
			ID:       "mh-phq9-severe",
			Name:     "Severe depression score",
			Category: CategoryMentalHealth,
			Priority: model.PriorityHigh,
			Conditions: []model.CDSCondition{
				score("phq9", model.OpGreaterEqual, 20),
			},
			Actions: []model.CDSAction{{
				Type:            "alert",
				Message:         "PHQ-9 total of 20 or more indicates severe depression.",
				Severity:        model.SeverityError,
				ActionRequired:  true,
				SuggestedAction: "Start treatment and arrange prompt mental health referral.",
			}},
			Sources: []string{"Kroenke et al., J Gen Intern Med 2001"},
			Enabled: true,
		},
		{
			ID:       "mh-phq9-suicide-risk",
			Name:     "Positive suicidal ideation screen",
			Category: CategoryMentalHealth,
			Priority: model.PriorityCritical,
			Conditions: []model.CDSCondition{
				score("phq9-question9", model.OpGreaterEqual, 1),
			},
			Actions: []model.CDSAction{{
				Type:            "alert",
				Message:         "PHQ-9 item 9 is positive: patient reports thoughts of self-harm. Suicide risk assessment required.",
				Severity:        model.SeverityCritical,
				ActionRequired:  true,
				SuggestedAction: "Perform a same-day suicide risk assessment and safety plan.",
			}},
			Sources: []string{"Joint Commission NPSG 15.01.01"},
			Enabled: true,
		},
		{
			ID:       "geriatric-beers-sedatives",
			Name:     "Potentially inappropriate medication in older adult",
			Category: CategoryGeriatrics,
			Priority: model.PriorityMedium,
			Conditions: []model.CDSCondition{
				cond(model.ConditionAge, "age", model.OpGreaterEqual, model.NumberValue(65)),
				medsContain("diphenhydramine", "diazepam", "lorazepam", "alprazolam", "zolpidem", "amitriptyline"),
			},
			Actions: []model.CDSAction{{
				Type:            "recommendation",
				Message:         "Beers Criteria medication in a patient aged 65 or older.",
				Severity:        model.SeverityWarning,
				SuggestedAction: "Consider deprescribing or a safer alternative.",
			}},
			Sources: []string{"AGS Beers Criteria 2023"},
			Enabled: true,
		},
		{
			ID:       "cardio-af-anticoagulation",
			Name:     "Atrial fibrillation without anticoagulation",
			Category: CategoryCardiology,
			Priority: model.PriorityHigh,
			Conditions: []model.CDSCondition{
				cond(model.ConditionDiagnosis, "diagnoses", model.OpContains, model.StringValue("atrial fibrillation")),
				score("cha2ds2-vasc", model.OpGreaterEqual, 2),
				cond(model.ConditionMedication, "medications", model.OpNotContains, model.ListValue(anticoagulants...)),
			},
			Actions: []model.CDSAction{{
				Type:            "recommendation",
				Message:         "CHA2DS2-VASc of 2 or more without oral anticoagulation.",
				Severity:        model.SeverityWarning,
				ActionRequired:  true,
				SuggestedAction: "Discuss oral anticoagulation unless contraindicated.",
			}},
			Sources: []string{"2023 ACC/AHA/ACCP/HRS Atrial Fibrillation Guideline"},
			Enabled: true,
		},
		{
			ID:       "pregnancy-ace-arb",
			Name:     "ACE inhibitor or ARB in pregnancy",
			Category: CategoryPregnancy,
			Priority: model.PriorityCritical,
			Conditions: []model.CDSCondition{
				cond(model.ConditionGender, "gender", model.OpEquals, model.StringValue("female")),
				cond(model.ConditionDiagnosis, "diagnoses", model.OpContains, model.StringValue("pregnan")),
				medsContain(aceInhibitorsAndARBs...),
			},
			Actions: []model.CDSAction{{
				Type:            "alert",
				Message:         "ACE inhibitors and ARBs are teratogenic and contraindicated in pregnancy.",
				Severity:        model.SeverityCritical,
				ActionRequired:  true,
				SuggestedAction: "Switch to labetalol, nifedipine or methyldopa.",
			}},
			Sources: []string{"ACOG Practice Bulletin 203"},
			Enabled: true,
		},
		{
			ID:       "lab-ckd-dose-review",
			Name:     "Reduced kidney function dose review",
			Category: CategoryLab,
			Priority: model.PriorityLow,
			Conditions: []model.CDSCondition{
				lab("egfr", model.OpLessThan, 60, "mL/min/1.73m2"),
			},
			Actions: []model.CDSAction{{
				Type:     "recommendation",
				Message:  "eGFR below 60: review renally cleared medications.",
				Severity: model.SeverityInfo,
			}},
			Sources: []string{"KDIGO 2024 CKD Guideline"},
			Enabled: false,
		},
	}
}
