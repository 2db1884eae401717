package validator

// RangeRule bounds a numeric element to a plausible interval.
type RangeRule struct {
	Field       string
	Min         float64
	Max         float64
	Description string
}

// CodeRule restricts a coded element to an allowed value set.
type CodeRule struct {
	Field   string
	Allowed []string
}

// RuleSet holds the per-resource-type rules one framework applies.
// Required and Recommended drive completeness, Coded/References/Dates drive
// conformity, and Dates/Ranges drive plausibility.
type RuleSet struct {
	Required    []string
	Recommended []string
	Coded       []CodeRule
	References  []string
	Dates       []string
	Ranges      []RangeRule
}

func (rs RuleSet) merge(other RuleSet) RuleSet {
	return RuleSet{
		Required:    append(append([]string{}, rs.Required...), other.Required...),
		Recommended: append(append([]string{}, rs.Recommended...), other.Recommended...),
		Coded:       append(append([]CodeRule{}, rs.Coded...), other.Coded...),
		References:  append(append([]string{}, rs.References...), other.References...),
		Dates:       append(append([]string{}, rs.Dates...), other.Dates...),
		Ranges:      append(append([]RangeRule{}, rs.Ranges...), other.Ranges...),
	}
}

var administrativeGenders = []string{"male", "female", "other", "unknown"}

var clinicalStatuses = []string{"active", "recurrence", "relapse", "inactive", "remission", "resolved"}

// baseRules applies to any resource type without a dedicated entry.
var baseRules = RuleSet{
	Required: []string{"id"},
	Dates:    []string{"meta.lastUpdated"},
}

// basicRules captures base FHIR R4 expectations per resource type.
var basicRules = map[string]RuleSet{
	"Patient": {
		Required:    []string{"id", "gender"},
		Recommended: []string{"name.family", "birthDate", "identifier.value"},
		Coded: []CodeRule{
			{Field: "gender", Allowed: administrativeGenders},
		},
		Dates: []string{"birthDate", "deceasedDateTime"},
	},
	"Observation": {
		Required:    []string{"id", "status", "code.coding.code"},
		Recommended: []string{"subject.reference", "effectiveDateTime", "valueQuantity.value"},
		Coded: []CodeRule{
			{Field: "status", Allowed: []string{"registered", "preliminary", "final", "amended", "corrected", "cancelled", "entered-in-error", "unknown"}},
		},
		References: []string{"subject.reference"},
		Dates:      []string{"effectiveDateTime", "issued"},
		Ranges: []RangeRule{
			{Field: "valueQuantity.value", Min: -50, Max: 10000, Description: "quantity outside physiologic bounds"},
		},
	},
	"Condition": {
		Required:    []string{"id", "code.coding.code", "subject.reference"},
		Recommended: []string{"clinicalStatus.coding.code", "onsetDateTime", "recordedDate"},
		Coded: []CodeRule{
			{Field: "clinicalStatus.coding.code", Allowed: clinicalStatuses},
		},
		References: []string{"subject.reference"},
		Dates:      []string{"onsetDateTime", "recordedDate", "abatementDateTime"},
	},
	"Encounter": {
		Required:    []string{"id", "status", "class.code"},
		Recommended: []string{"subject.reference", "period.start", "type.coding.code"},
		Coded: []CodeRule{
			{Field: "status", Allowed: []string{"planned", "arrived", "triaged", "in-progress", "onleave", "finished", "cancelled", "entered-in-error", "unknown"}},
		},
		References: []string{"subject.reference"},
		Dates:      []string{"period.start", "period.end"},
	},
	"MedicationRequest": {
		Required:    []string{"id", "status", "intent", "subject.reference"},
		Recommended: []string{"medicationCodeableConcept.coding.code", "authoredOn", "requester.reference"},
		Coded: []CodeRule{
			{Field: "status", Allowed: []string{"active", "on-hold", "cancelled", "completed", "entered-in-error", "stopped", "draft", "unknown"}},
			{Field: "intent", Allowed: []string{"proposal", "plan", "order", "original-order", "reflex-order", "filler-order", "instance-order", "option"}},
		},
		References: []string{"subject.reference"},
		Dates:      []string{"authoredOn"},
	},
	"AllergyIntolerance": {
		Required:    []string{"id", "code.coding.code", "patient.reference"},
		Recommended: []string{"clinicalStatus.coding.code", "reaction.manifestation.coding.code"},
		Coded: []CodeRule{
			{Field: "clinicalStatus.coding.code", Allowed: []string{"active", "inactive", "resolved"}},
			{Field: "criticality", Allowed: []string{"low", "high", "unable-to-assess"}},
		},
		References: []string{"patient.reference"},
		Dates:      []string{"onsetDateTime", "recordedDate"},
	},
	"Immunization": {
		Required:    []string{"id", "status", "vaccineCode.coding.code", "patient.reference"},
		Recommended: []string{"occurrenceDateTime", "lotNumber"},
		Coded: []CodeRule{
			{Field: "status", Allowed: []string{"completed", "entered-in-error", "not-done"}},
		},
		References: []string{"patient.reference"},
		Dates:      []string{"occurrenceDateTime", "expirationDate"},
	},
	"DiagnosticReport": {
		Required:    []string{"id", "status", "code.coding.code"},
		Recommended: []string{"subject.reference", "effectiveDateTime", "result.reference"},
		Coded: []CodeRule{
			{Field: "status", Allowed: []string{"registered", "partial", "preliminary", "final", "amended", "corrected", "appended", "cancelled", "entered-in-error", "unknown"}},
		},
		References: []string{"subject.reference", "result.reference"},
		Dates:      []string{"effectiveDateTime", "issued"},
	},
}

// uscoreExtras layers US Core must-support requirements on top of the basic
// rules for the profile-covered types.
var uscoreExtras = map[string]RuleSet{
	"Patient": {
		Required:    []string{"name.family", "identifier.value"},
		Recommended: []string{"identifier.system"},
	},
	"Observation": {
		Required: []string{"subject.reference", "category.coding.code", "effectiveDateTime"},
	},
	"Condition": {
		Required: []string{"category.coding.code", "clinicalStatus.coding.code"},
	},
	"Encounter": {
		Required: []string{"subject.reference", "type.coding.code"},
	},
	"MedicationRequest": {
		Required: []string{"medicationCodeableConcept.coding.code", "authoredOn"},
	},
	"AllergyIntolerance": {
		Required: []string{"clinicalStatus.coding.code"},
	},
	"Immunization": {
		Required: []string{"occurrenceDateTime"},
	},
	"DiagnosticReport": {
		Required: []string{"subject.reference", "category.coding.code", "effectiveDateTime"},
	},
}

// autofixHints maps well-known fields to a remediation suggestion attached
// to issues when an assessment runs in autofix mode.
var autofixHints = map[string]string{
	"gender":                     "default to \"unknown\" from the administrative-gender value set",
	"birthDate":                  "backfill from the source system's demographics feed",
	"name.family":                "backfill from the source system's demographics feed",
	"identifier.value":           "assign an identifier from the master patient index",
	"status":                     "map the source status to a value from the required FHIR value set",
	"subject.reference":          "link the record to its patient as Patient/{id}",
	"patient.reference":          "link the record to its patient as Patient/{id}",
	"effectiveDateTime":          "populate from the source observation timestamp",
	"occurrenceDateTime":         "populate from the administration record timestamp",
	"authoredOn":                 "populate from the prescription order timestamp",
	"clinicalStatus.coding.code": "map the source status to the condition-clinical value set",
}
