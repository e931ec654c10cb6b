// Package rules holds the declarative matching tables the pipeline stages
// run on: file mappings, column drop lists, cohort exclusions and the
// keyword rules behind every derived feature column. Rule sets load from a
// yaml file and fall back to the built-in defaults, which encode the
// study's published variable definitions.
package rules

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// KeyColumn is the synthesized episode identifier present on every
// canonical table.
const KeyColumn = "admission_key"

// Canonical domain file names.
const (
	FileDiagnosis        = "diagnosis.csv"
	FileMedicationOrders = "medication_orders.csv"
	FileNonDrugOrders    = "non_drug_orders.csv"
	FileVitalSigns       = "vital_signs.csv"
	FileGlucose          = "glucose.csv"
	FileAdmissionNotes   = "admission_notes.csv"
	FileLabMetabolic     = "lab_metabolic.csv"
	FileHospitalization  = "hospitalization.csv"
	FileLabCRP           = "lab_crp.csv"
	FileLabHematology    = "lab_hematology.csv"
	FileLabChemistry     = "lab_chemistry.csv"
	FileOtherLab         = "other_lab.csv"
)

// Logic values for FeatureRule composition.
const (
	LogicAND = "and"
	LogicOR  = "or"
)

// Override is a special-case secondary match unioned into a rule's result.
// When Primary is set the row's primary text must equal it exactly; when
// RouteField is set the row's route value must be on the Routes whitelist.
type Override struct {
	Fields     []string `yaml:"fields" json:"fields"`
	Pattern    string   `yaml:"pattern" json:"pattern"`
	Primary    string   `yaml:"primary,omitempty" json:"primary,omitempty"`
	RouteField string   `yaml:"route_field,omitempty" json:"route_field,omitempty"`
	Routes     []string `yaml:"routes,omitempty" json:"routes,omitempty"`
}

// FeatureRule derives one 0/1 column from a free-text field.
type FeatureRule struct {
	Name     string    `yaml:"name" json:"name"`
	Display  string    `yaml:"display" json:"display"`
	FullName string    `yaml:"full_name" json:"full_name"`
	Logic    string    `yaml:"logic" json:"logic"`
	Keywords []string  `yaml:"keywords" json:"keywords"`
	Exclude  []string  `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	Special  *Override `yaml:"special,omitempty" json:"special,omitempty"`
}

// FileMapping binds one raw export file name to a canonical domain file.
// Variants carries paginated duplicates that union into the same table.
type FileMapping struct {
	Raw       string   `yaml:"raw" json:"raw"`
	Canonical string   `yaml:"canonical" json:"canonical"`
	Variants  []string `yaml:"variants,omitempty" json:"variants,omitempty"`
}

// CohortSpec names one cohort and the raw batch folders feeding it.
type CohortSpec struct {
	Name    string        `yaml:"name" json:"name"`
	Folders []string      `yaml:"folders" json:"folders"`
	Files   []FileMapping `yaml:"files" json:"files"`
}

// NormalizerRules configures the schema normalizer.
type NormalizerRules struct {
	Cohorts      []CohortSpec `yaml:"cohorts" json:"cohorts"`
	DropColumns  []string     `yaml:"drop_columns" json:"drop_columns"`
	DateExcluded []string     `yaml:"date_excluded" json:"date_excluded"`
}

// ExclusionRules drives the cohort filter.
type ExclusionRules struct {
	DiagnosisColumn   string   `yaml:"diagnosis_column" json:"diagnosis_column"`
	DiagnosisKeywords []string `yaml:"diagnosis_keywords" json:"diagnosis_keywords"`
	Departments       []string `yaml:"departments" json:"departments"`
}

// MedicationRules configures the glucose-lowering medication pass.
type MedicationRules struct {
	TextColumn   string        `yaml:"text_column" json:"text_column"`
	StatusColumn string        `yaml:"status_column" json:"status_column"`
	VoidedValue  string        `yaml:"voided_value" json:"voided_value"`
	Oral         []FeatureRule `yaml:"oral" json:"oral"`
	Insulin      []FeatureRule `yaml:"insulin" json:"insulin"`
}

// All returns oral then insulin rules in output column order.
func (m MedicationRules) All() []FeatureRule {
	out := make([]FeatureRule, 0, len(m.Oral)+len(m.Insulin))
	out = append(out, m.Oral...)
	out = append(out, m.Insulin...)
	return out
}

// ComorbidityRules configures the diagnosis-derived flag pass.
type ComorbidityRules struct {
	TextColumn string        `yaml:"text_column" json:"text_column"`
	Rules      []FeatureRule `yaml:"rules" json:"rules"`
}

// OrderRules configures the non-drug order passes (surgery events and
// fasting/nutrition windows).
type OrderRules struct {
	StatusColumn      string   `yaml:"status_column" json:"status_column"`
	VoidedValue       string   `yaml:"voided_value" json:"voided_value"`
	TypeColumn        string   `yaml:"type_column" json:"type_column"`
	SurgeryType       string   `yaml:"surgery_type" json:"surgery_type"`
	ItemColumn        string   `yaml:"item_column" json:"item_column"`
	PrescribedColumn  string   `yaml:"prescribed_column" json:"prescribed_column"`
	StartColumn       string   `yaml:"start_column" json:"start_column"`
	StopColumn        string   `yaml:"stop_column" json:"stop_column"`
	FastingKeyword    string   `yaml:"fasting_keyword" json:"fasting_keyword"`
	NutritionKeywords []string `yaml:"nutrition_keywords" json:"nutrition_keywords"`
	MaxFastingHours   float64  `yaml:"max_fasting_hours" json:"max_fasting_hours"`
}

// Ruleset aggregates every stage's rule tables.
type Ruleset struct {
	Normalizer    NormalizerRules  `yaml:"normalizer" json:"normalizer"`
	Exclusion     ExclusionRules   `yaml:"exclusion" json:"exclusion"`
	Medications   MedicationRules  `yaml:"medications" json:"medications"`
	Comorbidities ComorbidityRules `yaml:"comorbidities" json:"comorbidities"`
	Orders        OrderRules       `yaml:"orders" json:"orders"`
}

// Load reads a rule file, falling back to the built-in defaults when no
// path is configured.
func Load(path string) (Ruleset, error) {
	if path == "" {
		return Default(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Default(), err
	}
	var rs Ruleset
	if err := yaml.Unmarshal(content, &rs); err != nil {
		return Ruleset{}, err
	}
	if len(rs.Normalizer.Cohorts) == 0 {
		return Ruleset{}, errors.New("rule file defines no cohorts")
	}
	return rs, nil
}

func Default() Ruleset {
	return Ruleset{
		Normalizer:    DefaultNormalizer(),
		Exclusion:     DefaultExclusion(),
		Medications:   DefaultMedications(),
		Comorbidities: DefaultComorbidities(),
		Orders:        DefaultOrders(),
	}
}

func DefaultExclusion() ExclusionRules {
	return ExclusionRules{
		DiagnosisColumn:   "disease_name",
		DiagnosisKeywords: []string{"妊娠糖尿病", "死亡"},
		Departments: []string{
			"CCU病房（心血管内科）（外滩）", "CCU（月湖）",
			"EICU（月湖）", "EICU（海曙）", "监护病房（外滩）",
			"重症医学科（外滩）", "重症医学科（方桥）",
			"重症监护一（月湖）", "重症监护一（海曙）",
			"重症监护二（月湖）", "重症监护二（海曙）",
		},
	}
}

func DefaultOrders() OrderRules {
	return OrderRules{
		StatusColumn:      "order_status",
		VoidedValue:       "已撤销",
		TypeColumn:        "order_type",
		SurgeryType:       "手术",
		ItemColumn:        "order_item_name",
		PrescribedColumn:  "prescribed_time",
		StartColumn:       "start_time",
		StopColumn:        "stop_time",
		FastingKeyword:    "禁食",
		NutritionKeywords: []string{"肠内", "肠外", "营养"},
		MaxFastingHours:   24,
	}
}
