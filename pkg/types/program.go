// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "math"

// SectionRequirement describes a proposal section a funding program expects.
type SectionRequirement struct {
	// ID is the section key used for file names (e.g. "project_summary").
	ID string `json:"id" yaml:"id"`

	// Title is the section heading.
	Title string `json:"title" yaml:"title"`

	// Required marks sections whose absence fails assembly validation.
	Required bool `json:"required" yaml:"required"`

	// PageLimit is the maximum page count (0 = no limit).
	PageLimit int `json:"page_limit,omitempty" yaml:"page_limit,omitempty"`

	// WordLimit is the maximum word count (0 = no limit).
	WordLimit int `json:"word_limit,omitempty" yaml:"word_limit,omitempty"`

	// Description explains what the section should contain.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// ValidationRules names extra checks applied to this section.
	ValidationRules []string `json:"validation_rules,omitempty" yaml:"validation_rules,omitempty"`
}

// Program is the configuration of an NSF funding program.
type Program struct {
	ID                 string  `json:"program_id" yaml:"program_id"`
	Name               string  `json:"name" yaml:"name"`
	Description        string  `json:"description" yaml:"description"`
	DeadlineInfo       string  `json:"deadline_info" yaml:"deadline_info"`
	BudgetCap          float64 `json:"budget_cap" yaml:"budget_cap"`
	ProjectPeriodYears int     `json:"project_period_years" yaml:"project_period_years"`

	// Sections lists the proposal sections in submission order.
	Sections []SectionRequirement `json:"sections" yaml:"sections"`

	// Attachments lists the supplementary documents the program requires.
	Attachments []string `json:"attachments,omitempty" yaml:"attachments,omitempty"`

	// IndirectRateMax caps the F&A rate applied in the budget template.
	IndirectRateMax float64 `json:"indirect_rate_max" yaml:"indirect_rate_max"`

	// EquipmentThreshold is the unit cost above which an item counts as equipment.
	EquipmentThreshold float64 `json:"equipment_threshold" yaml:"equipment_threshold"`

	PageLimitTotal int     `json:"page_limit_total,omitempty" yaml:"page_limit_total,omitempty"`
	FontSizeMin    int     `json:"font_size_min" yaml:"font_size_min"`
	MarginsMin     float64 `json:"margins_min" yaml:"margins_min"`

	// ValidationRules names the program-level compliance checks.
	ValidationRules []string `json:"validation_rules,omitempty" yaml:"validation_rules,omitempty"`

	// SpecialRequirements are eligibility notes shown to the applicant.
	SpecialRequirements []string `json:"special_requirements,omitempty" yaml:"special_requirements,omitempty"`

	SolicitationURL string `json:"solicitation_url,omitempty" yaml:"solicitation_url,omitempty"`
}

// ProposalInfo is the basic_info block of a proposal configuration.
type ProposalInfo struct {
	Program          string `json:"program" yaml:"program"`
	ProjectTitle     string `json:"project_title" yaml:"project_title"`
	OrganizationName string `json:"organization_name" yaml:"organization_name"`
	Deadline         string `json:"deadline" yaml:"deadline"`
}

// ProposalSection is one section entry of a proposal configuration.
type ProposalSection struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	File      string `json:"file" yaml:"file"`
	Required  bool   `json:"required" yaml:"required"`
	PageLimit int    `json:"page_limit,omitempty" yaml:"page_limit,omitempty"`
	WordLimit int    `json:"word_limit,omitempty" yaml:"word_limit,omitempty"`
}

// ProposalConfig is the nsf_config.yaml document written by init and read
// by the assembler.
type ProposalConfig struct {
	BasicInfo   ProposalInfo      `json:"basic_info" yaml:"basic_info"`
	Sections    []ProposalSection `json:"sections" yaml:"sections"`
	Attachments []string          `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	BudgetCap   Dollars           `json:"budget_cap,omitempty" yaml:"budget_cap,omitempty"`
}

// Dollars is a currency amount. Whole amounts are written to YAML as
// integers ("1500000" rather than "1.5e+06").
type Dollars float64

// MarshalYAML implements yaml.Marshaler.
func (d Dollars) MarshalYAML() (any, error) {
	if f := float64(d); f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return int64(f), nil
	}
	return float64(d), nil
}
