// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package programs holds the NSF funding program configurations: their
// required sections, budget caps, formatting rules, and program-specific
// compliance checks.
package programs

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/grant-engine/pkg/types"
)

//go:embed data/*.yaml
var data embed.FS

// ErrUnknownProgram is returned when a program ID is not registered.
var ErrUnknownProgram = errors.New("unknown program")

// Defaults applied to programs that leave these fields unset.
const (
	DefaultIndirectRateMax    = 0.25
	DefaultEquipmentThreshold = 5000.0
	DefaultFontSizeMin        = 10
	DefaultMarginsMin         = 1.0
	DefaultBudgetCap          = 1_000_000.0
	DefaultProjectPeriodYears = 3
)

// Registry maps program IDs to configurations. Registration order is kept
// for listing.
type Registry struct {
	programs map[string]types.Program
	order    []string
}

// NewRegistry returns a registry holding the built-in programs.
func NewRegistry() (*Registry, error) {
	raw, err := data.ReadFile("data/programs.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading built-in programs: %w", err)
	}
	var builtins []types.Program
	if err := yaml.Unmarshal(raw, &builtins); err != nil {
		return nil, fmt.Errorf("parsing built-in programs: %w", err)
	}

	r := &Registry{programs: make(map[string]types.Program)}
	for _, p := range builtins {
		r.Add(p)
	}
	return r, nil
}

// Add registers p, replacing any program with the same ID. Unset budget and
// formatting fields take the package defaults.
func (r *Registry) Add(p types.Program) {
	applyDefaults(&p)
	if _, ok := r.programs[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.programs[p.ID] = p
}

func applyDefaults(p *types.Program) {
	if p.IndirectRateMax == 0 {
		p.IndirectRateMax = DefaultIndirectRateMax
	}
	if p.EquipmentThreshold == 0 {
		p.EquipmentThreshold = DefaultEquipmentThreshold
	}
	if p.FontSizeMin == 0 {
		p.FontSizeMin = DefaultFontSizeMin
	}
	if p.MarginsMin == 0 {
		p.MarginsMin = DefaultMarginsMin
	}
}

// Get returns the program with the given ID, case-insensitively.
func (r *Registry) Get(id string) (types.Program, error) {
	p, ok := r.programs[id]
	if !ok {
		p, ok = r.programs[strings.ToLower(id)]
	}
	if !ok {
		return types.Program{}, fmt.Errorf("%w: %s", ErrUnknownProgram, id)
	}
	return p, nil
}

// Lookup resolves a program by ID or by its display name, as written to
// basic_info.program of a scaffolded configuration.
func (r *Registry) Lookup(idOrName string) (types.Program, error) {
	if p, err := r.Get(idOrName); err == nil {
		return p, nil
	}
	for _, p := range r.programs {
		if strings.EqualFold(p.Name, strings.TrimSpace(idOrName)) {
			return p, nil
		}
	}
	return types.Program{}, fmt.Errorf("%w: %s", ErrUnknownProgram, idOrName)
}

// IDs returns the registered program IDs in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// List returns the registered programs in registration order.
func (r *Registry) List() []types.Program {
	out := make([]types.Program, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.programs[id])
	}
	return out
}

// programFile is the custom program YAML layout: a proposal config
// (basic_info + sections) with optional program-level keys.
type programFile struct {
	ProgramID           string             `yaml:"program_id"`
	Description         string             `yaml:"description"`
	BasicInfo           types.ProposalInfo `yaml:"basic_info"`
	BudgetCap           *float64           `yaml:"budget_cap"`
	ProjectPeriodYears  *int               `yaml:"project_period_years"`
	Sections            []programSection   `yaml:"sections"`
	Attachments         []string           `yaml:"attachments"`
	PageLimitTotal      int                `yaml:"page_limit_total"`
	IndirectRateMax     float64            `yaml:"indirect_rate_max"`
	ValidationRules     []string           `yaml:"validation_rules"`
	SpecialRequirements []string           `yaml:"special_requirements"`
	SolicitationURL     string             `yaml:"solicitation_url"`
}

type programSection struct {
	ID              string   `yaml:"id"`
	Title           string   `yaml:"title"`
	Required        *bool    `yaml:"required"`
	PageLimit       int      `yaml:"page_limit"`
	WordLimit       int      `yaml:"word_limit"`
	Description     string   `yaml:"description"`
	ValidationRules []string `yaml:"validation_rules"`
}

// LoadFromYAML reads a custom program definition and registers it. The
// program ID defaults to the file stem, the name to basic_info.program,
// the budget cap to 1,000,000 and the project period to 3 years.
func (r *Registry) LoadFromYAML(path string) (types.Program, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Program{}, fmt.Errorf("reading program config %s: %w", path, err)
	}
	var pf programFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return types.Program{}, fmt.Errorf("parsing program config %s: %w", path, err)
	}

	p := types.Program{
		ID:                  pf.ProgramID,
		Name:                pf.BasicInfo.Program,
		Description:         pf.Description,
		DeadlineInfo:        pf.BasicInfo.Deadline,
		BudgetCap:           DefaultBudgetCap,
		ProjectPeriodYears:  DefaultProjectPeriodYears,
		Attachments:         pf.Attachments,
		PageLimitTotal:      pf.PageLimitTotal,
		IndirectRateMax:     pf.IndirectRateMax,
		ValidationRules:     pf.ValidationRules,
		SpecialRequirements: pf.SpecialRequirements,
		SolicitationURL:     pf.SolicitationURL,
	}
	if p.ID == "" {
		p.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if p.Name == "" {
		p.Name = "Custom Program"
	}
	if pf.BudgetCap != nil {
		p.BudgetCap = *pf.BudgetCap
	}
	if pf.ProjectPeriodYears != nil {
		p.ProjectPeriodYears = *pf.ProjectPeriodYears
	}
	for _, s := range pf.Sections {
		req := types.SectionRequirement{
			ID:              s.ID,
			Title:           s.Title,
			Required:        true,
			PageLimit:       s.PageLimit,
			WordLimit:       s.WordLimit,
			Description:     s.Description,
			ValidationRules: s.ValidationRules,
		}
		if req.Title == "" {
			req.Title = "Untitled"
		}
		if s.Required != nil {
			req.Required = *s.Required
		}
		p.Sections = append(p.Sections, req)
	}

	r.Add(p)
	return r.programs[p.ID], nil
}
