// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package programs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/grant-engine/internal/fileutil"
	"github.com/pdiddy/grant-engine/pkg/types"
)

// ProposalConfigFile is the project configuration written by ExportTemplate.
const ProposalConfigFile = "nsf_config.yaml"

var sectionTemplate = template.Must(template.New("section").Parse(`# {{.Title}}

{{if .Description}}{{.Description}}{{else}}Describe this section here.{{end}}

<!--
Requirements:
- Required: {{if .Required}}Yes{{else}}No{{end}}
{{- if .PageLimit}}
- Page limit: {{.PageLimit}}
{{- end}}
{{- if .WordLimit}}
- Word limit: {{.WordLimit}}
{{- end}}
-->

[Write your content here...]
`))

// ExportResult lists the files ExportTemplate wrote or skipped.
type ExportResult struct {
	Written []string
	Skipped []string
}

// ExportTemplate scaffolds a proposal project for program id in dir:
// nsf_config.yaml, a Markdown template per section under sections/, and a
// starter budget/budget.yaml. Existing section files are never replaced;
// the configuration and budget are replaced only when force is set.
func (r *Registry) ExportTemplate(id, dir string, force bool) (ExportResult, error) {
	var res ExportResult
	p, err := r.Get(id)
	if err != nil {
		return res, err
	}

	cfg := ProposalConfigFor(p)
	cfgData, err := yaml.Marshal(cfg)
	if err != nil {
		return res, fmt.Errorf("marshaling %s: %w", ProposalConfigFile, err)
	}
	if err := writeScaffold(&res, filepath.Join(dir, ProposalConfigFile), cfgData, force); err != nil {
		return res, err
	}

	for _, s := range p.Sections {
		var b strings.Builder
		if err := sectionTemplate.Execute(&b, s); err != nil {
			return res, fmt.Errorf("rendering template for %s: %w", s.ID, err)
		}
		path := filepath.Join(dir, "sections", s.ID+".md")
		if err := writeScaffold(&res, path, []byte(b.String()), false); err != nil {
			return res, err
		}
	}

	budgetData, err := yaml.Marshal(budgetTemplate(p))
	if err != nil {
		return res, fmt.Errorf("marshaling budget template: %w", err)
	}
	if err := writeScaffold(&res, filepath.Join(dir, "budget", "budget.yaml"), budgetData, force); err != nil {
		return res, err
	}
	return res, nil
}

func writeScaffold(res *ExportResult, path string, data []byte, force bool) error {
	if !force && fileutil.Exists(path) {
		res.Skipped = append(res.Skipped, path)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	res.Written = append(res.Written, path)
	return nil
}

// ProposalConfigFor builds the starter nsf_config.yaml for p.
func ProposalConfigFor(p types.Program) types.ProposalConfig {
	cfg := types.ProposalConfig{
		BasicInfo: types.ProposalInfo{
			Program:          p.Name,
			ProjectTitle:     "Your Project Title Here",
			OrganizationName: "Your Institution",
			Deadline:         p.DeadlineInfo,
		},
		Attachments: p.Attachments,
		BudgetCap:   types.Dollars(p.BudgetCap),
	}
	for _, s := range p.Sections {
		cfg.Sections = append(cfg.Sections, types.ProposalSection{
			ID:        s.ID,
			Title:     s.Title,
			File:      "sections/" + s.ID + ".md",
			Required:  s.Required,
			PageLimit: s.PageLimit,
			WordLimit: s.WordLimit,
		})
	}
	return cfg
}

func budgetTemplate(p types.Program) map[string]any {
	return map[string]any{
		"A_senior_personnel": []map[string]any{
			{"description": "PI salary (X months)", "amount": 50000},
		},
		"B_other_personnel": []map[string]any{
			{"description": "Graduate student (1.0 FTE)", "amount": 60000},
		},
		"C_fringe": []map[string]any{
			{"description": "Fringe benefits", "amount": 27500},
		},
		"E_travel": []map[string]any{
			{
				"description": "Conference travel",
				"travelers":   2,
				"days":        4,
				"destination": map[string]any{
					"city":  "San Francisco",
					"state": "CA",
					"fy":    2026,
					"month": 6,
				},
				"airfare": 600,
			},
		},
		"I_indirect": []map[string]any{
			{"rate": p.IndirectRateMax},
		},
	}
}
