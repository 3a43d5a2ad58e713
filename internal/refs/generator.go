// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package refs

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/grant-engine/internal/fileutil"
)

// ReferencesHeading is the section heading NSF expects for the bibliography.
const ReferencesHeading = "## References Cited"

// Result is the outcome of generating a bibliography.
type Result struct {
	Success  bool     `json:"success"`
	Content  string   `json:"content"`
	Order    []string `json:"citation_order"`
	Count    int      `json:"references_count"`
	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Generator renders bibliographies from a loaded Manager.
type Generator struct {
	m     *Manager
	style Style
	fmt   Formatter
}

// NewGenerator returns a generator over the entries already loaded in m.
func NewGenerator(m *Manager, style Style) *Generator {
	return &Generator{m: m, style: style, fmt: Formatter{Style: style}}
}

// Sort orders keys for the bibliography. Alphabetical style sorts by first
// author surname, then key; any other order falls back to key order.
func (g *Generator) Sort(keys []string) []string {
	out := append([]string(nil), keys...)
	if g.style.SortOrder != "alphabetical" {
		sort.Strings(out)
		return out
	}
	sortKey := make(map[string]string, len(out))
	for _, k := range out {
		e, _ := g.m.Entry(k)
		sortKey[k] = authorSortKey(e, k)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := sortKey[out[i]], sortKey[out[j]]
		if a != b {
			return a < b
		}
		return out[i] < out[j]
	})
	return out
}

// Render formats the "References Cited" section for keys in the given order.
func (g *Generator) Render(order []string) string {
	if len(order) == 0 {
		return ReferencesHeading + "\n\nNo references found.\n"
	}
	lines := []string{ReferencesHeading + "\n"}
	for i, k := range order {
		e, ok := g.m.Entry(k)
		if !ok {
			lines = append(lines, fmt.Sprintf("[%d] **Missing entry: %s**", i+1, k))
			continue
		}
		lines = append(lines, g.fmt.FormatEntry(e, i+1))
	}
	return strings.Join(lines, "\n\n") + "\n"
}

// Generate builds the bibliography for every citation found in the
// documents of contentDir. Missing keys are errors; unused entries are a
// warning. When outputPath is set and generation succeeded, the section is
// written there.
func (g *Generator) Generate(ctx context.Context, contentDir, outputPath string) (Result, error) {
	var res Result
	if g.m.Len() == 0 {
		res.Warnings = append(res.Warnings, "No BibTeX entries found")
	}

	report, err := ReportForDir(ctx, contentDir, g.m.Keys())
	if err != nil {
		return res, err
	}
	for _, k := range report.Missing {
		res.Errors = append(res.Errors, fmt.Sprintf("Citation key '%s' not found in bibliography", k))
	}
	if len(report.Unused) > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d bibliography entries are unused", len(report.Unused)))
	}

	return g.finish(res, g.available(report.Keys), outputPath)
}

// ReferencesSection renders a section holding only the used keys that exist
// in the bibliography.
func (g *Generator) ReferencesSection(used []string) string {
	return g.Render(g.Sort(g.available(used)))
}

// ProcessContent renumbers the citations in content and returns the keys
// in bibliography order.
func (g *Generator) ProcessContent(content string) (string, []string) {
	order := g.Sort(CitedKeys(content))
	return RenumberCitations(content, order), order
}

// SeparateReferences builds a standalone references document for the
// citations of mainContent so the bibliography stays out of the page count.
func (g *Generator) SeparateReferences(mainContent, outputPath string) (Result, error) {
	var res Result
	used := CitedKeys(mainContent)
	sort.Strings(used)
	for _, k := range used {
		if !g.m.Has(k) {
			res.Errors = append(res.Errors, fmt.Sprintf("Citation key '%s' not found in bibliography", k))
		}
	}
	return g.finish(res, g.available(used), outputPath)
}

func (g *Generator) finish(res Result, keys []string, outputPath string) (Result, error) {
	order := g.Sort(keys)
	res.Success = len(res.Errors) == 0
	res.Content = g.Render(order)
	res.Order = order
	res.Count = len(order)

	if outputPath != "" && res.Success {
		if err := fileutil.WriteFileAtomic(outputPath, []byte(res.Content)); err != nil {
			return res, fmt.Errorf("writing bibliography: %w", err)
		}
	}
	return res, nil
}

func (g *Generator) available(keys []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, k := range keys {
		if g.m.Has(k) && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// CitationStatistics combines bibliography and citation counts for a project.
type CitationStatistics struct {
	Bibliography       Statistics `json:"bibliography"`
	TotalCitations     int        `json:"total_citations"`
	UniqueCitations    int        `json:"unique_citations"`
	MissingEntries     int        `json:"missing_entries"`
	UnusedEntries      int        `json:"unused_entries"`
	FilesWithCitations int        `json:"files_with_citations"`
}

// Statistics reports on the citations of contentDir against the bibliography.
func (g *Generator) Statistics(ctx context.Context, contentDir string) (CitationStatistics, error) {
	report, err := ReportForDir(ctx, contentDir, g.m.Keys())
	if err != nil {
		return CitationStatistics{}, err
	}
	return CitationStatistics{
		Bibliography:       g.m.Statistics(),
		TotalCitations:     report.TotalCitations,
		UniqueCitations:    report.UniqueCitations,
		MissingEntries:     len(report.Missing),
		UnusedEntries:      len(report.Unused),
		FilesWithCitations: len(report.ByFile),
	}, nil
}
