// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdf

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// LinesPerPage approximates a single-spaced page with 1in margins.
const LinesPerPage = 54

// Optimization kinds.
const (
	OptReduceWhitespace   = "reduce_whitespace"
	OptCompressFigures    = "compress_figures"
	OptOptimizeReferences = "optimize_references"
	OptTightenSpacing     = "tighten_spacing"
	OptReduceContent      = "reduce_content"
)

// Difficulty levels.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

var (
	reMDImage   = regexp.MustCompile(`!\[(.*?)\]\((.*?)\)`)
	reHTMLImage = regexp.MustCompile(`(?i)<img([^>]*?)>`)
	reTableRow  = regexp.MustCompile(`(?m)^\|.*\|$`)
	reNumbered  = regexp.MustCompile(`(?m)^\d+\.\s`)
	rePandocRef = regexp.MustCompile(`\[@\w+\]`)
)

// SectionLines is the line count of one top-level section.
type SectionLines struct {
	Name  string `json:"name"`
	Lines int    `json:"lines"`
}

// Analysis describes Markdown content in page terms.
type Analysis struct {
	TotalLines      int            `json:"total_lines"`
	EstimatedPages  float64        `json:"estimated_pages"`
	Sections        []SectionLines `json:"sections"`
	Figures         int            `json:"figures"`
	Tables          int            `json:"tables"`
	References      int            `json:"references"`
	WhitespaceLines int            `json:"whitespace_lines"`
}

// Suggestion is one way to save space. Priority 1 is highest.
type Suggestion struct {
	Type         string  `json:"type"`
	Section      string  `json:"section"`
	Description  string  `json:"description"`
	SavingsLines float64 `json:"potential_savings_lines"`
	Priority     int     `json:"priority"`
	Difficulty   string  `json:"implementation_difficulty"`
}

// Automatic reports whether the suggestion is applied without review.
func (s Suggestion) Automatic() bool {
	return s.Priority <= 2 && s.Difficulty == DifficultyEasy
}

// Analyze measures content.
func Analyze(content string) Analysis {
	lines := strings.Split(content, "\n")
	a := Analysis{
		TotalLines:     len(lines),
		EstimatedPages: float64(len(lines)) / LinesPerPage,
		Sections:       sections(lines),
		Figures:        len(reMDImage.FindAllStringIndex(content, -1)) + len(reHTMLImage.FindAllStringIndex(content, -1)),
		Tables:         len(reTableRow.FindAllStringIndex(content, -1)) / 3,
		References:     max(len(reNumbered.FindAllStringIndex(content, -1)), len(rePandocRef.FindAllStringIndex(content, -1))),
	}
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			a.WhitespaceLines++
		}
	}
	return a
}

// sections splits lines at level-1 headings. Text before the first
// heading belongs to "Introduction".
func sections(lines []string) []SectionLines {
	var out []SectionLines
	current := SectionLines{Name: "Introduction"}
	for _, l := range lines {
		if strings.HasPrefix(l, "# ") {
			if current.Lines > 0 {
				out = append(out, current)
			}
			current = SectionLines{Name: strings.TrimSpace(l[2:]), Lines: 1}
			continue
		}
		current.Lines++
	}
	if current.Lines > 0 {
		out = append(out, current)
	}
	return out
}

// Suggest proposes ways to bring content from currentPages down to
// targetPages, ordered by priority then by savings.
func Suggest(content string, currentPages, targetPages float64) []Suggestion {
	if currentPages <= targetPages {
		return nil
	}
	pagesToCut := currentPages - targetPages
	linesToCut := pagesToCut * LinesPerPage
	a := Analyze(content)

	var out []Suggestion
	if a.WhitespaceLines > 10 {
		save := min(float64(a.WhitespaceLines)*0.7, linesToCut*0.3)
		out = append(out, Suggestion{
			Type: OptReduceWhitespace, Section: "Global",
			Description: fmt.Sprintf("Remove excess blank lines (%d lines saved)", int(save)),
			SavingsLines: save, Priority: 1, Difficulty: DifficultyEasy,
		})
	}
	if a.Figures > 0 {
		save := float64(a.Figures * 2)
		out = append(out, Suggestion{
			Type: OptCompressFigures, Section: "Global",
			Description: fmt.Sprintf("Reduce figure sizes by 10-15%% (%d lines saved)", int(save)),
			SavingsLines: save, Priority: 2, Difficulty: DifficultyEasy,
		})
	}
	if a.References > 20 {
		save := float64(a.References) * 0.2
		out = append(out, Suggestion{
			Type: OptOptimizeReferences, Section: "References",
			Description: fmt.Sprintf("Use smaller font for references (%d lines saved)", int(save)),
			SavingsLines: save, Priority: 1, Difficulty: DifficultyEasy,
		})
	}
	for _, s := range a.Sections {
		if s.Lines > 50 {
			save := float64(s.Lines) * 0.05
			out = append(out, Suggestion{
				Type: OptTightenSpacing, Section: s.Name,
				Description: fmt.Sprintf("Reduce spacing in %s (%d lines saved)", s.Name, int(save)),
				SavingsLines: save, Priority: 2, Difficulty: DifficultyMedium,
			})
		}
	}
	if pagesToCut > 2 {
		longest := slices.Clone(a.Sections)
		slices.SortStableFunc(longest, func(x, y SectionLines) int { return cmp.Compare(y.Lines, x.Lines) })
		for _, s := range longest[:min(3, len(longest))] {
			save := float64(s.Lines) * 0.1
			out = append(out, Suggestion{
				Type: OptReduceContent, Section: s.Name,
				Description: fmt.Sprintf("Reduce content in %s by ~10%% (%d lines saved)", s.Name, int(save)),
				SavingsLines: save, Priority: 3, Difficulty: DifficultyHard,
			})
		}
	}

	slices.SortStableFunc(out, func(x, y Suggestion) int {
		if c := cmp.Compare(x.Priority, y.Priority); c != 0 {
			return c
		}
		return cmp.Compare(y.SavingsLines, x.SavingsLines)
	})
	return out
}

// Apply rewrites content with the named optimizations. Unknown and manual
// kinds (reduce_content) are ignored.
func Apply(content string, kinds []string) string {
	for _, k := range kinds {
		switch k {
		case OptReduceWhitespace:
			content = reduceWhitespace(content)
		case OptCompressFigures:
			content = compressFigures(content)
		case OptTightenSpacing:
			content = tightenSpacing(content)
		case OptOptimizeReferences:
			content = strings.ReplaceAll(content, "# References", "# References\n<!-- PDF: Use smaller font for this section -->")
		}
	}
	return content
}

// AutoApply applies the automatic suggestions and returns the new content
// with the kinds that were applied.
func AutoApply(content string, suggestions []Suggestion) (string, []string) {
	var kinds []string
	for _, s := range suggestions {
		if s.Automatic() && !slices.Contains(kinds, s.Type) {
			kinds = append(kinds, s.Type)
		}
	}
	if len(kinds) == 0 {
		return content, nil
	}
	return Apply(content, kinds), kinds
}

// reduceWhitespace collapses runs of blank lines to one.
func reduceWhitespace(content string) string {
	var out []string
	blanks := 0
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

func compressFigures(content string) string {
	content = reMDImage.ReplaceAllString(content, "![$1]($2){width=90%}")
	return reHTMLImage.ReplaceAllString(content, `<img$1 style="width: 90%; height: auto;">`)
}

// tightenSpacing drops the blank line between a heading and the text that
// follows it.
func tightenSpacing(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		out = append(out, lines[i])
		if strings.HasPrefix(lines[i], "#") &&
			i+2 < len(lines) &&
			strings.TrimSpace(lines[i+1]) == "" &&
			strings.TrimSpace(lines[i+2]) != "" {
			i++
		}
	}
	return strings.Join(out, "\n")
}
