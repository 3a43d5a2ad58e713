// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package programs

import (
	"fmt"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

// Rule is one PAPPG formatting rule with its citation.
type Rule struct {
	Severity string `yaml:"severity"`
	Message  string `yaml:"message"`
	Citation string `yaml:"citation"`
	URL      string `yaml:"url"`
}

// Rules is the NSF formatting rulebook.
type Rules struct {
	Metadata struct {
		PAPPGVersion  string `yaml:"pappg_version"`
		EffectiveDate string `yaml:"effective_date"`
		URL           string `yaml:"url"`
	} `yaml:"metadata"`
	Font struct {
		Size struct {
			Minimum     int `yaml:"minimum"`
			Recommended int `yaml:"recommended"`
		} `yaml:"size"`
		Families []string `yaml:"families"`
	} `yaml:"font"`
	Spacing struct {
		LinesPerInchMax      int `yaml:"lines_per_inch_max"`
		CharactersPerInchMax int `yaml:"characters_per_inch_max"`
	} `yaml:"spacing"`
	Margins struct {
		AllSides float64 `yaml:"all_sides"`
	} `yaml:"margins"`
	PageLimits      map[string]int  `yaml:"page_limits"`
	ValidationRules map[string]Rule `yaml:"validation_rules"`
	Optimization    struct {
		LineSpacing        float64 `yaml:"line_spacing"`
		ParagraphSpacingPt int     `yaml:"paragraph_spacing_pt"`
		ReferenceFontSize  int     `yaml:"reference_font_size"`
		CompactLists       bool    `yaml:"compact_lists"`
	} `yaml:"optimization"`
}

var (
	rulesOnce sync.Once
	rules     *Rules
	rulesErr  error
)

// NSFRules returns the embedded PAPPG rulebook, parsed once.
func NSFRules() (*Rules, error) {
	rulesOnce.Do(func() {
		raw, err := data.ReadFile("data/nsf_rules.yaml")
		if err != nil {
			rulesErr = fmt.Errorf("reading NSF rules: %w", err)
			return
		}
		var r Rules
		if err := yaml.Unmarshal(raw, &r); err != nil {
			rulesErr = fmt.Errorf("parsing NSF rules: %w", err)
			return
		}
		rules = &r
	})
	return rules, rulesErr
}

// ErrorPrefix starts every rule violation line.
const ErrorPrefix = "error: "

// FormatMessage renders a rule's message with {name} placeholders filled
// from args, followed by the PAPPG citation and link.
func (r *Rules) FormatMessage(name string, args map[string]string) string {
	rule, ok := r.ValidationRules[name]
	if !ok {
		return "Validation error: " + name
	}
	pairs := make([]string, 0, 2*len(args))
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", v)
	}
	msg := strings.NewReplacer(pairs...).Replace(rule.Message)

	lines := []string{ErrorPrefix + msg}
	if rule.Citation != "" {
		lines = append(lines, "   NSF Rule: "+rule.Citation)
	}
	if rule.URL != "" {
		lines = append(lines, "   See: "+rule.URL)
	}
	return strings.Join(lines, "\n")
}

// CheckFontSize reports a font size below the NSF minimum.
func (r *Rules) CheckFontSize(size int) []string {
	min := r.Font.Size.Minimum
	if min == 0 {
		min = DefaultFontSizeMin
	}
	if size >= min {
		return nil
	}
	return []string{r.FormatMessage("font_size", map[string]string{"size": fmt.Sprint(size)})}
}

// CheckMargins reports margins below the NSF minimum on any side.
func (r *Rules) CheckMargins(top, bottom, left, right float64) []string {
	min := r.Margins.AllSides
	if min == 0 {
		min = DefaultMarginsMin
	}
	if top >= min && bottom >= min && left >= min && right >= min {
		return nil
	}
	margin := fmt.Sprintf("top=%g, bottom=%g, left=%g, right=%g", top, bottom, left, right)
	return []string{r.FormatMessage("margins", map[string]string{"margin": margin})}
}
