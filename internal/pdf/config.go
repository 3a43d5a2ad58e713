// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdf renders proposals to NSF-compliant PDFs, checks the result
// against page and size limits, and suggests how to fit over-long content.
package pdf

import (
	"fmt"
	"strings"

	"github.com/pdiddy/grant-engine/internal/container"
	"github.com/pdiddy/grant-engine/internal/programs"
	"github.com/pdiddy/grant-engine/pkg/types"
)

// Engines.
const (
	EnginePandoc = "pandoc"
	EngineChrome = "chrome"
)

// Line spacings.
const (
	SpacingSingle     = "single"
	SpacingOneAndHalf = "1.5"
)

// Quality levels.
const (
	QualityDraft  = "draft"
	QualityNormal = "normal"
	QualityHigh   = "high"
)

// ErrToolMissing is returned when a required external tool is neither
// installed nor available through a container runtime.
var ErrToolMissing = container.ErrToolUnavailable

// Config controls PDF generation.
type Config struct {
	Engine string `yaml:"engine" json:"engine"`

	FontSize   int    `yaml:"font_size" json:"font_size"`
	FontFamily string `yaml:"font_family" json:"font_family"`

	LineSpacing string `yaml:"line_spacing" json:"line_spacing"`

	// Margins in inches.
	MarginTop    float64 `yaml:"margin_top" json:"margin_top"`
	MarginBottom float64 `yaml:"margin_bottom" json:"margin_bottom"`
	MarginLeft   float64 `yaml:"margin_left" json:"margin_left"`
	MarginRight  float64 `yaml:"margin_right" json:"margin_right"`

	OptimizeSpace bool `yaml:"optimize_space" json:"optimize_space"`
	Hyphenation   bool `yaml:"hyphenation" json:"hyphenation"`

	// ReferenceFontSize is the point size of the references section
	// (0 = body size).
	ReferenceFontSize int `yaml:"reference_font_size" json:"reference_font_size"`

	Quality string `yaml:"pdf_quality" json:"pdf_quality"`

	// PageLimit applies when no program limits are given (0 = none).
	PageLimit int `yaml:"page_limit" json:"page_limit"`

	// WarnThreshold is the fraction of the page limit that triggers a warning.
	WarnThreshold float64 `yaml:"warn_threshold" json:"warn_threshold"`
}

// DefaultConfig returns the densest configuration NSF allows.
func DefaultConfig() Config {
	return Config{
		Engine:            EnginePandoc,
		FontSize:          10,
		FontFamily:        "Times New Roman",
		LineSpacing:       SpacingSingle,
		MarginTop:         1,
		MarginBottom:      1,
		MarginLeft:        1,
		MarginRight:       1,
		OptimizeSpace:     true,
		Hyphenation:       true,
		ReferenceFontSize: 9,
		Quality:           QualityHigh,
		WarnThreshold:     0.9,
	}
}

// PandocArgs returns the pandoc flags that carry the configuration.
func (c Config) PandocArgs() []string {
	args := []string{
		"--pdf-engine=xelatex",
		"-V", fmt.Sprintf("fontsize=%dpt", c.FontSize),
		"-V", "mainfont=" + c.FontFamily,
		"-V", "geometry:top=" + inches(c.MarginTop),
		"-V", "geometry:bottom=" + inches(c.MarginBottom),
		"-V", "geometry:left=" + inches(c.MarginLeft),
		"-V", "geometry:right=" + inches(c.MarginRight),
	}
	switch c.LineSpacing {
	case SpacingSingle:
		args = append(args, "-V", "linestretch=1.0")
	case SpacingOneAndHalf:
		args = append(args, "-V", "linestretch=1.5")
	}
	if !c.Hyphenation {
		args = append(args, "-V", "nohyphenation=true")
	}
	switch c.Quality {
	case QualityHigh:
		args = append(args, "-V", "graphics=true")
	case QualityDraft:
		args = append(args, "-V", "draft=true")
	}
	if c.ReferenceFontSize > 0 {
		args = append(args, "-V", fmt.Sprintf("reference_font_size=%d", c.ReferenceFontSize))
	}
	return args
}

func inches(v float64) string {
	return fmt.Sprintf("%gin", v)
}

// Validate checks the configuration against the NSF formatting rules.
// Font size and margin violations come from the PAPPG rulebook; the rest
// are warnings.
func (c Config) Validate() []string {
	var issues []string
	if rules, err := programs.NSFRules(); err == nil {
		issues = append(issues, rules.CheckFontSize(c.FontSize)...)
		issues = append(issues, rules.CheckMargins(c.MarginTop, c.MarginBottom, c.MarginLeft, c.MarginRight)...)
	}
	if c.FontSize > 12 {
		issues = append(issues, fmt.Sprintf(warningPrefix+"Font size %dpt is unusually large for NSF proposals", c.FontSize))
	}
	if c.LineSpacing != SpacingSingle && c.LineSpacing != SpacingOneAndHalf {
		issues = append(issues,
			fmt.Sprintf(warningPrefix+"Line spacing '%s' may not comply with NSF density requirements", c.LineSpacing),
			"   NSF Rule: PAPPG 24-1 II.C.2.d.i.(b) allows no more than 6 lines per vertical inch")
	}
	switch c.Engine {
	case EnginePandoc, EngineChrome:
	default:
		issues = append(issues, fmt.Sprintf(programs.ErrorPrefix+"Unknown PDF engine '%s' (use %s or %s)", c.Engine, EnginePandoc, EngineChrome))
	}
	return issues
}

// warningPrefix starts advisory lines from Validate.
const warningPrefix = "warning: "

// HasErrors reports whether any issue from Validate is an error.
func HasErrors(issues []string) bool {
	for _, i := range issues {
		if strings.HasPrefix(i, programs.ErrorPrefix) {
			return true
		}
	}
	return false
}

// ProgramLimits are the PDF requirements of an NSF program.
type ProgramLimits struct {
	ProgramID          string  `json:"program_id"`
	PageLimit          int     `json:"page_limit"`
	MaxFileSizeMB      float64 `json:"max_file_size_mb"`
	SeparateReferences bool    `json:"separate_references"`
}

// DefaultMaxFileSizeMB is the PAPPG upload size limit.
const DefaultMaxFileSizeMB = 10.0

// DefaultPageLimit is the project description limit of every current
// NSF program.
const DefaultPageLimit = 15

// LimitsFor returns the PDF limits of a program: the page limit of its
// project description section, else DefaultPageLimit.
func LimitsFor(p types.Program) ProgramLimits {
	limit := DefaultPageLimit
	for _, s := range p.Sections {
		if s.ID == "project_description" && s.PageLimit > 0 {
			limit = s.PageLimit
		}
	}
	return ProgramLimits{
		ProgramID:          p.ID,
		PageLimit:          limit,
		MaxFileSizeMB:      DefaultMaxFileSizeMB,
		SeparateReferences: true,
	}
}
