// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Severity ranks a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue categories.
const (
	CategoryCompliance = "compliance"
	CategoryContent    = "content"
	CategoryFormatting = "formatting"
	CategoryValidation = "validation"
)

// ValidationIssue is a single finding from a compliance check.
type ValidationIssue struct {
	// Severity is error, warning, or info. Only errors fail validation.
	Severity Severity `json:"severity" yaml:"severity"`

	// Category groups issues in reports (compliance, content, formatting).
	Category string `json:"category" yaml:"category"`

	// Message describes the problem.
	Message string `json:"message" yaml:"message"`

	// Location points at the offending text (e.g. "Line 12, position 4").
	Location string `json:"location,omitempty" yaml:"location,omitempty"`

	// Suggestion tells the author how to fix the problem.
	Suggestion string `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`

	// Rule cites the funder guideline behind the check.
	Rule string `json:"rule,omitempty" yaml:"rule,omitempty"`
}

// ValidationResult collects the issues of one validation run.
type ValidationResult struct {
	Issues []ValidationIssue `json:"issues" yaml:"issues"`
}

// NewValidationResult wraps issues in a result.
func NewValidationResult(issues []ValidationIssue) ValidationResult {
	return ValidationResult{Issues: issues}
}

// ErrorsCount returns the number of error-severity issues.
func (r ValidationResult) ErrorsCount() int {
	return r.count(SeverityError)
}

// WarningsCount returns the number of warning-severity issues.
func (r ValidationResult) WarningsCount() int {
	return r.count(SeverityWarning)
}

// Passed reports whether the run produced no errors.
func (r ValidationResult) Passed() bool {
	return r.ErrorsCount() == 0
}

func (r ValidationResult) count(s Severity) int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == s {
			n++
		}
	}
	return n
}
