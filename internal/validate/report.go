// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package validate

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pdiddy/grant-engine/pkg/types"
)

var categoryTitle = cases.Title(language.English)

// Label returns the report marker for a severity.
func Label(s types.Severity) string {
	switch s {
	case types.SeverityError:
		return "error"
	case types.SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Report renders validation results as Markdown, grouping each result's
// issues by category in first-seen order.
func Report(results []types.ValidationResult, generated time.Time) string {
	var b strings.Builder
	b.WriteString("# NSF Proposal Validation Report\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", generated.Format("2006-01-02 15:04:05"))

	errs, warns := 0, 0
	for _, r := range results {
		errs += r.ErrorsCount()
		warns += r.WarningsCount()
	}
	if errs == 0 && warns == 0 {
		b.WriteString("**All validation checks passed!**\n\n")
	} else {
		fmt.Fprintf(&b, "**Summary:** %d errors, %d warnings\n\n", errs, warns)
	}

	for n, r := range results {
		if len(r.Issues) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## Validation Set %d\n", n+1)

		var order []string
		byCategory := map[string][]types.ValidationIssue{}
		for _, i := range r.Issues {
			if _, ok := byCategory[i.Category]; !ok {
				order = append(order, i.Category)
			}
			byCategory[i.Category] = append(byCategory[i.Category], i)
		}
		for _, cat := range order {
			fmt.Fprintf(&b, "\n### %s Issues\n", categoryTitle.String(cat))
			for _, i := range byCategory[cat] {
				fmt.Fprintf(&b, "\n**%s:** %s\n", Label(i.Severity), i.Message)
				if i.Location != "" {
					fmt.Fprintf(&b, "   Location: %s\n", i.Location)
				}
				if i.Suggestion != "" {
					fmt.Fprintf(&b, "   Suggestion: %s\n", i.Suggestion)
				}
				if i.Rule != "" {
					fmt.Fprintf(&b, "   Rule: %s\n", i.Rule)
				}
			}
		}
		b.WriteString("\n---\n\n")
	}
	return b.String()
}
