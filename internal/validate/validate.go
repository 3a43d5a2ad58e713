// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package validate checks proposal Markdown against NSF PAPPG rules:
// prohibited links and emails, non-ASCII characters, required content,
// heading structure, formatting, and HTML the document would render to.
package validate

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	xhtml "golang.org/x/net/html"
	"golang.org/x/text/unicode/runenames"

	"github.com/pdiddy/grant-engine/pkg/types"
)

var (
	reEmail   = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	reURL     = regexp.MustCompile(`https?://[^\s<>"]+`)
	reHeading = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	reBold    = regexp.MustCompile(`\*\*[^*]+\*\*|__[^_]+__`)
	reItalic  = regexp.MustCompile(`\*[^*]+\*|_[^_]+_`)
	reMerit   = regexp.MustCompile(`intellectual\s+merit`)
	reImpacts = regexp.MustCompile(`broader\s+impacts?`)
	reDollar  = regexp.MustCompile(`\$[\d,]+`)
)

const (
	ruleEmail      = `PAPPG 24-1 II.C.2.d.i: "The Project Description must not include...email addresses of the PI(s), co-PI(s), or other senior/key personnel."`
	ruleURLMinimal = "PAPPG 24-1 II.C.2.d.i: URLs should only link to essential resources for proposal evaluation."
)

// Options selects check groups. The zero value runs nothing; use All.
type Options struct {
	Compliance bool
	Content    bool
	Formatting bool
	HTML       bool
}

// All enables every check group.
var All = Options{Compliance: true, Content: true, Formatting: true, HTML: true}

// Proposal runs every check on Markdown content.
func Proposal(content string) types.ValidationResult {
	return ProposalWith(content, All)
}

// ProposalWith runs the selected check groups on Markdown content.
func ProposalWith(content string, opts Options) types.ValidationResult {
	var issues []types.ValidationIssue
	if opts.Compliance {
		issues = append(issues, checkProhibited(content)...)
		issues = append(issues, checkNonASCII(content)...)
	}
	if opts.Content {
		issues = append(issues, checkContent(content)...)
		issues = append(issues, checkStructure(content)...)
	}
	if opts.Formatting {
		issues = append(issues, checkFormatting(content)...)
	}
	if opts.HTML {
		issues = append(issues, checkHTML(content)...)
	}
	return types.NewValidationResult(issues)
}

func issue(sev types.Severity, category, message string) types.ValidationIssue {
	return types.ValidationIssue{Severity: sev, Category: category, Message: message}
}

func checkProhibited(content string) []types.ValidationIssue {
	var issues []types.ValidationIssue
	for n, line := range strings.Split(content, "\n") {
		loc := fmt.Sprintf("Line %d", n+1)
		for _, email := range reEmail.FindAllString(line, -1) {
			i := issue(types.SeverityError, types.CategoryCompliance, "Email address found in project description: "+email)
			i.Location = loc
			i.Suggestion = "Remove ALL email addresses from project description. Contact information belongs in Cover Sheet only."
			i.Rule = ruleEmail
			issues = append(issues, i)
		}
		for _, u := range reURL.FindAllString(line, -1) {
			class := ClassifyURL(u)
			switch {
			case class.Prohibited && class.Service != "" && IsCloudStorage(u):
				i := issue(types.SeverityError, types.CategoryCompliance, "Prohibited cloud storage URL detected: "+u)
				i.Location = loc
				i.Suggestion = fmt.Sprintf("Replace %s links with institutional repositories (e.g., university data repository, Zenodo, Figshare) or remove entirely.", class.Service)
				i.Rule = class.Rule
				issues = append(issues, i)
			case class.Prohibited:
				i := issue(types.SeverityError, types.CategoryCompliance, "Prohibited URL type detected: "+u)
				i.Location = loc
				i.Suggestion = class.Suggestion
				i.Rule = class.Rule
				issues = append(issues, i)
			case !class.Allowed:
				i := issue(types.SeverityWarning, types.CategoryCompliance, "Potentially inappropriate URL - verify necessity: "+u)
				i.Location = loc
				i.Suggestion = "Ensure this URL is essential for reviewers. Consider if content can be summarized instead."
				i.Rule = ruleURLMinimal
				issues = append(issues, i)
			}
		}
	}
	return issues
}

func checkNonASCII(content string) []types.ValidationIssue {
	var issues []types.ValidationIssue
	for n, line := range strings.Split(content, "\n") {
		pos := 0
		for _, r := range line {
			pos++
			if r <= 127 {
				continue
			}
			name := runenames.Name(r)
			if name == "" {
				name = fmt.Sprintf("U+%04X", r)
			}
			i := issue(types.SeverityWarning, types.CategoryFormatting, fmt.Sprintf("Non-ASCII character '%c' (%s) found", r, name))
			i.Location = fmt.Sprintf("Line %d, position %d", n+1, pos)
			i.Suggestion = "Replace with ASCII equivalent to avoid encoding issues"
			i.Rule = "PAPPG formatting guidelines"
			issues = append(issues, i)
		}
	}
	return issues
}

func checkContent(content string) []types.ValidationIssue {
	var issues []types.ValidationIssue
	if words := len(strings.Fields(content)); words < 100 {
		i := issue(types.SeverityWarning, types.CategoryContent, fmt.Sprintf("Content appears very short: %d words", words))
		i.Suggestion = "Ensure adequate detail is provided for review"
		issues = append(issues, i)
	}
	lower := strings.ToLower(content)
	for _, req := range []struct {
		name string
		re   *regexp.Regexp
	}{{"intellectual merit", reMerit}, {"broader impacts", reImpacts}} {
		if !req.re.MatchString(lower) {
			i := issue(types.SeverityWarning, types.CategoryContent, fmt.Sprintf("'%s' section not clearly identified", req.name))
			i.Suggestion = fmt.Sprintf("Ensure %s is explicitly addressed", req.name)
			i.Rule = "PAPPG II.C.2.d.i"
			issues = append(issues, i)
		}
	}
	return issues
}

func checkStructure(content string) []types.ValidationIssue {
	matches := reHeading.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		i := issue(types.SeverityWarning, types.CategoryContent, "No section headings found")
		i.Suggestion = "Use clear section headings to organize content"
		return []types.ValidationIssue{i}
	}
	for n := 1; n < len(matches); n++ {
		if len(matches[n][1]) > len(matches[n-1][1])+1 {
			i := issue(types.SeverityWarning, types.CategoryFormatting, "Heading level skipped - may affect document structure")
			i.Location = fmt.Sprintf("Heading %d", n+1)
			i.Suggestion = "Use consecutive heading levels (e.g., # then ##, not # then ###)"
			return []types.ValidationIssue{i}
		}
	}
	return nil
}

func checkFormatting(content string) []types.ValidationIssue {
	var issues []types.ValidationIssue
	emphasis := len(reBold.FindAllStringIndex(content, -1)) + len(reItalic.FindAllStringIndex(content, -1))
	if words := len(strings.Fields(content)); words > 0 && float64(emphasis)/float64(words) > 0.05 {
		i := issue(types.SeverityWarning, types.CategoryFormatting, "Excessive use of emphasis (bold/italic)")
		i.Suggestion = "Use emphasis sparingly for maximum impact"
		issues = append(issues, i)
	}

	lines := strings.Split(content, "\n")
	long := 0
	for _, l := range lines {
		if len([]rune(l)) > 120 {
			long++
		}
	}
	if float64(long) > float64(len(lines))*0.1 {
		i := issue(types.SeverityInfo, types.CategoryFormatting, "Many lines are very long")
		i.Suggestion = "Consider breaking long lines for better readability"
		issues = append(issues, i)
	}
	return issues
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

var dangerousTags = map[string]bool{"script": true, "style": true, "iframe": true, "embed": true, "object": true}

// checkHTML renders the Markdown and inspects the resulting HTML.
func checkHTML(content string) []types.ValidationIssue {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		i := issue(types.SeverityError, types.CategoryValidation, "Validation failed: "+err.Error())
		i.Rule = "VALIDATOR_ERROR"
		return []types.ValidationIssue{i}
	}
	doc, err := xhtml.Parse(&buf)
	if err != nil {
		i := issue(types.SeverityError, types.CategoryValidation, "Validation failed: "+err.Error())
		i.Rule = "VALIDATOR_ERROR"
		return []types.ValidationIssue{i}
	}

	var found []string
	var tables []*xhtml.Node
	for n := range doc.Descendants() {
		if n.Type != xhtml.ElementNode {
			continue
		}
		if dangerousTags[n.Data] {
			found = append(found, n.Data)
		}
		if n.Data == "table" {
			tables = append(tables, n)
		}
	}

	var issues []types.ValidationIssue
	if len(found) > 0 {
		i := issue(types.SeverityError, types.CategoryCompliance,
			"HTML contains potentially problematic elements: "+strings.Join(dedupe(found), ", "))
		i.Suggestion = "Review and remove script, style, iframe, or embed tags"
		issues = append(issues, i)
	}
	for idx, t := range tables {
		if !hasDescendant(t, "th") {
			i := issue(types.SeverityWarning, types.CategoryFormatting, fmt.Sprintf("Table %d lacks header row", idx+1))
			i.Suggestion = "Add header row to tables for accessibility"
			issues = append(issues, i)
		}
	}
	return issues
}

func hasDescendant(n *xhtml.Node, tag string) bool {
	for d := range n.Descendants() {
		if d.Type == xhtml.ElementNode && d.Data == tag {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Separated validates a main document and its references section
// independently. The main document rejects prohibited links and flags any
// non-allowed link; references accept academic links but still reject
// emails and cloud storage. An empty references document, or one without
// a references heading, is skipped.
func Separated(main, references string, checkMain, checkReferences bool) types.ValidationResult {
	var issues []types.ValidationIssue
	if checkMain {
		issues = append(issues, mainDocument(main)...)
	}
	if checkReferences {
		issues = append(issues, referencesDocument(references)...)
	}
	return types.NewValidationResult(issues)
}

func mainDocument(content string) []types.ValidationIssue {
	var issues []types.ValidationIssue
	for n, line := range strings.Split(content, "\n") {
		loc := fmt.Sprintf("Line %d", n+1)
		for _, email := range reEmail.FindAllString(line, -1) {
			i := issue(types.SeverityError, types.CategoryCompliance, "Email address in main document: "+email)
			i.Location = loc
			i.Suggestion = "Remove all email addresses from main document. Use Cover Sheet for contact information."
			i.Rule = "PAPPG 24-1 II.C.2.d.i: Email addresses prohibited in Project Description"
			issues = append(issues, i)
		}
		for _, u := range reURL.FindAllString(line, -1) {
			class := ClassifyURL(u)
			switch {
			case class.Prohibited:
				i := issue(types.SeverityError, types.CategoryCompliance, "Prohibited URL in main document: "+u)
				i.Location = loc
				i.Suggestion = "Remove prohibited URLs from main document. Essential references should be cited and listed in References section."
				i.Rule = "PAPPG 24-1 II.C.2.d.i: Prohibited services not allowed in Project Description"
				issues = append(issues, i)
			case !class.Allowed:
				i := issue(types.SeverityWarning, types.CategoryCompliance, "URL in main document may be inappropriate: "+u)
				i.Location = loc
				i.Suggestion = "Consider moving URL to References section or removing if not essential."
				i.Rule = "PAPPG 24-1 II.C.2.d.i: URLs in main document should be minimal and essential"
				issues = append(issues, i)
			}
		}
	}
	return issues
}

func referencesDocument(content string) []types.ValidationIssue {
	if content == "" || !strings.Contains(strings.ToLower(content), "references") {
		return nil
	}
	var issues []types.ValidationIssue
	for n, line := range strings.Split(content, "\n") {
		loc := fmt.Sprintf("References, Line %d", n+1)
		for _, email := range reEmail.FindAllString(line, -1) {
			i := issue(types.SeverityError, types.CategoryCompliance, "Email address in references: "+email)
			i.Location = loc
			i.Suggestion = "Remove email addresses from references. Use author names and institutional affiliations only."
			i.Rule = "PAPPG 24-1: Email addresses prohibited throughout proposal"
			issues = append(issues, i)
		}
		for _, u := range reURL.FindAllString(line, -1) {
			class := ClassifyURL(u)
			if !class.Prohibited || class.Service == "" {
				continue
			}
			i := issue(types.SeverityError, types.CategoryCompliance, "Prohibited URL in references: "+u)
			i.Location = loc
			i.Suggestion = fmt.Sprintf("Replace %s link with DOI, stable institutional URL, or remove if not accessible to reviewers.", class.Service)
			i.Rule = "PAPPG 24-1 II.C.2.d.i: Even in references, use stable, accessible URLs"
			issues = append(issues, i)
		}
	}
	return issues
}

var biosketchSections = []string{
	"professional preparation",
	"appointments",
	"publications",
	"synergistic activities",
	"collaborators",
}

// Biosketch checks a biographical sketch for its required sections and
// approximate length.
func Biosketch(content string) types.ValidationResult {
	var issues []types.ValidationIssue
	lower := strings.ToLower(content)
	for _, s := range biosketchSections {
		if !strings.Contains(lower, s) {
			i := issue(types.SeverityError, types.CategoryContent, "Required biosketch section missing: "+s)
			i.Rule = "PAPPG II.C.2.f.i"
			issues = append(issues, i)
		}
	}
	if len(strings.Fields(content)) > 1500 {
		i := issue(types.SeverityWarning, types.CategoryFormatting, "Biographical sketch may exceed page limit")
		i.Suggestion = "Review length - typical limit is 2-3 pages"
		issues = append(issues, i)
	}
	return types.NewValidationResult(issues)
}

var budgetCategories = []string{
	"senior personnel", "other personnel", "fringe benefits",
	"equipment", "travel", "participant support", "other direct costs",
}

// BudgetNarrative checks that a budget justification mentions every NSF
// category and quotes dollar amounts.
func BudgetNarrative(content string) types.ValidationResult {
	var issues []types.ValidationIssue
	lower := strings.ToLower(content)
	var missing []string
	for _, c := range budgetCategories {
		if !strings.Contains(lower, c) && !strings.Contains(lower, strings.ReplaceAll(c, " ", "")) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		i := issue(types.SeverityWarning, types.CategoryContent, "Budget categories not mentioned: "+strings.Join(missing, ", "))
		i.Suggestion = "Ensure all relevant budget categories are justified"
		issues = append(issues, i)
	}
	if !reDollar.MatchString(content) {
		i := issue(types.SeverityWarning, types.CategoryContent, "No dollar amounts found in budget narrative")
		i.Suggestion = "Include specific costs with justifications"
		issues = append(issues, i)
	}
	return types.NewValidationResult(issues)
}
