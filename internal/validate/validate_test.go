// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/grant-engine/pkg/types"
)

func messages(r types.ValidationResult) []string {
	var out []string
	for _, i := range r.Issues {
		out = append(out, i.Message)
	}
	return out
}

func findIssue(t *testing.T, r types.ValidationResult, prefix string) types.ValidationIssue {
	t.Helper()
	for _, i := range r.Issues {
		if strings.HasPrefix(i.Message, prefix) {
			return i
		}
	}
	t.Fatalf("no issue starting with %q in %v", prefix, messages(r))
	return types.ValidationIssue{}
}

func TestClassifyURL(t *testing.T) {
	tests := []struct {
		url        string
		allowed    bool
		prohibited bool
		service    string
	}{
		{"https://www.nsf.gov/pubs/2024/nsf24001", true, false, ""},
		{"https://cs.stanford.edu/people/x", true, false, ""},
		{"https://github.com/org/repo", true, false, ""},
		{"https://www.dropbox.com/s/abc/data.zip", false, true, "Dropbox"},
		{"https://drive.google.com/file/d/1", false, true, "Google Drive"},
		{"https://mega.nz/file/x", false, true, "Unknown prohibited service"},
		{"https://myname.blogspot.com/post", false, true, ""},
		{"https://sites.google.com/view/lab", false, true, ""},
		{"https://example.com/~alice/", false, true, ""},
		{"https://xbox.com/games", false, false, ""},
		{"https://startup.io/product", false, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := ClassifyURL(tt.url)
			assert.Equal(t, tt.allowed, got.Allowed, "allowed")
			assert.Equal(t, tt.prohibited, got.Prohibited, "prohibited")
			assert.Equal(t, tt.service, got.Service, "service")
		})
	}
}

func TestProposal_ProhibitedContent(t *testing.T) {
	content := "# Intro\nContact pi@university.edu for data.\nData at https://www.dropbox.com/s/x and https://startup.io/p.\nSee https://doi.org/10.1/abc."
	r := ProposalWith(content, Options{Compliance: true})

	email := findIssue(t, r, "Email address found in project description: pi@university.edu")
	assert.Equal(t, types.SeverityError, email.Severity)
	assert.Equal(t, "Line 2", email.Location)

	cloud := findIssue(t, r, "Prohibited cloud storage URL detected")
	assert.Equal(t, types.SeverityError, cloud.Severity)
	assert.Contains(t, cloud.Suggestion, "Replace Dropbox links")
	assert.Equal(t, "Line 3", cloud.Location)

	unknown := findIssue(t, r, "Potentially inappropriate URL")
	assert.Equal(t, types.SeverityWarning, unknown.Severity)

	assert.Equal(t, 2, r.ErrorsCount())
	assert.Equal(t, 1, r.WarningsCount())
	assert.False(t, r.Passed())
}

func TestProposal_NonASCII(t *testing.T) {
	r := ProposalWith("plain\nsmart “quote”", Options{Compliance: true})
	require.Len(t, r.Issues, 2)
	assert.Equal(t, "Non-ASCII character '“' (LEFT DOUBLE QUOTATION MARK) found", r.Issues[0].Message)
	assert.Equal(t, "Line 2, position 7", r.Issues[0].Location)
	assert.Equal(t, "Line 2, position 13", r.Issues[1].Location)
	assert.True(t, r.Passed(), "non-ASCII characters are warnings")
}

func TestProposal_Content(t *testing.T) {
	r := ProposalWith("Just a few words.", Options{Content: true})
	assert.Equal(t, []string{
		"Content appears very short: 4 words",
		"'intellectual merit' section not clearly identified",
		"'broader impacts' section not clearly identified",
		"No section headings found",
	}, messages(r))

	long := "# Intellectual Merit\n" + strings.Repeat("word ", 120) + "\n#### Broader Impact\n\n## Skipped\n"
	r = ProposalWith(long, Options{Content: true})
	assert.Equal(t, []string{"Heading level skipped - may affect document structure"}, messages(r))
	assert.Equal(t, "Heading 2", r.Issues[0].Location)
}

func TestProposal_Formatting(t *testing.T) {
	r := ProposalWith("**a** *b* c d e f g h i j", Options{Formatting: true})
	assert.Contains(t, messages(r), "Excessive use of emphasis (bold/italic)")

	lines := strings.Repeat(strings.Repeat("x", 130)+"\n", 3) + "short"
	r = ProposalWith(lines, Options{Formatting: true})
	require.Len(t, r.Issues, 1)
	assert.Equal(t, types.SeverityInfo, r.Issues[0].Severity)
}

func TestProposal_HTML(t *testing.T) {
	content := "Text\n\n<script>alert(1)</script>\n\n<table><tr><td>a</td></tr></table>\n\n| H |\n|---|\n| v |\n"
	r := ProposalWith(content, Options{HTML: true})

	danger := findIssue(t, r, "HTML contains potentially problematic elements")
	assert.Equal(t, types.SeverityError, danger.Severity)
	assert.Contains(t, danger.Message, "script")

	assert.Contains(t, messages(r), "Table 1 lacks header row")
	assert.NotContains(t, messages(r), "Table 2 lacks header row")
}

func TestSeparated(t *testing.T) {
	main := "Results at https://arxiv.org/abs/1 and https://startup.io and https://box.com/x\nmail me@lab.org"
	refs := "# References\n1. Smith. https://startup.io/paper\n2. Data https://www.dropbox.com/s/1\n3. me@lab.org"

	r := Separated(main, refs, true, true)
	assert.Equal(t, []string{
		"URL in main document may be inappropriate: https://startup.io",
		"Prohibited URL in main document: https://box.com/x",
		"Email address in main document: me@lab.org",
		"Prohibited URL in references: https://www.dropbox.com/s/1",
		"Email address in references: me@lab.org",
	}, messages(r))
	assert.Equal(t, "References, Line 3", r.Issues[3].Location)

	r = Separated(main, refs, false, true)
	assert.Len(t, r.Issues, 2)

	r = Separated("", "no heading here https://dropbox.com/x", false, true)
	assert.Empty(t, r.Issues)
}

func TestBiosketch(t *testing.T) {
	r := Biosketch("Professional Preparation\nAppointments\nPublications\nSynergistic Activities")
	assert.Equal(t, []string{"Required biosketch section missing: collaborators"}, messages(r))
	assert.False(t, r.Passed())
}

func TestBudgetNarrative(t *testing.T) {
	r := BudgetNarrative("Senior Personnel $10,000. Travel $2,000. Equipment.")
	require.Len(t, r.Issues, 1)
	assert.Equal(t, "Budget categories not mentioned: other personnel, fringe benefits, participant support, other direct costs", r.Issues[0].Message)

	r = BudgetNarrative("seniorpersonnel otherpersonnel fringebenefits equipment travel participantsupport otherdirectcosts")
	assert.Equal(t, []string{"No dollar amounts found in budget narrative"}, messages(r))
}

func TestReport(t *testing.T) {
	when := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clean := Report([]types.ValidationResult{{}}, when)
	assert.Contains(t, clean, "Generated: 2026-05-01 12:00:00")
	assert.Contains(t, clean, "**All validation checks passed!**")

	r := types.NewValidationResult([]types.ValidationIssue{
		{Severity: types.SeverityError, Category: "compliance", Message: "bad link", Location: "Line 1", Rule: "R"},
		{Severity: types.SeverityWarning, Category: "content", Message: "short"},
		{Severity: types.SeverityInfo, Category: "compliance", Message: "fyi", Suggestion: "consider"},
	})
	got := Report([]types.ValidationResult{r}, when)
	assert.Contains(t, got, "**Summary:** 1 errors, 1 warnings")
	assert.Contains(t, got, "## Validation Set 1\n\n### Compliance Issues\n\n**error:** bad link\n   Location: Line 1\n   Rule: R\n\n**info:** fyi\n   Suggestion: consider\n\n### Content Issues\n\n**warning:** short\n")
}
