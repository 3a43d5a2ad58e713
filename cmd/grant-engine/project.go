// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pdiddy/grant-engine/internal/assemble"
	"github.com/pdiddy/grant-engine/internal/export"
	"github.com/pdiddy/grant-engine/internal/fileutil"
	"github.com/pdiddy/grant-engine/internal/output"
	"github.com/pdiddy/grant-engine/internal/programs"
	"github.com/pdiddy/grant-engine/internal/refs"
	"github.com/pdiddy/grant-engine/internal/textutil"
	"github.com/pdiddy/grant-engine/internal/validate"
	"github.com/pdiddy/grant-engine/pkg/types"
)

var numbers = message.NewPrinter(language.English)

// --- init ---

var initCmd = &cobra.Command{
	Use:   "init <program>",
	Short: "Initialize a new NSF proposal project from a program template",
	Long: `Init scaffolds a proposal project for an NSF program: nsf_config.yaml,
a Markdown template per section under sections/, a starter
budget/budget.yaml, and a sample references.bib. Existing section files
are never replaced; the configuration and budget are replaced only with
--force.`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringP("output-dir", "o", "", "output directory (defaults to the project root)")
	initCmd.Flags().BoolP("force", "f", false, "overwrite existing configuration and budget files")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("output-dir")
	force, _ := cmd.Flags().GetBool("force")
	if dir == "" {
		root, err := projectRoot()
		if err != nil {
			return err
		}
		dir = root
	}

	reg, err := programs.NewRegistry()
	if err != nil {
		return err
	}
	id := strings.ToLower(args[0])
	res, err := reg.ExportTemplate(id, dir, force)
	if err != nil {
		return fmt.Errorf("initializing %s project: %w", id, err)
	}
	bib := filepath.Join(dir, "references.bib")
	wrote, err := refs.WriteSample(bib)
	if err != nil {
		return err
	}
	if wrote {
		res.Written = append(res.Written, bib)
	} else {
		res.Skipped = append(res.Skipped, bib)
	}

	w := cmd.OutOrStdout()
	for _, p := range res.Written {
		fmt.Fprintf(w, "created: %s\n", relTo(dir, p))
	}
	for _, p := range res.Skipped {
		fmt.Fprintf(w, "skipped: %s (exists)\n", relTo(dir, p))
	}
	fmt.Fprintf(w, "\nInitialized %s project in %s\n", id, dir)
	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintln(w, "1. Edit the configuration in nsf_config.yaml")
	fmt.Fprintln(w, "2. Write your proposal sections in sections/")
	fmt.Fprintln(w, "3. Customize the budget in budget/budget.yaml")
	fmt.Fprintln(w, "4. Run grant-engine build to assemble the proposal")
	return nil
}

func relTo(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil {
		return rel
	}
	return path
}

// --- build ---

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Assemble the complete proposal document from its sections",
	Long: `Build concatenates the configured sections into assembled_proposal.md
with a metadata header and table of contents, or through a custom template
under templates/. With --format docx or pdf the assembled Markdown is then
converted.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringP("output", "o", "", "output file (default: assembled_proposal.<ext> in the project root)")
	buildCmd.Flags().String("format", "markdown", "output format: markdown, docx, or pdf")
	buildCmd.Flags().String("template", "", "custom template under templates/ (default: "+assemble.DefaultTemplate+")")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	outPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	tmpl, _ := cmd.Flags().GetString("template")

	switch format {
	case "markdown", "docx", "pdf":
	default:
		return fmt.Errorf("invalid format %q: must be one of: markdown, docx, pdf", format)
	}

	root, err := projectRoot()
	if err != nil {
		return err
	}
	a, err := assemble.New(ctx, root)
	if err != nil {
		return err
	}

	opts := assemble.DefaultOptions()
	opts.Template = tmpl
	if format == "markdown" {
		opts.Output = outPath
	}
	res, err := assembleProposal(ctx, a, opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("assembly incomplete: %d required section(s) missing", len(res.Errors))
	}

	if outPath == "" {
		outPath = strings.TrimSuffix(res.OutputPath, ".md") + "." + format
	}
	switch format {
	case "pdf":
		return generatePDF(ctx, cmd.OutOrStdout(), root, res.OutputPath, outPath, pdfFlags{Optimize: true, FontSize: 11})
	case "docx":
		doc, err := os.ReadFile(res.OutputPath)
		if err != nil {
			return fmt.Errorf("reading assembled proposal: %w", err)
		}
		if err := export.New(newRunner(), root, cmd.ErrOrStderr()).DOCX(ctx, string(doc), outPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "DOCX written: %s\n", outPath)
	}
	return nil
}

// assembleProposal assembles the document and prints the outcome, including
// any required sections that are missing. Callers decide whether those
// errors are fatal.
func assembleProposal(ctx context.Context, a *assemble.Assembler, opts assemble.Options, w io.Writer) (*assemble.Result, error) {
	res, err := a.AssembleDocument(ctx, opts)
	if err != nil {
		return nil, err
	}

	complete := 0
	for _, s := range res.Sections {
		if s.Complete {
			complete++
		}
	}
	fmt.Fprintf(w, "Assembled proposal: %s\n", res.OutputPath)
	numbers.Fprintf(w, "Total words: %d\n", res.TotalWords)
	fmt.Fprintf(w, "Sections complete: %d/%d\n", complete, len(res.Sections))
	writeList(w, "Errors", res.Errors)
	writeList(w, "Warnings", res.Warnings)
	return res, nil
}

// writeList prints a titled bullet list; nothing when items is empty.
func writeList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	if title != "" {
		fmt.Fprintf(w, "\n%s:\n", title)
	}
	for _, i := range items {
		fmt.Fprintf(w, "  • %s\n", i)
	}
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run NSF compliance validation on the proposal",
	Long: `Validate assembles the proposal and checks it against the NSF PAPPG
rules: prohibited URLs and emails, non-ASCII characters, required
sections, word limits, formatting, and embedded HTML. Errors fail the
command; with --strict, warnings fail it too.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().Bool("strict", false, "treat warnings as errors")
	validateCmd.Flags().StringP("output", "o", "", "save a Markdown validation report to this file")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	strict, _ := cmd.Flags().GetBool("strict")
	reportPath, _ := cmd.Flags().GetString("output")

	root, err := projectRoot()
	if err != nil {
		return err
	}
	a, err := assemble.New(ctx, root)
	if err != nil {
		return err
	}
	res, err := assembleProposal(ctx, a, assemble.DefaultOptions(), io.Discard)
	if err != nil {
		return fmt.Errorf("cannot validate: %w", err)
	}
	content, err := os.ReadFile(res.OutputPath)
	if err != nil {
		return fmt.Errorf("reading assembled proposal: %w", err)
	}

	result := validate.Proposal(string(content))
	for _, issue := range a.ValidateProposal(ctx) {
		result.Issues = append(result.Issues, types.ValidationIssue{
			Severity: types.SeverityWarning,
			Category: types.CategoryContent,
			Message:  issue,
		})
	}
	result.Issues = append(result.Issues, sectionContentIssues(a.Sections)...)
	extra, err := supportingDocIssues(root)
	if err != nil {
		return err
	}
	result.Issues = append(result.Issues, extra...)
	return reportValidation(cmd.OutOrStdout(), result, strict, reportPath, "All validation checks passed!")
}

// sectionContentIssues checks the prose of each complete section for
// placeholders, very short text, and overused words.
func sectionContentIssues(sections []*assemble.Section) []types.ValidationIssue {
	var out []types.ValidationIssue
	for _, s := range sections {
		if !s.Complete {
			continue
		}
		for _, msg := range textutil.ValidateContent(s.Content) {
			out = append(out, types.ValidationIssue{
				Severity: types.SeverityWarning,
				Category: types.CategoryContent,
				Message:  msg,
				Location: s.Title,
			})
		}
	}
	return out
}

// supportingDocs pairs glob patterns under the project root with the check
// for that kind of document.
var supportingDocs = []struct {
	pattern string
	check   func(string) types.ValidationResult
}{
	{filepath.Join("budget", "budget_justification.md"), validate.BudgetNarrative},
	{filepath.Join("biosketches", "*.md"), validate.Biosketch},
	{filepath.Join("sections", "biosketch*.md"), validate.Biosketch},
}

// supportingDocIssues validates the budget justification and biosketches
// found in the project. Issue locations are prefixed with the file name.
func supportingDocIssues(root string) ([]types.ValidationIssue, error) {
	var out []types.ValidationIssue
	for _, d := range supportingDocs {
		matches, err := filepath.Glob(filepath.Join(root, d.pattern))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", m, err)
			}
			for _, issue := range d.check(string(data)).Issues {
				loc := relTo(root, m)
				if issue.Location != "" {
					loc += ", " + issue.Location
				}
				issue.Location = loc
				out = append(out, issue)
			}
		}
	}
	return out, nil
}

// reportValidation prints a summary table and the issues, saves the report
// when path is set, and fails on errors or, when strict, on warnings.
func reportValidation(w io.Writer, result types.ValidationResult, strict bool, path, okMessage string) error {
	failed := !result.Passed() || (strict && result.WarningsCount() > 0)
	if failed {
		fmt.Fprintln(w, "Validation issues found")
	} else {
		fmt.Fprintf(w, "%s\n", okMessage)
	}

	if err := output.RenderTable(w, output.Data{
		Headers: []string{"Type", "Count"},
		Rows: [][]string{
			{"Errors", fmt.Sprint(result.ErrorsCount())},
			{"Warnings", fmt.Sprint(result.WarningsCount())},
			{"Total Issues", fmt.Sprint(len(result.Issues))},
		},
		ColumnAlignment: []output.Align{output.AlignLeft, output.AlignRight},
	}); err != nil {
		return err
	}

	for i, issue := range result.Issues {
		fmt.Fprintf(w, "\n%d. %s: %s\n", i+1, validate.Label(issue.Severity), issue.Message)
		if issue.Location != "" {
			fmt.Fprintf(w, "   Location: %s\n", issue.Location)
		}
		if issue.Suggestion != "" {
			fmt.Fprintf(w, "   Suggestion: %s\n", issue.Suggestion)
		}
		if issue.Rule != "" {
			fmt.Fprintf(w, "   Rule: %s\n", issue.Rule)
		}
	}

	if path != "" {
		report := validate.Report([]types.ValidationResult{result}, time.Now())
		if err := fileutil.WriteFileAtomic(path, []byte(report)); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Fprintf(w, "\nReport saved to: %s\n", path)
	}

	if failed {
		return fmt.Errorf("validation failed: %d errors, %d warnings", result.ErrorsCount(), result.WarningsCount())
	}
	return nil
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show proposal completion status and statistics",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("format", "", "output format: table, json, or yaml (default: table on terminals)")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	f, _ := cmd.Flags().GetString("format")
	format, err := output.ParseFormat(f)
	if err != nil {
		return err
	}

	root, err := projectRoot()
	if err != nil {
		return err
	}
	a, err := assemble.New(ctx, root)
	if err != nil {
		return err
	}
	st := a.CompletionStatus(ctx)

	w := cmd.OutOrStdout()
	if format = output.DetectFormat(string(format)); format != output.FormatTable {
		return output.NewFormatter(format).Format(w, st)
	}

	lines := []string{
		fmt.Sprintf("Sections: %d/%d complete (%.1f%%)", st.CompleteSections, st.TotalSections, st.CompletionPercent),
		numbers.Sprintf("Total words: %d", st.TotalWords),
	}
	switch {
	case st.RequiredIncomplete > 0:
		lines = append(lines, fmt.Sprintf("Required sections missing: %d", st.RequiredIncomplete))
	case st.CompleteSections == st.TotalSections:
		lines = append(lines, "All sections complete")
	}
	output.Panel(w, "Proposal Status", lines...)

	rows := make([][]string, 0, len(st.Sections))
	var next []string
	for _, s := range st.Sections {
		status := "Optional"
		switch {
		case s.Complete:
			status = "Complete"
		case s.Required:
			status = "Missing"
			next = append(next, "Complete section: "+s.Title)
		}
		limit := "—"
		if s.WordLimit > 0 {
			limit = numbers.Sprintf("%d", s.WordLimit)
		}
		if s.OverLimit {
			limit += " (over)"
		}
		rows = append(rows, []string{s.Title, status, numbers.Sprintf("%d", s.WordCount), limit})
	}
	if err := output.RenderTable(w, output.Data{
		Headers:         []string{"Section", "Status", "Words", "Limit"},
		Rows:            rows,
		ColumnAlignment: []output.Align{output.AlignLeft, output.AlignLeft, output.AlignRight, output.AlignRight},
	}); err != nil {
		return err
	}
	writeList(w, "Next steps", next)
	return nil
}

// --- programs ---

var programsCmd = &cobra.Command{
	Use:   "programs",
	Short: "List the available NSF program configurations",
	RunE:  runPrograms,
}

func init() {
	programsCmd.Flags().String("format", "", "output format: table, json, or yaml (default: table on terminals)")

	rootCmd.AddCommand(programsCmd)
}

func runPrograms(cmd *cobra.Command, args []string) error {
	f, _ := cmd.Flags().GetString("format")
	format, err := output.ParseFormat(f)
	if err != nil {
		return err
	}
	reg, err := programs.NewRegistry()
	if err != nil {
		return err
	}
	list := reg.List()

	w := cmd.OutOrStdout()
	if format = output.DetectFormat(string(format)); format != output.FormatTable {
		return output.NewFormatter(format).Format(w, list)
	}
	if err := output.RenderTable(w, programTable(list)); err != nil {
		return err
	}
	fmt.Fprintln(w, "\nUse 'grant-engine init <program-id>' to create a new project")
	return nil
}

func programTable(list []types.Program) output.Data {
	rows := make([][]string, 0, len(list))
	for _, p := range list {
		rows = append(rows, []string{
			p.ID,
			p.Name,
			numbers.Sprintf("$%.0f", p.BudgetCap),
			fmt.Sprintf("%d years", p.ProjectPeriodYears),
		})
	}
	return output.Data{
		Headers:         []string{"ID", "Name", "Budget Cap", "Period"},
		Rows:            rows,
		ColumnAlignment: []output.Align{output.AlignLeft, output.AlignLeft, output.AlignRight, output.AlignRight},
	}
}
