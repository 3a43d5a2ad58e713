// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/grant-engine/internal/assemble"
	"github.com/pdiddy/grant-engine/internal/fileutil"
	"github.com/pdiddy/grant-engine/internal/output"
	"github.com/pdiddy/grant-engine/internal/refs"
	"github.com/pdiddy/grant-engine/internal/textutil"
	"github.com/pdiddy/grant-engine/internal/validate"
	"github.com/pdiddy/grant-engine/pkg/types"
)

// --- check-citations ---

var checkCitationsCmd = &cobra.Command{
	Use:   "check-citations",
	Short: "Cross-check citation keys against the bibliography",
	Long: `Check-citations scans the project's Markdown and LaTeX documents for
citation keys ([@key], \cite{key}) and compares them with the entries of
every .bib file found. Citations without a bibliography entry fail the
command; unused entries are reported.`,
	RunE: runCheckCitations,
}

func init() {
	checkCitationsCmd.Flags().StringP("output", "o", "", "save a Markdown citation report to this file")
	checkCitationsCmd.Flags().Bool("unused-only", false, "show only unused bibliography entries")
	checkCitationsCmd.Flags().Bool("missing-only", false, "show only missing citation keys")
	checkCitationsCmd.Flags().String("export", "", "write the BibTeX entries of cited keys to this file")

	rootCmd.AddCommand(checkCitationsCmd)
}

// citationDirs returns the project directories scanned for citations.
func citationDirs(root string) []string {
	var dirs []string
	for _, d := range assemble.SectionDirs {
		if p := filepath.Join(root, d); fileutil.IsDir(p) {
			dirs = append(dirs, p)
		}
	}
	return dirs
}

func projectCitations(ctx context.Context, root string, bibKeys []string) (refs.CitationReport, error) {
	byFile := make(map[string][]types.Citation)
	for _, dir := range citationDirs(root) {
		found, err := refs.ExtractFromDir(ctx, dir)
		if err != nil {
			return refs.CitationReport{}, err
		}
		for f, cites := range found {
			byFile[f] = cites
		}
	}
	return refs.BuildReport(byFile, bibKeys), nil
}

// citationSyntaxIssues checks the Markdown files of the project for
// malformed citations.
func citationSyntaxIssues(root string) ([]string, error) {
	var out []string
	for _, dir := range citationDirs(root) {
		files, err := filepath.Glob(filepath.Join(dir, "*.md"))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", f, err)
			}
			for _, issue := range refs.CheckCitationSyntax(string(data)) {
				out = append(out, relTo(root, f)+", "+issue)
			}
		}
	}
	return out, nil
}

func runCheckCitations(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	reportPath, _ := cmd.Flags().GetString("output")
	unusedOnly, _ := cmd.Flags().GetBool("unused-only")
	missingOnly, _ := cmd.Flags().GetBool("missing-only")
	exportPath, _ := cmd.Flags().GetString("export")

	root, err := projectRoot()
	if err != nil {
		return err
	}
	cfg, err := refs.LoadConfig(filepath.Join(root, refs.ConfigFile))
	if err != nil {
		return err
	}
	m := refs.NewManager(root, cfg.Bibliography.SearchPaths)
	// Unparseable files are logged and skipped.
	_ = m.Load(ctx)
	report, err := projectCitations(ctx, root, m.Keys())
	if err != nil {
		return err
	}
	if len(report.Keys) == 0 && m.Len() == 0 {
		fmt.Fprintln(w, "No citations or bibliography entries found")
		return nil
	}

	lines := []string{
		fmt.Sprintf("Bibliography entries: %d", m.Len()),
		fmt.Sprintf("Citations found: %d", report.TotalCitations),
		fmt.Sprintf("Unique citation keys: %d", report.UniqueCitations),
		fmt.Sprintf("Missing bibliography entries: %d", len(report.Missing)),
		fmt.Sprintf("Unused bibliography entries: %d", len(report.Unused)),
		fmt.Sprintf("Files with citations: %d", len(report.ByFile)),
	}
	if len(report.Missing) == 0 && len(report.Unused) == 0 {
		lines = append(lines, "", "All citations properly referenced")
	}
	output.Panel(w, "Citation Analysis Summary", lines...)

	if len(report.Missing) > 0 && !unusedOnly {
		fmt.Fprintf(w, "\nMissing bibliography entries (%d):\n", len(report.Missing))
		if err := output.RenderTable(w, missingTable(report)); err != nil {
			return err
		}
	}
	if len(report.Unused) > 0 && !missingOnly && cfg.Validation.Citations.WarnUnusedEntries {
		fmt.Fprintf(w, "\nUnused bibliography entries (%d):\n", len(report.Unused))
		if err := output.RenderTable(w, unusedTable(m, report.Unused)); err != nil {
			return err
		}
	}
	writeList(w, "Bibliography entry issues", m.ValidateEntries())
	if cfg.Validation.Citations.CheckSyntax {
		issues, err := citationSyntaxIssues(root)
		if err != nil {
			return err
		}
		writeList(w, "Citation syntax issues", issues)
	}
	if viper.GetBool("verbose") {
		writeCitationsByFile(w, report)
	}

	if reportPath != "" {
		if err := fileutil.WriteFileAtomic(reportPath, []byte(citationReport(m, report, time.Now()))); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Fprintf(w, "\nReport saved to: %s\n", reportPath)
	}
	if exportPath != "" {
		missing, err := m.ExportUsed(report.Keys, exportPath)
		if err != nil {
			return fmt.Errorf("exporting cited entries: %w", err)
		}
		fmt.Fprintf(w, "\nExported %d cited entries to: %s\n", len(report.Keys)-len(missing), exportPath)
	}

	if len(report.Missing) > 0 && cfg.Validation.Citations.RequireBibEntries {
		return fmt.Errorf("%d citation key(s) missing from the bibliography", len(report.Missing))
	}
	return nil
}

func missingTable(report refs.CitationReport) output.Data {
	data := output.Data{Headers: []string{"Citation Key", "Used In Files"}}
	for _, key := range report.Missing {
		var files []string
		for f, cites := range report.ByFile {
			if citesKey(cites, key) {
				files = append(files, filepath.Base(f))
			}
		}
		sort.Strings(files)
		data.Rows = append(data.Rows, []string{key, strings.Join(files, ", ")})
	}
	return data
}

func citesKey(cites []types.Citation, key string) bool {
	for _, c := range cites {
		for _, k := range c.Keys {
			if k == key {
				return true
			}
		}
	}
	return false
}

func unusedTable(m *refs.Manager, keys []string) output.Data {
	data := output.Data{Headers: []string{"Bibliography Key", "Title", "Authors"}}
	for _, key := range keys {
		title, authors := "Unknown", "Unknown"
		if e, ok := m.Entry(key); ok {
			title = textutil.Truncate(e.Title, 63, "...")
			authors = shortAuthors(e.Authors)
		}
		data.Rows = append(data.Rows, []string{key, title, authors})
	}
	return data
}

// shortAuthors lists the first two authors, then "et al.".
func shortAuthors(authors []string) string {
	switch {
	case len(authors) == 0:
		return "Unknown"
	case len(authors) > 2:
		return strings.Join(authors[:2], ", ") + " et al."
	default:
		return strings.Join(authors, ", ")
	}
}

func writeCitationsByFile(w io.Writer, report refs.CitationReport) {
	if len(report.ByFile) == 0 {
		return
	}
	files := make([]string, 0, len(report.ByFile))
	for f := range report.ByFile {
		files = append(files, f)
	}
	sort.Strings(files)

	fmt.Fprintln(w, "\nCitations by file:")
	for _, f := range files {
		cites := report.ByFile[f]
		fmt.Fprintf(w, "\n%s (%d citations)\n", filepath.Base(f), len(cites))
		for i, c := range cites {
			if i == 10 {
				fmt.Fprintf(w, "  ... and %d more\n", len(cites)-10)
				break
			}
			fmt.Fprintf(w, "  • Line %d: %s\n", c.Line, strings.Join(c.Keys, ", "))
		}
	}
}

// citationReport renders the Markdown report saved by check-citations.
func citationReport(m *refs.Manager, report refs.CitationReport, generated time.Time) string {
	var b strings.Builder
	b.WriteString("# Citation Analysis Report\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", generated.Format("2006-01-02 15:04:05"))
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Total bibliography entries: %d\n", m.Len())
	fmt.Fprintf(&b, "- Total citations: %d\n", report.TotalCitations)
	fmt.Fprintf(&b, "- Unique citations: %d\n", report.UniqueCitations)
	fmt.Fprintf(&b, "- Missing entries: %d\n", len(report.Missing))
	fmt.Fprintf(&b, "- Unused entries: %d\n", len(report.Unused))

	if len(report.Missing) > 0 {
		b.WriteString("\n## Missing Bibliography Entries\n")
		for _, k := range report.Missing {
			fmt.Fprintf(&b, "- %s\n", k)
		}
	}
	if len(report.Unused) > 0 {
		b.WriteString("\n## Unused Bibliography Entries\n")
		for _, k := range report.Unused {
			title := "Unknown title"
			if e, ok := m.Entry(k); ok {
				title = e.Title
			}
			fmt.Fprintf(&b, "- %s: %s\n", k, title)
		}
	}
	return b.String()
}

// --- validate-urls ---

var validateURLsCmd = &cobra.Command{
	Use:   "validate-urls",
	Short: "Check URLs and email addresses in the proposal and its references",
	Long: `Validate-urls applies the NSF link rules separately to the main
document and the references section: the main document may only link to
allowed domains, references may cite academic sources, and neither may
contain email addresses or cloud storage links. Without a bibliography the
assembled document is checked as a whole.`,
	RunE: runValidateURLs,
}

func init() {
	validateURLsCmd.Flags().Bool("strict", false, "treat warnings as errors")
	validateURLsCmd.Flags().StringP("output", "o", "", "save a Markdown validation report to this file")
	validateURLsCmd.Flags().Bool("references-only", false, "validate only the references section")
	validateURLsCmd.Flags().Bool("main-only", false, "validate only the main document")
	validateURLsCmd.MarkFlagsMutuallyExclusive("references-only", "main-only")

	rootCmd.AddCommand(validateURLsCmd)
}

func runValidateURLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	strict, _ := cmd.Flags().GetBool("strict")
	reportPath, _ := cmd.Flags().GetString("output")
	refsOnly, _ := cmd.Flags().GetBool("references-only")
	mainOnly, _ := cmd.Flags().GetBool("main-only")

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
	gen, _, err := loadBibliography(ctx, root)
	if err != nil {
		return err
	}

	result, separated, err := urlValidation(string(content), gen, !refsOnly, !mainOnly)
	if err != nil {
		return err
	}
	if separated {
		fmt.Fprintln(w, "Using separated document validation")
	} else {
		fmt.Fprintln(w, "No bibliography found, using combined document validation")
	}
	return reportValidation(w, result, strict, reportPath, "URL and email validation passed!")
}

// urlValidation checks content with the separated rules when a
// bibliography is available, else with the compliance checks alone.
func urlValidation(content string, gen *refs.Generator, checkMain, checkRefs bool) (types.ValidationResult, bool, error) {
	if gen == nil {
		if !checkMain {
			return types.ValidationResult{}, false, errors.New("--references-only requires a bibliography")
		}
		return validate.ProposalWith(content, validate.Options{Compliance: true}), false, nil
	}
	main, order := gen.ProcessContent(content)
	return validate.Separated(main, gen.Render(order), checkMain, checkRefs), true, nil
}
