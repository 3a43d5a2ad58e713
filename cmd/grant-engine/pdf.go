// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/grant-engine/internal/assemble"
	"github.com/pdiddy/grant-engine/internal/export"
	"github.com/pdiddy/grant-engine/internal/fileutil"
	"github.com/pdiddy/grant-engine/internal/logging"
	"github.com/pdiddy/grant-engine/internal/pdf"
	"github.com/pdiddy/grant-engine/internal/programs"
	"github.com/pdiddy/grant-engine/internal/refs"
)

// pdfFlags are the typesetting options shared by export, pdf and build.
type pdfFlags struct {
	Optimize bool
	Engine   string
	FontSize int
}

func addPDFFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("optimize", false, "optimize content to fit page limits")
	cmd.Flags().String("engine", "", "PDF engine: pandoc or chrome (default: best available)")
	cmd.Flags().Int("font-size", 11, "font size in points (10 to 12)")
}

func pdfFlagsFrom(cmd *cobra.Command) (pdfFlags, error) {
	var f pdfFlags
	f.Optimize, _ = cmd.Flags().GetBool("optimize")
	f.Engine, _ = cmd.Flags().GetString("engine")
	f.FontSize, _ = cmd.Flags().GetInt("font-size")
	if f.FontSize < 10 || f.FontSize > 12 {
		return f, fmt.Errorf("invalid font size %d: must be between 10 and 12", f.FontSize)
	}
	switch f.Engine {
	case "", pdf.EnginePandoc, pdf.EngineChrome:
	default:
		return f, fmt.Errorf("invalid engine %q: must be one of: %s, %s", f.Engine, pdf.EnginePandoc, pdf.EngineChrome)
	}
	return f, nil
}

// pdfConfig applies the configuration file and flags over the defaults.
func pdfConfig(f pdfFlags) pdf.Config {
	cfg := pdf.DefaultConfig()
	if v := viper.GetString("pdf.font_family"); v != "" {
		cfg.FontFamily = v
	}
	if v := viper.GetString("pdf.engine"); v != "" {
		cfg.Engine = v
	}
	if f.Engine != "" {
		cfg.Engine = f.Engine
	}
	cfg.FontSize = f.FontSize
	cfg.OptimizeSpace = f.Optimize
	return cfg
}

// projectInfo is what PDF generation needs from the proposal configuration.
type projectInfo struct {
	Title  string
	Author string
	Limits *pdf.ProgramLimits
}

// loadProjectInfo reads the title, organization and program limits. A
// project without configuration yields empty info.
func loadProjectInfo(ctx context.Context, root string) (projectInfo, error) {
	var info projectInfo
	a, err := assemble.New(ctx, root)
	if errors.Is(err, assemble.ErrNoConfig) {
		return info, nil
	}
	if err != nil {
		return info, err
	}
	info.Title = a.Config.BasicInfo.ProjectTitle
	info.Author = a.Config.BasicInfo.OrganizationName

	id := a.Config.BasicInfo.Program
	if id == "" {
		return info, nil
	}
	reg, err := programs.NewRegistry()
	if err != nil {
		return info, err
	}
	p, err := reg.Lookup(id)
	if err != nil {
		logging.FromContext(ctx).Warn().Str("program", id).Msg("unknown program, using default limits")
		return info, nil
	}
	limits := pdf.LimitsFor(p)
	info.Limits = &limits
	return info, nil
}

// loadBibliography loads the project's .bib files. The generator is nil
// when the project has no entries.
func loadBibliography(ctx context.Context, root string) (*refs.Generator, refs.Config, error) {
	cfg, err := refs.LoadConfig(filepath.Join(root, refs.ConfigFile))
	if err != nil {
		return nil, cfg, err
	}
	m := refs.NewManager(root, cfg.Bibliography.SearchPaths)
	// Unparseable files are logged and skipped.
	_ = m.Load(ctx)
	if m.Len() == 0 {
		return nil, cfg, nil
	}
	return refs.NewGenerator(m, cfg.Bibliography.Style), cfg, nil
}

// generatePDF typesets the Markdown at src into out and prints the result.
func generatePDF(ctx context.Context, w io.Writer, root, src, out string, f pdfFlags) error {
	content, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}

	cfg := pdfConfig(f)
	issues := cfg.Validate()
	if pdf.HasErrors(issues) {
		writeList(w, "Configuration errors", issues)
		return errors.New("invalid PDF configuration")
	}
	for _, i := range issues {
		logging.FromContext(ctx).Warn().Msg(strings.TrimSpace(i))
	}

	info, err := loadProjectInfo(ctx, root)
	if err != nil {
		return err
	}
	gen, refCfg, err := loadBibliography(ctx, root)
	if err != nil {
		return err
	}
	var bib pdf.Bibliography
	if gen != nil {
		bib = gen
	}

	g := pdf.NewGenerator(cfg, newRunner(), bib)
	defer g.Close()

	caps := g.Capabilities(ctx)
	if !caps.CanGenerate {
		if err := caps.Write(w); err != nil {
			return err
		}
		return errors.New("PDF generation not available")
	}
	if f.Engine == "" && viper.GetString("pdf.engine") == "" {
		g.Config.Engine = caps.PreferredEngine
	}

	opts := pdf.Options{
		Title:            info.Title,
		Author:           info.Author,
		Optimize:         f.Optimize,
		Validate:         true,
		Limits:           info.Limits,
		AppendReferences: bib != nil,
	}
	separate := bib != nil && refCfg.PDF.SeparateReferences && info.Limits != nil && info.Limits.SeparateReferences

	fmt.Fprintf(w, "Generating PDF with %s...\n", g.Config.Engine)
	var res *pdf.Result
	if separate {
		res, err = g.GenerateSeparated(ctx, string(content), out, opts)
	} else {
		res, err = g.Generate(ctx, string(content), out, opts)
	}
	writePDFResult(w, res)
	if err != nil {
		return err
	}
	if !res.Success {
		return errors.New("PDF generation failed")
	}
	return nil
}

func writePDFResult(w io.Writer, res *pdf.Result) {
	if res == nil {
		return
	}
	if !res.Success {
		fmt.Fprintln(w, "PDF generation failed")
		writeList(w, "", res.Errors)
		if res.LogPath != "" {
			fmt.Fprintf(w, "\nSee log file for details: %s\n", res.LogPath)
		}
		writeList(w, "Warnings", res.Warnings)
		return
	}

	fmt.Fprintf(w, "PDF generated: %s\n", res.OutputPath)
	fmt.Fprintf(w, "Pages: %d, Size: %.1fMB, Time: %.1fs\n", res.PageCount, res.FileSizeMB, res.Duration.Seconds())
	if res.ReferencesPath != "" {
		fmt.Fprintf(w, "References: %s (%d pages, %d citations)\n", res.ReferencesPath, res.ReferencesPages, res.CitationCount)
	}
	if v := res.Validation; v != nil {
		if v.Valid {
			fmt.Fprintln(w, "PDF passed NSF validation")
		} else {
			writeList(w, "PDF validation issues", v.Issues)
		}
	}
	writeList(w, "Warnings", res.Warnings)

	if len(res.Suggestions) > 0 {
		fmt.Fprintln(w, "\nOptimization suggestions:")
		for i, s := range res.Suggestions {
			if i == 5 {
				fmt.Fprintf(w, "  ... and %d more\n", len(res.Suggestions)-5)
				break
			}
			fmt.Fprintf(w, "  %s %s\n", priorityLabel(s.Priority), s.Description)
			fmt.Fprintf(w, "     Section: %s, Savings: ~%.1f lines\n", s.Section, s.SavingsLines)
		}
	}
}

func priorityLabel(p int) string {
	switch {
	case p <= 1:
		return "[high]"
	case p == 2:
		return "[medium]"
	default:
		return "[low]"
	}
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the assembled proposal to PDF or DOCX",
	Long: `Export typesets assembled_proposal.md, building it first when it does
not exist. PDF output goes through pandoc and XeLaTeX, or headless Chrome
when LaTeX is unavailable, and is validated against the program's page and
file size limits. DOCX output is converted with pandoc. LaTeX output keeps
citations as \cite commands for use with BibTeX.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("format", "pdf", "export format: pdf, docx, or latex")
	exportCmd.Flags().StringP("output", "o", "", "output file (default: proposal.<format> in the project root)")
	addPDFFlags(exportCmd)

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	outPath, _ := cmd.Flags().GetString("output")
	switch format {
	case "pdf", "docx", "latex":
	default:
		return fmt.Errorf("invalid format %q: must be one of: pdf, docx, latex", format)
	}
	flags, err := pdfFlagsFrom(cmd)
	if err != nil {
		return err
	}
	return exportProposal(cmd, format, outPath, flags)
}

func exportProposal(cmd *cobra.Command, format, outPath string, flags pdfFlags) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	root, err := projectRoot()
	if err != nil {
		return err
	}
	if outPath == "" {
		ext := format
		if format == "latex" {
			ext = "tex"
		}
		outPath = filepath.Join(root, "proposal."+ext)
	}

	src := filepath.Join(root, assemble.DefaultOutput)
	if !fileutil.Exists(src) {
		fmt.Fprintln(w, "No assembled proposal found. Building first...")
		a, err := assemble.New(ctx, root)
		if err != nil {
			return err
		}
		res, err := assembleProposal(ctx, a, assemble.DefaultOptions(), w)
		if err != nil {
			return err
		}
		if len(res.Errors) > 0 {
			return fmt.Errorf("assembly incomplete: %d required section(s) missing", len(res.Errors))
		}
		src = res.OutputPath
	}

	if format == "pdf" {
		return generatePDF(ctx, w, root, src, outPath, flags)
	}

	doc, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	e := export.New(newRunner(), root, cmd.ErrOrStderr())
	if format == "latex" {
		if err := e.LaTeX(ctx, string(doc), outPath); err != nil {
			return err
		}
		fmt.Fprintf(w, "LaTeX written: %s\n", outPath)
		return nil
	}
	if err := e.DOCX(ctx, string(doc), outPath); err != nil {
		return err
	}
	fmt.Fprintf(w, "DOCX written: %s\n", outPath)
	return nil
}

// --- pdf ---

var pdfCmd = &cobra.Command{
	Use:   "pdf",
	Short: "Generate an NSF-compliant PDF (shortcut for export --format pdf)",
	RunE:  runPDF,
}

func init() {
	pdfCmd.Flags().StringP("output", "o", "", "output file (default: proposal.pdf in the project root)")
	addPDFFlags(pdfCmd)

	rootCmd.AddCommand(pdfCmd)
}

func runPDF(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("output")
	flags, err := pdfFlagsFrom(cmd)
	if err != nil {
		return err
	}
	return exportProposal(cmd, "pdf", outPath, flags)
}

// --- check-pages ---

// pdfCandidates are the generated PDFs check-pages looks for, in order.
var pdfCandidates = []string{"proposal.pdf", "assembled_proposal.pdf"}

var checkPagesCmd = &cobra.Command{
	Use:   "check-pages [file.pdf]",
	Short: "Check the page count of the generated PDF against the program limit",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheckPages,
}

func init() {
	checkPagesCmd.Flags().String("format", "brief", "report format: brief or detailed")

	rootCmd.AddCommand(checkPagesCmd)
}

func runCheckPages(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("format")
	if format != "brief" && format != "detailed" {
		return fmt.Errorf("invalid format %q: must be one of: brief, detailed", format)
	}

	root, err := projectRoot()
	if err != nil {
		return err
	}
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		for _, c := range pdfCandidates {
			if p := filepath.Join(root, c); fileutil.Exists(p) {
				path = p
				break
			}
		}
	}
	if path == "" {
		fmt.Fprintln(w, "No PDF found. Generate one first with:")
		fmt.Fprintln(w, "  grant-engine pdf")
		return nil
	}

	info, err := loadProjectInfo(ctx, root)
	if err != nil {
		return err
	}
	limits := pdf.ProgramLimits{MaxFileSizeMB: pdf.DefaultMaxFileSizeMB}
	if info.Limits != nil {
		limits = *info.Limits
	}

	v := pdf.NewValidator(newRunner()).Validate(ctx, path, limits)
	if format == "detailed" {
		if err := v.Detailed(w); err != nil {
			return err
		}
	} else {
		fmt.Fprint(w, v.Brief())
	}
	if !v.Valid {
		return fmt.Errorf("%s does not meet the program limits", filepath.Base(path))
	}
	return nil
}

// --- pdf-capabilities ---

var pdfCapabilitiesCmd = &cobra.Command{
	Use:   "pdf-capabilities",
	Short: "Report which PDF engines and tools are available",
	RunE: func(cmd *cobra.Command, args []string) error {
		g := pdf.NewGenerator(pdf.DefaultConfig(), newRunner(), nil)
		defer g.Close()
		return g.Capabilities(cmd.Context()).Write(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(pdfCapabilitiesCmd)
}
