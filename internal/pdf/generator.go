// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/grant-engine/internal/container"
	"github.com/pdiddy/grant-engine/internal/fileutil"
	"github.com/pdiddy/grant-engine/internal/logging"
)

// GenerateTimeout bounds a single pandoc run.
var GenerateTimeout = 5 * time.Minute

// ToolRunner runs external tools locally or in a container.
type ToolRunner interface {
	Run(ctx context.Context, tool, dir string, args ...string) ([]byte, error)
	Locate(tool string) container.Location
	Version(ctx context.Context, tool string) (string, error)
}

// Bibliography renumbers citations and renders the matching references
// section.
type Bibliography interface {
	ProcessContent(content string) (string, []string)
	Render(order []string) string
}

// Options controls one generation.
type Options struct {
	Title  string
	Author string

	// Optimize applies the automatic space optimizations when the content
	// is estimated to exceed the page limit.
	Optimize bool

	// Validate checks the produced PDF against Limits.
	Validate bool

	// Limits overrides Config.PageLimit. Nil uses the configuration.
	Limits *ProgramLimits

	// AppendReferences renumbers citations and appends the references
	// section on a new page.
	AppendReferences bool
}

// Result reports what a generation produced.
type Result struct {
	Success     bool          `json:"success"`
	OutputPath  string        `json:"output_path,omitempty"`
	PageCount   int           `json:"page_count"`
	FileSizeMB  float64       `json:"file_size_mb"`
	Duration    time.Duration `json:"generation_time"`
	Validation  *Validation   `json:"validation,omitempty"`
	Suggestions []Suggestion  `json:"optimization_suggestions,omitempty"`
	Errors      []string      `json:"errors,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	LogPath     string        `json:"log_path,omitempty"`

	MainPages       int    `json:"main_document_pages,omitempty"`
	ReferencesPages int    `json:"references_pages,omitempty"`
	ReferencesPath  string `json:"references_path,omitempty"`
	CitationCount   int    `json:"citation_count"`
}

// Generator renders Markdown to PDF with pandoc or headless Chrome.
type Generator struct {
	Config Config

	runner    ToolRunner
	bib       Bibliography
	renderer  Renderer
	validator *Validator

	findChrome func() (string, bool)
}

// NewGenerator returns a generator. bib may be nil, in which case
// citations are left as written.
func NewGenerator(cfg Config, runner ToolRunner, bib Bibliography) *Generator {
	return &Generator{
		Config:    cfg,
		runner:    runner,
		bib:       bib,
		validator: NewValidator(runner),
	}
}

// SetRenderer replaces the HTML renderer used by the chrome engine.
func (g *Generator) SetRenderer(r Renderer) {
	g.renderer = r
}

// Close releases the browser, if one was started.
func (g *Generator) Close() error {
	if g.renderer != nil {
		return g.renderer.Close()
	}
	return nil
}

func (g *Generator) limits(opts Options) ProgramLimits {
	if opts.Limits != nil {
		return *opts.Limits
	}
	return ProgramLimits{PageLimit: g.Config.PageLimit, MaxFileSizeMB: DefaultMaxFileSizeMB}
}

// Generate renders markdown to output. The returned error is set when no
// PDF was produced; res always describes the attempt.
func (g *Generator) Generate(ctx context.Context, markdown, output string, opts Options) (*Result, error) {
	start := time.Now()
	res := &Result{}
	defer func() { res.Duration = time.Since(start) }()
	log := logging.FromContext(ctx)
	limits := g.limits(opts)

	if opts.Optimize && g.Config.OptimizeSpace && limits.PageLimit > 0 {
		est := Analyze(markdown).EstimatedPages
		if est > float64(limits.PageLimit) {
			res.Suggestions = Suggest(markdown, est, float64(limits.PageLimit))
			var applied []string
			markdown, applied = AutoApply(markdown, res.Suggestions)
			if len(applied) > 0 {
				res.Warnings = append(res.Warnings, "Applied automatic optimizations: "+strings.Join(applied, ", "))
			}
		}
	}

	main, references := markdown, ""
	if opts.AppendReferences && g.bib != nil {
		var order []string
		main, order = g.bib.ProcessContent(markdown)
		res.CitationCount = len(order)
		if len(order) > 0 {
			references = g.bib.Render(order)
		}
	}

	var err error
	switch g.Config.Engine {
	case EnginePandoc, "":
		err = g.pandoc(ctx, res, main, references, output, opts)
	case EngineChrome:
		err = g.chrome(ctx, main, references, output, opts)
		if err == nil {
			res.Warnings = append(res.Warnings, "Generated with headless Chrome - may have different formatting than LaTeX")
		}
	default:
		err = fmt.Errorf("unknown PDF engine: %s", g.Config.Engine)
	}
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		log.Error().Err(err).Str("output", output).Msg("PDF generation failed")
		return res, err
	}

	res.Success = true
	res.OutputPath = output
	if opts.Validate {
		v := g.validator.Validate(ctx, output, limits)
		res.Validation = &v
		res.PageCount = v.PageCount
		res.FileSizeMB = v.FileSizeMB
		if !v.Valid {
			res.Warnings = append(res.Warnings, "Generated PDF failed validation")
			for _, i := range v.Issues {
				res.Warnings = append(res.Warnings, "Validation issue: "+i)
			}
		}
	}
	res.MainPages = res.PageCount
	log.Info().Str("output", output).Int("pages", res.PageCount).Msg("generated PDF")
	return res, nil
}

// GenerateSeparated writes the main document to output and the references
// to {stem}_references.pdf beside it, so references stay out of the page
// count.
func (g *Generator) GenerateSeparated(ctx context.Context, markdown, output string, opts Options) (*Result, error) {
	start := time.Now()
	if g.bib == nil {
		err := errors.New("bibliography not initialized - project root required")
		return &Result{Errors: []string{err.Error()}}, err
	}

	main, order := g.bib.ProcessContent(markdown)
	refsPath := ReferencesPath(output)

	var warnings []string
	var refsRes *Result
	if len(order) > 0 {
		title := "References Cited"
		if opts.Title != "" {
			title += " - " + opts.Title
		}
		refsOpts := Options{Title: title, Author: opts.Author, Validate: opts.Validate,
			Limits: &ProgramLimits{MaxFileSizeMB: DefaultMaxFileSizeMB}}
		var err error
		refsRes, err = g.Generate(ctx, g.bib.Render(order), refsPath, refsOpts)
		if err != nil {
			warnings = append(warnings, "Failed to generate references PDF")
			warnings = append(warnings, refsRes.Warnings...)
		}
	}

	mainOpts := opts
	mainOpts.AppendReferences = false
	res, err := g.Generate(ctx, main, output, mainOpts)
	res.Warnings = append(warnings, res.Warnings...)
	res.CitationCount = len(order)
	res.MainPages = res.PageCount
	if refsRes != nil && refsRes.Success {
		res.ReferencesPath = refsPath
		res.ReferencesPages = refsRes.PageCount
	}
	res.Success = err == nil && (refsRes == nil || refsRes.Success)
	res.Duration = time.Since(start)
	return res, err
}

// ReferencesPath returns the references PDF path for a main document.
func ReferencesPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + "_references" + ext
}

// LogPath returns the pandoc log path for output.
func LogPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + "_generation.log"
}

func (g *Generator) pandoc(ctx context.Context, res *Result, main, references, output string, opts Options) error {
	dir := filepath.Dir(output)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	work, err := os.MkdirTemp(dir, ".pdf-build-*")
	if err != nil {
		return fmt.Errorf("creating build directory: %w", err)
	}
	defer os.RemoveAll(work)

	doc := main
	if references != "" {
		doc += "\n\n\\newpage\n\n" + references
	}
	if err := os.WriteFile(filepath.Join(work, "input.md"), []byte(doc), 0o644); err != nil {
		return fmt.Errorf("writing pandoc input: %w", err)
	}
	if err := os.WriteFile(filepath.Join(work, "template.latex"), []byte(LaTeXTemplate(g.Config.OptimizeSpace)), 0o644); err != nil {
		return fmt.Errorf("writing LaTeX template: %w", err)
	}

	args := []string{"input.md", "-o", "output.pdf", "--from=markdown", "--template", "template.latex"}
	if opts.Title != "" {
		args = append(args, "-V", "title="+opts.Title)
	}
	if opts.Author != "" {
		args = append(args, "-V", "author="+opts.Author)
	}
	args = append(args, g.Config.PandocArgs()...)

	runCtx, cancel := context.WithTimeout(ctx, GenerateTimeout)
	defer cancel()
	out, runErr := g.runner.Run(runCtx, "pandoc", work, args...)

	logPath := LogPath(output)
	if err := os.WriteFile(logPath, out, 0o644); err == nil {
		res.LogPath = logPath
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("PDF generation timed out after %s", GenerateTimeout)
	}
	if runErr != nil {
		return fmt.Errorf("pandoc failed: %w", runErr)
	}

	produced := filepath.Join(work, "output.pdf")
	if !fileutil.Exists(produced) {
		return errors.New("pandoc produced no output")
	}
	if err := os.Rename(produced, output); err != nil {
		return fmt.Errorf("moving PDF into place: %w", err)
	}
	return nil
}
