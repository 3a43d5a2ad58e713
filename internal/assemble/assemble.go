// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package assemble builds a single proposal document from the section files
// named in a project's configuration, and reports how complete it is.
package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/grant-engine/internal/fileutil"
	"github.com/pdiddy/grant-engine/internal/logging"
	"github.com/pdiddy/grant-engine/internal/textutil"
	"github.com/pdiddy/grant-engine/pkg/types"
)

const (
	// DefaultOutput is the assembled document written under the project root.
	DefaultOutput = "assembled_proposal.md"

	// DefaultTemplate is the template looked up under TemplatesDir.
	DefaultTemplate = "proposal_template.md"

	// TemplatesDir holds custom assembly templates, relative to the root.
	TemplatesDir = "templates"

	missingMarker = "SECTION MISSING - REQUIRED"
)

// ErrNoConfig is returned when no configuration file exists under the root.
var ErrNoConfig = errors.New("no proposal configuration found")

// ConfigFiles are the configuration files tried in order.
var ConfigFiles = []string{
	"nsf_config.yaml",
	"config.yaml",
	"grant.yaml",
	filepath.Join("docs", "pose", "pose_questions.yaml"),
}

// SectionDirs are the directories, relative to the root, searched for a
// section's file.
var SectionDirs = []string{"", "docs", "src", "sections", "responses"}

// Section is one configured section and the content loaded for it.
type Section struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Path      string `json:"path,omitempty"`
	PageLimit int    `json:"page_limit,omitempty"`
	WordLimit int    `json:"word_limit,omitempty"`
	Required  bool   `json:"required"`

	Content   string `json:"-"`
	WordCount int    `json:"word_count"`
	Pages     int    `json:"pages"`
	Complete  bool   `json:"complete"`
}

// OverLimit reports whether the section exceeds its word limit.
func (s *Section) OverLimit() bool {
	return s.WordLimit > 0 && s.WordCount > s.WordLimit
}

func (s *Section) limitMessage() string {
	return fmt.Sprintf("Section '%s' exceeds word limit: %d > %d", s.Title, s.WordCount, s.WordLimit)
}

// Assembler holds a project's configuration and its sections.
type Assembler struct {
	Root       string
	ConfigPath string
	Config     types.ProposalConfig
	Sections   []*Section

	loaded bool
	now    func() time.Time
}

type sectionEntry struct {
	ID        string `yaml:"id"`
	Title     string `yaml:"title"`
	File      string `yaml:"file"`
	PageLimit int    `yaml:"page_limit"`
	WordLimit int    `yaml:"word_limit"`
	Required  *bool  `yaml:"required"`
}

type configFile struct {
	BasicInfo   types.ProposalInfo `yaml:"basic_info"`
	Sections    []sectionEntry     `yaml:"sections"`
	Attachments []string           `yaml:"attachments"`
	BudgetCap   types.Dollars      `yaml:"budget_cap"`
}

// FindConfig returns the first configuration file that exists under root.
func FindConfig(root string) (string, error) {
	for _, name := range ConfigFiles {
		p := filepath.Join(root, name)
		if fileutil.Exists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w in %s (tried %s)", ErrNoConfig, root, strings.Join(ConfigFiles, ", "))
}

// New loads the configuration of the project at root and resolves each
// section's file. Content is not read until LoadAllContent.
func New(ctx context.Context, root string) (*Assembler, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	path, err := FindConfig(abs)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var raw configFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	logging.FromContext(ctx).Info().Str("path", path).Msg("loaded configuration")

	a := &Assembler{Root: abs, ConfigPath: path, now: time.Now}
	a.Config = types.ProposalConfig{
		BasicInfo:   raw.BasicInfo,
		Attachments: raw.Attachments,
		BudgetCap:   raw.BudgetCap,
	}
	for _, e := range raw.Sections {
		required := e.Required == nil || *e.Required
		title := e.Title
		if title == "" {
			title = "Untitled"
		}
		a.Config.Sections = append(a.Config.Sections, types.ProposalSection{
			ID: e.ID, Title: title, File: e.File, Required: required,
			PageLimit: e.PageLimit, WordLimit: e.WordLimit,
		})
		a.Sections = append(a.Sections, &Section{
			ID:        e.ID,
			Title:     title,
			Path:      a.resolve(e.File),
			PageLimit: e.PageLimit,
			WordLimit: e.WordLimit,
			Required:  required,
		})
	}
	return a, nil
}

func (a *Assembler) resolve(file string) string {
	if file == "" {
		return ""
	}
	for _, dir := range SectionDirs {
		p := filepath.Join(a.Root, dir, file)
		if fileutil.Exists(p) && !fileutil.IsDir(p) {
			return p
		}
	}
	return ""
}

// LoadAllContent reads every section's file and measures it. Sections with
// no resolved file, or a file that cannot be read, are left incomplete.
func (a *Assembler) LoadAllContent(ctx context.Context) {
	log := logging.FromContext(ctx)
	for _, s := range a.Sections {
		s.Content, s.WordCount, s.Pages, s.Complete = "", 0, 0, false
		if s.Path == "" {
			continue
		}
		data, err := os.ReadFile(s.Path)
		if err != nil {
			log.Error().Err(err).Str("section", s.Title).Msg("failed to load section content")
			continue
		}
		s.Content = string(data)
		s.WordCount = textutil.CountWords(s.Content)
		s.Pages = textutil.EstimatePages(s.WordCount, textutil.DefaultWordsPerPage)
		s.Complete = strings.TrimSpace(s.Content) != ""
		if s.OverLimit() {
			log.Warn().Str("section", s.Title).Int("words", s.WordCount).Int("limit", s.WordLimit).
				Msg("section exceeds word limit")
		}
	}
	a.loaded = true
}

func (a *Assembler) ensureLoaded(ctx context.Context) {
	if !a.loaded {
		a.LoadAllContent(ctx)
	}
}

// Options controls AssembleDocument.
type Options struct {
	// Output is the document path. Empty writes DefaultOutput under the root.
	Output string

	// Template names a file under TemplatesDir. Empty uses DefaultTemplate.
	Template string

	TOC      bool
	Metadata bool
}

// DefaultOptions includes the table of contents and the metadata header.
func DefaultOptions() Options {
	return Options{TOC: true, Metadata: true}
}

// Result reports what AssembleDocument produced. Errors lists missing
// required sections; the document is still written.
type Result struct {
	Success    bool       `json:"success"`
	OutputPath string     `json:"output_path"`
	TotalWords int        `json:"total_words"`
	Sections   []*Section `json:"sections"`
	Warnings   []string   `json:"warnings"`
	Errors     []string   `json:"errors"`
}

// TemplateData is passed to custom assembly templates.
type TemplateData struct {
	Config           types.ProposalConfig
	Sections         []*Section
	CompleteSections []*Section
	TotalWords       int
	GeneratedDate    string
	Content          string
}

// AssembleDocument writes the assembled proposal.
func (a *Assembler) AssembleDocument(ctx context.Context, opts Options) (*Result, error) {
	log := logging.FromContext(ctx)
	a.LoadAllContent(ctx)

	res := &Result{}
	var complete []*Section
	for _, s := range a.Sections {
		if s.Complete {
			complete = append(complete, s)
			res.TotalWords += s.WordCount
		} else if s.Required {
			res.Errors = append(res.Errors, "Required section missing: "+s.Title)
		}
	}

	generated := a.now().Format("2006-01-02 15:04:05")
	var parts []string
	if opts.Metadata {
		parts = append(parts, a.metadata(generated))
	}
	if opts.TOC {
		parts = append(parts, a.TableOfContents(), "\n---\n")
	}
	for _, s := range a.Sections {
		switch {
		case s.Complete:
			parts = append(parts, "\n# "+s.Title+"\n", s.Content, "\n---\n")
		case s.Required:
			parts = append(parts, "\n# "+s.Title+"\n", missingMarker+"\n", "---\n")
		}
	}
	content := strings.Join(parts, "\n")

	final, ok, err := a.render(opts.Template, TemplateData{
		Config:           a.Config,
		Sections:         a.Sections,
		CompleteSections: complete,
		TotalWords:       res.TotalWords,
		GeneratedDate:    generated,
		Content:          content,
	})
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("template rendering failed, using basic assembly")
		final = content
	case !ok:
		log.Debug().Msg("no proposal template, using basic assembly")
		final = content
	}

	out := opts.Output
	if out == "" {
		out = filepath.Join(a.Root, DefaultOutput)
	}
	if err := fileutil.WriteFileAtomic(out, []byte(final)); err != nil {
		return res, fmt.Errorf("writing assembled proposal: %w", err)
	}

	res.Success = true
	res.OutputPath = out
	res.Sections = a.Sections
	for _, s := range a.Sections {
		if s.OverLimit() {
			res.Warnings = append(res.Warnings, s.limitMessage())
		}
	}
	log.Info().Str("path", out).Int("words", res.TotalWords).
		Str("complete", fmt.Sprintf("%d/%d", len(complete), len(a.Sections))).
		Msg("assembled proposal")
	return res, nil
}

// render executes a custom template. With no name it tries the default
// template and reports ok=false when that file does not exist. A named
// template that cannot be read is an error.
func (a *Assembler) render(name string, data TemplateData) (string, bool, error) {
	explicit := name != ""
	if !explicit {
		name = DefaultTemplate
	}
	path := filepath.Join(a.Root, TemplatesDir, name)
	src, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading template %s: %w", name, err)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(src))
	if err != nil {
		return "", false, fmt.Errorf("parsing template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", false, fmt.Errorf("executing template %s: %w", name, err)
	}
	return buf.String(), true, nil
}

func (a *Assembler) metadata(generated string) string {
	info := a.Config.BasicInfo
	lines := []string{"---", "# NSF Grant Proposal - Generated Document"}
	for _, f := range []struct{ label, value string }{
		{"Program", info.Program},
		{"Title", info.ProjectTitle},
		{"Organization", info.OrganizationName},
		{"Deadline", info.Deadline},
	} {
		if f.value != "" {
			lines = append(lines, fmt.Sprintf("**%s:** %s", f.label, f.value))
		}
	}
	lines = append(lines, "**Generated:** "+generated, "---\n")
	return strings.Join(lines, "\n")
}

// TableOfContents lists complete sections with their estimated starting
// page.
func (a *Assembler) TableOfContents() string {
	lines := []string{"# Table of Contents\n"}
	page := 1
	for _, s := range a.Sections {
		if !s.Complete {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d. %s", page, s.Title))
		page += textutil.EstimatePages(s.WordCount, textutil.DefaultWordsPerPage)
	}
	return strings.Join(lines, "\n")
}

// SectionStatus is the per-section line of a Status.
type SectionStatus struct {
	Title     string `json:"title"`
	Complete  bool   `json:"complete"`
	Required  bool   `json:"required"`
	WordCount int    `json:"word_count"`
	WordLimit int    `json:"word_limit,omitempty"`
	OverLimit bool   `json:"over_limit"`
}

// Status summarises how complete a proposal is.
type Status struct {
	TotalSections      int             `json:"total_sections"`
	CompleteSections   int             `json:"complete_sections"`
	IncompleteSections int             `json:"incomplete_sections"`
	RequiredIncomplete int             `json:"required_incomplete"`
	TotalWords         int             `json:"total_words"`
	CompletionPercent  float64         `json:"completion_percentage"`
	Sections           []SectionStatus `json:"sections"`
}

// CompletionStatus loads content if needed and reports completeness.
func (a *Assembler) CompletionStatus(ctx context.Context) Status {
	a.ensureLoaded(ctx)
	st := Status{TotalSections: len(a.Sections)}
	for _, s := range a.Sections {
		if s.Complete {
			st.CompleteSections++
			st.TotalWords += s.WordCount
		} else {
			st.IncompleteSections++
			if s.Required {
				st.RequiredIncomplete++
			}
		}
		st.Sections = append(st.Sections, SectionStatus{
			Title:     s.Title,
			Complete:  s.Complete,
			Required:  s.Required,
			WordCount: s.WordCount,
			WordLimit: s.WordLimit,
			OverLimit: s.OverLimit(),
		})
	}
	if st.TotalSections > 0 {
		st.CompletionPercent = float64(st.CompleteSections) / float64(st.TotalSections) * 100
	}
	return st
}

// ValidateProposal returns the structural problems of the proposal:
// missing required sections, word-limit overruns, and files with no content.
func (a *Assembler) ValidateProposal(ctx context.Context) []string {
	a.ensureLoaded(ctx)
	var issues []string
	for _, s := range a.Sections {
		if s.Required && !s.Complete {
			issues = append(issues, "Required section missing: "+s.Title)
		}
	}
	for _, s := range a.Sections {
		if s.OverLimit() {
			issues = append(issues, s.limitMessage())
		}
	}
	for _, s := range a.Sections {
		if s.Path != "" && !s.Complete {
			issues = append(issues, fmt.Sprintf("Section '%s' has file but no content", s.Title))
		}
	}
	return issues
}

// Document returns the concatenated content of complete sections, each
// under its title, for downstream validators.
func (a *Assembler) Document(ctx context.Context) string {
	a.ensureLoaded(ctx)
	var b strings.Builder
	for _, s := range a.Sections {
		if !s.Complete {
			continue
		}
		fmt.Fprintf(&b, "# %s\n\n%s\n\n", s.Title, strings.TrimSpace(s.Content))
	}
	return b.String()
}
