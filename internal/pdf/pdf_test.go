// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdf

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/grant-engine/internal/container"
	"github.com/pdiddy/grant-engine/pkg/types"
)

// fakeRunner copies input.md to output.pdf when asked to run pandoc.
type fakeRunner struct {
	locations map[string]container.Location
	calls     [][]string
	out       []byte
	err       error
	block     bool
}

func (f *fakeRunner) Run(ctx context.Context, tool, dir string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{tool}, args...))
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return f.out, f.err
	}
	if tool == "pandoc" {
		in, err := os.ReadFile(filepath.Join(dir, "input.md"))
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, "output.pdf"), in, 0o644); err != nil {
			return nil, err
		}
	}
	return f.out, nil
}

func (f *fakeRunner) Locate(tool string) container.Location {
	if l, ok := f.locations[tool]; ok {
		return l
	}
	return container.LocationNone
}

func (f *fakeRunner) Version(_ context.Context, tool string) (string, error) {
	return tool + " 1.0", nil
}

type fakeRenderer struct {
	html   string
	closed bool
}

func (f *fakeRenderer) RenderPDF(_ context.Context, doc string) ([]byte, error) {
	f.html = doc
	return []byte("%PDF-fake"), nil
}

func (f *fakeRenderer) Close() error {
	f.closed = true
	return nil
}

type fakeBib struct{}

func (fakeBib) ProcessContent(content string) (string, []string) {
	if !strings.Contains(content, "[@smith2020]") {
		return content, nil
	}
	return strings.ReplaceAll(content, "[@smith2020]", "[1]"), []string{"smith2020"}
}

func (fakeBib) Render(order []string) string {
	return "# References Cited\n\n1. Smith, J. (2020)."
}

func TestPandocArgs(t *testing.T) {
	args := DefaultConfig().PandocArgs()
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"--pdf-engine=xelatex", "fontsize=10pt", "mainfont=Times New Roman",
		"geometry:top=1in", "geometry:right=1in", "linestretch=1.0",
		"graphics=true", "reference_font_size=9",
	} {
		assert.Contains(t, joined, want)
	}
	assert.NotContains(t, joined, "nohyphenation")

	cfg := DefaultConfig()
	cfg.Hyphenation = false
	cfg.Quality = QualityDraft
	cfg.LineSpacing = SpacingOneAndHalf
	joined = strings.Join(cfg.PandocArgs(), " ")
	assert.Contains(t, joined, "nohyphenation=true")
	assert.Contains(t, joined, "draft=true")
	assert.Contains(t, joined, "linestretch=1.5")
}

func TestConfigValidate(t *testing.T) {
	assert.False(t, HasErrors(DefaultConfig().Validate()))

	cfg := DefaultConfig()
	cfg.FontSize = 9
	cfg.MarginLeft = 0.5
	assert.True(t, HasErrors(cfg.Validate()))

	cfg = DefaultConfig()
	cfg.Engine = "weasyprint"
	assert.True(t, HasErrors(cfg.Validate()))

	cfg = DefaultConfig()
	cfg.LineSpacing = "double"
	issues := cfg.Validate()
	assert.False(t, HasErrors(issues))
	assert.Contains(t, issues[0], "Line spacing 'double'")
}

func TestLimitsFor(t *testing.T) {
	p := types.Program{ID: "cssi", Sections: []types.SectionRequirement{
		{ID: "project_summary", PageLimit: 1},
		{ID: "project_description", PageLimit: 12},
	}}
	got := LimitsFor(p)
	assert.Equal(t, 12, got.PageLimit)
	assert.Equal(t, "cssi", got.ProgramID)
	assert.Equal(t, DefaultMaxFileSizeMB, got.MaxFileSizeMB)

	assert.Equal(t, DefaultPageLimit, LimitsFor(types.Program{ID: "x"}).PageLimit)
}

func TestTemplates(t *testing.T) {
	assert.Contains(t, LaTeXTemplate(true), "space-optimised")
	assert.NotEqual(t, LaTeXTemplate(true), LaTeXTemplate(false))

	css, err := CSS(DefaultConfig())
	require.NoError(t, err)
	assert.Contains(t, css, "margin: 1in 1in 1in 1in;")
	assert.Contains(t, css, "font-size: 10pt;")
	assert.Contains(t, css, "hyphens: auto")

	dir := t.TempDir()
	paths, err := WriteTemplates(filepath.Join(dir, "tpl"))
	require.NoError(t, err)
	assert.Len(t, paths, 2)
	assert.FileExists(t, paths[TemplateOptimized])
	assert.FileExists(t, paths[TemplateStandard])
}

func TestHTMLDocument(t *testing.T) {
	doc, err := HTMLDocument(DefaultConfig(), "A <Title>", "J. Doe", "# Intro\n\n```go\nfunc main() {}\n```\n", "# References Cited\n")
	require.NoError(t, err)
	assert.Contains(t, doc, `<div class="title">A &lt;Title&gt;</div>`)
	assert.Contains(t, doc, `<div class="author">J. Doe</div>`)
	assert.Contains(t, doc, `<h1 id="intro">Intro</h1>`)
	assert.Contains(t, doc, `class="chroma"`)
	assert.Contains(t, doc, "page-break-before: always;")
}

func TestParsePdfinfoPages(t *testing.T) {
	n, err := parsePdfinfoPages("Title: x\nPages:          7\nEncrypted: no\n")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = parsePdfinfoPages("Title: x\n")
	assert.Error(t, err)
}

func writePDF(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "proposal.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.7 fake"), 0o644))
	return p
}

func TestValidator(t *testing.T) {
	ctx := context.Background()
	pages := func(n int) func(string) (int, error) {
		return func(string) (int, error) { return n, nil }
	}

	t.Run("missing file", func(t *testing.T) {
		v := NewValidator(nil)
		got := v.Validate(ctx, "/nonexistent/x.pdf", ProgramLimits{PageLimit: 15})
		assert.False(t, got.Valid)
		assert.Equal(t, []string{"PDF file not found: /nonexistent/x.pdf"}, got.Issues)
	})

	t.Run("over page limit", func(t *testing.T) {
		v := &Validator{WarnThreshold: 0.9, pageCount: pages(16)}
		got := v.Validate(ctx, writePDF(t), ProgramLimits{PageLimit: 15})
		assert.False(t, got.Valid)
		assert.Equal(t, 16, got.PageCount)
		require.NotEmpty(t, got.Issues)
		assert.True(t, strings.HasPrefix(got.Issues[0], "error: "))
	})

	t.Run("approaching limit", func(t *testing.T) {
		v := &Validator{WarnThreshold: 0.9, pageCount: pages(14)}
		got := v.Validate(ctx, writePDF(t), ProgramLimits{PageLimit: 15})
		assert.True(t, got.Valid)
		assert.Equal(t, []string{"warning: Page count (14) approaching limit (15)"}, got.Warnings)
	})

	t.Run("file too large", func(t *testing.T) {
		v := &Validator{WarnThreshold: 0.9, pageCount: pages(1)}
		got := v.Validate(ctx, writePDF(t), ProgramLimits{MaxFileSizeMB: 0.000001})
		assert.False(t, got.Valid)
		assert.True(t, strings.HasPrefix(got.Issues[0], "error: File size violation"))
	})

	t.Run("pdfinfo fallback", func(t *testing.T) {
		r := &fakeRunner{out: []byte("Pages: 3\n")}
		v := &Validator{runner: r, pageCount: func(string) (int, error) { return 0, errors.New("bad xref") }}
		path := writePDF(t)
		n, err := v.CountPages(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, []string{"pdfinfo", "proposal.pdf"}, r.calls[0])
	})
}

func TestValidationReports(t *testing.T) {
	r := Validation{Path: "/tmp/p.pdf", Valid: false, PageCount: 16, PageLimit: 15, Issues: []string{"too long"}}
	assert.Equal(t, "Pages: 16/15\nExceeds limit by 1 pages\n", r.Brief())
	assert.Equal(t, "Pages: 3 (no limit configured)\n", Validation{PageCount: 3}.Brief())

	var buf bytes.Buffer
	require.NoError(t, r.Detailed(&buf))
	assert.Contains(t, buf.String(), "p.pdf")
	assert.Regexp(t, `NSF Compliant\W+No\b`, buf.String())
	assert.Contains(t, buf.String(), "Issues:\n  • too long\n")
}

func TestAnalyze(t *testing.T) {
	a := Analyze("# A\ntext\n\n# B\nmore ![x](y.png)")
	assert.Equal(t, 5, a.TotalLines)
	assert.Equal(t, 1, a.WhitespaceLines)
	assert.Equal(t, 1, a.Figures)
	if diff := cmp.Diff([]SectionLines{{Name: "A", Lines: 3}, {Name: "B", Lines: 2}}, a.Sections); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}
}

func TestSuggestAndAutoApply(t *testing.T) {
	content := strings.Repeat("para\n\n", 15) + "![f](a.png)\n"
	assert.Nil(t, Suggest(content, 1, 2))

	got := Suggest(content, 3, 2)
	require.Len(t, got, 2)
	assert.Equal(t, OptReduceWhitespace, got[0].Type)
	assert.Equal(t, OptCompressFigures, got[1].Type)
	assert.True(t, got[0].Automatic())

	out, applied := AutoApply(content, got)
	assert.Equal(t, []string{OptReduceWhitespace, OptCompressFigures}, applied)
	assert.Contains(t, out, "![f](a.png){width=90%}")

	hard := Suggestion{Priority: 3, Difficulty: DifficultyHard}
	assert.False(t, hard.Automatic())
}

func TestApply(t *testing.T) {
	assert.Equal(t, "a\n\nb", Apply("a\n\n\n\nb", []string{OptReduceWhitespace}))
	assert.Equal(t, "# H\ntext", Apply("# H\n\ntext", []string{OptTightenSpacing}))
	assert.Equal(t, "# H\n\n", Apply("# H\n\n", []string{OptTightenSpacing}))
	assert.Equal(t, `<img src="a.png" style="width: 90%; height: auto;">`,
		Apply(`<img src="a.png">`, []string{OptCompressFigures}))
	assert.Equal(t, "x", Apply("x", []string{OptReduceContent}))
}

func TestGeneratePandoc(t *testing.T) {
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "build", "proposal.pdf")
	r := &fakeRunner{out: []byte("pandoc log")}
	g := NewGenerator(DefaultConfig(), r, nil)

	res, err := g.Generate(ctx, "# Intro\n\nBody.", out, Options{Title: "Grant", Author: "Ada"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, out, res.OutputPath)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "# Intro\n\nBody.", string(data))

	logData, err := os.ReadFile(LogPath(out))
	require.NoError(t, err)
	assert.Equal(t, "pandoc log", string(logData))
	assert.Equal(t, LogPath(out), res.LogPath)

	args := strings.Join(r.calls[0], " ")
	assert.Contains(t, args, "pandoc input.md -o output.pdf")
	assert.Contains(t, args, "title=Grant")
	assert.Contains(t, args, "author=Ada")

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".pdf-build-"), "build directory left behind")
	}
}

func TestGenerateAppendsReferences(t *testing.T) {
	out := filepath.Join(t.TempDir(), "proposal.pdf")
	g := NewGenerator(DefaultConfig(), &fakeRunner{}, fakeBib{})

	res, err := g.Generate(context.Background(), "As shown [@smith2020].", out, Options{AppendReferences: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CitationCount)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "As shown [1].\n\n\\newpage\n\n# References Cited\n\n1. Smith, J. (2020).", string(data))
}

func TestGenerateValidates(t *testing.T) {
	out := filepath.Join(t.TempDir(), "proposal.pdf")
	g := NewGenerator(DefaultConfig(), &fakeRunner{}, nil)
	g.validator.pageCount = func(string) (int, error) { return 16, nil }

	res, err := g.Generate(context.Background(), "text", out, Options{Validate: true, Limits: &ProgramLimits{PageLimit: 15}})
	require.NoError(t, err)
	require.NotNil(t, res.Validation)
	assert.False(t, res.Validation.Valid)
	assert.Equal(t, 16, res.PageCount)
	assert.Contains(t, res.Warnings, "Generated PDF failed validation")
}

func TestGenerateFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("pandoc error", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "p.pdf")
		g := NewGenerator(DefaultConfig(), &fakeRunner{err: errors.New("exit status 43")}, nil)
		res, err := g.Generate(ctx, "x", out, Options{})
		require.Error(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Errors[0], "pandoc failed")
		assert.NoFileExists(t, out)
	})

	t.Run("timeout", func(t *testing.T) {
		old := GenerateTimeout
		GenerateTimeout = 10 * time.Millisecond
		t.Cleanup(func() { GenerateTimeout = old })

		g := NewGenerator(DefaultConfig(), &fakeRunner{block: true}, nil)
		_, err := g.Generate(ctx, "x", filepath.Join(t.TempDir(), "p.pdf"), Options{})
		require.Error(t, err)
		assert.Equal(t, "PDF generation timed out after 10ms", err.Error())
	})

	t.Run("unknown engine", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Engine = "latex2html"
		_, err := NewGenerator(cfg, &fakeRunner{}, nil).Generate(ctx, "x", filepath.Join(t.TempDir(), "p.pdf"), Options{})
		assert.EqualError(t, err, "unknown PDF engine: latex2html")
	})
}

func TestGenerateChrome(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine = EngineChrome
	out := filepath.Join(t.TempDir(), "proposal.pdf")
	rend := &fakeRenderer{}
	g := NewGenerator(cfg, nil, nil)
	g.SetRenderer(rend)

	res, err := g.Generate(context.Background(), "# Intro", out, Options{Title: "Grant"})
	require.NoError(t, err)
	assert.Contains(t, rend.html, `<div class="title">Grant</div>`)
	assert.Contains(t, res.Warnings[0], "headless Chrome")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fake", string(data))

	require.NoError(t, g.Close())
	assert.True(t, rend.closed)
}

func TestGenerateSeparated(t *testing.T) {
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "proposal.pdf")
	g := NewGenerator(DefaultConfig(), &fakeRunner{}, fakeBib{})

	res, err := g.GenerateSeparated(ctx, "As shown [@smith2020].", out, Options{Title: "Grant"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.CitationCount)
	assert.Equal(t, ReferencesPath(out), res.ReferencesPath)

	main, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "As shown [1].", string(main))

	refs, err := os.ReadFile(res.ReferencesPath)
	require.NoError(t, err)
	assert.Contains(t, string(refs), "1. Smith, J. (2020).")

	_, err = NewGenerator(DefaultConfig(), &fakeRunner{}, nil).GenerateSeparated(ctx, "x", out, Options{})
	assert.Error(t, err)
}

func TestReferencesPath(t *testing.T) {
	assert.Equal(t, "out/proposal_references.pdf", ReferencesPath("out/proposal.pdf"))
	assert.Equal(t, "out/proposal_generation.log", LogPath("out/proposal.pdf"))
}

func TestCapabilities(t *testing.T) {
	r := &fakeRunner{locations: map[string]container.Location{
		"pandoc":  container.LocationLocal,
		"xelatex": container.LocationContainer,
	}}
	g := NewGenerator(DefaultConfig(), r, nil)
	g.findChrome = func() (string, bool) { return "", false }

	rep := g.Capabilities(context.Background())
	assert.True(t, rep.CanGenerate)
	assert.Equal(t, EnginePandoc, rep.PreferredEngine)
	assert.True(t, rep.CanCountPages)
	assert.Equal(t, []string{"Install Chrome or Chromium, or set ROD_BROWSER_BIN, for the fallback engine"}, rep.Recommendations)

	byName := map[string]Dependency{}
	for _, d := range rep.Dependencies {
		byName[d.Name] = d
	}
	assert.Equal(t, "pandoc 1.0", byName["pandoc"].Version)
	assert.False(t, byName["pdfinfo"].Available())
	assert.Empty(t, byName["pdfinfo"].Version)

	g.runner = &fakeRunner{}
	g.findChrome = func() (string, bool) { return "/usr/bin/chromium", true }
	rep = g.Capabilities(context.Background())
	assert.True(t, rep.CanGenerate)
	assert.Equal(t, EngineChrome, rep.PreferredEngine)

	var buf bytes.Buffer
	require.NoError(t, rep.Write(&buf))
	assert.Contains(t, buf.String(), "PDF generation is available")
	assert.Contains(t, buf.String(), "Install pandoc for best PDF quality")
}
