// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package refs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/grant-engine/pkg/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func sampleManager() *Manager {
	m := &Manager{entries: make(map[string]types.BibEntry)}
	m.Add(types.BibEntry{
		Key: "smith2024", EntryType: "article",
		Title: "Open Source Sustainability", Authors: []string{"Smith, John", "Doe, Jane"},
		Journal: "Journal of Software", Volume: "42", Pages: "1--15", Year: "2024",
		DOI: "10.1000/xyz",
	})
	m.Add(types.BibEntry{
		Key: "brown2023", EntryType: "book",
		Title: "Foundations", Authors: []string{"Alice Brown"}, Year: "2023",
		Fields: map[string]string{"publisher": "Academic Press"},
	})
	m.Add(types.BibEntry{
		Key: "tool2024", EntryType: "misc",
		Title: "SampleTool", Authors: []string{"Taylor, David"}, Year: "2024",
		URL:    "https://github.com/example/sampletool",
		Fields: map[string]string{"note": "Version 2.1"},
	})
	return m
}

func TestCleanLaTeX(t *testing.T) {
	tests := []struct{ in, want string }{
		{"{A Title with {GPU}s}", "A Title with GPUs"},
		{`Sch\"{o}n and G\"odel`, "Schön and Gödel"},
		{`Fran\c{c}ois`, "François"},
		{`Data \& Code`, "Data & Code"},
		{`\emph{Important} results`, "Important results"},
		{"Word~spacing   here", "Word spacing here"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanLaTeX(tt.in), "CleanLaTeX(%q)", tt.in)
	}
}

func TestParseAuthors(t *testing.T) {
	got := ParseAuthors("Smith, John and  Doe,   Jane and {Ada Lovelace}")
	assert.Equal(t, []string{"Smith, John", "Doe, Jane", "Ada Lovelace"}, got)
	assert.Nil(t, ParseAuthors("  "))
}

func TestManager_LoadSample(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "references", "refs.bib"), SampleBibliography)
	writeFile(t, filepath.Join(root, "notes.txt"), "not a bib")

	m := NewManager(root, nil)
	require.Len(t, m.Files(), 1)
	require.NoError(t, m.Load(context.Background()))

	assert.Equal(t, 4, m.Len())
	e, ok := m.Entry("sample_article_2024")
	require.True(t, ok)
	assert.Equal(t, "article", e.EntryType)
	assert.Equal(t, "A Sample Research Article for NSF Proposals", e.Title)
	assert.Equal(t, []string{"Smith, John", "Doe, Jane"}, e.Authors)
	assert.Equal(t, "2024", e.Year)
	assert.Contains(t, e.Raw, "@article{sample_article_2024,")

	stats := m.Statistics()
	assert.Equal(t, 4, stats.TotalEntries)
	assert.Equal(t, 2023, stats.YearMin)
	assert.Equal(t, 2024, stats.YearMax)
	assert.Equal(t, 1, stats.EntryTypes["book"])
}

const brokenBib = "@article{broken, title = {unterminated"

func TestParseBibTeX_RecoversAfterError(t *testing.T) {
	got, err := ParseBibTeX(strings.NewReader(SampleBibliography))
	require.NoError(t, err)
	assert.Len(t, got, 4)

	_, err = ParseBibTeX(strings.NewReader(brokenBib))
	require.Error(t, err)

	got, err = ParseBibTeX(strings.NewReader(SampleBibliography))
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestManager_LoadSkipsBrokenFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a_broken.bib"), brokenBib)
	writeFile(t, filepath.Join(root, "b_good.bib"), SampleBibliography)

	m := NewManager(root, nil)
	require.Len(t, m.Files(), 2)
	err := m.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a_broken.bib")
	assert.NotContains(t, err.Error(), "b_good.bib")
	assert.Equal(t, 4, m.Len())
}

func TestManager_Search(t *testing.T) {
	m := sampleManager()
	got := m.Search("BROWN")
	require.Len(t, got, 1)
	assert.Equal(t, "brown2023", got[0].Key)
	assert.Len(t, m.Search("sample"), 1)
	assert.Empty(t, m.Search("nothing matches"))
}

func TestManager_ValidateEntries(t *testing.T) {
	m := sampleManager()
	m.Add(types.BibEntry{Key: "bare", EntryType: "article", Title: "Untitled", URL: "https://myblog.example.com/post"})

	issues := m.ValidateEntries()
	assert.Contains(t, issues, "Entry 'bare': Missing required field 'authors' for article")
	assert.Contains(t, issues, "Entry 'bare': Missing required field 'journal' for article")
	assert.Contains(t, issues, "Entry 'bare': Missing required field 'year' for article")
	assert.Contains(t, issues, "Entry 'bare': URL may not be appropriate for NSF proposal: https://myblog.example.com/post")
	assert.Contains(t, issues, "Entry 'tool2024': URL may not be appropriate for NSF proposal: https://github.com/example/sampletool")
	for _, i := range issues {
		assert.NotContains(t, i, "smith2024")
	}
}

func TestManager_ExportUsed(t *testing.T) {
	m := sampleManager()
	for _, e := range m.Entries() {
		e.Raw = FormatBibTeX(e.Key, e.EntryType, map[string]string{"title": e.Title})
		m.Add(e)
	}
	out := filepath.Join(t.TempDir(), "used.bib")

	missing, err := m.ExportUsed([]string{"smith2024", "ghost", "brown2023", "smith2024"}, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, missing)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	s := string(data)
	assert.Less(t, strings.Index(s, "brown2023"), strings.Index(s, "smith2024"))
	assert.NotContains(t, s, "tool2024")
}

func TestParseCitationKeys(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"@smith2024", []string{"smith2024"}},
		{"@a; @b", []string{"a", "b"}},
		{"@smith2024, p. 42", []string{"smith2024"}},
		{"@smith2024, pp. 10-15", []string{"smith2024"}},
		{"a,b", []string{"a", "b"}},
		{"not a key", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCitationKeys(tt.in), "ParseCitationKeys(%q)", tt.in)
	}
}

func TestExtractCitations(t *testing.T) {
	content := "Intro [@smith2024] and [brown2023].\n" +
		"A [link](https://example.com) is not a citation.\n" +
		`LaTeX \cite{a,b} and \citep{c}; multi [@x; @y, p. 3].`

	got := ExtractCitations(content)
	want := []types.Citation{
		{Keys: []string{"smith2024"}, Match: "[@smith2024]", Line: 1, Start: 6, End: 18},
		{Keys: []string{"brown2023"}, Match: "[brown2023]", Line: 1, Start: 23, End: 34},
	}
	if diff := cmp.Diff(want, got[:2]); diff != "" {
		t.Errorf("line 1 citations mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, got, 5)
	assert.Equal(t, 3, got[2].Line)
	assert.Equal(t, []string{"a", "b"}, got[2].Keys)
	assert.Equal(t, []string{"c"}, got[3].Keys)
	assert.Equal(t, []string{"x", "y"}, got[4].Keys)

	assert.Equal(t, []string{"smith2024", "brown2023", "a", "b", "c", "x", "y"}, CitedKeys(content))
}

func TestBuildReport(t *testing.T) {
	byFile := map[string][]types.Citation{
		"a.md": {{Keys: []string{"smith2024"}}, {Keys: []string{"smith2024", "ghost"}}},
		"b.md": {{Keys: []string{"brown2023"}}},
	}
	r := BuildReport(byFile, []string{"brown2023", "smith2024", "tool2024"})

	assert.Equal(t, 4, r.TotalCitations)
	assert.Equal(t, 3, r.UniqueCitations)
	assert.Equal(t, []string{"brown2023", "ghost", "smith2024"}, r.Keys)
	assert.Equal(t, []string{"ghost"}, r.Missing)
	assert.Equal(t, []string{"tool2024"}, r.Unused)
	assert.Equal(t, map[string]int{"smith2024": 2}, r.Duplicates)

	noBib := BuildReport(byFile, nil)
	assert.Empty(t, noBib.Missing)
	assert.Empty(t, noBib.Unused)
}

func TestReportForDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "summary.md"), "See [@smith2024].")
	writeFile(t, filepath.Join(dir, "notes.txt"), "Also [@brown2023].")
	writeFile(t, filepath.Join(dir, "empty.md"), "No citations here.")
	writeFile(t, filepath.Join(dir, "sub", "deep.md"), "[@ignored]")

	r, err := ReportForDir(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Len(t, r.ByFile, 2)
	assert.Equal(t, []string{"brown2023", "smith2024"}, r.Keys)
}

func TestRenumberCitations(t *testing.T) {
	content := `A [@smith2024], B [@brown2023; @smith2024], C [unknown], D [brown2023](x), E \cite{brown2023}.`
	got := RenumberCitations(content, []string{"brown2023", "smith2024"})
	assert.Equal(t, `A [2], B [1, 2], C [unknown], D [brown2023](x), E [1].`, got)
}

func TestToLaTeXCitations(t *testing.T) {
	assert.Equal(t, `See \cite{a,b} now.`, ToLaTeXCitations("See [@a; @b] now."))
	assert.Equal(t, `One \cite{smith2020}.`, ToLaTeXCitations("One [@smith2020]."))
}

func TestCheckCitationSyntax(t *testing.T) {
	content := "Good [@smith2024].\n" +
		"Broken [@smith2024\n" +
		"Link [text](https://example.org)\n" +
		"Bare @smith2024 here\n" +
		"Email pi@example.edu is fine"

	got := CheckCitationSyntax(content)
	assert.Equal(t, []string{
		"Line 2: Unclosed citation bracket",
		"Line 3: Possible markdown link mistaken for citation",
		"Line 4: Bare @ symbol without brackets",
	}, got)
}

func TestFormatAuthorName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Smith, John", "Smith, John"},
		{"Smith, John Quincy", "Smith, John Q."},
		{"Smith, John Q.", "Smith, John Q."},
		{"Jane Q Doe", "Doe, Jane Q"},
		{"Plato", "Plato"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatAuthorName(tt.in), "FormatAuthorName(%q)", tt.in)
	}
}

func TestFormatter_FormatEntry(t *testing.T) {
	m := sampleManager()
	f := Formatter{Style: DefaultStyle()}

	article, _ := m.Entry("smith2024")
	assert.Equal(t,
		`[1] Smith, John and Doe, Jane. "Open Source Sustainability." *Journal of Software* 42, 1–15 (2024). https://doi.org/10.1000/xyz`,
		f.FormatEntry(article, 1))

	book, _ := m.Entry("brown2023")
	assert.Equal(t, `[2] Brown, Alice. *Foundations.* Academic Press, 2023.`, f.FormatEntry(book, 2))

	misc, _ := m.Entry("tool2024")
	assert.Equal(t,
		`[3] Taylor, David. "SampleTool." Version 2.1. 2024. https://github.com/example/sampletool`,
		f.FormatEntry(misc, 3))

	f.Style.Type = "author-year"
	assert.True(t, strings.HasPrefix(f.FormatEntry(book, 2), "Brown, Alice."))
}

func TestFormatter_Authors(t *testing.T) {
	f := Formatter{Style: Style{EtAlThreshold: 3}}
	assert.Equal(t, "A, X, B, Y, and C, Z", f.formatAuthors([]string{"A, X", "B, Y", "C, Z"}))
	assert.Equal(t, "A, X et al.", f.formatAuthors([]string{"A, X", "B, Y", "C, Z", "D, W"}))
}

func TestFormatPages(t *testing.T) {
	assert.Equal(t, "1–15", formatPages("1--15"))
	assert.Equal(t, "10–20", formatPages("10-20"))
	assert.Equal(t, "e123", formatPages("e123"))
}

func TestGenerator_Render(t *testing.T) {
	g := NewGenerator(sampleManager(), DefaultStyle())

	assert.Equal(t, "## References Cited\n\nNo references found.\n", g.Render(nil))

	order := g.Sort([]string{"tool2024", "smith2024", "brown2023"})
	assert.Equal(t, []string{"brown2023", "smith2024", "tool2024"}, order)

	out := g.Render(append(order, "ghost"))
	assert.True(t, strings.HasPrefix(out, "## References Cited\n\n\n[1] Brown, Alice."))
	assert.Contains(t, out, "[4] **Missing entry: ghost**")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestGenerator_ProcessContent(t *testing.T) {
	g := NewGenerator(sampleManager(), DefaultStyle())
	out, order := g.ProcessContent("First [@tool2024], then [@smith2024; @brown2023].")
	assert.Equal(t, []string{"brown2023", "smith2024", "tool2024"}, order)
	assert.Equal(t, "First [3], then [2, 1].", out)
}

func TestGenerator_SeparateReferences(t *testing.T) {
	g := NewGenerator(sampleManager(), DefaultStyle())
	out := filepath.Join(t.TempDir(), "references.md")

	res, err := g.SeparateReferences("Uses [@smith2024] and [@ghost].", out)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"Citation key 'ghost' not found in bibliography"}, res.Errors)
	assert.NoFileExists(t, out)

	res, err = g.SeparateReferences("Uses [@smith2024].", out)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Count)
	assert.FileExists(t, out)
}

func TestGenerator_Generate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "[@smith2024] [@ghost]")
	g := NewGenerator(sampleManager(), DefaultStyle())

	res, err := g.Generate(context.Background(), dir, "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Errors, "Citation key 'ghost' not found in bibliography")
	assert.Contains(t, res.Warnings, "2 bibliography entries are unused")
	assert.Equal(t, []string{"smith2024"}, res.Order)
}

func TestLoadConfig(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)

	path := filepath.Join(t.TempDir(), ConfigFile)
	writeFile(t, path, "bibliography:\n  style:\n    et_al_threshold: 3\noutput:\n  filenames:\n    citation_report: cites.md\n")
	c, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Bibliography.Style.EtAlThreshold)
	assert.Equal(t, "numeric", c.Bibliography.Style.Type)
	assert.Equal(t, "cites.md", c.Output.Filenames.CitationReport)
	assert.Equal(t, "references.md", c.Output.Filenames.BibliographyMarkdown)

	require.NoError(t, c.Save(path))
	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, c, again)
}
