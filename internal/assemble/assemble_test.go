// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package assemble

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/grant-engine/internal/logging"
)

const testConfig = `basic_info:
  program: CSSI
  project_title: Open Tools
  organization_name: Example University
sections:
  - id: project_summary
    title: Project Summary
    file: project_summary.md
    word_limit: 5
  - id: project_description
    title: Project Description
    file: project_description.md
  - id: data_management
    title: Data Management Plan
    file: data_management.md
  - id: mentoring
    title: Mentoring Plan
    file: mentoring.md
    required: false
  - id: empty
    file: empty.md
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newProject lays out a project with sections spread across the searched
// directories, one missing required section, and one blank file.
func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "nsf_config.yaml"), testConfig)
	writeFile(t, filepath.Join(root, "project_summary.md"), "one two three four five six seven")
	writeFile(t, filepath.Join(root, "sections", "project_description.md"), strings.Repeat("word ", 300))
	writeFile(t, filepath.Join(root, "responses", "empty.md"), "  \n")
	return root
}

func newAssembler(t *testing.T, root string) *Assembler {
	t.Helper()
	a, err := New(context.Background(), root)
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) }
	return a
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	_, err := FindConfig(root)
	assert.True(t, errors.Is(err, ErrNoConfig))

	writeFile(t, filepath.Join(root, "docs", "pose", "pose_questions.yaml"), "sections: []\n")
	got, err := FindConfig(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "docs", "pose", "pose_questions.yaml"), got)

	writeFile(t, filepath.Join(root, "grant.yaml"), "sections: []\n")
	got, err = FindConfig(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "grant.yaml"), got)
}

func TestNew_ResolvesSections(t *testing.T) {
	root := newProject(t)
	a := newAssembler(t, root)

	require.Len(t, a.Sections, 5)
	assert.Equal(t, filepath.Join(a.Root, "project_summary.md"), a.Sections[0].Path)
	assert.Equal(t, filepath.Join(a.Root, "sections", "project_description.md"), a.Sections[1].Path)
	assert.Empty(t, a.Sections[2].Path)
	assert.True(t, a.Sections[2].Required, "required defaults to true")
	assert.False(t, a.Sections[3].Required)
	assert.Equal(t, "Untitled", a.Sections[4].Title)
	assert.Equal(t, "Open Tools", a.Config.BasicInfo.ProjectTitle)
}

func TestLoadAllContent(t *testing.T) {
	a := newAssembler(t, newProject(t))
	a.LoadAllContent(context.Background())

	s := a.Sections[0]
	assert.True(t, s.Complete)
	assert.Equal(t, 7, s.WordCount)
	assert.True(t, s.OverLimit())

	d := a.Sections[1]
	assert.Equal(t, 300, d.WordCount)
	assert.Equal(t, 2, d.Pages)

	assert.False(t, a.Sections[4].Complete, "blank file is incomplete")
}

func TestAssembleDocument(t *testing.T) {
	root := newProject(t)
	a := newAssembler(t, root)

	res, err := a.AssembleDocument(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, filepath.Join(a.Root, DefaultOutput), res.OutputPath)
	assert.Equal(t, 307, res.TotalWords)
	assert.Equal(t, []string{
		"Required section missing: Data Management Plan",
		"Required section missing: Untitled",
	}, res.Errors)
	assert.Equal(t, []string{"Section 'Project Summary' exceeds word limit: 7 > 5"}, res.Warnings)

	data, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	doc := string(data)
	assert.True(t, strings.HasPrefix(doc, "---\n# NSF Grant Proposal - Generated Document\n**Program:** CSSI\n**Title:** Open Tools\n**Organization:** Example University\n**Generated:** 2026-03-02 09:30:00\n---\n"))
	assert.NotContains(t, doc, "**Deadline:**")
	assert.Contains(t, doc, "# Table of Contents\n\n1. Project Summary\n2. Project Description\n")
	assert.Contains(t, doc, "\n# Data Management Plan\n\n"+missingMarker)
	assert.NotContains(t, doc, "# Mentoring Plan", "optional missing sections are omitted")
	assert.Less(t, strings.Index(doc, "# Project Summary"), strings.Index(doc, "# Project Description"))
}

func TestAssembleDocument_NoTOCNoMetadata(t *testing.T) {
	a := newAssembler(t, newProject(t))
	out := filepath.Join(t.TempDir(), "out", "doc.md")

	res, err := a.AssembleDocument(context.Background(), Options{Output: out})
	require.NoError(t, err)
	assert.Equal(t, out, res.OutputPath)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\n# Project Summary\n"))
	assert.NotContains(t, string(data), "Table of Contents")
}

func TestAssembleDocument_Template(t *testing.T) {
	root := newProject(t)
	writeFile(t, filepath.Join(root, TemplatesDir, "short.md"),
		"{{.Config.BasicInfo.ProjectTitle}} ({{len .CompleteSections}} of {{len .Sections}}, {{.TotalWords}} words)\n")
	a := newAssembler(t, root)

	res, err := a.AssembleDocument(context.Background(), Options{Template: "short.md"})
	require.NoError(t, err)
	data, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "Open Tools (2 of 5, 307 words)\n", string(data))
}

func TestAssembleDocument_BrokenTemplateFallsBack(t *testing.T) {
	root := newProject(t)
	writeFile(t, filepath.Join(root, TemplatesDir, DefaultTemplate), "{{.NoSuchField}}")
	a := newAssembler(t, root)

	res, err := a.AssembleDocument(context.Background(), Options{})
	require.NoError(t, err)
	data, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Project Summary")
}

func TestAssembleDocument_TemplateWarnings(t *testing.T) {
	tests := []struct {
		name     string
		template string
		file     string
		wantWarn bool
	}{
		{"no template", "", "", false},
		{"named template missing", "custom.md", "", true},
		{"default template broken", "", "{{.NoSuchField}}", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newProject(t)
			if tt.file != "" {
				writeFile(t, filepath.Join(root, TemplatesDir, DefaultTemplate), tt.file)
			}
			a := newAssembler(t, root)

			var logs bytes.Buffer
			l := zerolog.New(&logs)
			ctx := logging.WithLogger(context.Background(), &l)
			_, err := a.AssembleDocument(ctx, Options{Template: tt.template})
			require.NoError(t, err)
			if tt.wantWarn {
				assert.Contains(t, logs.String(), "template rendering failed")
			} else {
				assert.NotContains(t, logs.String(), "template rendering failed")
			}
		})
	}
}

func TestCompletionStatus(t *testing.T) {
	a := newAssembler(t, newProject(t))
	st := a.CompletionStatus(context.Background())

	assert.Equal(t, 5, st.TotalSections)
	assert.Equal(t, 2, st.CompleteSections)
	assert.Equal(t, 3, st.IncompleteSections)
	assert.Equal(t, 2, st.RequiredIncomplete)
	assert.Equal(t, 307, st.TotalWords)
	assert.InDelta(t, 40.0, st.CompletionPercent, 0.001)
	assert.True(t, st.Sections[0].OverLimit)
}

func TestValidateProposal(t *testing.T) {
	a := newAssembler(t, newProject(t))
	assert.Equal(t, []string{
		"Required section missing: Data Management Plan",
		"Required section missing: Untitled",
		"Section 'Project Summary' exceeds word limit: 7 > 5",
		"Section 'Untitled' has file but no content",
	}, a.ValidateProposal(context.Background()))
}

func TestDocument(t *testing.T) {
	a := newAssembler(t, newProject(t))
	doc := a.Document(context.Background())
	assert.True(t, strings.HasPrefix(doc, "# Project Summary\n\none two"))
	assert.Contains(t, doc, "# Project Description\n\nword")
	assert.NotContains(t, doc, "Untitled")
}
