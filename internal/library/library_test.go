// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/grant-engine/internal/refs"
	"github.com/pdiddy/grant-engine/pkg/types"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	s, err := Open(filepath.Join(root, DefaultDir), 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	bib := filepath.Join(root, "references.bib")
	require.NoError(t, os.WriteFile(bib, []byte(refs.SampleBibliography), 0o644))
	return s, bib
}

func indexed(t *testing.T) *Store {
	t.Helper()
	s, bib := testStore(t)
	_, err := s.Index(context.Background(), []string{bib}, &bytes.Buffer{})
	require.NoError(t, err)
	return s
}

func keys(entries []types.BibEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}

func TestIndexIncremental(t *testing.T) {
	ctx := context.Background()
	s, bib := testStore(t)

	var out bytes.Buffer
	sum, err := s.Index(ctx, []string{bib, filepath.Join(filepath.Dir(bib), "missing.bib")}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Indexed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 4, sum.Entries)
	assert.Equal(t, 2, sum.Total())
	assert.Contains(t, out.String(), "indexing "+bib+" (4 entries)")
	assert.FileExists(t, filepath.Join(s.Dir(), exportFile))

	sum, err = s.Index(ctx, []string{bib}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Indexed)

	one := refs.SampleBibliography[:strings.Index(refs.SampleBibliography, "@book")]
	require.NoError(t, os.WriteFile(bib, []byte(one), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(bib, later, later))

	sum, err = s.Index(ctx, []string{bib}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIndexParseFailure(t *testing.T) {
	s, bib := testStore(t)
	require.NoError(t, os.WriteFile(bib, []byte("@article{broken, title = {unterminated"), 0o644))

	var out bytes.Buffer
	sum, err := s.Index(context.Background(), []string{bib}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Contains(t, out.String(), "parse error")
}

func TestIndexAfterParseFailure(t *testing.T) {
	ctx := context.Background()
	s, bib := testStore(t)
	broken := filepath.Join(filepath.Dir(bib), "a_broken.bib")
	require.NoError(t, os.WriteFile(broken, []byte("@article{broken, title = {unterminated"), 0o644))

	sum, err := s.Index(ctx, []string{broken, bib}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Indexed)
	assert.Equal(t, 4, sum.Entries)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	s := indexed(t)

	tests := []struct {
		name string
		opts QueryOptions
		want []string
	}{
		{"all", QueryOptions{}, []string{"sample_article_2024", "sample_book_2023", "sample_conference_2024", "sample_software_2024"}},
		{"title term", QueryOptions{Query: "Foundations"}, []string{"sample_book_2023"}},
		{"author term", QueryOptions{Query: "Johnson"}, []string{"sample_conference_2024"}},
		{"type", QueryOptions{Type: "Book"}, []string{"sample_book_2023"}},
		{"year from", QueryOptions{YearFrom: 2024}, []string{"sample_article_2024", "sample_conference_2024", "sample_software_2024"}},
		{"year to", QueryOptions{YearTo: 2023}, []string{"sample_book_2023"}},
		{"limit", QueryOptions{MaxResults: 2}, []string{"sample_article_2024", "sample_book_2023"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(ctx, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys(got))
		})
	}
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	s := indexed(t)

	e, err := s.Get(ctx, "sample_article_2024")
	require.NoError(t, err)
	assert.Equal(t, "A Sample Research Article for NSF Proposals", e.Title)
	assert.Equal(t, []string{"Smith, John", "Doe, Jane"}, e.Authors)
	assert.Equal(t, "42", e.Volume)
	assert.Equal(t, "10.1000/sample.doi", e.DOI)
	assert.Contains(t, e.Raw, "@article{sample_article_2024,")

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	s := indexed(t)

	var buf bytes.Buffer
	require.NoError(t, s.Export(ctx, FormatJSON, QueryOptions{}, &buf))
	var entries []ExportEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entries))
	require.Len(t, entries, 4)
	assert.Equal(t, "sample_article_2024", entries[0].Key)

	buf.Reset()
	require.NoError(t, s.Export(ctx, FormatCSL, QueryOptions{Type: "article"}, &buf))
	csl := buf.String()
	assert.Contains(t, csl, "id: sample_article_2024")
	assert.Contains(t, csl, "type: article-journal")
	assert.Contains(t, csl, "family: Smith")
	assert.Contains(t, csl, "date-parts:")
	assert.NotContains(t, csl, "sample_book_2023")

	buf.Reset()
	require.NoError(t, s.Export(ctx, FormatYAML, QueryOptions{}, &buf))
	assert.Contains(t, buf.String(), "key: sample_software_2024")

	assert.Error(t, s.Export(ctx, "xml", QueryOptions{}, &buf))
}

func TestToCSL(t *testing.T) {
	item := ToCSL(types.BibEntry{
		Key: "c", EntryType: "inproceedings", Title: "T", Year: "2021", Pages: "3--9",
		Authors: []string{"Ada Lovelace", "Plato", "Doe, Jane"},
		Fields:  map[string]string{"booktitle": "Proc. X"},
	})
	assert.Equal(t, "paper-conference", item.Type)
	assert.Equal(t, "Proc. X", item.ContainerTitle)
	assert.Equal(t, "3-9", item.Page)
	assert.Equal(t, []CSLName{{Given: "Ada", Family: "Lovelace"}, {Literal: "Plato"}, {Family: "Doe", Given: "Jane"}}, item.Author)
	assert.Equal(t, [][]int{{2021}}, item.Issued.DateParts)

	assert.Equal(t, "document", ToCSL(types.BibEntry{EntryType: "unpublished"}).Type)
	assert.Nil(t, ToCSL(types.BibEntry{Year: "n.d."}).Issued)
}
