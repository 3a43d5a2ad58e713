// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/grant-engine/internal/refs"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		input    string
		wantType IdentifierType
		wantNorm string
	}{
		{"2301.07041", TypeArxiv, "2301.07041"},
		{"arXiv:2301.07041v2", TypeArxiv, "2301.07041"},
		{"https://arxiv.org/abs/2301.07041", TypeArxiv, "2301.07041"},
		{"https://arxiv.org/pdf/2301.07041v1.pdf", TypeArxiv, "2301.07041"},
		{"10.1145/1234567.1234568", TypeDOI, "10.1145/1234567.1234568"},
		{"doi:10.1000/xyz", TypeDOI, "10.1000/xyz"},
		{"https://doi.org/10.1000/xyz", TypeDOI, "10.1000/xyz"},
		{"https://example.com/paper.pdf", TypeURL, "https://example.com/paper.pdf"},
		{"  hello  ", TypeUnknown, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			gotType, gotNorm := Classify(tt.input)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.wantNorm, gotNorm)
		})
	}
}

func TestDOI(t *testing.T) {
	doi, err := DOI(TypeArxiv, "2301.07041")
	require.NoError(t, err)
	assert.Equal(t, "10.48550/arXiv.2301.07041", doi)

	_, err = DOI(TypeURL, "https://example.com")
	assert.Error(t, err)
	_, err = DOI(TypeUnknown, "x")
	assert.Error(t, err)
	assert.Equal(t, "arxiv", TypeArxiv.String())
}

const smithBib = ` @article{Smith_2020, title={Open Grants}, volume={3}, DOI={10.1000/xyz}, journal={J. Sci.}, author={Smith, John}, year={2020}}`

const arxivBib = `@misc{doe2023, title={Preprint Title}, author={Doe, Jane}, year={2023}, doi={10.48550/arXiv.2301.07041}}`

func doiServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Accept"), "application/x-bibtex") {
			http.Error(w, "bad accept", http.StatusNotAcceptable)
			return
		}
		switch r.URL.Path {
		case "/10.1000/xyz":
			w.Write([]byte(smithBib))
		case "/10.48550/arXiv.2301.07041":
			w.Write([]byte(arxivBib))
		case "/10.1000/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	old := doiBase
	doiBase = srv.URL + "/"
	t.Cleanup(func() { doiBase = old })
	return srv
}

func TestFetcherBibTeX(t *testing.T) {
	srv := doiServer(t)
	f := NewFetcher(srv.Client(), "me@example.org")
	ctx := context.Background()

	e, err := f.BibTeX(ctx, "https://doi.org/10.1000/xyz")
	require.NoError(t, err)
	assert.Equal(t, "Smith_2020", e.Key)
	assert.Equal(t, "Open Grants", e.Title)
	assert.Equal(t, "10.1000/xyz", e.DOI)

	e, err = f.BibTeX(ctx, "arXiv:2301.07041")
	require.NoError(t, err)
	assert.Equal(t, "doe2023", e.Key)

	_, err = f.BibTeX(ctx, "10.1000/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.BibTeX(ctx, "10.1000/broken")
	assert.ErrorContains(t, err, "HTTP 500")
}

func TestAddToBibliography(t *testing.T) {
	srv := doiServer(t)
	f := NewFetcher(srv.Client(), "")
	bib := filepath.Join(t.TempDir(), "references.bib")
	require.NoError(t, os.WriteFile(bib, []byte(refs.SampleBibliography), 0o644))

	var out bytes.Buffer
	res, err := f.AddToBibliography(context.Background(),
		[]string{"10.1000/xyz", "10.1000/sample.doi", "2301.07041", "10.1000/xyz", "10.1000/missing"}, bib, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 5, res.Total())
	assert.True(t, res.HasFailures())
	assert.Contains(t, out.String(), "added: Smith_2020 (doi)")
	assert.Contains(t, out.String(), "skipped: 10.1000/sample.doi (already in bibliography)")
	assert.Contains(t, out.String(), "\nadded: 2, skipped: 2, failed: 1\n")

	m := refs.NewManager(filepath.Dir(bib), []string{"."})
	require.NoError(t, m.Load(context.Background()))
	assert.Equal(t, 6, m.Len())
	assert.True(t, m.Has("Smith_2020"))
	assert.True(t, m.Has("doe2023"))
}
