// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pdiddy/grant-engine/internal/fileutil"
	"github.com/pdiddy/grant-engine/internal/httputil"
	"github.com/pdiddy/grant-engine/internal/logging"
	"github.com/pdiddy/grant-engine/internal/refs"
	"github.com/pdiddy/grant-engine/pkg/types"
)

// DefaultTimeout bounds a single doi.org request.
const DefaultTimeout = 30 * time.Second

// ErrNotFound is returned when doi.org does not know a DOI.
var ErrNotFound = errors.New("DOI not found")

// Fetcher retrieves BibTeX through doi.org content negotiation.
type Fetcher struct {
	client *http.Client

	// Mailto is sent in the User-Agent so Crossref routes requests to its
	// polite pool.
	Mailto string

	// MaxRetries bounds retries on HTTP 429. Zero uses the httputil default.
	MaxRetries int
}

// NewFetcher returns a Fetcher. A nil client uses one with DefaultTimeout.
func NewFetcher(client *http.Client, mailto string) *Fetcher {
	if client == nil {
		client = httputil.NewClient(DefaultTimeout)
	}
	return &Fetcher{client: client, Mailto: mailto}
}

// BibTeX resolves identifier and returns its BibTeX record.
func (f *Fetcher) BibTeX(ctx context.Context, identifier string) (types.BibEntry, error) {
	idType, normalized := Classify(identifier)
	doi, err := DOI(idType, normalized)
	if err != nil {
		return types.BibEntry{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doiBase+doi, nil)
	if err != nil {
		return types.BibEntry{}, fmt.Errorf("building request for %s: %w", doi, err)
	}
	req.Header.Set("Accept", "application/x-bibtex; charset=utf-8")
	if f.Mailto != "" {
		req.Header.Set("User-Agent", httputil.UserAgent+" mailto:"+f.Mailto)
	}

	resp, err := httputil.DoWithRetry(ctx, f.client, req, f.MaxRetries)
	if err != nil {
		return types.BibEntry{}, fmt.Errorf("fetching %s: %w", doi, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return types.BibEntry{}, fmt.Errorf("%s: %w", doi, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return types.BibEntry{}, fmt.Errorf("fetching %s: HTTP %d", doi, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.BibEntry{}, fmt.Errorf("reading response for %s: %w", doi, err)
	}
	entries, err := refs.ParseBibTeX(bytes.NewReader(body))
	if err != nil {
		return types.BibEntry{}, fmt.Errorf("parsing BibTeX for %s: %w", doi, err)
	}
	if len(entries) == 0 {
		return types.BibEntry{}, fmt.Errorf("no BibTeX record returned for %s", doi)
	}
	logging.FromContext(ctx).Debug().Str("doi", doi).Str("key", entries[0].Key).Msg("fetched BibTeX")
	return entries[0], nil
}

// BatchResult holds the outcome of a batch fetch.
type BatchResult struct {
	Added   int
	Skipped int
	Failed  int
	Entries []types.BibEntry
}

// Total returns the number of identifiers processed.
func (r BatchResult) Total() int {
	return r.Added + r.Skipped + r.Failed
}

// HasFailures reports whether any identifier failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// AddToBibliography fetches each identifier and appends the records to
// bibPath. Identifiers whose DOI or key is already in the file are
// skipped. Progress goes to w.
func (f *Fetcher) AddToBibliography(ctx context.Context, identifiers []string, bibPath string, w io.Writer) (BatchResult, error) {
	existing, err := loadExisting(bibPath)
	if err != nil {
		return BatchResult{}, err
	}
	keys := make(map[string]bool, len(existing))
	dois := make(map[string]bool, len(existing))
	for _, e := range existing {
		keys[e.Key] = true
		if e.DOI != "" {
			dois[strings.ToLower(e.DOI)] = true
		}
	}

	var res BatchResult
	for _, id := range identifiers {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		idType, normalized := Classify(id)
		if doi, err := DOI(idType, normalized); err == nil && dois[strings.ToLower(doi)] {
			fmt.Fprintf(w, "skipped: %s (already in bibliography)\n", id)
			res.Skipped++
			continue
		}

		e, err := f.BibTeX(ctx, id)
		if err != nil {
			fmt.Fprintf(w, "failed: %s: %v\n", id, err)
			res.Failed++
			continue
		}
		if keys[e.Key] {
			fmt.Fprintf(w, "skipped: %s (key %s already in bibliography)\n", id, e.Key)
			res.Skipped++
			continue
		}
		if err := appendEntry(bibPath, e); err != nil {
			return res, err
		}
		keys[e.Key] = true
		if e.DOI != "" {
			dois[strings.ToLower(e.DOI)] = true
		}
		fmt.Fprintf(w, "added: %s (%s)\n", e.Key, idType)
		res.Added++
		res.Entries = append(res.Entries, e)
	}

	fmt.Fprintf(w, "\nadded: %d, skipped: %d, failed: %d\n", res.Added, res.Skipped, res.Failed)
	return res, nil
}

func loadExisting(path string) ([]types.BibEntry, error) {
	if !fileutil.Exists(path) {
		return nil, nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer fh.Close()
	entries, err := refs.ParseBibTeX(fh)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return entries, nil
}

func appendEntry(path string, e types.BibEntry) error {
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(fh, "\n%s", e.Raw); err != nil {
		fh.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return fh.Close()
}
