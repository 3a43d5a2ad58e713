// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package refs manages BibTeX bibliographies and the citations that point
// into them: loading and validating .bib files, extracting citations from
// Markdown, renumbering them, and rendering an NSF "References Cited"
// section.
package refs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/nickng/bibtex"

	"github.com/pdiddy/grant-engine/internal/fileutil"
	"github.com/pdiddy/grant-engine/internal/logging"
	"github.com/pdiddy/grant-engine/pkg/types"
)

// DefaultSearchPaths are the project directories scanned for *.bib files.
var DefaultSearchPaths = []string{".", "references", "bibliography", "docs", "sections"}

// Manager holds the bibliography entries of one project.
type Manager struct {
	root    string
	files   []string
	entries map[string]types.BibEntry
}

// NewManager discovers .bib files under root. A nil searchPaths uses
// DefaultSearchPaths.
func NewManager(root string, searchPaths []string) *Manager {
	if searchPaths == nil {
		searchPaths = DefaultSearchPaths
	}
	m := &Manager{root: root, entries: make(map[string]types.BibEntry)}

	seen := make(map[string]bool)
	for _, sp := range searchPaths {
		matches, _ := filepath.Glob(filepath.Join(root, sp, "*.bib"))
		for _, f := range matches {
			abs, err := filepath.Abs(f)
			if err != nil {
				abs = f
			}
			if !seen[abs] {
				seen[abs] = true
				m.files = append(m.files, f)
			}
		}
	}
	sort.Strings(m.files)
	return m
}

// Files returns the discovered .bib files.
func (m *Manager) Files() []string {
	return m.files
}

// Load parses every discovered file. Entries from later files replace
// entries with the same key. Files that fail to parse are skipped; their
// errors are joined into the returned error while the rest still load.
func (m *Manager) Load(ctx context.Context) error {
	log := logging.FromContext(ctx)
	var errs []error
	for _, f := range m.files {
		n, err := m.LoadFile(f)
		if err != nil {
			log.Warn().Err(err).Str("file", f).Msg("skipping bibliography file")
			errs = append(errs, err)
			continue
		}
		log.Debug().Str("file", f).Int("entries", n).Msg("loaded bibliography")
	}
	return errors.Join(errs...)
}

// LoadFile parses one .bib file and merges its entries. Returns the number
// of entries read.
func (m *Manager) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	entries, err := ParseBibTeX(f)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, e := range entries {
		e.Source = path
		m.entries[e.Key] = e
	}
	return len(entries), nil
}

// Add inserts or replaces an entry.
func (m *Manager) Add(e types.BibEntry) {
	m.entries[e.Key] = e
}

// parseMu serializes bibtex.Parse, whose scanner and result live in
// package-level state.
var parseMu sync.Mutex

// ParseBibTeX reads BibTeX records from r. It is safe for concurrent use.
func ParseBibTeX(r io.Reader) ([]types.BibEntry, error) {
	parseMu.Lock()
	bib, err := bibtex.Parse(r)
	if err != nil {
		// A failed parse leaves the scanner mid-field; a lone closing
		// brace returns it to its initial state.
		_, _ = bibtex.Parse(strings.NewReader("}"))
		parseMu.Unlock()
		return nil, err
	}
	parseMu.Unlock()

	out := make([]types.BibEntry, 0, len(bib.Entries))
	for _, be := range bib.Entries {
		fields := make(map[string]string, len(be.Fields))
		for name, v := range be.Fields {
			if v == nil {
				continue
			}
			fields[strings.ToLower(name)] = strings.TrimSpace(v.String())
		}
		out = append(out, newEntry(be.CiteName, strings.ToLower(be.Type), fields))
	}
	return out, nil
}

func newEntry(key, typ string, raw map[string]string) types.BibEntry {
	clean := make(map[string]string, len(raw))
	for k, v := range raw {
		switch k {
		case "url", "doi":
			clean[k] = strings.Trim(v, "{} ")
		default:
			clean[k] = CleanLaTeX(v)
		}
	}
	e := types.BibEntry{
		Key:       key,
		EntryType: typ,
		Title:     clean["title"],
		Authors:   ParseAuthors(raw["author"]),
		Year:      clean["year"],
		Journal:   clean["journal"],
		Volume:    clean["volume"],
		Pages:     clean["pages"],
		DOI:       clean["doi"],
		URL:       clean["url"],
		Fields:    clean,
	}
	e.Raw = FormatBibTeX(key, typ, raw)
	return e
}

// FormatBibTeX serialises a record with fields in sorted order.
func FormatBibTeX(key, typ string, fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "@%s{%s,\n", typ, key)
	for _, n := range names {
		fmt.Fprintf(&b, "  %s = {%s},\n", n, fields[n])
	}
	b.WriteString("}\n")
	return b.String()
}

// Entry returns the entry for key.
func (m *Manager) Entry(key string) (types.BibEntry, bool) {
	e, ok := m.entries[key]
	return e, ok
}

// Has reports whether key is in the bibliography.
func (m *Manager) Has(key string) bool {
	_, ok := m.entries[key]
	return ok
}

// Len returns the number of loaded entries.
func (m *Manager) Len() int {
	return len(m.entries)
}

// Keys returns every citation key, sorted.
func (m *Manager) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns every entry sorted by key.
func (m *Manager) Entries() []types.BibEntry {
	out := make([]types.BibEntry, 0, len(m.entries))
	for _, k := range m.Keys() {
		out = append(out, m.entries[k])
	}
	return out
}

// Search returns entries whose title or authors contain query,
// case-insensitively, sorted by key.
func (m *Manager) Search(query string) []types.BibEntry {
	q := strings.ToLower(query)
	var out []types.BibEntry
	for _, e := range m.Entries() {
		if strings.Contains(strings.ToLower(e.Title), q) ||
			strings.Contains(strings.ToLower(strings.Join(e.Authors, " ")), q) {
			out = append(out, e)
		}
	}
	return out
}

var requiredFields = map[string][]string{
	"article": {"title", "authors", "journal", "year"},
	"book":    {"title", "authors", "year"},
}

var academicURL = regexp.MustCompile(`doi\.org|\.edu|\.gov|arxiv\.org|ieee\.org|acm\.org|springer\.com|elsevier\.com|nature\.com|science\.org`)

// ValidateEntries reports missing required fields and URLs unlikely to be
// acceptable in an NSF proposal.
func (m *Manager) ValidateEntries() []string {
	var issues []string
	for _, e := range m.Entries() {
		for _, f := range requiredFields[e.EntryType] {
			if entryValue(e, f) == "" {
				issues = append(issues, fmt.Sprintf("Entry '%s': Missing required field '%s' for %s", e.Key, f, e.EntryType))
			}
		}
		if e.URL != "" && !academicURL.MatchString(strings.ToLower(e.URL)) {
			issues = append(issues, fmt.Sprintf("Entry '%s': URL may not be appropriate for NSF proposal: %s", e.Key, e.URL))
		}
	}
	return issues
}

func entryValue(e types.BibEntry, field string) string {
	switch field {
	case "title":
		return e.Title
	case "authors":
		return strings.Join(e.Authors, " and ")
	case "journal":
		return e.Journal
	case "year":
		return e.Year
	}
	return e.Field(field)
}

// ExportUsed writes the entries for keys to path as BibTeX, sorted by key.
// Keys absent from the bibliography are returned.
func (m *Manager) ExportUsed(keys []string, path string) ([]string, error) {
	uniq := make(map[string]bool, len(keys))
	for _, k := range keys {
		uniq[k] = true
	}
	sorted := make([]string, 0, len(uniq))
	for k := range uniq {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var b strings.Builder
	var missing []string
	for _, k := range sorted {
		e, ok := m.entries[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(e.Raw)
	}

	if err := fileutil.WriteFileAtomic(path, []byte(b.String())); err != nil {
		return missing, fmt.Errorf("writing %s: %w", path, err)
	}
	return missing, nil
}

// Statistics summarises a loaded bibliography.
type Statistics struct {
	TotalEntries int            `json:"total_entries" yaml:"total_entries"`
	EntryTypes   map[string]int `json:"entry_types" yaml:"entry_types"`
	YearMin      int            `json:"year_min,omitempty" yaml:"year_min,omitempty"`
	YearMax      int            `json:"year_max,omitempty" yaml:"year_max,omitempty"`
	FilesLoaded  int            `json:"files_loaded" yaml:"files_loaded"`
}

// Statistics counts entries by type and finds the publication year range.
func (m *Manager) Statistics() Statistics {
	s := Statistics{
		TotalEntries: len(m.entries),
		EntryTypes:   make(map[string]int),
		FilesLoaded:  len(m.files),
	}
	for _, e := range m.entries {
		s.EntryTypes[e.EntryType]++
		y, err := strconv.Atoi(e.Year)
		if err != nil {
			continue
		}
		if s.YearMin == 0 || y < s.YearMin {
			s.YearMin = y
		}
		if y > s.YearMax {
			s.YearMax = y
		}
	}
	return s
}

// SampleBibliography is a starter .bib file covering the common entry types.
const SampleBibliography = `@article{sample_article_2024,
  title = {A Sample Research Article for NSF Proposals},
  author = {Smith, John and Doe, Jane},
  journal = {Journal of Sample Research},
  volume = {42},
  number = {1},
  pages = {1--15},
  year = {2024},
  doi = {10.1000/sample.doi},
  url = {https://doi.org/10.1000/sample.doi}
}

@book{sample_book_2023,
  title = {Foundations of Sample Research},
  author = {Brown, Alice},
  publisher = {Academic Press},
  year = {2023},
  isbn = {978-0-123456-78-9}
}

@inproceedings{sample_conference_2024,
  title = {Innovative Approaches in Sample Science},
  author = {Johnson, Bob and Wilson, Carol},
  booktitle = {Proceedings of the International Sample Conference},
  pages = {123--130},
  year = {2024},
  organization = {IEEE}
}

@misc{sample_software_2024,
  title = {SampleTool: An Open-Source Research Platform},
  author = {Taylor, David},
  year = {2024},
  url = {https://github.com/example/sampletool},
  note = {Version 2.1}
}
`

// WriteSample writes SampleBibliography to path unless the file exists.
// Reports whether the file was written.
func WriteSample(path string) (bool, error) {
	if fileutil.Exists(path) {
		return false, nil
	}
	if err := fileutil.WriteFileAtomic(path, []byte(SampleBibliography)); err != nil {
		return false, err
	}
	return true, nil
}
