// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// BibEntry is one parsed BibTeX record with LaTeX markup removed from its
// display fields.
type BibEntry struct {
	// Key is the citation key (e.g. "smith2023").
	Key string `json:"key" yaml:"key"`

	// EntryType is the lowercased BibTeX type (article, book, misc, ...).
	EntryType string `json:"entry_type" yaml:"entry_type"`

	Title   string   `json:"title" yaml:"title"`
	Authors []string `json:"authors" yaml:"authors"`
	Year    string   `json:"year,omitempty" yaml:"year,omitempty"`
	Journal string   `json:"journal,omitempty" yaml:"journal,omitempty"`
	Volume  string   `json:"volume,omitempty" yaml:"volume,omitempty"`
	Pages   string   `json:"pages,omitempty" yaml:"pages,omitempty"`
	DOI     string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	URL     string   `json:"url,omitempty" yaml:"url,omitempty"`

	// Fields holds every field of the record, lowercased names, cleaned values.
	Fields map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`

	// Raw is the record re-serialised as BibTeX.
	Raw string `json:"raw,omitempty" yaml:"raw,omitempty"`

	// Source is the .bib file the entry was loaded from.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// Field returns a named field, or "" when absent.
func (e BibEntry) Field(name string) string {
	if e.Fields == nil {
		return ""
	}
	return e.Fields[name]
}

// Citation is one citation found in a Markdown document.
type Citation struct {
	// Keys lists the citation keys in the order they appear in the citation.
	Keys []string `json:"keys" yaml:"keys"`

	// Match is the literal text that was matched (e.g. "[@a; @b]").
	Match string `json:"match" yaml:"match"`

	// Line is the 1-based line number of the match.
	Line int `json:"line" yaml:"line"`

	// Start and End are byte offsets of the match in the document.
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}
