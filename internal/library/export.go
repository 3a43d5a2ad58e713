// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/grant-engine/pkg/types"
)

// Export formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatCSL  = "csl"
)

const exportLimit = 100000

// ExportEntry is the serialised form of a library entry.
type ExportEntry struct {
	Key      string   `json:"key" yaml:"key"`
	Type     string   `json:"type" yaml:"type"`
	Title    string   `json:"title" yaml:"title"`
	Authors  []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year     string   `json:"year,omitempty" yaml:"year,omitempty"`
	Journal  string   `json:"journal,omitempty" yaml:"journal,omitempty"`
	DOI      string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	URL      string   `json:"url,omitempty" yaml:"url,omitempty"`
	Abstract string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Source   string   `json:"source" yaml:"source"`
}

// Export writes the entries matching opts to w. MaxResults is ignored.
func (s *Store) Export(ctx context.Context, format string, opts QueryOptions, w io.Writer) error {
	opts.MaxResults = exportLimit
	entries, err := s.Search(ctx, opts)
	if err != nil {
		return fmt.Errorf("querying for export: %w", err)
	}

	switch format {
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(exportEntries(entries))
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(exportEntries(entries))
	case FormatCSL:
		return FormatCSLYAML(entries, w)
	default:
		return fmt.Errorf("unknown export format: %s", format)
	}
}

func exportEntries(entries []types.BibEntry) []ExportEntry {
	out := make([]ExportEntry, len(entries))
	for i, e := range entries {
		out[i] = ExportEntry{
			Key:      e.Key,
			Type:     e.EntryType,
			Title:    e.Title,
			Authors:  e.Authors,
			Year:     e.Year,
			Journal:  e.Journal,
			DOI:      e.DOI,
			URL:      e.URL,
			Abstract: e.Field("abstract"),
			Source:   e.Source,
		}
	}
	return out
}

// CSLItem is a bibliographic entry in CSL-YAML form, consumable by pandoc
// --citeproc and reference managers.
type CSLItem struct {
	ID             string    `yaml:"id"`
	Type           string    `yaml:"type"`
	Title          string    `yaml:"title"`
	Author         []CSLName `yaml:"author,omitempty"`
	ContainerTitle string    `yaml:"container-title,omitempty"`
	Volume         string    `yaml:"volume,omitempty"`
	Page           string    `yaml:"page,omitempty"`
	Publisher      string    `yaml:"publisher,omitempty"`
	Abstract       string    `yaml:"abstract,omitempty"`
	Issued         *CSLDate  `yaml:"issued,omitempty"`
	DOI            string    `yaml:"DOI,omitempty"`
	URL            string    `yaml:"URL,omitempty"`
}

// CSLName is a person's name in CSL form.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate is a date in CSL date-parts form.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

var cslTypes = map[string]string{
	"article":       "article-journal",
	"book":          "book",
	"inbook":        "chapter",
	"incollection":  "chapter",
	"inproceedings": "paper-conference",
	"conference":    "paper-conference",
	"phdthesis":     "thesis",
	"mastersthesis": "thesis",
	"techreport":    "report",
	"online":        "webpage",
	"software":      "software",
}

// FormatCSLYAML writes entries as a CSL-YAML list to w.
func FormatCSLYAML(entries []types.BibEntry, w io.Writer) error {
	items := make([]CSLItem, len(entries))
	for i, e := range entries {
		items[i] = ToCSL(e)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

// ToCSL converts a BibTeX entry to CSL.
func ToCSL(e types.BibEntry) CSLItem {
	typ, ok := cslTypes[e.EntryType]
	if !ok {
		typ = "document"
	}
	item := CSLItem{
		ID:             e.Key,
		Type:           typ,
		Title:          e.Title,
		ContainerTitle: e.Journal,
		Volume:         e.Volume,
		Page:           strings.ReplaceAll(e.Pages, "--", "-"),
		Publisher:      e.Field("publisher"),
		Abstract:       e.Field("abstract"),
		DOI:            e.DOI,
		URL:            e.URL,
	}
	if item.ContainerTitle == "" {
		item.ContainerTitle = e.Field("booktitle")
	}
	for _, a := range e.Authors {
		item.Author = append(item.Author, parseAuthorName(a))
	}
	if y, err := strconv.Atoi(e.Year); err == nil {
		item.Issued = &CSLDate{DateParts: [][]int{{y}}}
	}
	return item
}

// parseAuthorName splits a BibTeX name into CSL family and given parts.
// "Last, First" splits on the comma; "First Last" splits on the last
// space. Single-token names use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	if family, given, ok := strings.Cut(name, ","); ok {
		return CSLName{Family: strings.TrimSpace(family), Given: strings.TrimSpace(given)}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{Given: name[:idx], Family: name[idx+1:]}
}
