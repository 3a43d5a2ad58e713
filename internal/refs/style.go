// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package refs

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/grant-engine/pkg/types"
)

// Style configures how bibliography entries are rendered.
type Style struct {
	// Type is "numeric" or "author-year".
	Type string `json:"type" yaml:"type"`

	// SortOrder is "alphabetical" or "order_cited".
	SortOrder string `json:"sort_order" yaml:"sort_order"`

	IncludeDOI  bool `json:"include_doi" yaml:"include_doi"`
	IncludeURLs bool `json:"include_urls" yaml:"include_urls"`
	MaxAuthors  int  `json:"max_authors" yaml:"max_authors"`

	// EtAlThreshold is the author count above which only the first author
	// is listed.
	EtAlThreshold int `json:"et_al_threshold" yaml:"et_al_threshold"`

	FontSize int `json:"font_size" yaml:"font_size"`
}

// DefaultStyle is the NSF numeric, alphabetical style.
func DefaultStyle() Style {
	return Style{
		Type:          "numeric",
		SortOrder:     "alphabetical",
		IncludeDOI:    true,
		IncludeURLs:   true,
		MaxAuthors:    10,
		EtAlThreshold: 10,
		FontSize:      9,
	}
}

// Formatter renders entries in a Style.
type Formatter struct {
	Style Style
}

// FormatEntry renders e. A positive number is prefixed as "[n]" in the
// numeric style.
func (f Formatter) FormatEntry(e types.BibEntry, number int) string {
	var parts []string
	if number > 0 && f.Style.Type == "numeric" {
		parts = append(parts, fmt.Sprintf("[%d]", number))
	}

	switch strings.ToLower(e.EntryType) {
	case "article":
		parts = f.article(parts, e)
	case "book":
		parts = f.book(parts, e)
	case "inproceedings":
		parts = f.conference(parts, e)
	case "misc", "online", "software":
		parts = f.misc(parts, e)
	default:
		parts = f.generic(parts, e)
	}
	return strings.Join(parts, " ")
}

func (f Formatter) article(parts []string, e types.BibEntry) []string {
	parts = append(parts, f.formatAuthors(e.Authors)+".")
	if e.Title != "" {
		parts = append(parts, fmt.Sprintf(`"%s."`, e.Title))
	}
	if e.Journal != "" {
		j := "*" + e.Journal + "*"
		if e.Volume != "" {
			j += " " + e.Volume
		}
		if e.Pages != "" {
			j += ", " + formatPages(e.Pages)
		}
		parts = append(parts, j)
	}
	if e.Year != "" {
		parts = append(parts, "("+e.Year+").")
	}
	return f.link(parts, e)
}

func (f Formatter) book(parts []string, e types.BibEntry) []string {
	parts = append(parts, f.formatAuthors(e.Authors)+".")
	if e.Title != "" {
		parts = append(parts, "*"+e.Title+".*")
	}
	parts = appendPublisher(parts, e.Field("publisher"), e.Year)
	return f.link(parts, e)
}

func (f Formatter) conference(parts []string, e types.BibEntry) []string {
	parts = append(parts, f.formatAuthors(e.Authors)+".")
	if e.Title != "" {
		parts = append(parts, fmt.Sprintf(`"%s."`, e.Title))
	}
	if bt := e.Field("booktitle"); bt != "" {
		c := "*" + bt + "*"
		if e.Pages != "" {
			c += ", " + formatPages(e.Pages)
		}
		parts = append(parts, c)
	}
	parts = appendPublisher(parts, e.Field("organization"), e.Year)
	return f.link(parts, e)
}

func (f Formatter) misc(parts []string, e types.BibEntry) []string {
	if a := f.formatAuthors(e.Authors); a != "" {
		parts = append(parts, a+".")
	}
	if e.Title != "" {
		parts = append(parts, fmt.Sprintf(`"%s."`, e.Title))
	}
	if note := e.Field("note"); note != "" {
		parts = append(parts, note+".")
	} else if hp := e.Field("howpublished"); hp != "" {
		parts = append(parts, hp+".")
	}
	if e.Year != "" {
		parts = append(parts, e.Year+".")
	}
	if e.URL != "" && f.Style.IncludeURLs {
		parts = append(parts, e.URL)
	}
	return parts
}

func (f Formatter) generic(parts []string, e types.BibEntry) []string {
	if a := f.formatAuthors(e.Authors); a != "" {
		parts = append(parts, a+".")
	}
	if e.Title != "" {
		parts = append(parts, fmt.Sprintf(`"%s."`, e.Title))
	}
	if e.Year != "" {
		parts = append(parts, e.Year+".")
	}
	return f.link(parts, e)
}

// link appends the DOI URL, or the plain URL when there is no DOI.
func (f Formatter) link(parts []string, e types.BibEntry) []string {
	switch {
	case e.DOI != "" && f.Style.IncludeDOI:
		return append(parts, "https://doi.org/"+e.DOI)
	case e.URL != "" && f.Style.IncludeURLs && e.DOI == "":
		return append(parts, e.URL)
	}
	return parts
}

func appendPublisher(parts []string, publisher, year string) []string {
	switch {
	case publisher != "" && year != "":
		return append(parts, publisher+", "+year+".")
	case year != "":
		return append(parts, year+".")
	case publisher != "":
		return append(parts, publisher+".")
	}
	return parts
}

func (f Formatter) formatAuthors(authors []string) string {
	switch n := len(authors); {
	case n == 0:
		return ""
	case n == 1:
		return FormatAuthorName(authors[0])
	case n == 2:
		return FormatAuthorName(authors[0]) + " and " + FormatAuthorName(authors[1])
	case n <= f.Style.EtAlThreshold:
		names := make([]string, n-1)
		for i, a := range authors[:n-1] {
			names[i] = FormatAuthorName(a)
		}
		return strings.Join(names, ", ") + ", and " + FormatAuthorName(authors[n-1])
	default:
		return FormatAuthorName(authors[0]) + " et al."
	}
}

// FormatAuthorName renders a name as "Last, First M.". Names already in
// "Last, First Middle" form have their middle names reduced to initials;
// "First Middle Last" names are reordered.
func FormatAuthorName(author string) string {
	if last, first, ok := strings.Cut(author, ","); ok {
		last = strings.TrimSpace(last)
		fields := strings.Fields(first)
		if len(fields) == 0 {
			return last
		}
		out := last + ", " + fields[0]
		for _, p := range fields[1:] {
			n := utf8.RuneCountInString(p)
			if n == 1 || (n == 2 && strings.HasSuffix(p, ".")) {
				out += " " + p
			} else {
				r, _ := utf8.DecodeRuneInString(p)
				out += " " + string(r) + "."
			}
		}
		return out
	}

	fields := strings.Fields(author)
	if len(fields) < 2 {
		return author
	}
	return fields[len(fields)-1] + ", " + strings.Join(fields[:len(fields)-1], " ")
}

var reSimpleRange = regexp.MustCompile(`^\d+-\d+$`)

// formatPages renders page ranges with an en dash.
func formatPages(pages string) string {
	if strings.Contains(pages, "--") {
		return strings.ReplaceAll(pages, "--", "–")
	}
	if reSimpleRange.MatchString(pages) {
		return strings.Replace(pages, "-", "–", 1)
	}
	return pages
}

// authorSortKey is the lowercased surname of the first author, or the
// lowercased key when the entry has no authors.
func authorSortKey(e types.BibEntry, key string) string {
	if len(e.Authors) == 0 {
		return strings.ToLower(key)
	}
	first := e.Authors[0]
	if last, _, ok := strings.Cut(first, ","); ok {
		return strings.ToLower(strings.TrimSpace(last))
	}
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return strings.ToLower(key)
	}
	return strings.ToLower(fields[len(fields)-1])
}
