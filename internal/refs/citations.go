// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package refs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/grant-engine/internal/logging"
	"github.com/pdiddy/grant-engine/pkg/types"
)

var (
	// [@key], [@a; @b], [@key, p. 42]
	rePandocCite = regexp.MustCompile(`\[@([^\]]+)\]`)

	// [key], only when not followed by "(" (Markdown link).
	reBracketCite = regexp.MustCompile(`\[([a-zA-Z][a-zA-Z0-9_:-]*)\]`)

	// \cite{a,b}, \citep{a}, \citet{a}
	reLatexCite = regexp.MustCompile(`\\cite[pt]?\{([^}]+)\}`)

	rePageRef  = regexp.MustCompile(`\b(?:p\.?|pp\.?)\s*\d+(?:-\d+)?\b`)
	reValidKey = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_:-]*$`)
	reKeySplit = regexp.MustCompile(`[;,]`)
)

// citePatterns are applied in this order when scanning and renumbering.
var citePatterns = []*regexp.Regexp{rePandocCite, reBracketCite, reLatexCite}

// DocumentPatterns are the file globs scanned for citations.
var DocumentPatterns = []string{"*.md", "*.markdown", "*.txt"}

// ParseCitationKeys splits the inside of a citation into keys. "@" marks
// and page references ("p. 42", "pp. 10-15") are dropped.
func ParseCitationKeys(text string) []string {
	text = strings.ReplaceAll(text, "@", "")
	var keys []string
	for _, part := range reKeySplit.Split(text, -1) {
		part = strings.TrimSpace(rePageRef.ReplaceAllString(strings.TrimSpace(part), ""))
		if part == "" {
			continue
		}
		if reValidKey.MatchString(part) || !strings.ContainsAny(part, " \t\n") {
			keys = append(keys, part)
		}
	}
	return keys
}

// matchCitations returns the [start, end, groupStart, groupEnd] index
// quads of re in s, skipping bracket citations that open a Markdown link.
func matchCitations(re *regexp.Regexp, s string) [][]int {
	all := re.FindAllStringSubmatchIndex(s, -1)
	if re != reBracketCite {
		return all
	}
	out := all[:0]
	for _, m := range all {
		if m[1] < len(s) && s[m[1]] == '(' {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ExtractCitations finds every citation in content, line by line, in
// document order.
func ExtractCitations(content string) []types.Citation {
	var out []types.Citation
	offset := 0
	for i, line := range strings.Split(content, "\n") {
		var found []types.Citation
		for _, re := range citePatterns {
			for _, m := range matchCitations(re, line) {
				keys := ParseCitationKeys(line[m[2]:m[3]])
				if len(keys) == 0 {
					continue
				}
				found = append(found, types.Citation{
					Keys:  keys,
					Match: line[m[0]:m[1]],
					Line:  i + 1,
					Start: offset + m[0],
					End:   offset + m[1],
				})
			}
		}
		sort.SliceStable(found, func(a, b int) bool { return found[a].Start < found[b].Start })
		out = append(out, found...)
		offset += len(line) + 1
	}
	return out
}

// CitedKeys returns the distinct keys cited in content, in first-use order.
func CitedKeys(content string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, c := range ExtractCitations(content) {
		for _, k := range c.Keys {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// ExtractFromDir scans the documents directly inside dir (not recursive)
// and returns citations per file. Files without citations are omitted.
func ExtractFromDir(ctx context.Context, dir string) (map[string][]types.Citation, error) {
	log := logging.FromContext(ctx)
	byFile := make(map[string][]types.Citation)
	for _, pat := range DocumentPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pat))
		if err != nil {
			return nil, fmt.Errorf("globbing %s: %w", pat, err)
		}
		for _, f := range matches {
			info, err := os.Stat(f)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			data, err := os.ReadFile(f)
			if err != nil {
				log.Warn().Err(err).Str("file", f).Msg("skipping unreadable document")
				continue
			}
			if cites := ExtractCitations(string(data)); len(cites) > 0 {
				byFile[f] = cites
			}
		}
	}
	return byFile, nil
}

// CitationReport summarises the citations of a set of documents against
// a bibliography.
type CitationReport struct {
	TotalCitations  int                         `json:"total_citations"`
	UniqueCitations int                         `json:"unique_citations"`
	Keys            []string                    `json:"keys"`
	ByFile          map[string][]types.Citation `json:"by_file"`
	Missing         []string                    `json:"missing"`
	Unused          []string                    `json:"unused"`
	Duplicates      map[string]int              `json:"duplicates"`
}

// BuildReport computes totals, duplicates, and, when bibKeys is non-empty,
// the keys missing from or unused in the bibliography.
func BuildReport(byFile map[string][]types.Citation, bibKeys []string) CitationReport {
	counts := make(map[string]int)
	total := 0
	for _, cites := range byFile {
		for _, c := range cites {
			for _, k := range c.Keys {
				counts[k]++
				total++
			}
		}
	}

	r := CitationReport{
		TotalCitations:  total,
		UniqueCitations: len(counts),
		ByFile:          byFile,
		Duplicates:      make(map[string]int),
	}
	for k, n := range counts {
		r.Keys = append(r.Keys, k)
		if n > 1 {
			r.Duplicates[k] = n
		}
	}
	sort.Strings(r.Keys)

	if len(bibKeys) > 0 {
		inBib := make(map[string]bool, len(bibKeys))
		for _, k := range bibKeys {
			inBib[k] = true
			if counts[k] == 0 {
				r.Unused = append(r.Unused, k)
			}
		}
		for _, k := range r.Keys {
			if !inBib[k] {
				r.Missing = append(r.Missing, k)
			}
		}
		sort.Strings(r.Unused)
	}
	return r
}

// ReportForDir extracts citations from dir and builds a report.
func ReportForDir(ctx context.Context, dir string, bibKeys []string) (CitationReport, error) {
	byFile, err := ExtractFromDir(ctx, dir)
	if err != nil {
		return CitationReport{}, err
	}
	return BuildReport(byFile, bibKeys), nil
}

// RenumberCitations replaces citations with their position in order:
// "[3]" or "[1, 4]". Citations with no known key keep their original text.
func RenumberCitations(content string, order []string) string {
	num := make(map[string]int, len(order))
	for i, k := range order {
		num[k] = i + 1
	}

	for _, re := range citePatterns {
		var b strings.Builder
		last := 0
		for _, m := range matchCitations(re, content) {
			var nums []string
			for _, k := range ParseCitationKeys(content[m[2]:m[3]]) {
				if n, ok := num[k]; ok {
					nums = append(nums, strconv.Itoa(n))
				}
			}
			if len(nums) == 0 {
				continue
			}
			b.WriteString(content[last:m[0]])
			b.WriteString("[" + strings.Join(nums, ", ") + "]")
			last = m[1]
		}
		b.WriteString(content[last:])
		content = b.String()
	}
	return content
}

// ToLaTeXCitations rewrites pandoc citations as \cite{...} with the keys
// comma separated.
func ToLaTeXCitations(content string) string {
	return rePandocCite.ReplaceAllStringFunc(content, func(m string) string {
		inner := strings.ReplaceAll(rePandocCite.FindStringSubmatch(m)[1], "@", "")
		keys := strings.FieldsFunc(inner, func(r rune) bool { return r == ';' || r == ',' })
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
		return `\cite{` + strings.Join(keys, ",") + `}`
	})
}

var (
	reUnclosed  = regexp.MustCompile(`\[@[^\]]*$`)
	reLinkLike  = regexp.MustCompile(`\[[^@][^\]]*\]\([^)]*\)`)
	reAtKey     = regexp.MustCompile(`@[a-zA-Z0-9_:-]+`)
	emailPrefix = regexp.MustCompile(`[A-Za-z0-9._%+-]$`)
)

// CheckCitationSyntax reports malformed citations as "Line n: problem".
func CheckCitationSyntax(content string) []string {
	var issues []string
	for i, line := range strings.Split(content, "\n") {
		n := i + 1
		if reUnclosed.MatchString(line) {
			issues = append(issues, fmt.Sprintf("Line %d: Unclosed citation bracket", n))
		}
		if reLinkLike.MatchString(line) {
			issues = append(issues, fmt.Sprintf("Line %d: Possible markdown link mistaken for citation", n))
		}
		if hasBareAt(line) {
			issues = append(issues, fmt.Sprintf("Line %d: Bare @ symbol without brackets", n))
		}
	}
	return issues
}

// hasBareAt reports an @key outside square brackets that is not part of an
// email address.
func hasBareAt(line string) bool {
	for _, m := range reAtKey.FindAllStringIndex(line, -1) {
		before := line[:m[0]]
		if emailPrefix.MatchString(before) {
			continue
		}
		if strings.LastIndex(before, "[") > strings.LastIndex(before, "]") {
			continue
		}
		return true
	}
	return false
}
