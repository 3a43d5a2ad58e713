// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package refs

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// accents maps LaTeX accent commands to Unicode combining marks.
var accents = map[byte]string{
	'`':  "\u0300",
	'\'': "\u0301",
	'^':  "\u0302",
	'~':  "\u0303",
	'=':  "\u0304",
	'.':  "\u0307",
	'"':  "\u0308",
	'H':  "\u030B",
	'c':  "\u0327",
	'v':  "\u030C",
	'u':  "\u0306",
	'k':  "\u0328",
}

var (
	// \"{o}, \"o, {\"o}
	reSymbolAccent = regexp.MustCompile(`\\([` + "`" + `'^~=."])\{?([A-Za-z])\}?`)

	// \c{c}, \v s
	reLetterAccent = regexp.MustCompile(`\\([Hcvuk])(?:\{([A-Za-z])\}|\s+([A-Za-z]))`)

	// \emph{x}, \textbf{x}, \url{x}
	reTextCmd = regexp.MustCompile(`\\(?:emph|textbf|textit|texttt|textsc|textrm|url|mbox)\s*\{([^{}]*)\}`)

	escapes  = strings.NewReplacer(`\&`, "&", `\%`, "%", `\$`, "$", `\_`, "_", `\#`, "#")
	reBraces = regexp.MustCompile(`[{}]`)
	reSpaces = regexp.MustCompile(`\s+`)
)

// CleanLaTeX converts the LaTeX markup common in BibTeX fields into plain
// Unicode text: accents are composed, text commands unwrapped, escapes
// resolved, and grouping braces removed.
func CleanLaTeX(s string) string {
	if s == "" {
		return s
	}
	for reTextCmd.MatchString(s) {
		s = reTextCmd.ReplaceAllString(s, "$1")
	}
	s = reSymbolAccent.ReplaceAllStringFunc(s, func(m string) string {
		sub := reSymbolAccent.FindStringSubmatch(m)
		return sub[2] + accents[sub[1][0]]
	})
	s = reLetterAccent.ReplaceAllStringFunc(s, func(m string) string {
		sub := reLetterAccent.FindStringSubmatch(m)
		return sub[2] + sub[3] + accents[sub[1][0]]
	})
	s = escapes.Replace(s)
	s = strings.ReplaceAll(s, "~", " ")
	s = reBraces.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(norm.NFC.String(s))
}

// ParseAuthors splits a BibTeX author field on " and " and normalises
// whitespace in each name.
func ParseAuthors(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	clean := CleanLaTeX(raw)
	var out []string
	for _, a := range strings.Split(clean, " and ") {
		a = strings.Join(strings.Fields(a), " ")
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}
