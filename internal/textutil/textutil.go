// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package textutil measures and cleans Markdown text: plain-text extraction
// for character limits, word counts, headings, and page estimates.
package textutil

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultWordsPerPage is the single-spaced page estimate used for NSF text.
const DefaultWordsPerPage = 250

var (
	reFence      = regexp.MustCompile("(?s)```.*?```")
	reInlineCode = regexp.MustCompile("`([^`]+)`")
	reHeader     = regexp.MustCompile(`(?m)^#+[ \t]+`)
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reBullet     = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+`)
	reNumbered   = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+`)
	reBoldStar   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	reItalicStar = regexp.MustCompile(`\*([^*]+)\*`)
	reBoldUnder  = regexp.MustCompile(`__([^_]+)__`)
	reItalicUnd  = regexp.MustCompile(`_([^_]+)_`)
	reQuote      = regexp.MustCompile(`(?m)^>[ \t]?`)
	reBlankRuns  = regexp.MustCompile(`\n{3,}`)

	reMarkupChars = regexp.MustCompile("[*_`#]")
	reHTMLTag     = regexp.MustCompile(`<[^>]+>`)
	reHeading     = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+)$`)
	reWord        = regexp.MustCompile(`\w+`)
)

// StripMarkdown returns the plain text a reader sees once Markdown markup
// is removed. Fenced code blocks are dropped; inline code keeps its text.
func StripMarkdown(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = reFence.ReplaceAllString(text, "")
	text = reInlineCode.ReplaceAllString(text, "$1")
	text = reHeader.ReplaceAllString(text, "")
	text = reLink.ReplaceAllString(text, "$1")
	text = reBullet.ReplaceAllString(text, "")
	text = reNumbered.ReplaceAllString(text, "")
	text = reBoldStar.ReplaceAllString(text, "$1")
	text = reItalicStar.ReplaceAllString(text, "$1")
	text = reBoldUnder.ReplaceAllString(text, "$1")
	text = reItalicUnd.ReplaceAllString(text, "$1")
	text = reQuote.ReplaceAllString(text, "")
	text = reBlankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// CountChars returns the number of characters (runes) in text.
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// CountWords counts the words that survive in the rendered document: link
// targets, emphasis and heading markers, and HTML tags are ignored.
func CountWords(text string) int {
	if text == "" {
		return 0
	}
	clean := reLink.ReplaceAllString(text, "$1")
	clean = reMarkupChars.ReplaceAllString(clean, "")
	clean = reHTMLTag.ReplaceAllString(clean, "")
	return len(strings.Fields(clean))
}

// Heading is one ATX heading found in a Markdown document.
type Heading struct {
	Level int
	Text  string
	Line  int
}

// ExtractHeadings returns the ATX headings of text in document order.
func ExtractHeadings(text string) []Heading {
	var out []Heading
	for _, m := range reHeading.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, Heading{
			Level: m[3] - m[2],
			Text:  strings.TrimSpace(text[m[4]:m[5]]),
			Line:  strings.Count(text[:m[0]], "\n") + 1,
		})
	}
	return out
}

// EstimatePages converts a word count to pages, rounding up, never below 1.
// A non-positive wordsPerPage uses DefaultWordsPerPage.
func EstimatePages(words, wordsPerPage int) int {
	if wordsPerPage <= 0 {
		wordsPerPage = DefaultWordsPerPage
	}
	pages := (words + wordsPerPage - 1) / wordsPerPage
	if pages < 1 {
		return 1
	}
	return pages
}

// TruncateWords keeps the first maxWords words of text and appends "...".
// Text within the limit is returned unchanged.
func TruncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

// Truncate shortens text to at most max runes including suffix.
func Truncate(text string, max int, suffix string) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	r := []rune(text)
	keep := max - utf8.RuneCountInString(suffix)
	if keep < 0 {
		keep = 0
	}
	return string(r[:keep]) + suffix
}

var placeholders = []string{"lorem ipsum", "placeholder", "todo", "tbd", "xxx"}

// ValidateContent returns human-readable problems with a block of prose:
// empty or very short text, leftover placeholders, and words repeated
// often enough to suggest a copy-paste error.
func ValidateContent(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{"Content is empty"}
	}

	var issues []string
	if len(text) < 50 {
		issues = append(issues, "Content appears very short")
	}

	lower := strings.ToLower(text)
	for _, p := range placeholders {
		if strings.Contains(lower, p) {
			issues = append(issues, fmt.Sprintf("Placeholder text found: '%s'", p))
		}
	}

	words := reWord.FindAllString(lower, -1)
	counts := make(map[string]int)
	for _, w := range words {
		if utf8.RuneCountInString(w) > 3 {
			counts[w]++
		}
	}
	threshold := float64(len(words)) * 0.02
	if threshold < 3 {
		threshold = 3
	}
	var repeated []string
	for w, n := range counts {
		if float64(n) > threshold {
			repeated = append(repeated, w)
		}
	}
	sort.Strings(repeated)
	for _, w := range repeated {
		issues = append(issues, fmt.Sprintf("Word '%s' appears %d times (may be excessive)", w, counts[w]))
	}
	return issues
}
