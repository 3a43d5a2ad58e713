// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire resolves DOIs and arXiv identifiers to BibTeX records
// and adds them to a project bibliography.
package acquire

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// IdentifierType classifies an input identifier.
type IdentifierType int

const (
	TypeUnknown IdentifierType = iota
	TypeArxiv
	TypeDOI
	TypeURL
)

func (t IdentifierType) String() string {
	switch t {
	case TypeArxiv:
		return "arxiv"
	case TypeDOI:
		return "doi"
	case TypeURL:
		return "url"
	default:
		return "unknown"
	}
}

// doiBase is a var so tests can substitute an httptest server.
var doiBase = "https://doi.org/"

// arxivDOIPrefix is the DataCite prefix arXiv registers its DOIs under.
const arxivDOIPrefix = "10.48550/arXiv."

// arxivPattern matches "2301.07041", "arXiv:2301.07041", "2301.07041v2".
var arxivPattern = regexp.MustCompile(`^(?i:arXiv:)?(\d{4}\.\d{4,5})(?:v\d+)?$`)

// doiPattern matches "10.1145/1234567.1234568".
var doiPattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

// Classify determines the identifier type and returns the normalized form.
// arXiv ids lose their prefix and version; DOIs lose a "doi:" prefix or a
// doi.org URL; arXiv abs and pdf URLs become arXiv ids.
func Classify(identifier string) (IdentifierType, string) {
	identifier = strings.TrimSpace(identifier)

	if m := arxivPattern.FindStringSubmatch(identifier); m != nil {
		return TypeArxiv, m[1]
	}
	if rest, ok := cutPrefixFold(identifier, "doi:"); ok {
		identifier = strings.TrimSpace(rest)
	}
	if doiPattern.MatchString(identifier) {
		return TypeDOI, identifier
	}

	u, err := url.Parse(identifier)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return TypeUnknown, identifier
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimPrefix(u.Path, "/")
	switch host {
	case "doi.org", "dx.doi.org":
		if doiPattern.MatchString(path) {
			return TypeDOI, path
		}
	case "arxiv.org":
		for _, p := range []string{"abs/", "pdf/"} {
			if id, ok := strings.CutPrefix(path, p); ok {
				if m := arxivPattern.FindStringSubmatch(strings.TrimSuffix(id, ".pdf")); m != nil {
					return TypeArxiv, m[1]
				}
			}
		}
	}
	return TypeURL, identifier
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

// DOI returns the DOI for a classified identifier. arXiv ids map to their
// DataCite DOI; plain URLs have none.
func DOI(idType IdentifierType, normalized string) (string, error) {
	switch idType {
	case TypeDOI:
		return normalized, nil
	case TypeArxiv:
		return arxivDOIPrefix + normalized, nil
	case TypeURL:
		return "", fmt.Errorf("no DOI for URL %q: cite it with a @misc entry", normalized)
	default:
		return "", fmt.Errorf("unrecognized identifier format: %q", normalized)
	}
}
