// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package validate

import (
	"net/url"
	"regexp"
	"strings"
)

// ProhibitedDomains are hosts NSF reviewers must not be sent to: cloud
// storage, social media, personal blogs, and file sharing.
var ProhibitedDomains = []string{
	"dropbox.com", "drive.google.com", "onedrive.com", "icloud.com",
	"box.com", "mediafire.com", "mega.nz", "wetransfer.com",
	"facebook.com", "twitter.com", "linkedin.com", "instagram.com",
	"youtube.com", "tiktok.com", "snapchat.com",
	"wordpress.com", "blogger.com", "tumblr.com", "medium.com",
	"squarespace.com", "wix.com", "weebly.com",
	"fileshare.com", "4shared.com", "rapidshare.com",
}

// cloudDomains is the subset of ProhibitedDomains that still fails in a
// references section.
var cloudDomains = ProhibitedDomains[:8]

// AllowedDomains are government, academic, publisher, preprint, code, and
// data repository hosts. Entries starting with "." match any host under
// that suffix.
var AllowedDomains = []string{
	".gov", ".edu", ".org",
	"doi.org", "orcid.org", "researchgate.net",
	"springer.com", "springerlink.com", "elsevier.com", "sciencedirect.com",
	"nature.com", "science.org", "pnas.org",
	"ieee.org", "acm.org", "wiley.com", "tandfonline.com",
	"sage.com", "sagepub.com", "aps.org", "aip.org",
	"arxiv.org", "biorxiv.org", "medrxiv.org",
	"github.com", "gitlab.com", "bitbucket.org",
	"zenodo.org", "figshare.com", "dryad.org", "dataverse.org",
	"iso.org", "ansi.org",
}

var serviceNames = map[string]string{
	"dropbox.com":      "Dropbox",
	"drive.google.com": "Google Drive",
	"onedrive.com":     "OneDrive",
	"icloud.com":       "iCloud",
	"box.com":          "Box",
	"facebook.com":     "Facebook",
	"twitter.com":      "Twitter",
	"linkedin.com":     "LinkedIn",
	"youtube.com":      "YouTube",
	"wordpress.com":    "WordPress",
	"blogger.com":      "Blogger",
	"medium.com":       "Medium",
}

var personalPatterns = []struct {
	re      *regexp.Regexp
	message string
}{
	{regexp.MustCompile(`personal\.`), "Personal websites are discouraged"},
	{regexp.MustCompile(`~[a-zA-Z]`), "Personal user directories are discouraged"},
	{regexp.MustCompile(`\.blogspot\.`), "Blog platforms are discouraged"},
	{regexp.MustCompile(`sites\.google\.com`), "Personal Google Sites may be inappropriate"},
}

const (
	ruleProhibitedService = "PAPPG 24-1 II.C.2.d.i: Cloud storage and file-sharing services are prohibited."
	ruleProfessionalURL   = "PAPPG 24-1 II.C.2.d.i: URLs should link to professional, stable resources."
	ruleURLGeneral        = "PAPPG 24-1 II.C.2.d.i"
)

// URLClass is the verdict on one URL.
type URLClass struct {
	Allowed    bool
	Prohibited bool
	Service    string
	Suggestion string
	Rule       string
}

// ClassifyURL decides whether a URL is allowed, prohibited, or merely
// questionable. Prohibited services win over allowed domains.
func ClassifyURL(raw string) URLClass {
	host := hostOf(raw)
	if d, ok := matchDomain(host, ProhibitedDomains); ok {
		service := ServiceName(d)
		return URLClass{
			Prohibited: true,
			Service:    service,
			Suggestion: "Remove " + service + " link. Use institutional repositories for data/software sharing.",
			Rule:       ruleProhibitedService,
		}
	}
	if _, ok := matchDomain(host, AllowedDomains); ok {
		return URLClass{Allowed: true}
	}
	lower := strings.ToLower(raw)
	for _, p := range personalPatterns {
		if p.re.MatchString(lower) {
			return URLClass{
				Prohibited: true,
				Suggestion: p.message + ". Use institutional or professional websites.",
				Rule:       ruleProfessionalURL,
			}
		}
	}
	return URLClass{
		Suggestion: "Verify this URL is appropriate and stable for reviewers.",
		Rule:       ruleURLGeneral,
	}
}

// IsCloudStorage reports whether raw points at a cloud storage service.
func IsCloudStorage(raw string) bool {
	_, ok := matchDomain(hostOf(raw), cloudDomains)
	return ok
}

// ServiceName returns the display name of a prohibited domain.
func ServiceName(domain string) string {
	if name, ok := serviceNames[domain]; ok {
		return name
	}
	return "Unknown prohibited service"
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimRight(raw, ".,;:)]}'\""))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// matchDomain returns the first domain host equals or is a subdomain of.
func matchDomain(host string, domains []string) (string, bool) {
	if host == "" {
		return "", false
	}
	for _, d := range domains {
		if strings.HasPrefix(d, ".") {
			if strings.HasSuffix(host, d) {
				return d, true
			}
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return d, true
		}
	}
	return "", false
}
