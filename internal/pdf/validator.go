// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/pdiddy/grant-engine/internal/logging"
	"github.com/pdiddy/grant-engine/internal/output"
	"github.com/pdiddy/grant-engine/internal/programs"
)

const pappgURL = "https://www.nsf.gov/pubs/policydocs/pappguide/nsf24001/index.jsp"

// Validation is the result of checking a PDF against program limits.
type Validation struct {
	Path       string   `json:"path"`
	Valid      bool     `json:"valid"`
	PageCount  int      `json:"page_count"`
	PageLimit  int      `json:"page_limit,omitempty"`
	FileSizeMB float64  `json:"file_size_mb"`
	MaxSizeMB  float64  `json:"max_file_size_mb"`
	Issues     []string `json:"issues,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Validator counts pages and checks size limits.
type Validator struct {
	// WarnThreshold is the fraction of the page limit that triggers a
	// warning. File size warns at 80% of the limit.
	WarnThreshold float64

	runner ToolRunner

	// pageCount reads the page count natively; pdfinfo is the fallback.
	pageCount func(path string) (int, error)
}

// NewValidator returns a Validator that counts pages with pdfcpu and falls
// back to pdfinfo through runner. runner may be nil.
func NewValidator(runner ToolRunner) *Validator {
	return &Validator{WarnThreshold: 0.9, runner: runner, pageCount: api.PageCountFile}
}

// CountPages returns the number of pages in the PDF at path.
func (v *Validator) CountPages(ctx context.Context, path string) (int, error) {
	n, err := v.pageCount(path)
	if err == nil {
		return n, nil
	}
	logging.FromContext(ctx).Debug().Err(err).Str("path", path).Msg("native page count failed, trying pdfinfo")
	if v.runner == nil {
		return 0, fmt.Errorf("counting pages in %s: %w", path, err)
	}

	out, rerr := v.runner.Run(ctx, "pdfinfo", filepath.Dir(path), filepath.Base(path))
	if rerr != nil {
		return 0, fmt.Errorf("counting pages in %s: %w", path, rerr)
	}
	return parsePdfinfoPages(string(out))
}

func parsePdfinfoPages(out string) (int, error) {
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "Pages:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil {
				return 0, fmt.Errorf("parsing pdfinfo page count: %w", err)
			}
			return n, nil
		}
	}
	return 0, errors.New("pdfinfo output has no page count")
}

// Validate checks the PDF at path against limits. A PageLimit of 0 skips
// the page check; a MaxFileSizeMB of 0 uses DefaultMaxFileSizeMB.
func (v *Validator) Validate(ctx context.Context, path string, limits ProgramLimits) Validation {
	res := Validation{Path: path, PageLimit: limits.PageLimit, MaxSizeMB: limits.MaxFileSizeMB}
	if res.MaxSizeMB <= 0 {
		res.MaxSizeMB = DefaultMaxFileSizeMB
	}

	info, err := os.Stat(path)
	if err != nil {
		res.Issues = append(res.Issues, "PDF file not found: "+path)
		return res
	}
	res.FileSizeMB = float64(info.Size()) / (1024 * 1024)

	n, err := v.CountPages(ctx, path)
	if err != nil {
		res.Issues = append(res.Issues, fmt.Sprintf("Could not read PDF properly: %v", err))
	}
	res.PageCount = n

	threshold := v.WarnThreshold
	if threshold <= 0 {
		threshold = 0.9
	}
	if limit := limits.PageLimit; limit > 0 {
		switch {
		case n > limit:
			res.Issues = append(res.Issues, pageLimitIssue(n, limit)...)
		case float64(n) > float64(limit)*threshold:
			res.Warnings = append(res.Warnings, fmt.Sprintf(warningPrefix+"Page count (%d) approaching limit (%d)", n, limit))
		}
	}

	switch size := res.MaxSizeMB; {
	case res.FileSizeMB > size:
		res.Issues = append(res.Issues,
			fmt.Sprintf(programs.ErrorPrefix+"File size violation: %.1fMB exceeds limit of %gMB", res.FileSizeMB, size),
			fmt.Sprintf("   NSF Rule: PAPPG 24-1 II.C.1 requires PDF files ≤%gMB", size),
			"   See: "+pappgURL)
	case res.FileSizeMB > size*0.8:
		res.Warnings = append(res.Warnings, fmt.Sprintf(warningPrefix+"File size (%.1fMB) approaching limit (%gMB)", res.FileSizeMB, size))
	}

	res.Valid = len(res.Issues) == 0
	return res
}

func pageLimitIssue(pages, limit int) []string {
	if rules, err := programs.NSFRules(); err == nil {
		msg := rules.FormatMessage("page_limit", map[string]string{
			"pages": strconv.Itoa(pages),
			"limit": strconv.Itoa(limit),
		})
		return strings.Split(msg, "\n")
	}
	return []string{fmt.Sprintf(programs.ErrorPrefix+"Page count violation: %d pages exceeds limit of %d", pages, limit)}
}

// Brief renders the one- or two-line page report.
func (r Validation) Brief() string {
	if r.PageLimit <= 0 {
		return fmt.Sprintf("Pages: %d (no limit configured)\n", r.PageCount)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Pages: %d/%d\n", r.PageCount, r.PageLimit)
	switch {
	case r.PageCount > r.PageLimit:
		fmt.Fprintf(&b, "Exceeds limit by %d pages\n", r.PageCount-r.PageLimit)
	case float64(r.PageCount) > float64(r.PageLimit)*0.9:
		fmt.Fprintf(&b, "Close to limit (%d pages remaining)\n", r.PageLimit-r.PageCount)
	}
	return b.String()
}

// Detailed writes a property table followed by the issues and warnings.
func (r Validation) Detailed(w io.Writer) error {
	compliant := "Yes"
	if !r.Valid {
		compliant = "No"
	}
	rows := [][]string{
		{"File", filepath.Base(r.Path)},
		{"Page Count", strconv.Itoa(r.PageCount)},
		{"File Size", fmt.Sprintf("%.1f MB", r.FileSizeMB)},
	}
	if r.PageLimit > 0 {
		rows = append(rows,
			[]string{"Page Limit", strconv.Itoa(r.PageLimit)},
			[]string{"Pages Remaining", strconv.Itoa(r.PageLimit - r.PageCount)})
	}
	rows = append(rows, []string{"NSF Compliant", compliant})

	if err := output.RenderTable(w, output.Data{Headers: []string{"Property", "Value"}, Rows: rows}); err != nil {
		return err
	}
	writeList(w, "Issues", r.Issues)
	writeList(w, "Warnings", r.Warnings)
	return nil
}

func writeList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, i := range items {
		fmt.Fprintf(w, "  • %s\n", i)
	}
}
