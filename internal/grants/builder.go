// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package grants

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pdiddy/grant-engine/internal/export"
	"github.com/pdiddy/grant-engine/internal/fileutil"
	"github.com/pdiddy/grant-engine/internal/logging"
	"github.com/pdiddy/grant-engine/internal/textutil"
	"github.com/pdiddy/grant-engine/pkg/types"
)

// DataFile is the viewer data file written by BuildAll.
const DataFile = "grants_data.json"

var completionMarkers = []string{"[NEEDS TO BE COMPLETED]", "[TO BE COMPLETED]"}

// LimitError reports responses that exceed their character or word limits.
type LimitError struct {
	Violations []string
}

func (e *LimitError) Error() string {
	return "grant validation error: " + strings.Join(e.Violations, "; ")
}

// Exporter renders a response to DOCX and PDF.
type Exporter interface {
	Export(ctx context.Context, req export.Request) (*types.ExportFiles, error)
}

// Builder processes grants listed in a registry.
type Builder struct {
	// BaseDir resolves relative grant paths, normally the registry's directory.
	BaseDir string

	// Exporter handles needs_export questions. Nil disables exports.
	Exporter Exporter

	// CollectLimits records limit violations in Violations instead of
	// failing on the first over-limit response.
	CollectLimits bool

	// Violations accumulates limit messages when CollectLimits is set.
	Violations []string

	out io.Writer
}

// NewBuilder returns a Builder that reports progress to w.
func NewBuilder(baseDir string, exp Exporter, w io.Writer) *Builder {
	if w == nil {
		w = io.Discard
	}
	return &Builder{BaseDir: baseDir, Exporter: exp, out: w}
}

// ProcessSections measures every section's response file under basePath.
// Missing files are reported and skipped. An over-limit response fails the
// call with a *LimitError unless CollectLimits is set.
func (b *Builder) ProcessSections(ctx context.Context, grantID string, cfg types.GrantConfig, grantPath, basePath string, sections []types.QuestionSpec) (map[string]types.Response, error) {
	responses := make(map[string]types.Response, len(sections))
	for _, q := range sections {
		if q.File == "" {
			fmt.Fprintf(b.out, "  warning: section %s has no file\n", q.ID)
			continue
		}
		path := filepath.Join(basePath, q.File)
		raw, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			fmt.Fprintf(b.out, "  warning: %s not found\n", path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading response %s: %w", path, err)
		}
		markdown := string(raw)

		if q.Question != "" && strings.HasPrefix(strings.TrimSpace(markdown), "# "+q.Question) {
			fmt.Fprintf(b.out, "  warning: %s starts with the question text and it will be included in the response\n", filepath.Base(path))
			fmt.Fprintf(b.out, "    remove the H1 header: '# %s...'\n", textutil.Truncate(q.Question, 50, ""))
		}

		resp, violations := measure(q, markdown)
		if len(violations) > 0 {
			if !b.CollectLimits {
				return nil, &LimitError{Violations: violations}
			}
			b.Violations = append(b.Violations, violations...)
		}

		if rel, err := filepath.Rel(grantPath, path); err == nil {
			resp.File = filepath.ToSlash(rel)
		} else {
			resp.File = path
		}

		if q.NeedsExport && b.Exporter != nil {
			files, err := b.Exporter.Export(ctx, export.Request{
				GrantID:    grantID,
				GrantName:  cfg.Name,
				Foundation: cfg.Foundation,
				Key:        q.ID,
				Title:      q.Title,
				Question:   q.Question,
				Markdown:   markdown,
			})
			if err != nil {
				fmt.Fprintf(b.out, "  warning: export of %s failed: %v\n", q.ID, err)
			}
			resp.Exports = files
		}
		responses[q.ID] = resp
	}
	return responses, nil
}

// measure computes the plain-text counts of a response against q's limits.
func measure(q types.QuestionSpec, markdown string) (types.Response, []string) {
	plain := textutil.StripMarkdown(markdown)
	chars := textutil.CountChars(plain)
	words := len(strings.Fields(plain))

	resp := types.Response{
		Title:          q.Title,
		Question:       q.Question,
		PlainText:      plain,
		CharCount:      chars,
		CharPercentage: percentage(chars, q.CharLimit),
		WordCount:      words,
		WordPercentage: percentage(words, q.WordLimit),
	}
	if q.CharLimit > 0 {
		resp.CharLimit = &q.CharLimit
	}
	if q.WordLimit > 0 {
		resp.WordLimit = &q.WordLimit
	}

	var violations []string
	if q.CharLimit > 0 && chars > q.CharLimit {
		violations = append(violations, fmt.Sprintf("Response '%s' exceeds character limit: %d > %d", q.ID, chars, q.CharLimit))
	}
	if q.WordLimit > 0 && words > q.WordLimit {
		violations = append(violations, fmt.Sprintf("Response '%s' exceeds word limit: %d > %d", q.ID, words, q.WordLimit))
	}
	resp.OverLimit = len(violations) > 0

	for _, m := range completionMarkers {
		if strings.Contains(markdown, m) {
			resp.NeedsCompletion = true
			break
		}
	}

	resp.Status = types.ResponseComplete
	if resp.OverLimit || resp.NeedsCompletion {
		resp.Status = types.ResponseNeedsInput
	}
	return resp, violations
}

// percentage returns count/limit*100 rounded half to even at one decimal,
// 0 without a limit.
func percentage(count, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	pct := float64(count) / float64(limit) * 100
	return math.RoundToEven(pct*10) / 10
}

// ProcessGrant builds one grant's data. It returns nil when the grant
// directory does not exist.
func (b *Builder) ProcessGrant(ctx context.Context, id string, cfg types.GrantConfig) (*types.GrantData, error) {
	grantPath := cfg.Path
	if !filepath.IsAbs(grantPath) {
		grantPath = filepath.Join(b.BaseDir, grantPath)
	}
	if !fileutil.IsDir(grantPath) {
		fmt.Fprintf(b.out, "  warning: %s not found\n", grantPath)
		return nil, nil
	}

	meta, err := loadMetadata(filepath.Join(grantPath, "grant.yaml"))
	if err != nil {
		return nil, err
	}
	data := &types.GrantData{ID: id, Config: cfg, Metadata: meta}

	appPath := filepath.Join(grantPath, "application")
	reportsPath := filepath.Join(grantPath, "reports")
	if !fileutil.IsDir(appPath) && !fileutil.IsDir(reportsPath) {
		qpath := legacyQuestionsPath(grantPath, id)
		if qpath == "" {
			return nil, fmt.Errorf("grant %s: no questions file found in %s", id, grantPath)
		}
		qf, err := LoadQuestions(qpath)
		if err != nil {
			return nil, err
		}
		data.Responses, err = b.ProcessSections(ctx, id, cfg, grantPath, grantPath, qf.Sections)
		if err != nil {
			return nil, err
		}
		return data, nil
	}

	data.Responses = map[string]types.Response{}

	appQuestions := filepath.Join(appPath, "questions.yaml")
	if fileutil.Exists(appQuestions) {
		qf, err := LoadQuestions(appQuestions)
		if err != nil {
			return nil, err
		}
		resps, err := b.ProcessSections(ctx, id, cfg, grantPath, appPath, qf.Sections)
		if err != nil {
			return nil, err
		}
		data.Application = &types.ApplicationData{Metadata: qf.Metadata, Responses: resps}
		for key, r := range resps {
			r.Type = types.ResponseTypeApplication
			data.Responses["app_"+key] = r
		}
	}

	periods, err := reportPeriods(reportsPath)
	if err != nil {
		return nil, err
	}
	for _, period := range periods {
		dir := filepath.Join(reportsPath, period)
		qf, err := LoadQuestions(filepath.Join(dir, "questions.yaml"))
		if err != nil {
			return nil, err
		}
		resps, err := b.ProcessSections(ctx, id, cfg, grantPath, dir, qf.Sections)
		if err != nil {
			return nil, err
		}
		data.Reports = append(data.Reports, types.ReportData{Period: period, Metadata: qf.Metadata, Responses: resps})
		for key, r := range resps {
			r.Type = types.ResponseTypeReport
			r.ReportPeriod = period
			data.Responses["report_"+period+"_"+key] = r
		}
	}
	return data, nil
}

// legacyQuestionsPath returns the first existing questions file of the
// single-directory layout, or "".
func legacyQuestionsPath(grantPath, id string) string {
	for _, name := range []string{"questions.yaml", "nsf_config.yaml", id + "_questions.yaml"} {
		p := filepath.Join(grantPath, name)
		if fileutil.Exists(p) {
			return p
		}
	}
	return ""
}

// reportPeriods lists the sorted report directories that hold a
// questions.yaml.
func reportPeriods(reportsPath string) ([]string, error) {
	entries, err := os.ReadDir(reportsPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	var periods []string
	for _, e := range entries {
		if e.IsDir() && fileutil.Exists(filepath.Join(reportsPath, e.Name(), "questions.yaml")) {
			periods = append(periods, e.Name())
		}
	}
	sort.Strings(periods)
	return periods, nil
}

// BuildResult summarizes a BuildAll run.
type BuildResult struct {
	Processed  int
	Skipped    int
	Failed     int
	OutputPath string
	Grants     map[string]types.GrantData
}

// Total returns the number of grants in the registry.
func (r BuildResult) Total() int {
	return r.Processed + r.Skipped + r.Failed
}

// HasFailures reports whether any grant failed.
func (r BuildResult) HasFailures() bool {
	return r.Failed > 0
}

// BuildAll processes every grant in the registry, in id order, writes
// {outputDir}/grants_data.json, and prints a summary to w. A failing grant
// is reported and counted; the remaining grants are still built.
func BuildAll(ctx context.Context, registryPath, outputDir string, exp Exporter, w io.Writer) (BuildResult, error) {
	reg, err := LoadRegistry(registryPath)
	if err != nil {
		return BuildResult{}, err
	}
	b := NewBuilder(filepath.Dir(registryPath), exp, w)
	log := logging.FromContext(ctx)

	result := BuildResult{Grants: make(map[string]types.GrantData, len(reg.Grants))}
	fmt.Fprintln(w, "Processing grants...")
	for _, id := range sortedIDs(reg) {
		fmt.Fprintf(w, "\nprocessing: %s\n", id)
		data, err := b.ProcessGrant(ctx, id, reg.Grants[id])
		switch {
		case err != nil:
			fmt.Fprintf(w, "failed: %s: %v\n", id, err)
			log.Warn().Err(err).Str("grant", id).Msg("grant build failed")
			result.Failed++
		case data == nil:
			fmt.Fprintf(w, "skipped: %s (directory not found)\n", id)
			result.Skipped++
		default:
			result.Grants[id] = *data
			result.Processed++
			fmt.Fprintf(w, "  %d responses processed\n", len(data.Responses))
		}
	}

	payload, err := json.MarshalIndent(result.Grants, "", "  ")
	if err != nil {
		return result, fmt.Errorf("encoding grants data: %w", err)
	}
	result.OutputPath = filepath.Join(outputDir, DataFile)
	if err := fileutil.WriteFileAtomic(result.OutputPath, payload); err != nil {
		return result, fmt.Errorf("writing %s: %w", DataFile, err)
	}
	fmt.Fprintf(w, "\nGenerated %s\n", result.OutputPath)
	fmt.Fprintf(w, "Processed %d grants\n", result.Processed)

	printSummary(w, result.Grants)
	return result, nil
}

func printSummary(w io.Writer, grants map[string]types.GrantData) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\nGRANT SUMMARY\n%s\n", rule, rule)
	ids := make([]string, 0, len(grants))
	for id := range grants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		g := grants[id]
		fmt.Fprintf(w, "\n%s\n", g.Config.Name)
		fmt.Fprintf(w, "  Foundation: %s\n", g.Config.Foundation)
		fmt.Fprintf(w, "  Amount: $%s\n", FormatAmount(g.Config.AmountRequested))
		fmt.Fprintf(w, "  Status: %s\n", g.Config.Status)
		fmt.Fprintf(w, "  Responses: %d\n", len(g.Responses))
	}
}

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount formats a dollar amount with thousands separators. Whole
// amounts have no decimals.
func FormatAmount(v float64) string {
	if v == math.Trunc(v) {
		return amountPrinter.Sprintf("%d", int64(v))
	}
	return amountPrinter.Sprintf("%.2f", v)
}

// ValidateResult summarizes a ValidateAll run.
type ValidateResult struct {
	Grants     int
	Responses  int
	NeedsInput int
	Skipped    int
	Failed     int
	Violations []string
}

// Passed reports whether every grant loaded and no response exceeds a limit.
func (r ValidateResult) Passed() bool {
	return r.Failed == 0 && len(r.Violations) == 0
}

// ValidateAll checks every grant's responses against their limits without
// exporting or writing output. All violations are collected.
func ValidateAll(ctx context.Context, registryPath string, w io.Writer) (ValidateResult, error) {
	reg, err := LoadRegistry(registryPath)
	if err != nil {
		return ValidateResult{}, err
	}
	b := NewBuilder(filepath.Dir(registryPath), nil, w)
	b.CollectLimits = true

	var result ValidateResult
	for _, id := range sortedIDs(reg) {
		before := len(b.Violations)
		data, err := b.ProcessGrant(ctx, id, reg.Grants[id])
		switch {
		case err != nil:
			fmt.Fprintf(w, "failed: %s: %v\n", id, err)
			result.Failed++
			continue
		case data == nil:
			result.Skipped++
			continue
		}
		result.Grants++
		result.Responses += len(data.Responses)
		pending := 0
		for _, r := range data.Responses {
			if r.Status == types.ResponseNeedsInput {
				pending++
			}
		}
		result.NeedsInput += pending

		found := b.Violations[before:]
		if len(found) == 0 {
			fmt.Fprintf(w, "ok: %s (%d responses, %d need input)\n", id, len(data.Responses), pending)
			continue
		}
		fmt.Fprintf(w, "invalid: %s\n", id)
		for _, v := range found {
			fmt.Fprintf(w, "  - %s\n", v)
		}
	}
	result.Violations = b.Violations
	return result, nil
}

func sortedIDs(reg *types.Registry) []string {
	ids := make([]string, 0, len(reg.Grants))
	for id := range reg.Grants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
