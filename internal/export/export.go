// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export renders individual grant responses to DOCX and PDF with
// pandoc, LibreOffice, and xelatex.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/grant-engine/internal/logging"
	"github.com/pdiddy/grant-engine/internal/refs"
	"github.com/pdiddy/grant-engine/pkg/types"
)

// SofficeTimeout bounds the LibreOffice DOCX to PDF conversion.
var SofficeTimeout = 30 * time.Second

// ToolRunner runs an external tool in a working directory.
type ToolRunner interface {
	Run(ctx context.Context, tool, dir string, args ...string) ([]byte, error)
}

// Request describes one response to export.
type Request struct {
	GrantID    string
	GrantName  string
	Foundation string
	Key        string
	Title      string
	Question   string
	Markdown   string
}

// Exporter writes DOCX and PDF renditions of responses under Root/{grant_id}/.
type Exporter struct {
	// Root is the exports directory (e.g. "docs/exports").
	Root string

	runner ToolRunner
	out    io.Writer
}

// New returns an Exporter writing below root. Per-file failures are
// reported to w.
func New(runner ToolRunner, root string, w io.Writer) *Exporter {
	if w == nil {
		w = io.Discard
	}
	return &Exporter{Root: root, runner: runner, out: w}
}

// Document builds the Markdown document exported for a response.
func Document(req Request) string {
	return fmt.Sprintf("# %s\n**%s**\n\n---\n\n**Question:** %s\n\n---\n\n**Response:**\n\n%s\n",
		req.GrantName, req.Foundation, req.Question, req.Markdown)
}

// SafeKey turns a response key into a file stem.
func SafeKey(key string) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(key)
}

// Export writes the DOCX and PDF for req. Failures are reported per file and
// do not fail the call; the returned paths are relative to the parent of
// Root and list only files that were produced. It returns nil when nothing
// was produced.
func (e *Exporter) Export(ctx context.Context, req Request) (*types.ExportFiles, error) {
	dir := filepath.Join(e.Root, req.GrantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	stem := SafeKey(req.Key)
	doc := Document(req)
	log := logging.FromContext(ctx)

	var files types.ExportFiles
	if err := e.toDOCX(ctx, dir, stem+".docx", doc); err != nil {
		fmt.Fprintf(e.out, "  warning: failed to export DOCX for %s: %v\n", req.Key, err)
	} else {
		files.DOCX = e.rel(filepath.Join(dir, stem+".docx"))
	}
	if err := e.toPDF(ctx, dir, stem, doc); err != nil {
		fmt.Fprintf(e.out, "  warning: failed to export PDF for %s: %v\n", req.Key, err)
	} else {
		files.PDF = e.rel(filepath.Join(dir, stem+".pdf"))
	}

	log.Debug().Str("grant", req.GrantID).Str("key", req.Key).
		Str("docx", files.DOCX).Str("pdf", files.PDF).Msg("exported response")

	if files.DOCX == "" && files.PDF == "" {
		return nil, nil
	}
	return &files, nil
}

// DOCX converts a whole Markdown document to outPath with the same pandoc
// settings used for responses.
func (e *Exporter) DOCX(ctx context.Context, doc, outPath string) error {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	return e.toDOCX(ctx, dir, filepath.Base(outPath), doc)
}

// LaTeX converts a whole Markdown document to standalone LaTeX at outPath.
// Pandoc citations become \cite commands for a BibTeX toolchain.
func (e *Exporter) LaTeX(ctx context.Context, doc, outPath string) error {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	src, cleanup, err := writeTemp(dir, refs.ToLaTeXCitations(doc))
	if err != nil {
		return err
	}
	defer cleanup()

	_, err = e.runner.Run(ctx, "pandoc", dir, src,
		"-o", filepath.Base(outPath),
		"--from=markdown",
		"--to=latex",
		"--standalone",
	)
	if err != nil {
		return fmt.Errorf("pandoc LaTeX conversion failed: %w", err)
	}
	return nil
}

// toDOCX converts doc to dir/name with pandoc.
func (e *Exporter) toDOCX(ctx context.Context, dir, name, doc string) error {
	src, cleanup, err := writeTemp(dir, doc)
	if err != nil {
		return err
	}
	defer cleanup()

	_, err = e.runner.Run(ctx, "pandoc", dir, src,
		"-o", name,
		"--from=markdown",
		"--to=docx",
		"-V", "mainfont=Inter",
		"-V", "fontsize=9pt",
		"-V", "geometry:margin=0.75in",
	)
	if err != nil {
		return fmt.Errorf("pandoc DOCX conversion failed: %w", err)
	}
	return nil
}

// toPDF renders the DOCX through LibreOffice, which matches the DOCX layout
// more closely than LaTeX. xelatex is the fallback.
func (e *Exporter) toPDF(ctx context.Context, dir, stem, doc string) error {
	tempDOCX := stem + ".temp.docx"
	defer os.Remove(filepath.Join(dir, tempDOCX))

	err := e.toDOCX(ctx, dir, tempDOCX, doc)
	if err == nil {
		err = e.soffice(ctx, dir, tempDOCX, stem+".pdf")
	}
	if err == nil {
		return nil
	}
	logging.FromContext(ctx).Debug().Err(err).Msg("soffice conversion failed, falling back to xelatex")

	src, cleanup, werr := writeTemp(dir, doc)
	if werr != nil {
		return werr
	}
	defer cleanup()

	_, err = e.runner.Run(ctx, "pandoc", dir, src,
		"-o", stem+".pdf",
		"--from=markdown",
		"--pdf-engine=xelatex",
		"-V", "geometry:margin=1in",
	)
	if err != nil {
		return fmt.Errorf("PDF conversion failed: %w", err)
	}
	return nil
}

func (e *Exporter) soffice(ctx context.Context, dir, docx, pdf string) error {
	ctx, cancel := context.WithTimeout(ctx, SofficeTimeout)
	defer cancel()

	if _, err := e.runner.Run(ctx, "soffice", dir,
		"--headless", "--convert-to", "pdf", "--outdir", ".", docx); err != nil {
		return err
	}
	produced := filepath.Join(dir, strings.TrimSuffix(docx, ".docx")+".pdf")
	if _, err := os.Stat(produced); err != nil {
		return errors.New("soffice produced no output")
	}
	return os.Rename(produced, filepath.Join(dir, pdf))
}

// rel returns path relative to the parent of Root.
func (e *Exporter) rel(path string) string {
	rel, err := filepath.Rel(filepath.Dir(e.Root), path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// writeTemp writes doc to a temporary Markdown file in dir and returns its
// base name.
func writeTemp(dir, doc string) (string, func(), error) {
	f, err := os.CreateTemp(dir, ".export-*.md")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp file: %w", err)
	}
	name := f.Name()
	cleanup := func() { os.Remove(name) }
	if _, err := f.WriteString(doc); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing temp file: %w", err)
	}
	return filepath.Base(name), cleanup, nil
}
