// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"time"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/pdiddy/grant-engine/internal/fileutil"
)

// ErrBrowser is returned when headless Chrome cannot be started or driven.
var ErrBrowser = errors.New("headless browser failed")

// Renderer prints a complete HTML document to PDF bytes.
type Renderer interface {
	RenderPDF(ctx context.Context, htmlDoc string) ([]byte, error)
	Close() error
}

const (
	paperWidthInches  = 8.5
	paperHeightInches = 11
)

var mdConverter = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Footnote,
		highlighting.NewHighlighting(
			highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
		),
	),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// HTMLDocument converts Markdown to a standalone HTML page styled by cfg.
// references, when set, start on a new page in a smaller font.
func HTMLDocument(cfg Config, title, author, body, references string) (string, error) {
	css, err := CSS(cfg)
	if err != nil {
		return "", err
	}
	var code bytes.Buffer
	if err := chromahtml.New(chromahtml.WithClasses(true)).WriteCSS(&code, styles.Get("github")); err != nil {
		return "", fmt.Errorf("rendering code styles: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(title))
	fmt.Fprintf(&b, "<style>\n%s\n%s</style>\n</head>\n<body>\n", css, code.String())
	if title != "" {
		fmt.Fprintf(&b, "<div class=\"title\">%s</div>\n", html.EscapeString(title))
	}
	if author != "" {
		fmt.Fprintf(&b, "<div class=\"author\">%s</div>\n", html.EscapeString(author))
	}
	if err := mdConverter.Convert([]byte(body), &b); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	if references != "" {
		b.WriteString("<div class=\"references\" style=\"page-break-before: always;\">\n")
		if err := mdConverter.Convert([]byte(references), &b); err != nil {
			return "", fmt.Errorf("converting references: %w", err)
		}
		b.WriteString("</div>\n")
	}
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

func (g *Generator) chrome(ctx context.Context, main, references, output string, opts Options) error {
	doc, err := HTMLDocument(g.Config, opts.Title, opts.Author, main, references)
	if err != nil {
		return err
	}
	if g.renderer == nil {
		g.renderer = newRodRenderer(g.Config, GenerateTimeout)
	}
	data, err := g.renderer.RenderPDF(ctx, doc)
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(output, data); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	return nil
}

// rodRenderer prints pages with go-rod. The browser is launched on first
// use and reused until Close.
type rodRenderer struct {
	cfg     Config
	timeout time.Duration
	browser *rod.Browser
}

func newRodRenderer(cfg Config, timeout time.Duration) *rodRenderer {
	return &rodRenderer{cfg: cfg, timeout: timeout}
}

func (r *rodRenderer) connect() error {
	if r.browser != nil {
		return nil
	}
	l := launcher.New()
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" {
		l = l.NoSandbox(true)
	}
	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowser, err)
	}
	r.browser = rod.New().ControlURL(u)
	if err := r.browser.Connect(); err != nil {
		r.browser = nil
		return fmt.Errorf("%w: %v", ErrBrowser, err)
	}
	return nil
}

func (r *rodRenderer) Close() error {
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}

func (r *rodRenderer) RenderPDF(ctx context.Context, htmlDoc string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp("", "grant-engine-*.html")
	if err != nil {
		return nil, fmt.Errorf("creating page: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(htmlDoc); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing page: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("writing page: %w", err)
	}
	path, err := filepath.Abs(f.Name())
	if err != nil {
		return nil, err
	}

	if err := r.connect(); err != nil {
		return nil, err
	}
	page, err := r.browser.Page(proto.TargetCreateTarget{URL: "file://" + path})
	if err != nil {
		return nil, fmt.Errorf("%w: opening page: %v", ErrBrowser, err)
	}
	defer page.Close()

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: loading page: %v", ErrBrowser, err)
	}

	reader, err := page.PDF(&proto.PagePrintToPDF{
		PaperWidth:      floatPtr(paperWidthInches),
		PaperHeight:     floatPtr(paperHeightInches),
		MarginTop:       floatPtr(r.cfg.MarginTop),
		MarginBottom:    floatPtr(r.cfg.MarginBottom),
		MarginLeft:      floatPtr(r.cfg.MarginLeft),
		MarginRight:     floatPtr(r.cfg.MarginRight),
		PrintBackground: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: printing: %v", ErrBrowser, err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading PDF stream: %v", ErrBrowser, err)
	}
	return data, nil
}

func floatPtr(v float64) *float64 {
	return &v
}

// ChromePath returns the browser rod would use, if one is installed.
func ChromePath() (string, bool) {
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		return bin, fileutil.Exists(bin)
	}
	return launcher.LookPath()
}
