// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdf

import (
	"context"
	"fmt"
	"io"

	"github.com/pdiddy/grant-engine/internal/container"
	"github.com/pdiddy/grant-engine/internal/output"
)

// Dependency is one external component PDF generation can use.
type Dependency struct {
	Name     string             `json:"name"`
	Purpose  string             `json:"purpose"`
	Location container.Location `json:"location"`
	Version  string             `json:"version,omitempty"`
}

// Available reports whether the dependency can be used.
func (d Dependency) Available() bool {
	return d.Location != container.LocationNone
}

// CapabilityReport summarizes what PDF operations can run here.
type CapabilityReport struct {
	CanGenerate     bool         `json:"can_generate_pdf"`
	PreferredEngine string       `json:"preferred_engine,omitempty"`
	CanCountPages   bool         `json:"can_count_pages"`
	Dependencies    []Dependency `json:"dependencies"`
	Recommendations []string     `json:"recommendations,omitempty"`
}

var toolPurposes = []struct{ name, purpose string }{
	{"pandoc", "Markdown to LaTeX conversion (preferred)"},
	{"xelatex", "LaTeX to PDF compilation (best quality)"},
	{"soffice", "DOCX to PDF conversion for grant exports"},
	{"pdfinfo", "Page counting fallback"},
}

// Capabilities probes pandoc, xelatex, soffice, pdfinfo and headless Chrome.
// Page counting is always available through pdfcpu.
func (g *Generator) Capabilities(ctx context.Context) CapabilityReport {
	rep := CapabilityReport{CanCountPages: true}
	found := make(map[string]bool)
	for _, t := range toolPurposes {
		d := Dependency{Name: t.name, Purpose: t.purpose, Location: container.LocationNone}
		if g.runner != nil {
			d.Location = g.runner.Locate(t.name)
		}
		if d.Available() {
			if v, err := g.runner.Version(ctx, t.name); err == nil {
				d.Version = v
			}
		}
		found[t.name] = d.Available()
		rep.Dependencies = append(rep.Dependencies, d)
	}

	chrome := Dependency{Name: "chrome", Purpose: "HTML to PDF conversion (fallback)", Location: container.LocationNone}
	if path, ok := g.lookChrome(); ok {
		chrome.Location = container.LocationLocal
		chrome.Version = path
	}
	rep.Dependencies = append(rep.Dependencies, chrome)
	rep.Dependencies = append(rep.Dependencies, Dependency{
		Name: "pdfcpu", Purpose: "PDF validation and page counting", Location: container.LocationLocal, Version: "built in",
	})

	pandoc := found["pandoc"] && found["xelatex"]
	rep.CanGenerate = pandoc || chrome.Available()
	switch {
	case pandoc:
		rep.PreferredEngine = EnginePandoc
	case chrome.Available():
		rep.PreferredEngine = EngineChrome
	}

	if !found["pandoc"] {
		rep.Recommendations = append(rep.Recommendations, "Install pandoc for best PDF quality")
	}
	if !found["xelatex"] {
		rep.Recommendations = append(rep.Recommendations, "Install XeLaTeX (texlive) for pandoc PDF generation")
	}
	if !chrome.Available() {
		rep.Recommendations = append(rep.Recommendations, "Install Chrome or Chromium, or set ROD_BROWSER_BIN, for the fallback engine")
	}
	return rep
}

func (g *Generator) lookChrome() (string, bool) {
	if g.findChrome != nil {
		return g.findChrome()
	}
	return ChromePath()
}

// Write prints the report with a dependency table.
func (r CapabilityReport) Write(w io.Writer) error {
	if r.CanGenerate {
		fmt.Fprintln(w, "PDF generation is available")
		fmt.Fprintf(w, "Preferred engine: %s\n\n", r.PreferredEngine)
	} else {
		fmt.Fprintln(w, "PDF generation is not available")
		fmt.Fprintln(w)
	}

	rows := make([][]string, 0, len(r.Dependencies))
	for _, d := range r.Dependencies {
		status := string(d.Location)
		if !d.Available() {
			status = "missing"
		}
		rows = append(rows, []string{d.Name, status, d.Version, d.Purpose})
	}
	if err := output.RenderTable(w, output.Data{Headers: []string{"Component", "Status", "Version", "Purpose"}, Rows: rows}); err != nil {
		return err
	}
	writeList(w, "Recommendations", r.Recommendations)

	if !r.CanGenerate {
		fmt.Fprintln(w, "\nInstallation:")
		fmt.Fprintln(w, "  • pandoc:  brew install pandoc | apt-get install pandoc")
		fmt.Fprintln(w, "  • xelatex: brew install --cask mactex | apt-get install texlive-xetex")
		fmt.Fprintln(w, "  • or install docker/podman to run the "+container.DefaultImage+" image")
	}
	return nil
}
