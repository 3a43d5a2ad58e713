// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdf

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed templates/*
var templates embed.FS

// Template names.
const (
	TemplateOptimized = "optimized"
	TemplateStandard  = "standard"
)

// LaTeXTemplate returns the pandoc LaTeX template: the space-optimised one
// when optimize is set, else the standard one.
func LaTeXTemplate(optimize bool) string {
	name := TemplateStandard
	if optimize {
		name = TemplateOptimized
	}
	data, err := templates.ReadFile("templates/" + name + ".latex")
	if err != nil {
		panic(fmt.Sprintf("embedded template %s missing: %v", name, err))
	}
	return string(data)
}

var cssTemplate = template.Must(template.New("nsf.css.tmpl").Funcs(template.FuncMap{
	"inches": inches,
	"add":    func(a, b int) int { return a + b },
}).ParseFS(templates, "templates/nsf.css.tmpl"))

// CSS renders the stylesheet used by the chrome engine.
func CSS(cfg Config) (string, error) {
	var buf bytes.Buffer
	if err := cssTemplate.Execute(&buf, cfg); err != nil {
		return "", fmt.Errorf("rendering stylesheet: %w", err)
	}
	return buf.String(), nil
}

// WriteTemplates saves both LaTeX templates to dir for customisation and
// returns their paths.
func WriteTemplates(dir string) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	paths := make(map[string]string, 2)
	for name, optimize := range map[string]bool{TemplateOptimized: true, TemplateStandard: false} {
		p := filepath.Join(dir, "nsf_"+name+".latex")
		if err := os.WriteFile(p, []byte(LaTeXTemplate(optimize)), 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", p, err)
		}
		paths[name] = p
	}
	return paths, nil
}
