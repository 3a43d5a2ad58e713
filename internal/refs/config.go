// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package refs

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// ConfigFile is the project-level references configuration file name.
const ConfigFile = "references_config.yaml"

// Config is the references_config.yaml document. Unset keys keep the
// values from DefaultConfig.
type Config struct {
	Bibliography BibliographyConfig `yaml:"bibliography"`
	Validation   ValidationConfig   `yaml:"validation"`
	PDF          PDFConfig          `yaml:"pdf"`
	Output       OutputConfig       `yaml:"output"`
}

// BibliographyConfig locates .bib files and sets the citation style.
type BibliographyConfig struct {
	DefaultFilename string   `yaml:"default_filename"`
	SearchPaths     []string `yaml:"search_paths"`
	Style           Style    `yaml:"style"`
}

// ValidationConfig toggles citation and URL checks.
type ValidationConfig struct {
	Citations struct {
		RequireBibEntries bool     `yaml:"require_bib_entries"`
		WarnUnusedEntries bool     `yaml:"warn_unused_entries"`
		CheckSyntax       bool     `yaml:"check_syntax"`
		AllowedSections   []string `yaml:"allowed_sections,omitempty"`
	} `yaml:"citations"`
	URLs struct {
		MainDocument struct {
			ProhibitAllURLs       bool     `yaml:"prohibit_all_urls"`
			AllowedDomains        []string `yaml:"allowed_domains"`
			UnknownDomainSeverity string   `yaml:"unknown_domain_severity"`
		} `yaml:"main_document"`
		References struct {
			AllowAcademicURLs    bool     `yaml:"allow_academic_urls"`
			ProhibitCloudStorage bool     `yaml:"prohibit_cloud_storage"`
			ProhibitedDomains    []string `yaml:"prohibited_domains"`
		} `yaml:"references"`
	} `yaml:"urls"`
	Emails struct {
		ProhibitEverywhere bool     `yaml:"prohibit_everywhere"`
		ProhibitedSections []string `yaml:"prohibited_sections"`
	} `yaml:"emails"`
}

// PDFConfig controls how the references document is typeset.
type PDFConfig struct {
	SeparateReferences bool   `yaml:"separate_references"`
	PageBreakBefore    bool   `yaml:"page_break_before"`
	SectionTitle       string `yaml:"section_title"`
	Font               struct {
		Size        int     `yaml:"size"`
		Family      string  `yaml:"family"`
		LineSpacing float64 `yaml:"line_spacing"`
	} `yaml:"font"`
	Formatting struct {
		HangingIndent bool   `yaml:"hanging_indent"`
		EntrySpacing  string `yaml:"entry_spacing"`
		NumberFormat  string `yaml:"number_format"`
	} `yaml:"formatting"`
}

// OutputConfig names the files written by the references commands.
type OutputConfig struct {
	Filenames struct {
		BibliographyMarkdown string `yaml:"bibliography_markdown"`
		BibliographyJSON     string `yaml:"bibliography_json"`
		MainDocumentPDF      string `yaml:"main_document_pdf"`
		ReferencesPDF        string `yaml:"references_pdf"`
		CitationReport       string `yaml:"citation_report"`
		URLValidationReport  string `yaml:"url_validation_report"`
	} `yaml:"filenames"`
	Export struct {
		ExportUsedOnly    bool `yaml:"export_used_only"`
		IncludeStatistics bool `yaml:"include_statistics"`
		AutoValidate      bool `yaml:"auto_validate"`
	} `yaml:"export"`
}

// DefaultConfig returns the built-in references configuration.
func DefaultConfig() Config {
	var c Config
	c.Bibliography.DefaultFilename = "references.bib"
	c.Bibliography.SearchPaths = append([]string(nil), DefaultSearchPaths...)
	c.Bibliography.Style = DefaultStyle()

	v := &c.Validation
	v.Citations.RequireBibEntries = true
	v.Citations.WarnUnusedEntries = true
	v.Citations.CheckSyntax = true
	v.URLs.MainDocument.AllowedDomains = []string{".gov", ".edu", "nsf.gov", "doi.org"}
	v.URLs.MainDocument.UnknownDomainSeverity = "warning"
	v.URLs.References.AllowAcademicURLs = true
	v.URLs.References.ProhibitCloudStorage = true
	v.URLs.References.ProhibitedDomains = []string{
		"dropbox.com", "drive.google.com", "onedrive.com",
		"facebook.com", "twitter.com", "linkedin.com",
	}
	v.Emails.ProhibitEverywhere = true
	v.Emails.ProhibitedSections = []string{"project_description", "references", "biographical_sketch"}

	p := &c.PDF
	p.SeparateReferences = true
	p.PageBreakBefore = true
	p.SectionTitle = "References Cited"
	p.Font.Size = 9
	p.Font.Family = "inherit"
	p.Font.LineSpacing = 1.0
	p.Formatting.HangingIndent = true
	p.Formatting.EntrySpacing = "6pt"
	p.Formatting.NumberFormat = "[{number}]"

	o := &c.Output
	o.Filenames.BibliographyMarkdown = "references.md"
	o.Filenames.BibliographyJSON = "references.json"
	o.Filenames.MainDocumentPDF = "proposal.pdf"
	o.Filenames.ReferencesPDF = "references.pdf"
	o.Filenames.CitationReport = "citation_report.md"
	o.Filenames.URLValidationReport = "url_validation_report.md"
	o.Export.ExportUsedOnly = true
	o.Export.IncludeStatistics = true
	o.Export.AutoValidate = true
	return c
}

// LoadConfig reads path over the defaults. A missing file yields the
// defaults without error.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing %s: %w", path, err)
	}
	return c, nil
}

// Save writes the configuration as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling references config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
