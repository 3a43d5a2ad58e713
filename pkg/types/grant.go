// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the data records shared across grant-engine stages.
package types

// GrantConfig describes one grant in grant_registry.yaml.
type GrantConfig struct {
	// Path is the grant directory, relative to the registry's working directory.
	Path string `json:"path" yaml:"path"`

	// Name is the display name of the grant application.
	Name string `json:"name" yaml:"name"`

	// Foundation is the funder (e.g. "National Science Foundation").
	Foundation string `json:"foundation" yaml:"foundation"`

	// AmountRequested is the requested award in dollars.
	AmountRequested float64 `json:"amount_requested" yaml:"amount_requested"`

	// Status is the application state (e.g. "draft", "submitted", "awarded").
	Status string `json:"status" yaml:"status"`
}

// Registry is the top-level grant_registry.yaml document.
type Registry struct {
	// Grants maps a grant ID to its configuration.
	Grants map[string]GrantConfig `json:"grants" yaml:"grants"`
}

// QuestionSpec describes one question of an application or report and the
// Markdown file that answers it.
type QuestionSpec struct {
	// ID is the question key. Filled from the map key or the list item id.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Title is the short label shown in the viewer.
	Title string `json:"title" yaml:"title"`

	// Question is the full question text from the funder.
	Question string `json:"question,omitempty" yaml:"question,omitempty"`

	// File is the response file path relative to the questions file.
	File string `json:"file" yaml:"file"`

	// CharLimit is the maximum plain-text character count (0 = no limit).
	CharLimit int `json:"char_limit,omitempty" yaml:"char_limit,omitempty"`

	// WordLimit is the maximum word count (0 = no limit).
	WordLimit int `json:"word_limit,omitempty" yaml:"word_limit,omitempty"`

	// NeedsExport requests DOCX and PDF exports of the response.
	NeedsExport bool `json:"needs_export,omitempty" yaml:"needs_export,omitempty"`
}

// ResponseStatus is the completion state of a processed response.
type ResponseStatus string

const (
	ResponseComplete   ResponseStatus = "complete"
	ResponseNeedsInput ResponseStatus = "needs_input"
)

// Response kinds used in the flattened response map.
const (
	ResponseTypeApplication = "application"
	ResponseTypeReport      = "report"
)

// ExportFiles records the paths of exported documents for a response.
type ExportFiles struct {
	DOCX string `json:"docx" yaml:"docx"`
	PDF  string `json:"pdf" yaml:"pdf"`
}

// Response is a processed answer with its measurements against the limits.
// The JSON keys are consumed by the grants viewer.
type Response struct {
	Title     string `json:"title"`
	Question  string `json:"question"`
	File      string `json:"file"`
	PlainText string `json:"plainText"`

	CharCount      int     `json:"charCount"`
	CharLimit      *int    `json:"charLimit"`
	CharPercentage float64 `json:"charPercentage"`
	WordCount      int     `json:"wordCount"`
	WordLimit      *int    `json:"wordLimit"`
	WordPercentage float64 `json:"wordPercentage"`

	OverLimit       bool           `json:"overLimit"`
	NeedsCompletion bool           `json:"needsCompletion"`
	Status          ResponseStatus `json:"status"`

	Exports *ExportFiles `json:"exports,omitempty"`

	// Type and ReportPeriod are set only in the flattened response map of
	// grants that use the application/ and reports/ layout.
	Type         string `json:"type,omitempty"`
	ReportPeriod string `json:"report_period,omitempty"`
}

// ApplicationData groups the responses of a grant's application/ directory.
type ApplicationData struct {
	Metadata  map[string]any      `json:"metadata"`
	Responses map[string]Response `json:"responses"`
}

// ReportData groups the responses of one reporting period under reports/.
type ReportData struct {
	Period    string              `json:"period"`
	Metadata  map[string]any      `json:"metadata"`
	Responses map[string]Response `json:"responses"`
}

// GrantData is one grant's entry in grants_data.json.
type GrantData struct {
	ID          string              `json:"id"`
	Config      GrantConfig         `json:"config"`
	Metadata    map[string]any      `json:"metadata"`
	Responses   map[string]Response `json:"responses"`
	Application *ApplicationData    `json:"application,omitempty"`
	Reports     []ReportData        `json:"reports,omitempty"`
}
