// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package budget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pdiddy/grant-engine/internal/fileutil"
	"github.com/pdiddy/grant-engine/internal/logging"
)

// Output file names.
const (
	NarrativeFile = "budget_narrative.md"
	JSONFile      = "budget.json"
)

// Summary is a priced budget.
type Summary struct {
	DirectCosts      map[string]float64
	TotalDirect      float64
	MTDCBase         float64
	IndirectCosts    float64
	TotalCosts       float64
	BudgetCap        float64
	Headroom         float64
	Categories       map[string][]Item
	Travel           []TravelItem
	ValidationIssues []string
}

// Calculate totals the budget. Direct costs are the sum of categories A to
// G. F&A applies the indirect rate to the modified total direct costs
// (direct costs less equipment and participant support) unless explicit
// indirect lines were loaded.
func (m *Manager) Calculate() Summary {
	s := Summary{
		DirectCosts: make(map[string]float64, len(CategoryCodes)-1),
		Categories:  make(map[string][]Item, len(CategoryCodes)),
		BudgetCap:   m.BudgetCap,
		Travel:      append([]TravelItem(nil), m.travel...),
	}
	for _, code := range CategoryCodes {
		items := append([]Item(nil), m.categories[code]...)
		s.Categories[code] = items
		if code == "I" {
			continue
		}
		s.DirectCosts[code] = sumItems(items)
		s.TotalDirect += s.DirectCosts[code]
	}

	s.MTDCBase = s.TotalDirect - s.DirectCosts["D"] - s.DirectCosts["F"]
	if len(s.Categories["I"]) == 0 {
		s.IndirectCosts = s.MTDCBase * m.IndirectRate
		s.Categories["I"] = []Item{{
			Description: fmt.Sprintf("F&A at %.1f%% on MTDC", m.IndirectRate*100),
			Amount:      s.IndirectCosts,
			Category:    "I",
			Metadata:    map[string]any{"rate": m.IndirectRate, "mtdc_base": s.MTDCBase},
		}}
	} else {
		s.IndirectCosts = sumItems(s.Categories["I"])
	}

	s.TotalCosts = s.TotalDirect + s.IndirectCosts
	s.Headroom = s.BudgetCap - s.TotalCosts

	if s.TotalCosts > s.BudgetCap {
		s.ValidationIssues = append(s.ValidationIssues,
			fmt.Sprintf("Budget exceeds cap by %s", FormatCurrency(s.TotalCosts-s.BudgetCap)))
	}
	if s.Headroom < 0 {
		s.ValidationIssues = append(s.ValidationIssues, "Budget is over the allowed limit")
	} else if s.Headroom < s.BudgetCap*0.05 {
		s.ValidationIssues = append(s.ValidationIssues, "Very little budget headroom remaining")
	}
	return s
}

// CategoryTotal returns the total of one category, including indirect.
func (s Summary) CategoryTotal(code string) float64 {
	return sumItems(s.Categories[code])
}

func sumItems(items []Item) float64 {
	var total float64
	for _, it := range items {
		total += it.Amount
	}
	return total
}

var currencyPrinter = message.NewPrinter(language.English)

// FormatCurrency formats whole dollars with thousands separators ("$1,234").
func FormatCurrency(v float64) string {
	return "$" + currencyPrinter.Sprintf("%.0f", v)
}

var narrativeTemplate = template.Must(template.New("narrative").Funcs(template.FuncMap{
	"currency": FormatCurrency,
	"name":     func(code string) string { return CategoryNames[code] },
	"subtotal": sumItems,
}).Parse(`# Budget Narrative
Generated: {{.Generated}}

## Summary
- **Total Budget:** {{currency .S.TotalCosts}}
- **Budget Cap:** {{currency .S.BudgetCap}}
- **Headroom:** {{currency .S.Headroom}}
{{- if .S.ValidationIssues}}

### Budget Issues
{{- range .S.ValidationIssues}}
- {{.}}
{{- end}}
{{- end}}
{{- range .Codes}}{{with index $.S.Categories .}}

## {{(index . 0).Category}}. {{name (index . 0).Category}}
{{- range .}}

**{{.Description}}:** {{currency .Amount}}
{{- if .Justification}}
*Justification:* {{.Justification}}
{{- end}}
{{- end}}

**Subtotal:** {{currency (subtotal .)}}
{{- end}}{{end}}
{{- if .S.Travel}}

## Travel Details
{{- range .S.Travel}}

### {{.Description}}
- **Travelers:** {{.Travelers}}
- **Days:** {{.Days}}
- **Destination:** {{.Destination.City}}, {{.Destination.State}}
- **Total Cost:** {{currency .TotalCost}}
{{- end}}
{{- end}}

---
**Total Direct Costs:** {{currency .S.TotalDirect}}  
**Total Indirect Costs:** {{currency .S.IndirectCosts}}  
**Grand Total:** {{currency .S.TotalCosts}}
`))

// Narrative renders the budget narrative Markdown.
func (m *Manager) Narrative() (string, error) {
	var buf bytes.Buffer
	err := narrativeTemplate.Execute(&buf, map[string]any{
		"S":         m.Calculate(),
		"Codes":     CategoryCodes,
		"Generated": m.now().Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		return "", fmt.Errorf("rendering budget narrative: %w", err)
	}
	return buf.String(), nil
}

// WriteNarrative writes the budget narrative to path.
func (m *Manager) WriteNarrative(ctx context.Context, path string) error {
	content, err := m.Narrative()
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, []byte(content)); err != nil {
		return fmt.Errorf("writing budget narrative: %w", err)
	}
	logging.FromContext(ctx).Info().Str("path", path).Msg("generated budget narrative")
	return nil
}

// Export is the JSON form of a budget.
type Export struct {
	BudgetCap        float64                   `json:"budget_cap"`
	TotalCosts       float64                   `json:"total_costs"`
	DirectCosts      map[string]float64        `json:"direct_costs"`
	IndirectCosts    float64                   `json:"indirect_costs"`
	Headroom         float64                   `json:"headroom"`
	Categories       map[string]CategoryExport `json:"categories"`
	TravelDetails    []TravelExport            `json:"travel_details"`
	ValidationIssues []string                  `json:"validation_issues"`
	Generated        string                    `json:"generated"`
}

// CategoryExport is one category of an Export.
type CategoryExport struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
	Items []Item  `json:"items"`
}

// TravelExport is one trip of an Export.
type TravelExport struct {
	Description string          `json:"description"`
	Travelers   int             `json:"travelers"`
	Days        int             `json:"days"`
	Destination string          `json:"destination"`
	TotalCost   float64         `json:"total_cost"`
	Breakdown   TravelBreakdown `json:"breakdown"`
}

// ToExport converts the calculated budget to its JSON form.
func (m *Manager) ToExport() Export {
	s := m.Calculate()
	e := Export{
		BudgetCap:        s.BudgetCap,
		TotalCosts:       s.TotalCosts,
		DirectCosts:      s.DirectCosts,
		IndirectCosts:    s.IndirectCosts,
		Headroom:         s.Headroom,
		Categories:       make(map[string]CategoryExport, len(s.Categories)),
		TravelDetails:    []TravelExport{},
		ValidationIssues: s.ValidationIssues,
		Generated:        m.now().Format(time.RFC3339),
	}
	if e.ValidationIssues == nil {
		e.ValidationIssues = []string{}
	}
	for code, items := range s.Categories {
		if items == nil {
			items = []Item{}
		}
		e.Categories[code] = CategoryExport{Name: CategoryNames[code], Total: sumItems(items), Items: items}
	}
	for _, t := range s.Travel {
		e.TravelDetails = append(e.TravelDetails, TravelExport{
			Description: t.Description,
			Travelers:   t.Travelers,
			Days:        t.Days,
			Destination: strings.TrimSuffix(t.Destination.City+", "+t.Destination.State, ", "),
			TotalCost:   t.TotalCost,
			Breakdown:   t.Breakdown,
		})
	}
	return e
}

// WriteJSON writes the JSON export to path.
func (m *Manager) WriteJSON(ctx context.Context, path string) error {
	data, err := json.MarshalIndent(m.ToExport(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding budget: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("writing budget JSON: %w", err)
	}
	logging.FromContext(ctx).Info().Str("path", path).Msg("exported budget JSON")
	return nil
}
