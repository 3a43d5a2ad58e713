// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package budget loads NSF budgets from YAML, prices travel with GSA per-diem
// rates, computes direct, indirect, and total costs against the program cap,
// and writes the budget narrative and JSON export.
package budget

import (
	"context"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/grant-engine/internal/logging"
)

// Defaults applied when the proposal does not configure a cap or F&A rate.
const (
	DefaultBudgetCap    = 1_500_000
	DefaultIndirectRate = 0.15

	// Fallback per-diem rates used when GSA rates are unavailable.
	FallbackLodging = 200.0
	FallbackMIE     = 79.0
)

// Category codes in NSF budget order.
var CategoryCodes = []string{"A", "B", "C", "D", "E", "F", "G", "I"}

// CategoryNames maps NSF budget category codes to their titles.
var CategoryNames = map[string]string{
	"A": "Senior Personnel",
	"B": "Other Personnel",
	"C": "Fringe Benefits",
	"D": "Equipment",
	"E": "Travel",
	"F": "Participant Support",
	"G": "Other Direct Costs",
	"I": "Indirect Costs (F&A)",
}

// Item is one budget line.
type Item struct {
	Description   string         `json:"description"`
	Amount        float64        `json:"amount"`
	Category      string         `json:"-"`
	Justification string         `json:"justification,omitempty"`
	Metadata      map[string]any `json:"-"`
}

// Destination is where a trip goes and when, for per-diem lookup.
type Destination struct {
	City  string `yaml:"city"`
	State string `yaml:"state"`
	FY    int    `yaml:"fy"`
	Month int    `yaml:"month"`
}

// TravelItem is a trip priced with per-diem rates.
type TravelItem struct {
	Description string
	Travelers   int
	Days        int
	Destination Destination
	Airfare     float64
	LodgingRate float64
	MIERate     float64
	TotalCost   float64
	Breakdown   TravelBreakdown
}

// TravelBreakdown records how a trip's cost was computed.
type TravelBreakdown struct {
	Travelers         int     `json:"travelers"`
	Days              int     `json:"days"`
	Nights            int     `json:"nights"`
	LodgingRate       float64 `json:"lodging_rate"`
	MIERate           float64 `json:"mie_rate"`
	Airfare           float64 `json:"airfare"`
	PerPersonSubtotal float64 `json:"per_person_subtotal"`
	Total             float64 `json:"total"`
}

// RateSource looks up lodging and meals & incidentals rates.
type RateSource interface {
	Rates(ctx context.Context, city, state string, fiscalYear, month int) (Rates, error)
}

// Manager holds a budget and prices it.
type Manager struct {
	BudgetCap    float64
	IndirectRate float64

	rates      RateSource
	categories map[string][]Item
	travel     []TravelItem
	now        func() time.Time
}

// NewManager returns an empty budget. Non-positive cap or rate select the
// defaults. rates may be nil, in which case travel without explicit rates
// uses the fallback per-diem.
func NewManager(budgetCap, indirectRate float64, rates RateSource) *Manager {
	if budgetCap <= 0 {
		budgetCap = DefaultBudgetCap
	}
	if indirectRate <= 0 {
		indirectRate = DefaultIndirectRate
	}
	m := &Manager{
		BudgetCap:    budgetCap,
		IndirectRate: indirectRate,
		rates:        rates,
		now:          time.Now,
	}
	m.reset()
	return m
}

func (m *Manager) reset() {
	m.categories = make(map[string][]Item, len(CategoryCodes))
	for _, code := range CategoryCodes {
		m.categories[code] = nil
	}
	m.travel = nil
}

// rawItem covers every field a budget line may carry.
type rawItem struct {
	Description   string      `yaml:"description"`
	Amount        float64     `yaml:"amount"`
	Justification string      `yaml:"justification"`
	Travelers     *int        `yaml:"travelers"`
	Days          *int        `yaml:"days"`
	Destination   Destination `yaml:"destination"`
	Airfare       float64     `yaml:"airfare"`
	LodgingRate   *float64    `yaml:"lodging_rate"`
	MIERate       *float64    `yaml:"mie_rate"`
	Rate          *float64    `yaml:"rate"`
}

// LoadFromYAML replaces the budget with the contents of path. Keys are
// category codes followed by a name (A_senior_personnel, E_travel, ...);
// other keys are ignored.
func (m *Manager) LoadFromYAML(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading budget: %w", err)
	}
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing budget YAML %s: %w", path, err)
	}

	m.reset()
	for _, key := range sortedKeys(doc) {
		code, _, _ := strings.Cut(key, "_")
		if _, ok := CategoryNames[code]; !ok {
			continue
		}
		node := doc[key]
		var items []rawItem
		if err := node.Decode(&items); err != nil {
			return fmt.Errorf("parsing budget category %s: %w", key, err)
		}
		switch code {
		case "E":
			for _, raw := range items {
				m.AddTravel(ctx, travelFromRaw(raw, m.now().Year()))
			}
		case "I":
			for _, raw := range items {
				if raw.Rate != nil {
					m.IndirectRate = *raw.Rate
					continue
				}
				m.AddItem(Item{Description: orDefault(raw.Description, "Indirect Costs"), Amount: raw.Amount, Category: "I", Justification: raw.Justification})
			}
		default:
			for _, raw := range items {
				m.AddItem(Item{Description: orDefault(raw.Description, "Untitled"), Amount: raw.Amount, Category: code, Justification: raw.Justification})
			}
		}
	}
	logging.FromContext(ctx).Info().Str("path", path).Msg("loaded budget")
	return nil
}

func travelFromRaw(raw rawItem, year int) TravelItem {
	t := TravelItem{
		Description: orDefault(raw.Description, "Travel"),
		Travelers:   1,
		Days:        1,
		Destination: raw.Destination,
		Airfare:     raw.Airfare,
	}
	if raw.Travelers != nil {
		t.Travelers = *raw.Travelers
	}
	if raw.Days != nil {
		t.Days = *raw.Days
	}
	if t.Destination.FY == 0 {
		t.Destination.FY = year
	}
	if raw.LodgingRate != nil {
		t.LodgingRate = *raw.LodgingRate
	}
	if raw.MIERate != nil {
		t.MIERate = *raw.MIERate
	}
	return t
}

// AddItem appends a line to its category.
func (m *Manager) AddItem(item Item) {
	m.categories[item.Category] = append(m.categories[item.Category], item)
}

// AddTravel prices a trip and adds it to category E. Zero lodging or M&IE
// rates are looked up, falling back to FallbackLodging and FallbackMIE.
func (m *Manager) AddTravel(ctx context.Context, t TravelItem) TravelItem {
	if t.LodgingRate == 0 || t.MIERate == 0 {
		var found Rates
		if m.rates != nil {
			r, err := m.rates.Rates(ctx, t.Destination.City, t.Destination.State, t.Destination.FY, t.Destination.Month)
			if err != nil {
				logging.FromContext(ctx).Warn().Err(err).
					Str("city", t.Destination.City).Str("state", t.Destination.State).
					Msg("per-diem lookup failed, using fallback rates")
			} else {
				found = r
			}
		}
		if t.LodgingRate == 0 {
			t.LodgingRate = orDefaultFloat(found.Lodging, FallbackLodging)
		}
		if t.MIERate == 0 {
			t.MIERate = orDefaultFloat(found.MIE, FallbackMIE)
		}
	}
	PriceTrip(&t)

	m.travel = append(m.travel, t)
	m.AddItem(Item{
		Description: t.Description,
		Amount:      t.TotalCost,
		Category:    "E",
		Metadata:    map[string]any{"breakdown": t.Breakdown},
	})
	return t
}

// PriceTrip computes a trip's cost from its rates. Lodging is charged per
// night; M&IE is charged at 75% on the first and last day.
func PriceTrip(t *TravelItem) {
	nights := max(t.Days-1, 0)
	lodging := float64(nights) * t.LodgingRate

	var mie float64
	if t.Days <= 1 {
		mie = 0.75 * t.MIERate
	} else {
		mie = 2*0.75*t.MIERate + float64(max(t.Days-2, 0))*t.MIERate
	}

	perPerson := t.Airfare + lodging + mie
	t.TotalCost = roundCents(float64(t.Travelers) * perPerson)
	t.Breakdown = TravelBreakdown{
		Travelers:         t.Travelers,
		Days:              t.Days,
		Nights:            nights,
		LodgingRate:       t.LodgingRate,
		MIERate:           t.MIERate,
		Airfare:           t.Airfare,
		PerPersonSubtotal: roundCents(perPerson),
		Total:             t.TotalCost,
	}
}

// Items returns the lines of a category.
func (m *Manager) Items(code string) []Item {
	return m.categories[code]
}

// Travel returns the priced trips.
func (m *Manager) Travel() []TravelItem {
	return m.travel
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultFloat(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
