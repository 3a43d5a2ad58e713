// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/grant-engine/internal/assemble"
	"github.com/pdiddy/grant-engine/internal/budget"
	"github.com/pdiddy/grant-engine/internal/fileutil"
	"github.com/pdiddy/grant-engine/internal/output"
	"github.com/pdiddy/grant-engine/internal/secrets"
)

// budgetFiles are the budget YAML locations tried in order, relative to
// the project root.
var budgetFiles = []string{
	filepath.Join("budget", "budget.yaml"),
	"budget.yaml",
	filepath.Join("docs", "budget.yaml"),
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Build and validate the project budget",
	Long: `Budget prices budget/budget.yaml: personnel, fringe, equipment, travel
(with GSA per-diem rates when a gsa-api-key secret or GSA_API_KEY is set),
participant support, other direct costs, and indirect costs on the
modified total direct cost base. It writes budget_narrative.md and
budget.json and reports the headroom under the budget cap.`,
	RunE: runBudget,
}

func init() {
	budgetCmd.Flags().StringP("output-dir", "o", "", "output directory (default: budget/ under the project root)")
	budgetCmd.Flags().String("format", "both", "output format: markdown, json, or both")

	rootCmd.AddCommand(budgetCmd)
}

func findBudgetFile(root string) (string, error) {
	for _, f := range budgetFiles {
		if p := filepath.Join(root, f); fileutil.Exists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("budget YAML not found (expected %s); run grant-engine init to create a template",
		filepath.Join(root, budgetFiles[0]))
}

// budgetCap returns the cap configured in the proposal, or zero for the
// default.
func budgetCap(ctx context.Context, root string) (float64, error) {
	a, err := assemble.New(ctx, root)
	if errors.Is(err, assemble.ErrNoConfig) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return float64(a.Config.BudgetCap), nil
}

func runBudget(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	outDir, _ := cmd.Flags().GetString("output-dir")
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "markdown", "json", "both":
	default:
		return fmt.Errorf("invalid format %q: must be one of: markdown, json, both", format)
	}

	root, err := projectRoot()
	if err != nil {
		return err
	}
	if outDir == "" {
		outDir = filepath.Join(root, "budget")
	}
	path, err := findBudgetFile(root)
	if err != nil {
		return err
	}
	capAmount, err := budgetCap(ctx, root)
	if err != nil {
		return err
	}

	var rates budget.RateSource
	if key := secrets.Resolve(loadedSecrets, secrets.KeyGSA, secrets.EnvGSA); key != "" {
		rates = budget.NewGSAClient(key)
	}
	m := budget.NewManager(capAmount, viper.GetFloat64("budget.indirect_rate"), rates)
	if err := m.LoadFromYAML(ctx, path); err != nil {
		return err
	}
	s := m.Calculate()

	var written []string
	if format != "json" {
		p := filepath.Join(outDir, budget.NarrativeFile)
		if err := m.WriteNarrative(ctx, p); err != nil {
			return err
		}
		written = append(written, "Narrative: "+p)
	}
	if format != "markdown" {
		p := filepath.Join(outDir, budget.JSONFile)
		if err := m.WriteJSON(ctx, p); err != nil {
			return err
		}
		written = append(written, "JSON: "+p)
	}

	writeBudgetSummary(w, s)
	writeList(w, "Budget issues", s.ValidationIssues)
	if viper.GetBool("verbose") {
		if err := output.RenderTable(w, categoryTable(s)); err != nil {
			return err
		}
	}
	fmt.Fprintln(w, "\nBudget generated")
	for _, l := range written {
		fmt.Fprintln(w, l)
	}
	return nil
}

func writeBudgetSummary(w io.Writer, s budget.Summary) {
	pct := 0.0
	if s.BudgetCap > 0 {
		pct = s.Headroom / s.BudgetCap * 100
	}
	lines := []string{
		"Total budget: " + budget.FormatCurrency(s.TotalCosts),
		"Budget cap:   " + budget.FormatCurrency(s.BudgetCap),
		fmt.Sprintf("Headroom:     %s (%.1f%%)", budget.FormatCurrency(s.Headroom), pct),
		"",
		"Direct costs:   " + budget.FormatCurrency(s.TotalCosts-s.IndirectCosts),
		"Indirect costs: " + budget.FormatCurrency(s.IndirectCosts),
	}
	switch {
	case s.Headroom < 0:
		lines = append(lines, "", "Over budget by "+budget.FormatCurrency(-s.Headroom))
	case s.Headroom < s.BudgetCap*0.1:
		lines = append(lines, "", "Low headroom remaining")
	}
	output.Panel(w, "Budget Summary", lines...)
}

func categoryTable(s budget.Summary) output.Data {
	data := output.Data{
		Headers:         []string{"Category", "Amount", "Percentage"},
		ColumnAlignment: []output.Align{output.AlignLeft, output.AlignRight, output.AlignRight},
	}
	share := func(v float64) string {
		if s.TotalCosts == 0 {
			return "0.0%"
		}
		return fmt.Sprintf("%.1f%%", v/s.TotalCosts*100)
	}
	for _, code := range budget.CategoryCodes {
		amount := s.DirectCosts[code]
		if code == "I" {
			amount = s.IndirectCosts
		}
		if amount <= 0 {
			continue
		}
		data.Rows = append(data.Rows, []string{
			code + ". " + budget.CategoryNames[code],
			budget.FormatCurrency(amount),
			share(amount),
		})
	}
	return data
}
