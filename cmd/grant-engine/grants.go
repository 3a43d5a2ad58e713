// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/grant-engine/internal/export"
	"github.com/pdiddy/grant-engine/internal/grants"
)

var grantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "Process private-foundation applications from a grant registry",
	Long: `Grants reads grant_registry.yaml, where each grant lists its
application questions and the Markdown response files that answer them.
Use build to measure every response against its limits, export DOCX and
PDF renditions, and write the viewer data file; use validate to check
limits without writing anything.`,
}

var grantsBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Process every grant and write grants_data.json",
	Long: `Build processes every grant in the registry in id order. Responses
that exceed a word or character limit are recorded as violations, and
questions marked needs_export are converted to DOCX and PDF under
{output-dir}/exports/{grant_id}/. A failing grant is reported and the
remaining grants are still built.`,
	RunE: runGrantsBuild,
}

var grantsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every grant response against its limits",
	RunE:  runGrantsValidate,
}

func init() {
	grantsCmd.PersistentFlags().String("registry", "", "grant registry file (default: grant_registry.yaml in the project root)")
	grantsBuildCmd.Flags().String("output-dir", "", "directory for grants_data.json and exports (default: docs/ in the project root)")
	grantsBuildCmd.Flags().Bool("no-export", false, "skip DOCX and PDF exports")

	_ = viper.BindPFlag("grants.registry", grantsCmd.PersistentFlags().Lookup("registry"))
	_ = viper.BindPFlag("grants.output_dir", grantsBuildCmd.Flags().Lookup("output-dir"))

	grantsCmd.AddCommand(grantsBuildCmd)
	grantsCmd.AddCommand(grantsValidateCmd)
	rootCmd.AddCommand(grantsCmd)
}

// inRoot resolves a relative path against the project root.
func inRoot(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func runGrantsBuild(cmd *cobra.Command, args []string) error {
	noExport, _ := cmd.Flags().GetBool("no-export")
	root, err := projectRoot()
	if err != nil {
		return err
	}
	registry := inRoot(root, viper.GetString("grants.registry"))
	outDir := inRoot(root, viper.GetString("grants.output_dir"))

	var exp grants.Exporter
	if !noExport {
		exp = export.New(newRunner(), filepath.Join(outDir, "exports"), cmd.OutOrStdout())
	}

	result, err := grants.BuildAll(cmd.Context(), registry, outDir, exp, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if result.HasFailures() {
		return fmt.Errorf("%d of %d grant(s) failed", result.Failed, result.Total())
	}
	return nil
}

func runGrantsValidate(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	registry := inRoot(root, viper.GetString("grants.registry"))

	result, err := grants.ValidateAll(cmd.Context(), registry, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if !result.Passed() {
		return fmt.Errorf("grant validation failed: %d violation(s), %d failed", len(result.Violations), result.Failed)
	}
	return nil
}
