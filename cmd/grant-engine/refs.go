// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/grant-engine/internal/acquire"
	"github.com/pdiddy/grant-engine/internal/library"
	"github.com/pdiddy/grant-engine/internal/output"
	"github.com/pdiddy/grant-engine/internal/refs"
	"github.com/pdiddy/grant-engine/internal/secrets"
	"github.com/pdiddy/grant-engine/internal/textutil"
	"github.com/pdiddy/grant-engine/pkg/types"
)

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "Manage the reference library (index, search, export, fetch)",
	Long: `Refs maintains a local SQLite library built from every .bib file in
the project. Use index to ingest the bibliographies, search and export to
query them, and fetch to add BibTeX records for DOIs and arXiv ids.`,
}

// --- index ---

var refsIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the project's .bib files into the reference library",
	Long: `Index parses every .bib file found under the bibliography search
paths and stores the entries in a SQLite database with full-text search.
Unchanged files are skipped on subsequent runs.`,
	RunE: runRefsIndex,
}

func openLibrary(root string) (*library.Store, error) {
	return library.Open(inRoot(root, viper.GetString("library.dir")), viper.GetInt("library.max_results"))
}

func runRefsIndex(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	cfg, err := refs.LoadConfig(filepath.Join(root, refs.ConfigFile))
	if err != nil {
		return err
	}
	files := refs.NewManager(root, cfg.Bibliography.SearchPaths).Files()
	if len(files) == 0 {
		return fmt.Errorf("no .bib files found under %s", root)
	}

	store, err := openLibrary(root)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Index(cmd.Context(), files, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d file(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- search ---

var refsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the reference library",
	Long: `Search queries the library with full-text search over title,
authors, abstract and keywords, filtered by entry type and year. Without a
query or filter every entry is listed.`,
	RunE: runRefsSearch,
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", "", "filter by entry type: article, book, inproceedings, ...")
	cmd.Flags().Int("year-from", 0, "earliest publication year")
	cmd.Flags().Int("year-to", 0, "latest publication year")
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) library.QueryOptions {
	var opts library.QueryOptions
	opts.Query = strings.Join(args, " ")
	opts.Type, _ = cmd.Flags().GetString("type")
	opts.YearFrom, _ = cmd.Flags().GetInt("year-from")
	opts.YearTo, _ = cmd.Flags().GetInt("year-to")
	return opts
}

func runRefsSearch(cmd *cobra.Command, args []string) error {
	f, _ := cmd.Flags().GetString("format")
	format, err := output.ParseFormat(f)
	if err != nil {
		return err
	}
	opts := queryOptsFromFlags(cmd, args)
	opts.MaxResults, _ = cmd.Flags().GetInt("max-results")

	root, err := projectRoot()
	if err != nil {
		return err
	}
	store, err := openLibrary(root)
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.Search(cmd.Context(), opts)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if format = output.DetectFormat(string(format)); format != output.FormatTable {
		return output.NewFormatter(format).Format(w, results)
	}
	return writeSearchResults(w, results)
}

func writeSearchResults(w io.Writer, results []types.BibEntry) error {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}
	rows := make([][]string, 0, len(results))
	for _, e := range results {
		rows = append(rows, []string{
			e.Key,
			e.Year,
			e.EntryType,
			textutil.Truncate(e.Title, 50, "..."),
			textutil.Truncate(shortAuthors(e.Authors), 30, "..."),
		})
	}
	if err := output.RenderTable(w, output.Data{
		Headers: []string{"Key", "Year", "Type", "Title", "Authors"},
		Rows:    rows,
	}); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d results\n", len(results))
	return nil
}

// --- export ---

var refsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the reference library to YAML, JSON, or CSL-YAML",
	Long: `Export writes the library, or the entries matching the filters, as
YAML, JSON, or CSL-YAML. CSL-YAML can be passed to pandoc --citeproc and
imported by reference managers.`,
	RunE: runRefsExport,
}

func runRefsExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	outPath, _ := cmd.Flags().GetString("output")
	opts := queryOptsFromFlags(cmd, args)

	root, err := projectRoot()
	if err != nil {
		return err
	}
	store, err := openLibrary(root)
	if err != nil {
		return err
	}
	defer store.Close()

	if outPath == "" {
		return store.Export(cmd.Context(), format, opts, cmd.OutOrStdout())
	}
	fh, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	if err := store.Export(cmd.Context(), format, opts, fh); err != nil {
		fh.Close()
		return err
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", outPath)
	return nil
}

// --- fetch ---

var refsFetchCmd = &cobra.Command{
	Use:   "fetch <identifiers...>",
	Short: "Add BibTeX records for DOIs or arXiv ids to the bibliography",
	Long: `Fetch resolves each DOI, doi.org URL, arXiv id or arXiv URL through
doi.org content negotiation and appends the BibTeX record to the project
bibliography. Identifiers whose DOI or key is already present are skipped.
Set the crossref-email secret or CROSSREF_EMAIL to identify requests.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRefsFetch,
}

func runRefsFetch(cmd *cobra.Command, args []string) error {
	bib, _ := cmd.Flags().GetString("bib")
	root, err := projectRoot()
	if err != nil {
		return err
	}
	if bib == "" {
		cfg, err := refs.LoadConfig(filepath.Join(root, refs.ConfigFile))
		if err != nil {
			return err
		}
		bib = cfg.Bibliography.DefaultFilename
	}
	bib = inRoot(root, bib)

	mailto := secrets.Resolve(loadedSecrets, secrets.KeyCrossref, secrets.EnvCrossref)
	f := acquire.NewFetcher(nil, mailto)
	result, err := f.AddToBibliography(cmd.Context(), args, bib, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if result.HasFailures() {
		return fmt.Errorf("%d identifier(s) failed", result.Failed)
	}
	return nil
}

func init() {
	addQueryFlags(refsSearchCmd)
	refsSearchCmd.Flags().Int("max-results", 0, "maximum number of results (default: library.max_results)")
	refsSearchCmd.Flags().String("format", "", "output format: table, json, or yaml (default: table on terminals)")

	addQueryFlags(refsExportCmd)
	refsExportCmd.Flags().String("format", library.FormatYAML, "export format: yaml, json, or csl")
	refsExportCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")

	refsFetchCmd.Flags().String("bib", "", "bibliography file to append to (default: references.bib in the project root)")

	refsCmd.AddCommand(refsIndexCmd)
	refsCmd.AddCommand(refsSearchCmd)
	refsCmd.AddCommand(refsExportCmd)
	refsCmd.AddCommand(refsFetchCmd)
	rootCmd.AddCommand(refsCmd)
}
