// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the grant-engine CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/pdiddy/grant-engine/internal/container"
	"github.com/pdiddy/grant-engine/internal/fileutil"
	"github.com/pdiddy/grant-engine/internal/logging"
	"github.com/pdiddy/grant-engine/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// envFiles are loaded into the environment before configuration is read.
// Variables already set are not overridden.
var envFiles = []string{".env", ".env.local"}

// rootCmd is the base command for the grant-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "grant-engine",
	Short: "Assemble, validate, budget, and typeset grant proposals",
	Long: `grant-engine turns a directory of Markdown section files, YAML
configuration, and BibTeX bibliographies into a finished grant proposal.

NSF proposals are scaffolded with init, assembled with build, checked with
validate, validate-urls and check-citations, budgeted with budget, and
typeset with pdf. Private-foundation applications listed in a
grant_registry.yaml are processed with the grants subcommands, and the
refs subcommands manage a searchable reference library.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./grant-engine.yaml or ~/.config/grant-engine/grant-engine.yaml)")
	pf.BoolP("verbose", "v", false, "enable debug logging")
	pf.String("project-root", "", "project root directory (auto-detected if not specified)")
	pf.String("log-format", "", "log format: console or json (default: console on terminals)")

	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("project_root", pf.Lookup("project-root"))
	_ = viper.BindPFlag("log_format", pf.Lookup("log-format"))
}

func initConfig() {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("grant-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "grant-engine"))
		}
	}

	viper.SetDefault("container.image", container.DefaultImage)
	viper.SetDefault("library.dir", ".grant-engine")
	viper.SetDefault("library.max_results", 20)
	viper.SetDefault("grants.registry", "grant_registry.yaml")
	viper.SetDefault("grants.output_dir", "docs")

	viper.SetEnvPrefix("GRANT_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setup configures logging, GOMAXPROCS and secrets for every command.
func setup(cmd *cobra.Command, args []string) error {
	logger := logging.NewFromOptions(logging.Options{
		Verbose: viper.GetBool("verbose"),
		Format:  viper.GetString("log_format"),
	})
	logging.SetDefault(logger)
	cmd.SetContext(logging.WithLogger(cmd.Context(), &logger))

	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Debug().Msgf(format, args...)
	}))

	s, err := secrets.Load(secrets.DefaultDir)
	if err != nil {
		return err
	}
	loadedSecrets = s
	if len(s) > 0 {
		keys := make([]string, 0, len(s))
		for k := range s {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		logger.Debug().Strs("keys", keys).Msg("loaded secrets")
	}
	return nil
}

// projectRoot returns --project-root, else the nearest ancestor of the
// working directory holding a project marker, else the working directory.
func projectRoot() (string, error) {
	if root := viper.GetString("project_root"); root != "" {
		if !fileutil.IsDir(root) {
			return "", fmt.Errorf("project root %s is not a directory", root)
		}
		return filepath.Abs(root)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	root, err := fileutil.FindProjectRoot(cwd, nil)
	if err != nil {
		return "", err
	}
	if root == "" {
		return cwd, nil
	}
	logging.Default().Debug().Str("root", root).Msg("using project root")
	return root, nil
}

// newRunner returns the external tool runner, with the configured image as
// container fallback.
func newRunner() *container.Runner {
	return container.NewRunner(viper.GetString("container.image"))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
