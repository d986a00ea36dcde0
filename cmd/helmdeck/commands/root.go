package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath  string
	logLevel    string
	logFormat   string
	policyPaths []string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "helmdeck",
		Short: "Helmdeck - dependency-ordered Helm deployment engine",
		Long: `Helmdeck deploys a set of Helm releases in dependency order, with
per-release retry, readiness waits and automatic rollback of the
releases installed earlier in a failed run.

Features:
  - Topologically ordered release plans from declared dependencies
  - Three-phase release lifecycle with pluggable pre/post steps
  - Retry with fixed backoff, lint-gated installs
  - Rollback of this run's releases on failure, newest first
  - OPA policy gate over the release set
  - JSONL event log and SQLite run history`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "helmdeck.yaml", "deployment file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().StringSliceVar(&policyPaths, "policies", nil, "extra policy files or directories (.rego, .json)")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newPoliciesCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
