package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/helmdeck/helmdeck/pkg/config"
)

func newValidateCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the deployment file",
		Long: `Validate the deployment file without touching the cluster.

This command:
  - Parses the YAML and rejects unknown keys
  - Checks struct constraints and the CUE schemas
  - Builds the full release set, including values files
  - Runs the policy gate`,
		Example: `  # Validate once
  helmdeck validate -c deploy/staging.yaml

  # Re-validate on every save
  helmdeck validate -c deploy/staging.yaml --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}

			gate, err := newPolicyGate(cmd.Context(), logger)
			if err != nil {
				return err
			}

			loader, err := config.NewLoader(config.WithLoaderLogger(logger))
			if err != nil {
				return err
			}

			validateOnce := func(ctx context.Context) error {
				f, err := loader.Load(ctx, configPath)
				if err != nil {
					return err
				}
				dep, err := loader.Build(ctx, f, filepath.Dir(configPath))
				if err != nil {
					return err
				}
				if err := gateDeployment(ctx, gate, &dep, cmd); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d releases, environment %s)\n",
					configPath, len(dep.Components), dep.Environment)
				return nil
			}

			if !watch {
				return validateOnce(cmd.Context())
			}

			// Watch mode reports each result and keeps running; a broken
			// intermediate save is not fatal.
			if err := validateOnce(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "invalid: %v\n", err)
			}

			watcher := config.NewWatcher(loader, logger)
			err = watcher.Watch(cmd.Context(), configPath, func(ctx context.Context) error {
				if err := validateOnce(ctx); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "invalid: %v\n", err)
				}
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "re-validate whenever the file changes")

	return cmd
}
