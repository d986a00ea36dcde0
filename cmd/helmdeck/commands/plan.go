package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helmdeck/helmdeck/pkg/engine"
	"github.com/helmdeck/helmdeck/pkg/helm"
)

func newPlanCommand() *cobra.Command {
	var showDiff bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the deployment order",
		Long: `Compute and print the dependency-ordered deployment plan.

The plan is the total order the deploy command will follow: releases
with no dependencies first, ties broken by name. With --diff, the
server-side changes each Helm-backed release would apply are rendered
via a dry-run upgrade.`,
		Example: `  # Print the order
  helmdeck plan -c deploy/staging.yaml

  # Print the order with per-release change previews
  helmdeck plan -c deploy/staging.yaml --diff`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			f, dep, _, err := loadDeployment(ctx, logger)
			if err != nil {
				return err
			}

			ordered, err := engine.Plan(dep.Components)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deployment plan for %s (%d releases):\n", dep.Environment, len(ordered))
			for i, comp := range ordered {
				line := fmt.Sprintf("%3d. %s (namespace %s", i+1, comp.Name, comp.Namespace)
				if comp.HelmBacked() {
					line += ", chart " + comp.ChartRef()
					if comp.Version != "" {
						line += "@" + comp.Version
					}
				}
				line += ")"
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}

			if !showDiff {
				return nil
			}

			runner, closeTransport, err := newTransport(f, logger)
			if err != nil {
				return err
			}
			defer closeTransport()

			helmRunner := helm.NewRunner(runner,
				helm.WithKubeContext(dep.ClusterContext),
				helm.WithLogger(logger),
			)

			for _, comp := range ordered {
				if !comp.HelmBacked() {
					continue
				}
				values := engine.MergeValues(dep.BaseValues, comp.Values)
				diff, err := helmRunner.Diff(ctx, comp, values)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "diff %s: %v\n", comp.Name, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\n--- %s ---\n%s\n", comp.Name, diff)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&showDiff, "diff", false, "render the changes each release would apply")

	return cmd
}
