package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPoliciesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List the policies the gate enforces",
		Long: `List every policy the deploy gate evaluates: the built-ins plus
anything loaded via --policies.`,
		Example: `  # Built-in policies only
  helmdeck policies

  # Including a custom policy directory
  helmdeck policies --policies ./policy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}

			gate, err := newPolicyGate(cmd.Context(), logger)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSEVERITY\tENABLED\tDESCRIPTION")
			for _, p := range gate.ListPolicies() {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", p.Name, p.Severity, p.Enabled, p.Description)
			}
			return w.Flush()
		},
	}

	return cmd
}
