package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		storePath string
		limit     int
		runID     string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `Show runs recorded in the run history database.

Without --run, the most recent runs are listed. With --run, the
per-release outcomes of that run are shown.`,
		Example: `  # Recent runs from the path configured in the deployment file
  helmdeck history

  # Outcomes of one run
  helmdeck history --run 2f1c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			path := storePath
			if path == "" && fileExists(configPath) {
				f, _, _, err := loadDeployment(ctx, logger)
				if err != nil {
					return err
				}
				path = f.Audit.StorePath
			}
			if path == "" {
				return fmt.Errorf("no run history database: set audit.store_path or pass --store")
			}

			store, err := openStore(ctx, path)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			if runID != "" {
				run, err := store.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "run %s (%s): OK=%d FAILED=%d ROLLED_BACK=%d\n",
					run.ID, run.Environment, run.OK, run.Failed, run.RolledBack)
				if run.Error != "" {
					fmt.Fprintf(out, "error: %s\n", run.Error)
				}

				outcomes, err := store.ListOutcomes(ctx, runID)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "RELEASE\tNAMESPACE\tSTATUS\tATTEMPTS\tERROR")
				for _, o := range outcomes {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", o.Name, o.Namespace, o.Status, o.Attempts, o.Error)
				}
				return w.Flush()
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tENVIRONMENT\tSTARTED\tOK\tFAILED\tROLLED_BACK")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
					r.ID, r.Environment, r.StartedAt.Format("2006-01-02 15:04:05"), r.OK, r.Failed, r.RolledBack)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "run history database path (overrides the deployment file)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "show the outcomes of one run")

	return cmd
}
