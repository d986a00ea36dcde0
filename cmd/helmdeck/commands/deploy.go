package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helmdeck/helmdeck/pkg/engine"
	"github.com/helmdeck/helmdeck/pkg/events"
	"github.com/helmdeck/helmdeck/pkg/helm"
	"github.com/helmdeck/helmdeck/pkg/kube"
	"github.com/helmdeck/helmdeck/pkg/stores"
	"github.com/helmdeck/helmdeck/pkg/telemetry"
)

func newDeployCommand() *cobra.Command {
	var (
		skipGate      bool
		metricsListen string
		traceExporter string
		traceEndpoint string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the release set",
		Long: `Deploy every release in dependency order.

This command:
  - Builds the release set and runs the policy gate
  - Registers chart repositories and refreshes their indexes
  - Lints, installs and waits for each release in plan order
  - Retries failed installs with fixed backoff
  - Rolls back this run's releases, newest first, when one fails
  - Records events to the console, the JSONL log and the run history`,
		Example: `  # Deploy staging
  helmdeck deploy -c deploy/staging.yaml

  # Deploy with Prometheus metrics exposed during the run
  helmdeck deploy -c deploy/prod.yaml --metrics-listen :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			f, dep, opts, err := loadDeployment(ctx, logger)
			if err != nil {
				return err
			}

			if skipGate {
				logger.Warn().Msg("policy gate skipped")
			} else {
				gate, err := newPolicyGate(ctx, logger)
				if err != nil {
					return err
				}
				if err := gateDeployment(ctx, gate, &dep, cmd); err != nil {
					return err
				}
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
			kubectl := kube.NewKubectl(runner,
				kube.WithKubeContext(dep.ClusterContext),
				kube.WithLogger(logger),
			)

			metrics := telemetry.NewMetrics(telemetry.MetricsConfig{
				Enabled:    metricsListen != "",
				ListenAddr: metricsListen,
			})
			if metricsListen != "" {
				go func() {
					if err := metrics.Serve(ctx, metricsListen); err != nil {
						logger.Warn().Err(err).Msg("metrics server stopped")
					}
				}()
			}

			tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
				Enabled:       traceExporter != "" && traceExporter != "none",
				Exporter:      traceExporter,
				Endpoint:      traceEndpoint,
				Insecure:      true,
				SamplingRate:  1,
				ExportTimeout: 10 * time.Second,
			}, cmd.Root().Version, dep.Environment)
			if err != nil {
				return fmt.Errorf("tracer setup: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tracer.Shutdown(shutdownCtx); err != nil {
					logger.Warn().Err(err).Msg("tracer shutdown failed")
				}
			}()

			bus := events.NewBus(
				events.NewConsoleObserver(),
				events.NewLogObserver(logger),
			)

			if f.Audit.EventsPath != "" {
				jsonl, err := events.NewJSONLObserver(f.Audit.EventsPath)
				if err != nil {
					return err
				}
				defer jsonl.Close()
				bus.Register(jsonl)
			}

			var store *stores.SQLiteStore
			if f.Audit.StorePath != "" {
				store, err = openStore(ctx, f.Audit.StorePath)
				if err != nil {
					return err
				}
				defer store.Close()
				bus.Register(stores.NewRunRecorder(store, logger))
			}

			lifecycle := engine.NewLifecycle(helmRunner, kubectl, engine.StepMap{},
				engine.WithBaseValues(dep.BaseValues),
				engine.WithLifecycleLogger(logger),
			)

			executor := engine.NewExecutor(helmRunner, lifecycle, bus,
				engine.WithHooks(engine.NewHookRegistry()),
				engine.WithWaiter(kubectl.WaitFor()),
				engine.WithRecorder(metrics),
				engine.WithTracer(tracer.Tracer()),
				engine.WithLogger(logger),
			)

			report, deployErr := executor.DeployAll(ctx, dep, opts)

			if store != nil && report.RunID != "" {
				errMsg := ""
				if deployErr != nil {
					errMsg = deployErr.Error()
				}
				// Completion uses a fresh context so an interrupted run
				// still lands in the history.
				recordCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := store.CompleteRun(recordCtx, report.RunID, report, errMsg); err != nil {
					logger.Warn().Err(err).Msg("failed to record run completion")
				}
				cancel()
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", report.Summary())
			if deployErr != nil {
				return fmt.Errorf("deploy failed: %w", deployErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipGate, "skip-policy-gate", false, "deploy even when policies would block")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address during the run")
	cmd.Flags().StringVar(&traceExporter, "trace-exporter", "none", "trace exporter (none, otlp, stdout)")
	cmd.Flags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP collector endpoint")

	return cmd
}

// openStore opens, initializes and migrates the run history database.
func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
