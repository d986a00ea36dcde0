package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helmdeck/helmdeck/pkg/config"
	"github.com/helmdeck/helmdeck/pkg/engine"
	"github.com/helmdeck/helmdeck/pkg/policy"
	"github.com/helmdeck/helmdeck/pkg/telemetry"
	"github.com/helmdeck/helmdeck/pkg/transports"
	"github.com/helmdeck/helmdeck/pkg/transports/ssh"
)

// newLogger builds the CLI logger from the global flags.
func newLogger() (zerolog.Logger, error) {
	return telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  logLevel,
		Format: logFormat,
		Output: "stderr",
	})
}

// loadDeployment parses and validates the deployment file and builds the
// in-memory set. Relative paths inside the file resolve against the
// file's directory.
func loadDeployment(ctx context.Context, logger zerolog.Logger) (*config.File, engine.Deployment, engine.DeployOptions, error) {
	loader, err := config.NewLoader(config.WithLoaderLogger(logger))
	if err != nil {
		return nil, engine.Deployment{}, engine.DeployOptions{}, err
	}

	f, err := loader.Load(ctx, configPath)
	if err != nil {
		return nil, engine.Deployment{}, engine.DeployOptions{}, err
	}

	dep, err := loader.Build(ctx, f, filepath.Dir(configPath))
	if err != nil {
		return nil, engine.Deployment{}, engine.DeployOptions{}, err
	}

	return f, dep, loader.Options(f), nil
}

// newTransport returns the runner helm and kubectl execute through: a
// local child-process runner, or an SSH client when the file declares a
// controller host. The returned closer is a no-op for local runs.
func newTransport(f *config.File, logger zerolog.Logger) (transports.Runner, func() error, error) {
	if f.Controller == nil {
		return &transports.LocalRunner{}, func() error { return nil }, nil
	}

	client, err := ssh.NewClient(&ssh.Config{
		Host:           f.Controller.Host,
		Port:           f.Controller.Port,
		User:           f.Controller.User,
		PrivateKeyPath: f.Controller.PrivateKeyPath,
		KnownHostsPath: f.Controller.KnownHostsPath,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("controller setup: %w", err)
	}
	return client, client.Close, nil
}

// newPolicyGate builds the policy engine with built-ins plus any
// --policies paths.
func newPolicyGate(ctx context.Context, logger zerolog.Logger) (*policy.Engine, error) {
	gate, err := policy.NewEngine(logger)
	if err != nil {
		return nil, err
	}
	if len(policyPaths) > 0 {
		if err := gate.LoadPolicies(ctx, policyPaths); err != nil {
			return nil, err
		}
	}
	return gate, nil
}

// gateDeployment evaluates the policy gate and prints every finding.
// Error-severity violations abort with a non-nil error.
func gateDeployment(ctx context.Context, gate *policy.Engine, dep *engine.Deployment, cmd *cobra.Command) error {
	res, err := gate.EvaluateDeployment(ctx, dep)
	if err != nil {
		return fmt.Errorf("policy evaluation: %w", err)
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "policy warning: %s\n", w)
	}
	for _, v := range res.Violations {
		target := v.Release
		if target == "" {
			target = "deployment"
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s (%s): %s\n", v.Severity, v.Policy, target, v.Message)
	}

	if !res.Allowed {
		return fmt.Errorf("policy gate blocked the run: %d violation(s)", len(res.Blocking()))
	}
	return nil
}

// fileExists is a small stat helper for optional inputs.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
