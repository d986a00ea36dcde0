package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from YAML scalars in Go
// duration syntax ("500ms", "5m") or as integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asInt int64
	if err := value.Decode(&asInt); err == nil {
		*d = Duration(asInt)
		return nil
	}

	var asString string
	if err := value.Decode(&asString); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}
	parsed, err := time.ParseDuration(asString)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", asString, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// File is the on-disk deployment set definition.
type File struct {
	// Environment names the target environment (dev, staging, prod...).
	Environment string `yaml:"environment" validate:"required"`

	// Context is the kube context the deployment targets. Empty uses the
	// current context.
	Context string `yaml:"context,omitempty"`

	// Deploy tunes the executor's retry and waiter behavior.
	Deploy DeploySettings `yaml:"deploy,omitempty"`

	// Controller, when present, runs all helm and kubectl invocations on
	// a remote controller host over SSH instead of locally.
	Controller *ControllerEntry `yaml:"controller,omitempty"`

	// BaseValues are merged underneath every release's values.
	BaseValues map[string]interface{} `yaml:"base_values,omitempty"`

	// BaseValuesFiles are merged into BaseValues in order, before the
	// inline BaseValues above.
	BaseValuesFiles []string `yaml:"base_values_files,omitempty"`

	// Repos declares the chart repositories releases may reference.
	Repos []RepoEntry `yaml:"repos,omitempty" validate:"dive"`

	// Releases are the deployable units.
	Releases []ReleaseEntry `yaml:"releases" validate:"required,min=1,dive"`

	// Audit configures run recording.
	Audit AuditEntry `yaml:"audit,omitempty"`
}

// DeploySettings maps onto engine.DeployOptions.
type DeploySettings struct {
	// Retries is the number of re-attempts after a failed install.
	Retries *int `yaml:"retries,omitempty" validate:"omitempty,min=0"`

	// Backoff is the fixed sleep between install attempts.
	Backoff Duration `yaml:"backoff,omitempty"`

	// UseWaiter enables the label-selector readiness waiter after each
	// successful install.
	UseWaiter bool `yaml:"use_waiter,omitempty"`

	// WaiterSelectorKey is the label key the waiter selector uses.
	WaiterSelectorKey string `yaml:"waiter_selector_key,omitempty"`
}

// ControllerEntry describes the SSH controller host.
type ControllerEntry struct {
	// Host is the controller address.
	Host string `yaml:"host" validate:"required"`

	// Port is the SSH port; 0 means 22.
	Port int `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`

	// User is the SSH login user.
	User string `yaml:"user" validate:"required"`

	// PrivateKeyPath points at the key file used for auth.
	PrivateKeyPath string `yaml:"private_key_path,omitempty"`

	// KnownHostsPath points at the known_hosts file for host key checks.
	KnownHostsPath string `yaml:"known_hosts_path,omitempty"`
}

// RepoEntry declares a chart repository.
type RepoEntry struct {
	// Name is the repository alias.
	Name string `yaml:"name" validate:"required"`

	// URL is the repository index URL.
	URL string `yaml:"url" validate:"required,url"`
}

// ReleaseEntry declares one deployable unit.
type ReleaseEntry struct {
	// Name is the release name, unique within the file.
	Name string `yaml:"name" validate:"required"`

	// Namespace is the target namespace. Empty falls back to the release
	// name.
	Namespace string `yaml:"namespace,omitempty"`

	// Chart is the chart name within Repo. Empty declares a non-Helm
	// component whose workload is carried by registered steps and hooks.
	Chart string `yaml:"chart,omitempty"`

	// Version pins the chart version.
	Version string `yaml:"version,omitempty"`

	// Repo references a declared repository by name.
	Repo string `yaml:"repo,omitempty"`

	// LocalChartDir points at a vendored chart directory instead of a
	// repository chart.
	LocalChartDir string `yaml:"local_chart_dir,omitempty"`

	// ValuesFiles are merged in order, .yaml or .star.
	ValuesFiles []string `yaml:"values_files,omitempty"`

	// Values are inline values, merged last.
	Values map[string]interface{} `yaml:"values,omitempty"`

	// Needs lists release names that must deploy first.
	Needs []string `yaml:"needs,omitempty"`

	// Hooks lists named callbacks for the pre/post boundaries.
	Hooks []string `yaml:"hooks,omitempty"`

	// Timeout bounds the install and readiness waits.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Atomic, Wait and CreateNamespace map to install flags.
	Atomic          bool `yaml:"atomic,omitempty"`
	Wait            bool `yaml:"wait,omitempty"`
	CreateNamespace bool `yaml:"create_namespace,omitempty"`

	// WaitForPods enables the pod readiness wait after install;
	// MinRunningPods is the threshold.
	WaitForPods    bool `yaml:"wait_for_pods,omitempty"`
	MinRunningPods int  `yaml:"min_running_pods,omitempty" validate:"omitempty,min=1"`
}

// AuditEntry configures run recording sinks.
type AuditEntry struct {
	// EventsPath is the JSONL audit log path. Empty disables it.
	EventsPath string `yaml:"events_path,omitempty"`

	// StorePath is the SQLite run history database path. Empty disables
	// it.
	StorePath string `yaml:"store_path,omitempty"`
}
