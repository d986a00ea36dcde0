package telemetry

import "time"

// Config groups the observability settings.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "json" or "console".
	Format string `yaml:"format"`

	// Output is "stdout", "stderr" or a file path.
	Output string `yaml:"output"`

	// EnableCaller adds file:line to every record.
	EnableCaller bool `yaml:"enable_caller"`
}

// MetricsConfig configures the Prometheus registry and listener.
type MetricsConfig struct {
	// Enabled turns metric recording on. Disabled returns a no-op
	// recorder.
	Enabled bool `yaml:"enabled"`

	// ListenAddr serves /metrics when non-empty, e.g. ":9090".
	ListenAddr string `yaml:"listen_addr"`
}

// TracingConfig configures the OpenTelemetry trace pipeline.
type TracingConfig struct {
	// Enabled turns span export on. Disabled uses a no-op provider.
	Enabled bool `yaml:"enabled"`

	// Exporter is "otlp", "stdout" or "none".
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// SamplingRate is the trace sampling ratio in [0, 1].
	SamplingRate float64 `yaml:"sampling_rate"`

	// ExportTimeout bounds each export batch.
	ExportTimeout time.Duration `yaml:"export_timeout"`
}

// DefaultConfig returns sensible CLI defaults: console logging at info,
// metrics and tracing off.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Exporter:      "none",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
		},
	}
}
