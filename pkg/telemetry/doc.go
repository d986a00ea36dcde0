// Package telemetry provides the observability plumbing shared by the
// CLI and the deploy engine: zerolog structured logging, Prometheus
// metrics implementing engine.Recorder, and OpenTelemetry tracing.
package telemetry
