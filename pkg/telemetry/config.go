// Package telemetry wires structured logging, Prometheus metrics and
// OpenTelemetry tracing for script runs.
package telemetry

import "time"

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`

	// Format specifies the log format (console, json).
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`

	// Output is stdout, stderr or a file path.
	Output string `yaml:"output"`

	// NoColor disables ANSI colors in console output.
	NoColor bool `yaml:"no_color"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace"`

	// Addr is the listen address of the /metrics endpoint; empty disables it.
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`

	Buckets []float64 `yaml:"buckets" validate:"omitempty,dive,gt=0"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is stdout or none.
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=stdout none"`

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`

	ExportTimeout time.Duration `yaml:"export_timeout"`
}

// DefaultLoggingConfig logs info and above to stderr in console format.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: "info", Format: "console", Output: "stderr"}
}

// DefaultMetricsConfig enables an in-process registry with no endpoint.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true, Namespace: "rpaflow"}
}

// DefaultTracingConfig disables tracing.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{Exporter: "none", SamplingRate: 1, ExportTimeout: 5 * time.Second}
}
