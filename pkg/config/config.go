// Package config loads the rpaflow engine configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rpaflow/rpaflow/pkg/kernel/eval"
	"github.com/rpaflow/rpaflow/pkg/telemetry"
)

// Config is the engine configuration. Every field has a usable default;
// a config file only needs the values it changes.
type Config struct {
	Logging telemetry.LoggingConfig `yaml:"logging"`
	Metrics telemetry.MetricsConfig `yaml:"metrics"`
	Tracing telemetry.TracingConfig `yaml:"tracing"`

	// TraceDir receives one JSONL trace file per run; empty disables traces.
	TraceDir string `yaml:"trace_dir"`

	// History is the SQLite run-history database; empty disables history.
	History string `yaml:"history"`

	// EvaluatorCacheSize bounds the compiled-expression cache.
	EvaluatorCacheSize int `yaml:"evaluator_cache_size" validate:"gte=0,lte=1000000"`

	// RawMode starts every run with auto-calculate off.
	RawMode bool `yaml:"raw_mode"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging:            telemetry.DefaultLoggingConfig(),
		Metrics:            telemetry.DefaultMetricsConfig(),
		Tracing:            telemetry.DefaultTracingConfig(),
		EvaluatorCacheSize: eval.DefaultCacheSize,
	}
}

// LoadFile reads and validates a config file. A missing path yields the
// defaults.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	cfg, err := Load(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Load decodes a config document over the defaults, rejecting unknown
// fields, and validates the result.
func Load(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, len(ves))
	for i, fe := range ves {
		msgs[i] = fieldMessage(fe)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	// Drop the leading "Config." so messages name the YAML-facing path.
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fmt.Sprint(fe.Value()))
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port, got %q", field, fmt.Sprint(fe.Value()))
	case "gte", "lte", "gt":
		return fmt.Sprintf("%s must be %s %s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}
