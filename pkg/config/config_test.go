package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, 512, cfg.EvaluatorCacheSize)
	assert.Empty(t, cfg.History)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader(`
logging:
  level: debug
  format: json
metrics:
  enabled: true
  addr: 127.0.0.1:9464
tracing:
  enabled: true
  exporter: stdout
  sampling_rate: 0.5
  export_timeout: 2s
trace_dir: traces
history: runs.db
raw_mode: true
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output, "untouched fields keep defaults")
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)
	assert.Equal(t, "rpaflow", cfg.Metrics.Namespace)
	assert.Equal(t, 0.5, cfg.Tracing.SamplingRate)
	assert.Equal(t, 2*time.Second, cfg.Tracing.ExportTimeout)
	assert.Equal(t, "traces", cfg.TraceDir)
	assert.Equal(t, "runs.db", cfg.History)
	assert.True(t, cfg.RawMode)
	assert.Equal(t, 512, cfg.EvaluatorCacheSize)
}

func TestLoad_Empty(t *testing.T) {
	cfg, err := Load(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", "tracing:\n  endpoint: x\n", "field endpoint not found"},
		{"bad level", "logging:\n  level: loud\n", "Logging.Level must be one of"},
		{"bad addr", "metrics:\n  addr: nowhere\n", "Metrics.Addr must be host:port"},
		{"bad rate", "tracing:\n  sampling_rate: 2\n", "Tracing.SamplingRate must be lte 1"},
		{"negative cache", "evaluator_cache_size: -1\n", "EvaluatorCacheSize must be gte 0"},
		{"bad yaml", "logging: [\n", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ReportsEveryViolation(t *testing.T) {
	_, err := Load(strings.NewReader("logging:\n  level: loud\n  format: xml\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Logging.Level")
	assert.Contains(t, err.Error(), "Logging.Format")
}

func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "rpaflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("raw_mode: true\n"), 0o600))
	cfg, err = LoadFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.RawMode)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
