package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/ecotrend/internal/domain"
)

const sample = `
years: {start: 2000, end: 2023}
trend:
  stacks:
    - {name: EcoIndex, dir: data/EcoIndex, pattern: "{year}_EcoIndex.nc", variable: EcoIndex}
attribution:
  response: {name: EcoIndex, dir: data/EcoIndex, pattern: "{year}_EcoIndex.nc"}
  drivers:
    - {name: PR, group: climate, dir: data/PR, pattern: "{year}_PR.nc"}
    - {name: TEMP, group: climate, dir: data/TEMP, pattern: "{year}_TEMP.nc"}
    - {name: CLCD, group: human, categorical: true, dir: data/CLCD, pattern: "{year}_CLCD.nc"}
dominance: {tolerance: 0.1}
engine: {workers: 4, timeout: 90s}
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Len(t, cfg.Years.List(), 24)
	assert.Equal(t, domain.DefaultMinTrendSamples, cfg.Trend.MinSamples)
	assert.Equal(t, domain.DefaultMinSignificanceSamples, cfg.Trend.MinSignificanceSamples)
	assert.Equal(t, domain.DefaultMinAttributionSamples, cfg.Attribution.MinSamples)
	assert.Equal(t, 100, cfg.Attribution.Trees)
	assert.Equal(t, 10, cfg.Attribution.MaxDepth)
	assert.Equal(t, int64(42), cfg.Attribution.Seed)
	assert.Equal(t, 0.1, cfg.Dominance.Tolerance)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 16, cfg.Engine.BlockRows)
	assert.Equal(t, Duration(90*time.Second), cfg.Engine.Timeout)
	assert.Equal(t, "results", cfg.OutputDir)
}

func TestConfig_JSONKeys(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	out := string(data)

	for _, key := range []string{
		`"output_dir":"results"`,
		`"min_significance_samples":`,
		`"baseline_sample_cells":`,
		`"timeout":"1m30s"`,
		`"group":"human"`,
		`"categorical":true`,
	} {
		assert.Contains(t, out, key)
	}
	assert.NotContains(t, out, "MinSamples")
	assert.NotContains(t, out, "StackConfig")
}

func TestParse_Builders(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, []string{"PR", "TEMP", "CLCD"}, cfg.DriverNames())
	assert.Equal(t, domain.Partition{domain.GroupClimate, domain.GroupClimate, domain.GroupHuman}, cfg.Classifier().Partition)
	assert.Equal(t, []bool{false, false, true}, cfg.Attributor().Categorical)
	assert.Equal(t, 0.1, cfg.Classifier().Tolerance)

	src := cfg.Attribution.Drivers[2].Source()
	assert.Equal(t, "CLCD", src.Name)
	assert.True(t, src.Categorical)
	assert.Equal(t, "{year}_CLCD.nc", src.Pattern)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv(EnvOutputDir, "/tmp/out")
	t.Setenv(EnvWorkers, "2")
	t.Setenv(EnvMaxCells, "1000")
	t.Setenv(EnvTimeout, "5m")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, 2, cfg.Engine.Workers)
	assert.Equal(t, 1000, cfg.Engine.MaxCells)
	assert.Equal(t, Duration(5*time.Minute), cfg.Engine.Timeout)

	t.Setenv(EnvWorkers, "many")
	_, err = Parse([]byte(sample))
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"end before start", func(c *Config) { c.Years = YearRange{Start: 2010, End: 2000} }, domain.ErrInvalidConfig},
		{"trend floor", func(c *Config) { c.Trend.MinSamples = 1 }, domain.ErrInvalidConfig},
		{"significance floor", func(c *Config) { c.Trend.MinSignificanceSamples = 2 }, domain.ErrInvalidConfig},
		{"attribution floor", func(c *Config) { c.Attribution.MinSamples = 1 }, domain.ErrInvalidConfig},
		{"trees", func(c *Config) { c.Attribution.Trees = 0 }, domain.ErrInvalidConfig},
		{"depth", func(c *Config) { c.Attribution.MaxDepth = -1 }, domain.ErrInvalidConfig},
		{"tolerance", func(c *Config) { c.Dominance.Tolerance = -0.01 }, domain.ErrInvalidConfig},
		{"unknown group", func(c *Config) { c.Attribution.Drivers[0].Group = "ocean" }, domain.ErrInvalidConfig},
		{"duplicate driver", func(c *Config) { c.Attribution.Drivers[1].Name = "PR" }, domain.ErrInvalidConfig},
		{"no drivers", func(c *Config) { c.Attribution.Drivers = nil }, domain.ErrMissingDriver},
		{"missing placeholder", func(c *Config) { c.Trend.Stacks[0].Pattern = "EcoIndex.nc" }, domain.ErrInvalidConfig},
		{"nothing to do", func(c *Config) {
			c.Trend.Stacks = nil
			c.Attribution.Response = StackConfig{}
		}, domain.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(sample))
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestValidate_TrendOnly(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	cfg.Attribution.Response = StackConfig{}
	cfg.Attribution.Drivers = nil
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.Attribution.Enabled())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecotrend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "EcoIndex", cfg.Attribution.Response.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("years: [1, 2"))
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))

	_, err = Parse([]byte(strings.Replace(sample, "90s", "soon", 1)))
	assert.Error(t, err)
}
