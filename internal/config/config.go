// Package config loads the run configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"go.ngs.io/ecotrend/internal/adapter/store"
	"go.ngs.io/ecotrend/internal/domain"
	"go.ngs.io/ecotrend/internal/forest"
)

// Environment variables recognised by Load.
const (
	EnvConfigPath = "ECOTREND_CONFIG"
	EnvOutputDir  = "ECOTREND_OUTPUT_DIR"
	EnvBoundary   = "ECOTREND_BOUNDARY"
	EnvWorkers    = "ECOTREND_WORKERS"
	EnvMaxCells   = "ECOTREND_MAX_CELLS"
	EnvTimeout    = "ECOTREND_TIMEOUT"
)

// Config is the complete, immutable run configuration.
type Config struct {
	Years       YearRange         `yaml:"years" json:"years"`
	Trend       TrendConfig       `yaml:"trend" json:"trend"`
	Attribution AttributionConfig `yaml:"attribution" json:"attribution"`
	Dominance   DominanceConfig   `yaml:"dominance" json:"dominance"`
	Boundary    string            `yaml:"boundary" json:"boundary"`
	OutputDir   string            `yaml:"output_dir" json:"output_dir"`
	Engine      EngineConfig      `yaml:"engine" json:"engine"`
}

// YearRange is the inclusive range of analysed years.
type YearRange struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// List returns every year of the range.
func (y YearRange) List() []int {
	return domain.YearRange(y.Start, y.End)
}

// StackConfig locates the annual files of one variable.
type StackConfig struct {
	Name        string `yaml:"name" json:"name"`
	Dir         string `yaml:"dir" json:"dir"`
	Pattern     string `yaml:"pattern" json:"pattern"`
	Variable    string `yaml:"variable" json:"variable"`
	Categorical bool   `yaml:"categorical" json:"categorical"`
}

// Source converts the stack configuration to a store source.
func (s StackConfig) Source() store.Source {
	return store.Source{
		Name:        s.Name,
		Dir:         s.Dir,
		Pattern:     s.Pattern,
		Variable:    s.Variable,
		Categorical: s.Categorical,
	}
}

// DriverConfig is an explanatory variable and its dominance group.
type DriverConfig struct {
	StackConfig `yaml:",inline"`
	Group       string `yaml:"group" json:"group"`
}

// TrendConfig holds the trend stage settings.
type TrendConfig struct {
	MinSamples             int           `yaml:"min_samples" json:"min_samples"`
	MinSignificanceSamples int           `yaml:"min_significance_samples" json:"min_significance_samples"`
	Alpha                  float64       `yaml:"alpha" json:"alpha"`
	Stacks                 []StackConfig `yaml:"stacks" json:"stacks"`
}

// AttributionConfig holds the attribution stage settings.
type AttributionConfig struct {
	MinSamples          int            `yaml:"min_samples" json:"min_samples"`
	Epsilon             float64        `yaml:"epsilon" json:"epsilon"`
	Trees               int            `yaml:"trees" json:"trees"`
	MaxDepth            int            `yaml:"max_depth" json:"max_depth"`
	Seed                int64          `yaml:"seed" json:"seed"`
	BaselineSampleCells int            `yaml:"baseline_sample_cells" json:"baseline_sample_cells"`
	Response            StackConfig    `yaml:"response" json:"response"`
	Drivers             []DriverConfig `yaml:"drivers" json:"drivers"`
}

// Enabled reports whether an attribution response is configured.
func (a AttributionConfig) Enabled() bool {
	return a.Response.Name != ""
}

// DominanceConfig holds the dominance rule settings.
type DominanceConfig struct {
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
}

// EngineConfig holds scheduling settings.
type EngineConfig struct {
	Workers   int      `yaml:"workers" json:"workers"`
	BlockRows int      `yaml:"block_rows" json:"block_rows"`
	MaxCells  int      `yaml:"max_cells" json:"max_cells"`
	Timeout   Duration `yaml:"timeout" json:"timeout"`
	Progress  bool     `yaml:"progress" json:"progress"`
}

// Duration is a time.Duration read from strings such as "90s" or "2h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Default returns a configuration with every threshold at its standard value.
func Default() *Config {
	fc := forest.DefaultConfig()
	return &Config{
		Years: YearRange{Start: 2000, End: 2023},
		Trend: TrendConfig{
			MinSamples:             domain.DefaultMinTrendSamples,
			MinSignificanceSamples: domain.DefaultMinSignificanceSamples,
			Alpha:                  domain.DefaultSignificanceLevel,
		},
		Attribution: AttributionConfig{
			MinSamples:          domain.DefaultMinAttributionSamples,
			Epsilon:             domain.DefaultAnomalyEpsilon,
			Trees:               fc.Trees,
			MaxDepth:            fc.MaxDepth,
			Seed:                fc.Seed,
			BaselineSampleCells: 20000,
		},
		Dominance: DominanceConfig{Tolerance: domain.DefaultDominanceTolerance},
		OutputDir: "results",
		Engine:    EngineConfig{BlockRows: 16, Progress: true},
	}
}

// Load reads the YAML file at path on top of Default, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	//nolint:gosec // G304: path is supplied by the operator.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv(EnvBoundary); v != "" {
		c.Boundary = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, EnvWorkers, err)
		}
		c.Engine.Workers = n
	}
	if v := os.Getenv(EnvMaxCells); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, EnvMaxCells, err)
		}
		c.Engine.MaxCells = n
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, EnvTimeout, err)
		}
		c.Engine.Timeout = Duration(d)
	}
	return nil
}

// Validate checks the configuration for structural errors.
//
//nolint:gocyclo // One branch per documented rule.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.Years.End < c.Years.Start {
		return invalid("years.end %d is before years.start %d", c.Years.End, c.Years.Start)
	}
	if c.Trend.MinSamples < 2 {
		return invalid("trend.min_samples must be >= 2, got %d", c.Trend.MinSamples)
	}
	if c.Trend.MinSignificanceSamples < 3 {
		return invalid("trend.min_significance_samples must be >= 3, got %d", c.Trend.MinSignificanceSamples)
	}
	if c.Trend.Alpha <= 0 || c.Trend.Alpha >= 1 {
		return invalid("trend.alpha must be in (0, 1), got %g", c.Trend.Alpha)
	}
	if c.Dominance.Tolerance < 0 {
		return invalid("dominance.tolerance must be >= 0, got %g", c.Dominance.Tolerance)
	}
	if c.Engine.Workers < 0 || c.Engine.MaxCells < 0 || c.Engine.Timeout < 0 {
		return invalid("engine workers, max_cells and timeout must be >= 0")
	}
	if c.Engine.BlockRows < 1 {
		return invalid("engine.block_rows must be >= 1, got %d", c.Engine.BlockRows)
	}

	names := make(map[string]bool)
	for i, s := range c.Trend.Stacks {
		if err := validateStack(s); err != nil {
			return invalid("trend.stacks[%d]: %v", i, err)
		}
		if names[s.Name] {
			return invalid("duplicate trend stack %q", s.Name)
		}
		names[s.Name] = true
	}

	if !c.Attribution.Enabled() {
		if len(c.Trend.Stacks) == 0 {
			return invalid("nothing to do: no trend stacks and no attribution response")
		}
		return nil
	}

	a := c.Attribution
	if err := validateStack(a.Response); err != nil {
		return invalid("attribution.response: %v", err)
	}
	if a.MinSamples < 2 {
		return invalid("attribution.min_samples must be >= 2, got %d", a.MinSamples)
	}
	if a.Epsilon < 0 {
		return invalid("attribution.epsilon must be >= 0, got %g", a.Epsilon)
	}
	if a.BaselineSampleCells < 0 {
		return invalid("attribution.baseline_sample_cells must be >= 0, got %d", a.BaselineSampleCells)
	}
	if err := c.ForestConfig().Validate(); err != nil {
		return invalid("attribution: %v", err)
	}
	if len(a.Drivers) == 0 {
		return fmt.Errorf("%w: attribution has no drivers", domain.ErrMissingDriver)
	}
	drivers := make(map[string]bool)
	for i, d := range a.Drivers {
		if err := validateStack(d.StackConfig); err != nil {
			return invalid("attribution.drivers[%d]: %v", i, err)
		}
		if drivers[d.Name] {
			return invalid("duplicate driver %q", d.Name)
		}
		drivers[d.Name] = true
		if _, err := domain.ParseGroup(d.Group); err != nil {
			return fmt.Errorf("driver %s: %w", d.Name, err)
		}
	}
	return nil
}

func validateStack(s StackConfig) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Dir == "" {
		return fmt.Errorf("%s: dir is required", s.Name)
	}
	if !strings.Contains(s.Pattern, "{year}") {
		return fmt.Errorf("%s: pattern %q must contain {year}", s.Name, s.Pattern)
	}
	return nil
}

// TrendEstimator builds the trend estimator described by the configuration.
func (c *Config) TrendEstimator() domain.TrendEstimator {
	return domain.TrendEstimator{
		MinSlopeSamples:        c.Trend.MinSamples,
		MinSignificanceSamples: c.Trend.MinSignificanceSamples,
		Alpha:                  c.Trend.Alpha,
	}
}

// ForestConfig builds the per-cell ensemble configuration.
func (c *Config) ForestConfig() forest.Config {
	fc := forest.DefaultConfig()
	fc.Trees = c.Attribution.Trees
	fc.MaxDepth = c.Attribution.MaxDepth
	fc.Seed = c.Attribution.Seed
	return fc
}

// Attributor builds the per-cell attribution model.
func (c *Config) Attributor() domain.Attributor {
	categorical := make([]bool, len(c.Attribution.Drivers))
	for i, d := range c.Attribution.Drivers {
		categorical[i] = d.Categorical
	}
	return domain.Attributor{
		MinSamples:  c.Attribution.MinSamples,
		Forest:      c.ForestConfig(),
		Categorical: categorical,
	}
}

// Anomalizer builds the anomaly normalizer.
func (c *Config) Anomalizer() domain.Anomalizer {
	return domain.Anomalizer{Epsilon: c.Attribution.Epsilon}
}

// Classifier builds the dominance classifier. Groups must have been
// validated.
func (c *Config) Classifier() domain.Classifier {
	partition := make(domain.Partition, len(c.Attribution.Drivers))
	for i, d := range c.Attribution.Drivers {
		partition[i] = domain.Group(d.Group)
	}
	return domain.Classifier{Partition: partition, Tolerance: c.Dominance.Tolerance}
}

// DriverNames returns the driver names in configuration order.
func (c *Config) DriverNames() []string {
	names := make([]string, len(c.Attribution.Drivers))
	for i, d := range c.Attribution.Drivers {
		names[i] = d.Name
	}
	return names
}
