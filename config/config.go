// Package config loads the circulation CLI settings from YAML, the environment
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"library-circulation/library"
)

// Config represents the application configuration
type Config struct {
	DataDir  string        `yaml:"dataDir"`
	Operator string        `yaml:"operator"`
	Log      LogConfig     `yaml:"log"`
	Policy   PolicyConfig  `yaml:"policy"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
	File   string `yaml:"file"`   // empty means stderr
}

// PolicyConfig holds the circulation rules. Money values are decimal strings.
type PolicyConfig struct {
	LoanPeriodDays       int            `yaml:"loanPeriodDays"`
	PerDayPenaltyRate    string         `yaml:"perDayPenaltyRate"`
	SuspensionThreshold  string         `yaml:"suspensionThreshold"`
	SuspensionPeriodDays int            `yaml:"suspensionPeriodDays"`
	ClaimExpiryHours     int            `yaml:"claimExpiryHours"`
	MaxRenewals          *int           `yaml:"maxRenewals"`
	LoanLimits           map[string]int `yaml:"loanLimits"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // empty disables the export
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from a YAML file. A missing file is not an error;
// the defaults and environment overrides still apply.
func Load(configPath string) (*Config, error) {
	var cfg Config
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := cfg.overrideWithEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() error {
	if val := os.Getenv("LIBRARY_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("LIBRARY_OPERATOR"); val != "" {
		c.Operator = val
	}

	// Log
	if val := os.Getenv("LIBRARY_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LIBRARY_LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}
	if val := os.Getenv("LIBRARY_LOG_FILE"); val != "" {
		c.Log.File = val
	}

	// Policy
	ints := []struct {
		key string
		dst *int
	}{
		{"LIBRARY_LOAN_PERIOD_DAYS", &c.Policy.LoanPeriodDays},
		{"LIBRARY_SUSPENSION_PERIOD_DAYS", &c.Policy.SuspensionPeriodDays},
		{"LIBRARY_CLAIM_EXPIRY_HOURS", &c.Policy.ClaimExpiryHours},
	}
	for _, v := range ints {
		val := os.Getenv(v.key)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s: %w", v.key, err)
		}
		*v.dst = n
	}
	if val := os.Getenv("LIBRARY_MAX_RENEWALS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("LIBRARY_MAX_RENEWALS: %w", err)
		}
		c.Policy.MaxRenewals = &n
	}
	if val := os.Getenv("LIBRARY_PER_DAY_PENALTY_RATE"); val != "" {
		c.Policy.PerDayPenaltyRate = val
	}
	if val := os.Getenv("LIBRARY_SUSPENSION_THRESHOLD"); val != "" {
		c.Policy.SuspensionThreshold = val
	}

	// Metrics
	if val := os.Getenv("LIBRARY_METRICS_TEXTFILE"); val != "" {
		c.Metrics.Textfile = val
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Operator == "" {
		c.Operator = "ADMIN"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}

	p := &c.Policy
	if p.LoanPeriodDays == 0 {
		p.LoanPeriodDays = 14
	}
	if p.PerDayPenaltyRate == "" {
		p.PerDayPenaltyRate = "0.50"
	}
	if p.SuspensionThreshold == "" {
		p.SuspensionThreshold = "20"
	}
	if p.SuspensionPeriodDays == 0 {
		p.SuspensionPeriodDays = 30
	}
	if p.ClaimExpiryHours == 0 {
		p.ClaimExpiryHours = 48
	}
	if p.MaxRenewals == nil {
		n := 2
		p.MaxRenewals = &n
	}
	if p.LoanLimits == nil {
		p.LoanLimits = map[string]int{}
	}
	for category, limit := range map[string]int{"student": 3, "teacher": 10, "staff": 5} {
		if _, ok := p.LoanLimits[category]; !ok {
			p.LoanLimits[category] = limit
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	p := c.Policy
	if p.LoanPeriodDays < 0 || p.SuspensionPeriodDays < 0 || p.ClaimExpiryHours < 0 {
		return fmt.Errorf("periods must not be negative")
	}
	if p.MaxRenewals != nil && *p.MaxRenewals < 0 {
		return fmt.Errorf("maxRenewals must not be negative")
	}
	for category, limit := range p.LoanLimits {
		switch library.Category(category) {
		case library.CategoryStudent, library.CategoryTeacher, library.CategoryStaff:
		default:
			return fmt.Errorf("unknown loan limit category %q", category)
		}
		if limit < 0 {
			return fmt.Errorf("loan limit for %s must not be negative", category)
		}
	}
	for name, val := range map[string]string{
		"perDayPenaltyRate":   p.PerDayPenaltyRate,
		"suspensionThreshold": p.SuspensionThreshold,
	} {
		d, err := decimal.NewFromString(val)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// LibraryPolicy converts the policy section. Call it on a validated Config.
func (c *Config) LibraryPolicy() library.Policy {
	p := c.Policy
	limits := make(map[library.Category]int, len(p.LoanLimits))
	for category, limit := range p.LoanLimits {
		limits[library.Category(category)] = limit
	}
	return library.Policy{
		LoanPeriod:          time.Duration(p.LoanPeriodDays) * 24 * time.Hour,
		PerDayPenaltyRate:   decimal.RequireFromString(p.PerDayPenaltyRate),
		SuspensionThreshold: decimal.RequireFromString(p.SuspensionThreshold),
		SuspensionPeriod:    time.Duration(p.SuspensionPeriodDays) * 24 * time.Hour,
		ClaimExpiry:         time.Duration(p.ClaimExpiryHours) * time.Hour,
		MaxRenewals:         *p.MaxRenewals,
		LoanLimits:          limits,
	}
}
