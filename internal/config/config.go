package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/insightdelivered/card-statement-ledger/internal/categorizer"
	"github.com/insightdelivered/card-statement-ledger/internal/pipeline"
)

// EnvPrefix prefixes environment overrides, e.g. CARDLEDGER_BUDGET.
const EnvPrefix = "CARDLEDGER"

// Config represents the application configuration
type Config struct {
	Budget             string                 `mapstructure:"budget"`
	BillingYearHint    int                    `mapstructure:"billing_year_hint"`
	IncludePayments    bool                   `mapstructure:"include_payments"`
	RulesFile          string                 `mapstructure:"rules_file"`
	ExtraRules         []categorizer.RuleSpec `mapstructure:"extra_rules"`
	ExtraRulesPosition string                 `mapstructure:"extra_rules_position"`
	Workers            int                    `mapstructure:"workers"`
	MaxContinuation    int                    `mapstructure:"max_continuation_lines"`
	Debug              bool                   `mapstructure:"debug"`
	Log                LogConfig              `mapstructure:"log"`
	Server             ServerConfig           `mapstructure:"server"`
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address     string `mapstructure:"address"`
	BodyLimitMB int    `mapstructure:"body_limit_mb"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("budget", "0")
	v.SetDefault("billing_year_hint", 0)
	v.SetDefault("include_payments", false)
	v.SetDefault("extra_rules_position", "prepend")
	v.SetDefault("workers", pipeline.DefaultWorkers)
	v.SetDefault("max_continuation_lines", 3)
	v.SetDefault("debug", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.body_limit_mb", 32)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := load(viper.New(), "")
	if err != nil {
		// defaults alone always unmarshal
		panic(err)
	}
	return cfg
}

// LoadConfig loads configuration from file and environment variables. An
// empty path reads defaults and environment only. The file type follows
// the extension (yaml, toml, json).
func LoadConfig(configPath string) (*Config, error) {
	return load(viper.New(), configPath)
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be caught by unmarshalling.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.budget(); err != nil {
		errs = append(errs, err)
	}
	if _, err := categorizer.ParsePosition(c.ExtraRulesPosition); err != nil {
		errs = append(errs, err)
	}
	if c.BillingYearHint != 0 && (c.BillingYearHint < 1900 || c.BillingYearHint > 9999) {
		errs = append(errs, fmt.Errorf("billing_year_hint %d out of range", c.BillingYearHint))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.MaxContinuation < 0 {
		errs = append(errs, fmt.Errorf("max_continuation_lines must not be negative, got %d", c.MaxContinuation))
	}
	if _, err := categorizer.CompileRules(c.ExtraRules); err != nil {
		errs = append(errs, fmt.Errorf("extra_rules: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) budget() (decimal.Decimal, error) {
	if strings.TrimSpace(c.Budget) == "" {
		return decimal.Zero, nil
	}
	b, err := decimal.NewFromString(strings.TrimSpace(c.Budget))
	if err != nil {
		return decimal.Zero, fmt.Errorf("budget %q is not a number", c.Budget)
	}
	return b, nil
}

// PipelineConfig converts the loaded configuration into the typed
// pipeline configuration, compiling rules and reading RulesFile.
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	budget, err := c.budget()
	if err != nil {
		return pipeline.Config{}, err
	}
	pos, err := categorizer.ParsePosition(c.ExtraRulesPosition)
	if err != nil {
		return pipeline.Config{}, err
	}
	extra, err := categorizer.CompileRules(c.ExtraRules)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("extra_rules: %w", err)
	}

	var rules []categorizer.Rule
	if c.RulesFile != "" {
		rules, err = categorizer.LoadRulesFile(c.RulesFile)
		if err != nil {
			return pipeline.Config{}, err
		}
	}

	return pipeline.Config{
		Budget:          budget,
		Rules:           rules,
		ExtraRules:      extra,
		ExtraPosition:   pos,
		BillingYearHint: c.BillingYearHint,
		IncludePayments: c.IncludePayments,
		Workers:         c.Workers,
		MaxContinuation: c.MaxContinuation,
		Debug:           c.Debug,
	}, nil
}
