// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Agent() AgentConfig
	Perception() PerceptionConfig
	Recovery() RecoveryConfig

	// Agent setters used by CLI flags.
	SetAgentMaxSteps(int)
	SetAgentScope(schemas.PermissionScope)
	SetAgentConfirmationRequired(bool)
	SetAgentAllowedDomains([]string)

	// Browser setters.
	SetBrowserHeadless(bool)
	SetBrowserHumanoidEnabled(bool)
}

// Config holds the entire application configuration. It uses private fields
// to enforce access through the Interface's getter methods.
type Config struct {
	logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	agent      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	perception PerceptionConfig `mapstructure:"perception" yaml:"perception"`
	recovery   RecoveryConfig   `mapstructure:"recovery" yaml:"recovery"`
}

func (c *Config) Logger() LoggerConfig         { return c.logger }
func (c *Config) Browser() BrowserConfig       { return c.browser }
func (c *Config) Agent() AgentConfig           { return c.agent }
func (c *Config) Perception() PerceptionConfig { return c.perception }
func (c *Config) Recovery() RecoveryConfig     { return c.recovery }

func (c *Config) SetAgentMaxSteps(n int)                      { c.agent.MaxSteps = n }
func (c *Config) SetAgentScope(s schemas.PermissionScope)     { c.agent.DefaultScope = s }
func (c *Config) SetAgentConfirmationRequired(b bool)         { c.agent.ConfirmationRequired = b }
func (c *Config) SetAgentAllowedDomains(domains []string)     { c.agent.AllowedDomains = domains }
func (c *Config) SetBrowserHeadless(b bool)                   { c.browser.Headless = b }
func (c *Config) SetBrowserHumanoidEnabled(b bool)            { c.browser.Humanoid.Enabled = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser driver.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration  `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	Humanoid          HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
}

// HumanoidConfig tunes the human-like input synthesis persona.
type HumanoidConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Fitts's Law intercept/slope (milliseconds).
	FittsA float64 `mapstructure:"fitts_a" yaml:"fitts_a"`
	FittsB float64 `mapstructure:"fitts_b" yaml:"fitts_b"`

	// Cursor noise.
	PerlinAmplitude  float64 `mapstructure:"perlin_amplitude" yaml:"perlin_amplitude"`
	GaussianStrength float64 `mapstructure:"gaussian_strength" yaml:"gaussian_strength"`

	// Click dwell bounds (milliseconds between press and release).
	ClickHoldMinMs int `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs int `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`

	// Keystroke timing (milliseconds).
	KeyHoldMeanMs    float64 `mapstructure:"key_hold_mean_ms" yaml:"key_hold_mean_ms"`
	KeyHoldStdDevMs  float64 `mapstructure:"key_hold_stddev_ms" yaml:"key_hold_stddev_ms"`
	KeyPauseMeanMs   float64 `mapstructure:"key_pause_mean_ms" yaml:"key_pause_mean_ms"`
	KeyPauseStdDevMs float64 `mapstructure:"key_pause_stddev_ms" yaml:"key_pause_stddev_ms"`

	// Scrolling.
	ScrollIncrements int `mapstructure:"scroll_increments" yaml:"scroll_increments"`
}

// AgentConfig governs the plan/execute/recover/learn loop.
type AgentConfig struct {
	MaxSteps             int                     `mapstructure:"max_steps" yaml:"max_steps"`
	DefaultScope         schemas.PermissionScope `mapstructure:"default_scope" yaml:"default_scope"`
	ConfirmationRequired bool                    `mapstructure:"confirmation_required" yaml:"confirmation_required"`
	AllowedDomains       []string                `mapstructure:"allowed_domains" yaml:"allowed_domains"`
	// EnforceScope aborts steps whose action kind exceeds the plan's scope.
	// When false, exceedance is logged and the step proceeds.
	EnforceScope     bool          `mapstructure:"enforce_scope" yaml:"enforce_scope"`
	MemoryPath       string        `mapstructure:"memory_path" yaml:"memory_path"`
	ActionsPerSecond float64       `mapstructure:"actions_per_second" yaml:"actions_per_second"`
	StepTimeout      time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
}

// PerceptionConfig tunes the perception engine.
type PerceptionConfig struct {
	// MinTextConfidence drops extracted text regions below this confidence.
	MinTextConfidence float64 `mapstructure:"min_text_confidence" yaml:"min_text_confidence"`
	// MaxStructuralElements bounds the DOM walk.
	MaxStructuralElements int `mapstructure:"max_structural_elements" yaml:"max_structural_elements"`
}

// RecoveryConfig tunes the failure recovery engine.
type RecoveryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// BaseWait is the initial wait used by wait-based strategies; every
	// subsequent wait is bounded by MaxWait.
	BaseWait time.Duration `mapstructure:"base_wait" yaml:"base_wait"`
	MaxWait  time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	// ScrollAmount is the pixel delta used by scroll_and_retry.
	ScrollAmount int `mapstructure:"scroll_amount" yaml:"scroll_amount"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "taskpilot")
	v.SetDefault("logger.log_file", "taskpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 800})

	// -- Humanoid persona --
	v.SetDefault("browser.humanoid.enabled", true)
	v.SetDefault("browser.humanoid.fitts_a", 120.0)
	v.SetDefault("browser.humanoid.fitts_b", 110.0)
	v.SetDefault("browser.humanoid.perlin_amplitude", 1.8)
	v.SetDefault("browser.humanoid.gaussian_strength", 0.6)
	v.SetDefault("browser.humanoid.click_hold_min_ms", 45)
	v.SetDefault("browser.humanoid.click_hold_max_ms", 130)
	v.SetDefault("browser.humanoid.key_hold_mean_ms", 55.0)
	v.SetDefault("browser.humanoid.key_hold_stddev_ms", 15.0)
	v.SetDefault("browser.humanoid.key_pause_mean_ms", 70.0)
	v.SetDefault("browser.humanoid.key_pause_stddev_ms", 28.0)
	v.SetDefault("browser.humanoid.scroll_increments", 5)

	// -- Agent --
	v.SetDefault("agent.max_steps", 50)
	v.SetDefault("agent.default_scope", "read")
	v.SetDefault("agent.confirmation_required", true)
	v.SetDefault("agent.allowed_domains", []string{})
	v.SetDefault("agent.enforce_scope", false)
	v.SetDefault("agent.memory_path", "~/.taskpilot/memory.json")
	v.SetDefault("agent.actions_per_second", 2.0)
	v.SetDefault("agent.step_timeout", "45s")

	// -- Perception --
	v.SetDefault("perception.min_text_confidence", 0.4)
	v.SetDefault("perception.max_structural_elements", 400)

	// -- Recovery --
	v.SetDefault("recovery.enabled", true)
	v.SetDefault("recovery.base_wait", "1s")
	v.SetDefault("recovery.max_wait", "10s")
	v.SetDefault("recovery.scroll_amount", 400)
}

// fileConfig mirrors Config with exported fields so viper can decode into
// it; Config itself keeps its fields private behind the Interface.
type fileConfig struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Perception PerceptionConfig `mapstructure:"perception"`
	Recovery   RecoveryConfig   `mapstructure:"recovery"`
}

func (f fileConfig) toConfig() *Config {
	return &Config{
		logger:     f.Logger,
		browser:    f.Browser,
		agent:      f.Agent,
		perception: f.Perception,
		recovery:   f.Recovery,
	}
}

// NewDefaultConfig creates a new configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return fc.toConfig()
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg := fc.toConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	switch c.agent.DefaultScope {
	case schemas.ScopeRead, schemas.ScopeWrite, schemas.ScopeSubmit, schemas.ScopePayment:
	default:
		return fmt.Errorf("agent.default_scope %q is not one of read/write/submit/payment", c.agent.DefaultScope)
	}
	if c.agent.ActionsPerSecond <= 0 {
		return fmt.Errorf("agent.actions_per_second must be positive")
	}
	if c.recovery.BaseWait <= 0 || c.recovery.MaxWait < c.recovery.BaseWait {
		return fmt.Errorf("recovery.base_wait must be positive and no greater than recovery.max_wait")
	}
	if h := c.browser.Humanoid; h.ClickHoldMinMs < 0 || h.ClickHoldMaxMs < h.ClickHoldMinMs {
		return fmt.Errorf("browser.humanoid click hold bounds are inverted")
	}
	return nil
}

// ResolveMemoryPath expands the configured memory path ("~" aware) into an
// absolute location.
func (a AgentConfig) ResolveMemoryPath() (string, error) {
	p, err := homedir.Expand(a.MemoryPath)
	if err != nil {
		return "", fmt.Errorf("expanding memory path %q: %w", a.MemoryPath, err)
	}
	return filepath.Clean(p), nil
}
