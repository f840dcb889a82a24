// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is constructed once
// at process entry and passed down explicitly; components never consult the
// environment themselves.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Gandalf  GandalfConfig  `mapstructure:"gandalf" yaml:"gandalf"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Userdata UserdataConfig `mapstructure:"userdata" yaml:"userdata"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// BinaryPath pins the Chrome/Chromium executable. When empty, a fixed
	// list of well-known binary names is probed on PATH.
	BinaryPath string   `mapstructure:"binary_path" yaml:"binary_path"`
	Args       []string `mapstructure:"args" yaml:"args"`
	// SettleTimeout bounds how long a navigation may keep loading before
	// the page load is forcibly stopped. Zero disables the stop.
	SettleTimeout time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout"`
}

// GandalfConfig tunes the interaction with the challenge page.
type GandalfConfig struct {
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	WaitTimeout  time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// AnswerGrace is how long to keep polling for a non-empty answer after
	// the answer element appeared but its text has not populated yet.
	AnswerGrace time.Duration `mapstructure:"answer_grace" yaml:"answer_grace"`
}

// LLMConfig configures the OpenRouter collaborator.
type LLMConfig struct {
	Model      string        `mapstructure:"model" yaml:"model"`
	APIKey     string        `mapstructure:"api_key" yaml:"-"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	Referer    string        `mapstructure:"referer" yaml:"referer"`
	Title      string        `mapstructure:"title" yaml:"title"`
	APITimeout time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	// RequestsPerMinute paces outbound generation calls. Zero disables
	// pacing.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// AgentConfig holds settings for the orchestration loop.
type AgentConfig struct {
	MaxRounds    int    `mapstructure:"max_rounds" yaml:"max_rounds"`
	HistoryLimit int    `mapstructure:"history_limit" yaml:"history_limit"`
	Guidance     string `mapstructure:"guidance" yaml:"guidance"`
	TemplatePath string `mapstructure:"template_path" yaml:"template_path"`
}

// UserdataConfig names the on-disk state shared across runs.
type UserdataConfig struct {
	Dir             string `mapstructure:"dir" yaml:"dir"`
	CookieFile      string `mapstructure:"cookie_file" yaml:"cookie_file"`
	StorageFile     string `mapstructure:"storage_file" yaml:"storage_file"`
	LatestURLFile   string `mapstructure:"latest_url_file" yaml:"latest_url_file"`
	InteractionsLog string `mapstructure:"interactions_log" yaml:"interactions_log"`
	TranscriptDir   string `mapstructure:"transcript_dir" yaml:"transcript_dir"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "gandalf-cli")
	v.SetDefault("logger.log_file", "gandalf.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.settle_timeout", "5s")

	// -- Gandalf --
	v.SetDefault("gandalf.base_url", "https://gandalf.lakera.ai/baseline")
	v.SetDefault("gandalf.wait_timeout", "15s")
	v.SetDefault("gandalf.poll_interval", "250ms")
	v.SetDefault("gandalf.answer_grace", "2s")

	// -- LLM --
	v.SetDefault("llm.model", "anthropic/claude-3.5-sonnet")
	v.SetDefault("llm.endpoint", "https://openrouter.ai/api/v1/chat/completions")
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.requests_per_minute", 0)

	// -- Agent --
	v.SetDefault("agent.max_rounds", 10)
	v.SetDefault("agent.history_limit", 20)

	// -- Userdata --
	v.SetDefault("userdata.dir", "userdata")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	cfg.ResolveUserdataPaths()
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("llm.api_key", "OPENROUTER_API_KEY")
	v.BindEnv("llm.model", "OPENROUTER_MODEL")
	v.BindEnv("llm.referer", "OPENROUTER_REFERER")
	v.BindEnv("llm.title", "OPENROUTER_TITLE")
	v.BindEnv("gandalf.base_url", "LAKERA_URL")
	v.BindEnv("userdata.dir", "USERDATA_DIR")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.ResolveUserdataPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ResolveUserdataPaths fills any unset userdata file path relative to the
// configured userdata directory.
func (c *Config) ResolveUserdataPaths() {
	if c.Userdata.Dir == "" {
		c.Userdata.Dir = "userdata"
	}
	if c.Userdata.CookieFile == "" {
		c.Userdata.CookieFile = filepath.Join(c.Userdata.Dir, "cookies.json")
	}
	if c.Userdata.StorageFile == "" {
		c.Userdata.StorageFile = filepath.Join(c.Userdata.Dir, "lakera-storage.json")
	}
	if c.Userdata.LatestURLFile == "" {
		c.Userdata.LatestURLFile = filepath.Join(c.Userdata.Dir, "latest-level.url")
	}
	if c.Userdata.InteractionsLog == "" {
		c.Userdata.InteractionsLog = filepath.Join(c.Userdata.Dir, "interactions.jsonl")
	}
	if c.Userdata.TranscriptDir == "" {
		c.Userdata.TranscriptDir = filepath.Join(c.Userdata.Dir, "transcripts")
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Gandalf.BaseURL == "" {
		return fmt.Errorf("gandalf.base_url is a required configuration field")
	}
	if c.Gandalf.WaitTimeout <= 0 {
		return fmt.Errorf("gandalf.wait_timeout must be a positive duration")
	}
	if c.Gandalf.PollInterval <= 0 {
		return fmt.Errorf("gandalf.poll_interval must be a positive duration")
	}
	if c.Agent.MaxRounds <= 0 {
		return fmt.Errorf("agent.max_rounds must be a positive integer")
	}
	if c.Agent.HistoryLimit < 0 {
		return fmt.Errorf("agent.history_limit must not be negative")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute must not be negative")
	}
	return nil
}
