/*
PURPOSE:
  Defines the configuration structure and loading logic for Agent Bench.
  Adheres to "Config IS Code" philosophy.

REQUIREMENTS:
  User-specified:
  - Allow configuration of provider endpoints, models, keys, timeouts, prompts.
  - API keys come from the environment (OPENAI_API_KEY, ...).

  Implementation-discovered:
  - Needs to support YAML config files.
  - Needs to support environment variable overrides (AGENT_BENCH_...).
  - Durations are written as strings ("10s") in YAML and env.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine
  - Dependencies: spf13/viper, mitchellh/mapstructure

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - Missing config file falls back to defaults.
  - Provider resolution returns *ConfigError (fatal to a session).

IMPLEMENTATION RULES:
  - Config struct tags must carry mapstructure + yaml.
  - Defaults should be sensible (e.g., 10s command timeout).

USAGE:
  cfg, err := config.Load("agent-bench.yaml")
  pc, err := cfg.Provider(model.ProviderGemini)

RELATED FILES:
  - internal/cli/root.go
  - internal/provider/client.go (default endpoints)

MAINTENANCE:
  - Update DefaultConfig and bindEnv when adding new tuning parameters.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/daryltucker/agent-bench/internal/model"
	"github.com/daryltucker/agent-bench/internal/provider"
	"github.com/daryltucker/agent-bench/internal/tools"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENT_BENCH"

// Config represents the full configuration for Agent Bench.
type Config struct {
	Providers map[string]ProviderSettings `mapstructure:"providers" yaml:"providers"`
	HTTP      HTTPConfig                  `mapstructure:"http" yaml:"http"`
	Loop      LoopConfig                  `mapstructure:"loop" yaml:"loop"`
	Tools     ToolsConfig                 `mapstructure:"tools" yaml:"tools"`
	Store     StoreConfig                 `mapstructure:"store" yaml:"store"`
	Bench     BenchConfig                 `mapstructure:"bench" yaml:"bench"`
	Logging   LoggingConfig               `mapstructure:"logging" yaml:"logging"`
}

// ProviderSettings is the raw, file-level configuration of one provider.
type ProviderSettings struct {
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	TopP        float64 `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// HTTPConfig holds provider transport settings.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LoopConfig holds conversation loop policy.
type LoopConfig struct {
	// MaxRetries is the number of extra attempts for transient provider failures.
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	// SystemPrompt overrides the built-in seed prompt when set.
	SystemPrompt string `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// ToolsConfig holds tool executor settings.
type ToolsConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	WorkDir        string        `mapstructure:"workdir" yaml:"workdir"`
	Shell          string        `mapstructure:"shell" yaml:"shell"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	OutputLimit    int           `mapstructure:"output_limit" yaml:"output_limit"`
	Search         bool          `mapstructure:"search" yaml:"search"`
	SearchURL      string        `mapstructure:"search_url" yaml:"search_url"`
	SearchTimeout  time.Duration `mapstructure:"search_timeout" yaml:"search_timeout"`
	MaxSnippets    int           `mapstructure:"max_snippets" yaml:"max_snippets"`
}

// StoreConfig holds session store settings.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// BenchConfig holds batch benchmark settings.
type BenchConfig struct {
	Providers  []string `mapstructure:"providers" yaml:"providers"`
	Prompts    []string `mapstructure:"prompts" yaml:"prompts"`
	OutputDir  string   `mapstructure:"output_dir" yaml:"output_dir"`
	OutputFile string   `mapstructure:"output_file" yaml:"output_file"`
	Parallel   bool     `mapstructure:"parallel" yaml:"parallel"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ConfigError reports an unusable configuration. It aborts a session.
type ConfigError struct {
	Provider model.ProviderID
	Field    string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("config: provider %s: %s: %s", e.Provider, e.Field, e.Reason)
}

// IsConfigError reports whether err is a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// apiKeyEnv maps each provider to the environment variable the original
// tool read its key from.
var apiKeyEnv = map[model.ProviderID]string{
	model.ProviderOpenAI:    "OPENAI_API_KEY",
	model.ProviderSambanova: "SAMBANOVA_API_KEY",
	model.ProviderGemini:    "GEMINI_API_KEY",
	model.ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// APIKeyEnv returns the environment variable holding a provider's key.
func APIKeyEnv(id model.ProviderID) string {
	return apiKeyEnv[id]
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	providers := make(map[string]ProviderSettings, len(provider.Defaults))
	for id, d := range provider.Defaults {
		providers[string(id)] = ProviderSettings{
			BaseURL:     d.BaseURL,
			Model:       d.Model,
			Temperature: 0.1,
			TopP:        0.1,
			MaxTokens:   d.MaxTokens,
		}
	}

	return &Config{
		Providers: providers,
		HTTP:      HTTPConfig{Timeout: provider.DefaultTimeout},
		Loop: LoopConfig{
			MaxRetries: 2,
			RetryDelay: 2 * time.Second,
		},
		Tools: ToolsConfig{
			Enabled:        true,
			Search:         true,
			Shell:          tools.DefaultShell,
			CommandTimeout: tools.DefaultCommandTimeout,
			OutputLimit:    tools.DefaultOutputLimit,
			SearchURL:      tools.DefaultSearchURL,
			SearchTimeout:  tools.DefaultSearchTimeout,
			MaxSnippets:    tools.DefaultMaxSnippets,
		},
		Store: StoreConfig{Path: "chat_sessions.db"},
		Bench: BenchConfig{
			Prompts:    []string{"List the files in the current directory."},
			OutputDir:  ".",
			OutputFile: "bench_results.csv",
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches for default files in order.
// If no file found, defaults plus environment overrides are returned.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for id, env := range apiKeyEnv {
		key := fmt.Sprintf("providers.%s.api_key", id)
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("agent-bench")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "agent-bench"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every default key so env overrides and partial
// files merge with the built-in values.
func setDefaults(v *viper.Viper, d *Config) {
	for id, p := range d.Providers {
		prefix := "providers." + id + "."
		v.SetDefault(prefix+"base_url", p.BaseURL)
		v.SetDefault(prefix+"model", p.Model)
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"temperature", p.Temperature)
		v.SetDefault(prefix+"top_p", p.TopP)
		v.SetDefault(prefix+"max_tokens", p.MaxTokens)
	}
	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("loop.max_retries", d.Loop.MaxRetries)
	v.SetDefault("loop.retry_delay", d.Loop.RetryDelay)
	v.SetDefault("loop.system_prompt", d.Loop.SystemPrompt)
	v.SetDefault("tools.enabled", d.Tools.Enabled)
	v.SetDefault("tools.workdir", d.Tools.WorkDir)
	v.SetDefault("tools.shell", d.Tools.Shell)
	v.SetDefault("tools.command_timeout", d.Tools.CommandTimeout)
	v.SetDefault("tools.output_limit", d.Tools.OutputLimit)
	v.SetDefault("tools.search", d.Tools.Search)
	v.SetDefault("tools.search_url", d.Tools.SearchURL)
	v.SetDefault("tools.search_timeout", d.Tools.SearchTimeout)
	v.SetDefault("tools.max_snippets", d.Tools.MaxSnippets)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("bench.providers", d.Bench.Providers)
	v.SetDefault("bench.prompts", d.Bench.Prompts)
	v.SetDefault("bench.output_dir", d.Bench.OutputDir)
	v.SetDefault("bench.output_file", d.Bench.OutputFile)
	v.SetDefault("bench.parallel", d.Bench.Parallel)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	for name := range c.Providers {
		if _, err := model.ParseProviderID(name); err != nil {
			return &ConfigError{Field: "providers." + name, Reason: "unknown provider"}
		}
	}
	if c.Loop.MaxRetries < 0 {
		return &ConfigError{Field: "loop.max_retries", Reason: "must be >= 0"}
	}
	if c.Tools.CommandTimeout < 0 || c.Tools.SearchTimeout < 0 {
		return &ConfigError{Field: "tools", Reason: "timeouts must be >= 0"}
	}
	if c.Tools.OutputLimit < 0 {
		return &ConfigError{Field: "tools.output_limit", Reason: "must be >= 0"}
	}
	for _, p := range c.Bench.Providers {
		if _, err := model.ParseProviderID(p); err != nil {
			return &ConfigError{Field: "bench.providers", Reason: err.Error()}
		}
	}
	return nil
}

// Provider resolves the immutable config of one provider. A missing API key
// is a ConfigError: sessions cannot start without credentials.
func (c *Config) Provider(id model.ProviderID) (model.ProviderConfig, error) {
	s, ok := c.Providers[string(id)]
	if !ok {
		return model.ProviderConfig{}, &ConfigError{Provider: id, Field: "providers", Reason: "not configured"}
	}
	if s.BaseURL == "" {
		return model.ProviderConfig{}, &ConfigError{Provider: id, Field: "base_url", Reason: "is empty"}
	}
	if s.Model == "" {
		return model.ProviderConfig{}, &ConfigError{Provider: id, Field: "model", Reason: "is empty"}
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return model.ProviderConfig{}, &ConfigError{
			Provider: id,
			Field:    "api_key",
			Reason:   fmt.Sprintf("not set (export %s)", apiKeyEnv[id]),
		}
	}

	return model.ProviderConfig{
		ID:          id,
		BaseURL:     s.BaseURL,
		Model:       s.Model,
		APIKey:      strings.TrimSpace(s.APIKey),
		Temperature: s.Temperature,
		TopP:        s.TopP,
		MaxTokens:   s.MaxTokens,
	}, nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	out.Providers = make(map[string]ProviderSettings, len(c.Providers))
	for id, p := range c.Providers {
		if p.APIKey != "" {
			p.APIKey = "********"
		}
		out.Providers[id] = p
	}
	return &out
}
