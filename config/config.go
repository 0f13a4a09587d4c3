// Package config loads wand settings from a YAML file and WAND_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/martinemde/wand/unifiedllm"
	"github.com/martinemde/wand/workspace"
)

// Config is the complete set of user-tunable settings. It is passed by value.
type Config struct {
	Provider                string   `mapstructure:"provider" yaml:"provider"`
	APIKey                  string   `mapstructure:"apiKey" yaml:"apiKey"`
	BaseURL                 string   `mapstructure:"baseUrl" yaml:"baseUrl"`
	HighSpeedTextModel      string   `mapstructure:"highSpeedTextModel" yaml:"highSpeedTextModel"`
	StandardTextModel       string   `mapstructure:"standardTextModel" yaml:"standardTextModel"`
	StandardMultimodalModel string   `mapstructure:"standardMultimodalModel" yaml:"standardMultimodalModel"`
	Temperature             float64  `mapstructure:"temperature" yaml:"temperature"`
	MaxRetries              int      `mapstructure:"maxRetries" yaml:"maxRetries"`
	MaxFiles                int      `mapstructure:"maxFiles" yaml:"maxFiles"`
	MaxTurns                int      `mapstructure:"maxTurns" yaml:"maxTurns"`
	IgnoreDirs              []string `mapstructure:"ignoreDirs" yaml:"ignoreDirs"`
	LogLevel                string   `mapstructure:"logLevel" yaml:"logLevel"`
	Listen                  string   `mapstructure:"listen" yaml:"listen"`
}

// envNames maps config keys to their environment variables.
var envNames = map[string]string{
	"provider":                "WAND_PROVIDER",
	"apiKey":                  "WAND_API_KEY",
	"baseUrl":                 "WAND_BASE_URL",
	"highSpeedTextModel":      "WAND_HIGH_SPEED_TEXT_MODEL",
	"standardTextModel":       "WAND_STANDARD_TEXT_MODEL",
	"standardMultimodalModel": "WAND_STANDARD_MULTIMODAL_MODEL",
	"temperature":             "WAND_TEMPERATURE",
	"maxRetries":              "WAND_MAX_RETRIES",
	"maxFiles":                "WAND_MAX_FILES",
	"maxTurns":                "WAND_MAX_TURNS",
	"ignoreDirs":              "WAND_IGNORE_DIRS",
	"logLevel":                "WAND_LOG_LEVEL",
	"listen":                  "WAND_LISTEN",
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider:                "openai",
		HighSpeedTextModel:      "gpt-4o-mini",
		StandardTextModel:       "gpt-4o",
		StandardMultimodalModel: "gpt-4o",
		Temperature:             unifiedllm.DefaultTemperature,
		MaxRetries:              2,
		MaxFiles:                workspace.DefaultMaxFiles,
		MaxTurns:                10,
		IgnoreDirs:              workspace.DefaultIgnoreDirs(),
		LogLevel:                "warn",
		Listen:                  "127.0.0.1:7777",
	}
}

// Load reads configuration. When file is empty, wand.yaml is searched in
// <workspace>/.wand and $HOME/.config/wand; a missing file means defaults.
// Environment variables override file values.
func Load(file, workspaceRoot string) (Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("provider", def.Provider)
	v.SetDefault("highSpeedTextModel", def.HighSpeedTextModel)
	v.SetDefault("standardTextModel", def.StandardTextModel)
	v.SetDefault("standardMultimodalModel", def.StandardMultimodalModel)
	v.SetDefault("temperature", def.Temperature)
	v.SetDefault("maxRetries", def.MaxRetries)
	v.SetDefault("maxFiles", def.MaxFiles)
	v.SetDefault("maxTurns", def.MaxTurns)
	v.SetDefault("ignoreDirs", def.IgnoreDirs)
	v.SetDefault("logLevel", def.LogLevel)
	v.SetDefault("listen", def.Listen)

	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("wand")
		v.SetConfigType("yaml")
		if workspaceRoot != "" {
			v.AddConfigPath(filepath.Join(workspaceRoot, ".wand"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "wand"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// ConfigError reports an invalid setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// Validate checks the settings that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	switch {
	case c.Provider == "":
		return &ConfigError{Field: "provider", Reason: "must not be empty"}
	case c.StandardTextModel == "":
		return &ConfigError{Field: "standardTextModel", Reason: "must not be empty"}
	case c.HighSpeedTextModel == "":
		return &ConfigError{Field: "highSpeedTextModel", Reason: "must not be empty"}
	case c.Temperature < 0 || c.Temperature > 2:
		return &ConfigError{Field: "temperature", Reason: "must be between 0 and 2"}
	case c.MaxFiles <= 0:
		return &ConfigError{Field: "maxFiles", Reason: "must be positive"}
	case c.MaxTurns <= 0:
		return &ConfigError{Field: "maxTurns", Reason: "must be positive"}
	case c.MaxRetries < 0:
		return &ConfigError{Field: "maxRetries", Reason: "must not be negative"}
	}
	return nil
}

// LLM returns the completion backend settings.
func (c Config) LLM() unifiedllm.Config {
	return unifiedllm.Config{
		Provider:    c.Provider,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Temperature: c.Temperature,
		MaxRetries:  c.MaxRetries,
	}
}
