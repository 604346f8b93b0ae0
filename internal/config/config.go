// Package config loads portal configuration from file and environment and
// initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Agent     AgentConfig     `yaml:"agent" mapstructure:"agent"`
	Analysis  AnalysisConfig  `yaml:"analysis" mapstructure:"analysis"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds direct model API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// AgentConfig holds hosted agent-runtime settings.
type AgentConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	AgentID          string `yaml:"agent_id" mapstructure:"agent_id"`
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
}

// AnalysisConfig configures the risk-analysis pipeline.
type AnalysisConfig struct {
	// Backend selects the text-generation provider: "anthropic" or "agent".
	Backend         string `yaml:"backend" mapstructure:"backend"`
	StepTimeoutSecs int    `yaml:"step_timeout_secs" mapstructure:"step_timeout_secs"`
	MaxTokens       int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	PolicyPath      string `yaml:"policy_path" mapstructure:"policy_path"`
}

// ServerConfig configures the admin API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys without a natural default still get an empty one so
	// AutomaticEnv values survive Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "portal.db")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("agent.key", "")
	v.SetDefault("agent.base_url", "")
	v.SetDefault("agent.agent_id", "")
	v.SetDefault("analysis.policy_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("agent.poll_interval_secs", 1)
	v.SetDefault("analysis.backend", "anthropic")
	v.SetDefault("analysis.step_timeout_secs", 60)
	v.SetDefault("analysis.max_tokens", 4096)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
