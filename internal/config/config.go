package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full engine configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Normalize NormalizeConfig `yaml:"normalize" mapstructure:"normalize"`
	Detect    DetectConfig    `yaml:"detect" mapstructure:"detect"`
	Summarize SummarizeConfig `yaml:"summarize" mapstructure:"summarize"`
	Query     QueryConfig     `yaml:"query" mapstructure:"query"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the time-series store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LLMConfig holds settings for the external language-model capability.
type LLMConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	Model         string  `yaml:"model" mapstructure:"model"`
	MaxTokens     int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerMinute float64 `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
}

// NormalizeConfig configures extraction normalization.
type NormalizeConfig struct {
	MinCellConfidence float64 `yaml:"min_cell_confidence" mapstructure:"min_cell_confidence"`
}

// DetectConfig configures event and anomaly detection.
type DetectConfig struct {
	LookbackReports    int     `yaml:"lookback_reports" mapstructure:"lookback_reports"`
	DeviationThreshold float64 `yaml:"deviation_threshold" mapstructure:"deviation_threshold"`
	MinPersistence     int     `yaml:"min_persistence" mapstructure:"min_persistence"`
	MinConfidence      float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// SummarizeConfig configures report summarization.
type SummarizeConfig struct {
	MaxChars int `yaml:"max_chars" mapstructure:"max_chars"`
}

// QueryConfig configures question answering.
type QueryConfig struct {
	BranchTimeoutSecs int `yaml:"branch_timeout_secs" mapstructure:"branch_timeout_secs"`
	TopK              int `yaml:"top_k" mapstructure:"top_k"`
}

// BatchConfig configures batch ingestion.
type BatchConfig struct {
	MaxConcurrentReports int `yaml:"max_concurrent_reports" mapstructure:"max_concurrent_reports"`
}

// ServerConfig configures the HTTP API server.
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
	v.SetEnvPrefix("DDR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/ddr.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout_secs", 30)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.rate_per_minute", 50)
	v.SetDefault("normalize.min_cell_confidence", 0.3)
	v.SetDefault("detect.lookback_reports", 7)
	v.SetDefault("detect.deviation_threshold", 3.0)
	v.SetDefault("detect.min_persistence", 2)
	v.SetDefault("detect.min_confidence", 0.5)
	v.SetDefault("summarize.max_chars", 1200)
	v.SetDefault("query.branch_timeout_secs", 10)
	v.SetDefault("query.top_k", 5)
	v.SetDefault("batch.max_concurrent_reports", 4)

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
