package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	// Server configuration
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`

	// Model artifacts
	Model    string `mapstructure:"model"`
	Metadata string `mapstructure:"metadata"`

	// Image handling
	ImageSize   int `mapstructure:"image_size"`
	MaxUploadMB int `mapstructure:"max_upload_mb"`

	// Storage
	Redis            string        `mapstructure:"redis"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	HeatmapCacheSize int           `mapstructure:"heatmap_cache_size"`
	DBPath           string        `mapstructure:"db_path"`

	// Logging
	LogFile  string `mapstructure:"log_file"`
	LogLevel string `mapstructure:"log_level"`

	// OpenTelemetry configuration
	OTELEnabled  bool   `mapstructure:"otel_enabled"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	// Feature flags
	UseMockModel bool `mapstructure:"use_mock_model"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("metrics_port", 9100)
	v.SetDefault("model", "thyroid_cnn.onnx")
	v.SetDefault("metadata", "thyroid_cnn.json")
	v.SetDefault("image_size", 224)
	v.SetDefault("max_upload_mb", 10)
	v.SetDefault("redis", "")
	v.SetDefault("cache_ttl", time.Hour)
	v.SetDefault("heatmap_cache_size", 128)
	v.SetDefault("db_path", "thyroscan.db")
	v.SetDefault("log_file", "logs/thyroscan.log")
	v.SetDefault("log_level", "info")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("use_mock_model", false)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("THYROSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("port", "THYROSCAN_PORT")
	v.BindEnv("metrics_port", "THYROSCAN_METRICS_PORT")
	v.BindEnv("model", "THYROSCAN_MODEL")
	v.BindEnv("metadata", "THYROSCAN_METADATA")
	v.BindEnv("redis", "THYROSCAN_REDIS")
	v.BindEnv("db_path", "THYROSCAN_DB_PATH")
	v.BindEnv("log_file", "THYROSCAN_LOG_FILE")
	v.BindEnv("log_level", "THYROSCAN_LOG_LEVEL")
	v.BindEnv("otel_enabled", "THYROSCAN_OTEL_ENABLED")
	v.BindEnv("otel_endpoint", "THYROSCAN_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("use_mock_model", "THYROSCAN_USE_MOCK")
}

// Load loads configuration with priority (highest to lowest):
// env vars > config file > defaults. When configPath is empty the usual
// search paths are tried and a missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/thyroscan/")
		v.AddConfigPath("$HOME/.thyroscan")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
			// Config file not found; defaults and env apply.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.Port == c.MetricsPort {
		return fmt.Errorf("port and metrics_port must be different")
	}
	if c.ImageSize <= 0 {
		return fmt.Errorf("invalid image size: %d", c.ImageSize)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d MB", c.MaxUploadMB)
	}
	if c.HeatmapCacheSize <= 0 {
		return fmt.Errorf("invalid heatmap cache size: %d", c.HeatmapCacheSize)
	}
	if !c.UseMockModel {
		if c.Model == "" {
			return fmt.Errorf("model path is required when not using the mock model")
		}
		if c.Metadata == "" {
			return fmt.Errorf("metadata path is required when not using the mock model")
		}
	}
	return nil
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int {
	return c.MaxUploadMB << 20
}
