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
	VWorld VWorldConfig `yaml:"vworld" mapstructure:"vworld"`
	CRS    CRSConfig    `yaml:"crs" mapstructure:"crs"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// VWorldConfig holds V-World geocoding API settings.
//
// UserAgent and Referer are sent with every request. Keys issued with a
// referrer allow-list reject requests whose Referer does not match, so both
// are configuration rather than hard-coded literals.
type VWorldConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	Referer     string  `yaml:"referer" mapstructure:"referer"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// CRSConfig selects the coordinate reference system pair for the converter.
// Source is the geodetic CRS addresses are resolved in (4326 or 4019);
// Target is the projected CRS written to the TMX/TMY columns (5186).
type CRSConfig struct {
	Source int `yaml:"source" mapstructure:"source"`
	Target int `yaml:"target" mapstructure:"target"`
}

// BatchConfig configures batch geocoding.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the upload/geocode/download server.
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
	v.SetEnvPrefix("GEOBATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. The empty key default also registers the path so an
	// env-only GEOBATCH_VWORLD_KEY survives Unmarshal.
	v.SetDefault("vworld.key", "")
	v.SetDefault("vworld.base_url", "https://api.vworld.kr/req/address")
	v.SetDefault("vworld.user_agent", "Mozilla/5.0 (compatible; geobatch/1.0)")
	v.SetDefault("vworld.referer", "")
	v.SetDefault("vworld.timeout_secs", 10)
	v.SetDefault("vworld.rate_limit", 20.0)
	v.SetDefault("crs.source", 4326)
	v.SetDefault("crs.target", 5186)
	v.SetDefault("batch.concurrency", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
