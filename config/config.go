// Package config loads node settings from a YAML file with LIQUID_
// environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"liquid-node/models"
)

type Config struct {
	Server   ServerConfig  `mapstructure:"server"`
	Log      LogConfig     `mapstructure:"log"`
	LevelDB  LevelDBConfig `mapstructure:"leveldb"`
	Features FeatureConfig `mapstructure:"features"`
	Differ   DifferConfig  `mapstructure:"differ"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	AppLogFile string `mapstructure:"app_log_file"` // empty logs to stdout
	Level      string `mapstructure:"level"`
	Encoding   string `mapstructure:"encoding"` // json or console
}

type LevelDBConfig struct {
	Path       string `mapstructure:"path"`
	BlockCache int    `mapstructure:"block_cache"`
}

type FeatureConfig struct {
	CheckPeriod               int                `mapstructure:"check_period"`
	ActivationThreshold       int                `mapstructure:"activation_threshold"`
	AutoShutdownOnUnsupported bool               `mapstructure:"auto_shutdown_on_unsupported"`
	Implemented               []models.FeatureID `mapstructure:"implemented"`
}

type DifferConfig struct {
	MaxTxAheadMillis  int64 `mapstructure:"max_tx_ahead_ms"`
	MaxTxBehindMillis int64 `mapstructure:"max_tx_behind_ms"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("leveldb.path", "data/chain")
	v.SetDefault("leveldb.block_cache", 1024)
	v.SetDefault("features.check_period", 10000)
	v.SetDefault("features.activation_threshold", 9000)
	v.SetDefault("features.auto_shutdown_on_unsupported", true)
	v.SetDefault("features.implemented", []int{1, 2, 3, 4})
	v.SetDefault("differ.max_tx_ahead_ms", 90*60*1000)
	v.SetDefault("differ.max_tx_behind_ms", 2*60*60*1000)
}

// Load reads the config file at path. An empty path uses defaults and the
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LIQUID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Log.Encoding != "json" && c.Log.Encoding != "console" {
		result = multierror.Append(result, fmt.Errorf("log.encoding %q must be json or console", c.Log.Encoding))
	}
	if c.LevelDB.Path == "" {
		result = multierror.Append(result, fmt.Errorf("leveldb.path must be set"))
	}
	if c.LevelDB.BlockCache <= 0 {
		result = multierror.Append(result, fmt.Errorf("leveldb.block_cache must be positive"))
	}
	if c.Features.CheckPeriod <= 0 {
		result = multierror.Append(result, fmt.Errorf("features.check_period must be positive"))
	}
	if c.Features.ActivationThreshold <= 0 || c.Features.ActivationThreshold > c.Features.CheckPeriod {
		result = multierror.Append(result, fmt.Errorf("features.activation_threshold %d must be within (0, %d]",
			c.Features.ActivationThreshold, c.Features.CheckPeriod))
	}
	if c.Differ.MaxTxAheadMillis < 0 || c.Differ.MaxTxBehindMillis < 0 {
		result = multierror.Append(result, fmt.Errorf("differ windows must not be negative"))
	}
	return result.ErrorOrNil()
}
