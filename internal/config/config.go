// Package config loads Mercury's runtime configuration from mercury.yaml
// (searched in the working directory and /etc/mercury) with MERCURY_*
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration tree.
type Config struct {
	DataDir string `mapstructure:"data_dir"`

	WAL struct {
		SizeThresholdBytes int64         `mapstructure:"size_threshold_bytes"`
		TimeThreshold      time.Duration `mapstructure:"time_threshold"`
	} `mapstructure:"wal"`

	Text struct {
		Disabled bool `mapstructure:"disabled"`
	} `mapstructure:"text"`

	Server struct {
		Addr           string        `mapstructure:"addr"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
	} `mapstructure:"server"`

	Service struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"service"`

	Reasoner struct {
		Rules    []string `mapstructure:"rules"`
		MaxIters int      `mapstructure:"max_iters"`
	} `mapstructure:"reasoner"`

	Log struct {
		Level  string `mapstructure:"level"`
		Pretty bool   `mapstructure:"pretty"`
	} `mapstructure:"log"`
}

// Load reads the configuration, applying defaults for anything unset. An
// explicit path overrides the search locations; a missing file is not an
// error (defaults plus environment apply).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("mercury")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/mercury")
	if path != "" {
		v.SetConfigFile(path)
	}

	v.SetDefault("data_dir", "./data")
	v.SetDefault("wal.size_threshold_bytes", int64(64<<20))
	v.SetDefault("wal.time_threshold", 5*time.Minute)
	v.SetDefault("text.disabled", false)
	v.SetDefault("server.addr", "localhost:8080")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("service.timeout", 10*time.Second)
	v.SetDefault("reasoner.rules", []string{"rdfs"})
	v.SetDefault("reasoner.max_iters", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetEnvPrefix("MERCURY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
