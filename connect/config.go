// Package connect turns a connection URL into a ready odm.Store. It also
// owns configuration loading and logger construction for programs built on
// the mapper.
package connect

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the connection settings.
type Config struct {
	// URL selects the backend by scheme: nedb://, memory://, sqlite://,
	// bolt:// or mongodb://.
	URL string `mapstructure:"url"`
	// Database names the MongoDB database. Other backends ignore it.
	Database string `mapstructure:"database"`
	// Debug enables development logging.
	Debug bool `mapstructure:"debug"`
	// Timeout bounds connecting to the backend.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Defaults.
const (
	DefaultURL      = "nedb://memory"
	DefaultDatabase = "docmap"
	DefaultTimeout  = 10 * time.Second
)

// NewViper returns a viper instance reading DOCMAP_* environment variables
// and, when present, a config file. An explicit path must exist; otherwise
// docmap.{yaml,json} is looked up in the working directory and
// $HOME/.docmap. DOCMAP_CONFIG names a file when path is empty.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("url", DefaultURL)
	v.SetDefault("database", DefaultDatabase)
	v.SetDefault("debug", false)
	v.SetDefault("timeout", DefaultTimeout)

	v.SetEnvPrefix("DOCMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("DOCMAP_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("docmap")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.docmap")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// FromViper decodes a Config from v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.URL == "" {
		return Config{}, fmt.Errorf("config: url must not be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return cfg, nil
}

// LoadConfig reads the configuration from the environment and the config
// file at path (or the default locations when path is empty).
func LoadConfig(path string) (Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return Config{}, err
	}
	return FromViper(v)
}
