// Package config loads settings from an optional YAML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SWC_LOG_LEVEL.
const EnvPrefix = "SWC"

// Config holds all application configuration.
type Config struct {
	// Dev loads the plugin from DevDir instead of a release.
	Dev bool `mapstructure:"dev" yaml:"dev" json:"dev"`
	// Cache allows reuse of a previously downloaded release asset.
	Cache bool `mapstructure:"cache" yaml:"cache" json:"cache"`
	// Locator is the import locator the release tag is read from.
	Locator string `mapstructure:"locator" yaml:"locator" json:"locator"`
	// Kind is the plugin transport: shared, process or wasm.
	Kind        string `mapstructure:"kind" yaml:"kind" json:"kind"`
	DevDir      string `mapstructure:"dev_dir" yaml:"dev_dir" json:"dev_dir"`
	CacheDir    string `mapstructure:"cache_dir" yaml:"cache_dir" json:"cache_dir"`
	ReleaseBase string `mapstructure:"release_base" yaml:"release_base" json:"release_base"`

	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	Download DownloadConfig `mapstructure:"download" yaml:"download" json:"download"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

type DownloadConfig struct {
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dev", false)
	v.SetDefault("cache", true)
	v.SetDefault("locator", "")
	v.SetDefault("kind", "shared")
	v.SetDefault("dev_dir", "./target/debug")
	v.SetDefault("cache_dir", "")
	v.SetDefault("release_base", "https://api.github.com/repos/nestdotland/deno_swc/releases")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.retry_delay", time.Second)
	v.SetDefault("download.timeout", 5*time.Minute)
}

// Default returns the configuration with no file and no environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &cfg
}

// Load reads configuration from path, when non-empty, and the environment.
//
// SWC_* variables override the file. The plain DEV and CACHE variables are
// honored when their SWC_ forms are unset. They are switches: any non-empty
// value turns them on unless it parses as false.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if _, ok := os.LookupEnv(EnvPrefix + "_DEV"); !ok {
		if s, ok := os.LookupEnv("DEV"); ok {
			cfg.Dev = Switch(s)
		}
	}
	if _, ok := os.LookupEnv(EnvPrefix + "_CACHE"); !ok {
		if s, ok := os.LookupEnv("CACHE"); ok && s != "" {
			cfg.Cache = Switch(s)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Switch interprets an environment switch. The empty string is off, values
// strconv.ParseBool understands keep their meaning, and anything else is on.
func Switch(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return true
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Kind) {
	case "", "shared", "process", "wasm":
	default:
		return fmt.Errorf("invalid kind %q: want shared, process or wasm", c.Kind)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid log format %q: want console or json", c.Log.Format)
	}
	if c.Download.MaxRetries < 0 {
		return fmt.Errorf("download.max_retries %d is negative", c.Download.MaxRetries)
	}
	return nil
}
