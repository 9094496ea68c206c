package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fwdproxy/internal/cache"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Admin    AdminConfig    `yaml:"admin"`
	Cache    CacheConfig    `yaml:"cache"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Address        string   `yaml:"address"`
	MaxConnections int      `yaml:"maxConnections"`
	BlockCIDRs     []string `yaml:"blockCIDRs"`
}

// AdminConfig controls the metrics and stats endpoint. An empty address
// disables it.
type AdminConfig struct {
	Address string `yaml:"address"`
}

type CacheConfig struct {
	Enabled        *bool `yaml:"enabled,omitempty"`
	MaxBytes       int64 `yaml:"maxBytes"`
	MaxObjectBytes int64 `yaml:"maxObjectBytes"`
}

type UpstreamConfig struct {
	DialTimeout time.Duration `yaml:"dialTimeout"`
	ReadTimeout time.Duration `yaml:"readTimeout"`
	SOCKS5      string        `yaml:"socks5"`
	UserAgent   string        `yaml:"userAgent"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}

	if cfg.Cache.MaxBytes <= 0 {
		cfg.Cache.MaxBytes = cache.MaxCacheSize
	}

	if cfg.Cache.MaxObjectBytes <= 0 {
		cfg.Cache.MaxObjectBytes = cache.MaxObjectSize
	}

	if cfg.Upstream.DialTimeout <= 0 {
		cfg.Upstream.DialTimeout = 30 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

func (cfg *Config) validate() error {
	if cfg.Server.MaxConnections < 0 {
		return fmt.Errorf("server.maxConnections must not be negative, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Cache.MaxObjectBytes > cfg.Cache.MaxBytes {
		return fmt.Errorf("cache.maxObjectBytes (%d) exceeds cache.maxBytes (%d)", cfg.Cache.MaxObjectBytes, cfg.Cache.MaxBytes)
	}
	if cfg.Upstream.ReadTimeout < 0 {
		return fmt.Errorf("upstream.readTimeout must not be negative")
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", cfg.Log.Format)
	}
	return nil
}

func (cfg *Config) CacheEnabled() bool {
	if cfg.Cache.Enabled != nil {
		return *cfg.Cache.Enabled
	}
	return true
}

// SetPort points the proxy listener at the given port on all interfaces.
func (cfg *Config) SetPort(port string) {
	cfg.Server.Address = ":" + port
}
