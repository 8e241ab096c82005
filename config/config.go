// Package config loads tiercache settings from a file and TIERCACHE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/unkn0wn-root/tiercache/codec"
)

// EnvPrefix prefixes every environment override, e.g. TIERCACHE_S3_REGION.
const EnvPrefix = "TIERCACHE"

type Config struct {
	Codec           string `mapstructure:"codec"`
	SyncAll         bool   `mapstructure:"sync_all"`
	ReversePriority bool   `mapstructure:"reverse_priority"`
	AutoInit        bool   `mapstructure:"auto_init"`
	LogLevel        string `mapstructure:"log_level"`

	// Tiers in priority order. More than one builds a multi cache.
	Tiers []Tier `mapstructure:"tiers"`

	S3      S3Config      `mapstructure:"s3"`
	Minio   MinioConfig   `mapstructure:"minio"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Breaker BreakerConfig `mapstructure:"breaker"`
	Hot     HotConfig     `mapstructure:"hot"`
}

// Tier is one cache location and the decorators wrapped around its store.
type Tier struct {
	URI                string `mapstructure:"uri"`
	ReadOnly           bool   `mapstructure:"read_only"`
	Inactive           bool   `mapstructure:"inactive"`
	RebuildMissingMeta bool   `mapstructure:"rebuild_missing_meta"`

	HotCache bool `mapstructure:"hot_cache"`
	Retry    bool `mapstructure:"retry"`
	Breaker  bool `mapstructure:"breaker"`
	Trace    bool `mapstructure:"trace"`
}

type S3Config struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	UploadPartSize int64  `mapstructure:"upload_part_size"`
	Concurrency    int    `mapstructure:"concurrency"`
}

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type HotConfig struct {
	MaxCost     int64 `mapstructure:"max_cost"`
	NumCounters int64 `mapstructure:"num_counters"`
}

// Load reads path, if given, and applies environment overrides on top of
// the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if len(cfg.Tiers) == 0 {
		// a single tier can come from the environment alone
		if uri := v.GetString("uri"); uri != "" {
			cfg.Tiers = []Tier{{URI: uri}}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("codec", "json")
	v.SetDefault("sync_all", false)
	v.SetDefault("reverse_priority", false)
	v.SetDefault("auto_init", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("uri", "")

	v.SetDefault("s3.region", "us-east-2")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.force_path_style", false)
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.upload_part_size", 0)
	v.SetDefault("s3.concurrency", 0)

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.use_ssl", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_interval", 100*time.Millisecond)
	v.SetDefault("retry.max_interval", 2*time.Second)

	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.timeout", 30*time.Second)

	v.SetDefault("hot.max_cost", 64<<20)
	v.SetDefault("hot.num_counters", 0)
}

// Validate reports the first problem found.
func (c *Config) Validate() error {
	if len(c.Tiers) == 0 {
		return errors.New("config: at least one tier is required")
	}
	if _, err := codec.ByName[any](c.Codec); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	for i, t := range c.Tiers {
		if strings.TrimSpace(t.URI) == "" {
			return fmt.Errorf("config: tier %d has no uri", i)
		}
		if t.HotCache && c.Hot.MaxCost <= 0 {
			return fmt.Errorf("config: tier %d uses hot_cache but hot.max_cost is %d", i, c.Hot.MaxCost)
		}
	}
	if c.Retry.MaxRetries < 0 {
		return errors.New("config: retry.max_retries must not be negative")
	}
	return nil
}
