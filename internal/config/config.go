// Package config loads service configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Log        LogConfig                 `mapstructure:"log"`
	Cache      CacheConfig               `mapstructure:"cache"`
	Resilience ResilienceConfig          `mapstructure:"resilience"`
	Resolve    ResolveConfig             `mapstructure:"resolve"`
	Registries map[string]RegistryConfig `mapstructure:"registries"`
	Tracing    TracingConfig             `mapstructure:"tracing"`
}

type ServerConfig struct {
	HTTPAddr   string `mapstructure:"http_addr"`
	HealthAddr string `mapstructure:"health_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CacheConfig struct {
	LocalMaxSize int           `mapstructure:"local_max_size"`
	LocalTTL     time.Duration `mapstructure:"local_ttl"`
	RemoteTTL    time.Duration `mapstructure:"remote_ttl"`
	RedisAddr    string        `mapstructure:"redis_addr"`
	RedisDB      int           `mapstructure:"redis_db"`
	RedisPass    string        `mapstructure:"redis_password"`
	SyncChannel  string        `mapstructure:"sync_channel"`
}

type ResilienceConfig struct {
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

type ResolveConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	DefaultDepth   int           `mapstructure:"default_depth"`
	MaxDepth       int           `mapstructure:"max_depth"`
	Timeout        time.Duration `mapstructure:"timeout"`

	// ConflictTiebreak selects the fallback constraint under a true conflict
	// when parent counts split evenly: "first-seen" or "highest".
	ConflictTiebreak string `mapstructure:"conflict_tiebreak"`
}

// RegistryConfig configures one ecosystem's upstream endpoints. The first
// mirror is the primary; the rest are failover targets in order.
type RegistryConfig struct {
	Mirrors []string `mapstructure:"mirrors"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: ":8370", HealthAddr: ":8371"},
		Log:    LogConfig{Level: "info", Format: "text"},
		Cache: CacheConfig{
			LocalMaxSize: 1000,
			LocalTTL:     time.Hour,
			RemoteTTL:    24 * time.Hour,
			SyncChannel:  "librarymaster:cache:sync",
		},
		Resilience: ResilienceConfig{
			MaxRetries:       3,
			RetryDelay:       500 * time.Millisecond,
			MaxDelay:         10 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
			RequestTimeout:   30 * time.Second,
		},
		Resolve: ResolveConfig{
			MaxConcurrency:   10,
			DefaultDepth:     1,
			MaxDepth:         10,
			Timeout:          45 * time.Second,
			ConflictTiebreak: "first-seen",
		},
		Tracing: TracingConfig{SampleRate: 1.0, Environment: "development"},
	}
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Resolve.MaxConcurrency <= 0 {
		warnings = append(warnings, fmt.Sprintf("resolve.max_concurrency %d is not positive, falling back to 10", c.Resolve.MaxConcurrency))
	}
	if c.Resolve.MaxDepth > 0 && c.Resolve.DefaultDepth > c.Resolve.MaxDepth {
		warnings = append(warnings, fmt.Sprintf("resolve.default_depth %d exceeds max_depth %d", c.Resolve.DefaultDepth, c.Resolve.MaxDepth))
	}
	if c.Resilience.BreakerThreshold <= 0 {
		warnings = append(warnings, fmt.Sprintf("resilience.breaker_threshold %d is not positive", c.Resilience.BreakerThreshold))
	}
	switch c.Resolve.ConflictTiebreak {
	case "", "first-seen", "highest":
	default:
		warnings = append(warnings, fmt.Sprintf("resolve.conflict_tiebreak %q is unknown (expected first-seen or highest)", c.Resolve.ConflictTiebreak))
	}
	if c.Cache.RedisAddr == "" {
		warnings = append(warnings, "cache.redis_addr is empty; running with local cache tier only")
	}
	for eco, reg := range c.Registries {
		if len(reg.Mirrors) == 0 {
			warnings = append(warnings, fmt.Sprintf("registries.%s has no mirrors configured", eco))
		}
	}

	return warnings
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("LIBRARYMASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return cfg, nil
}
