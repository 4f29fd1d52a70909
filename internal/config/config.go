// Package config loads router settings from an optional YAML file and
// SWAPROUTER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/olyamironova/swap-router/internal/genesis"
	"github.com/spf13/viper"
)

const EnvPrefix = "SWAPROUTER"

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

var (
	ErrUnknownStorage = errors.New("unknown storage driver")
	ErrMissingDSN     = errors.New("postgres storage needs storage.postgres_dsn")
)

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Migrate     bool   `mapstructure:"migrate"`
	// Reset truncates a postgres ledger before genesis seeds it.
	Reset bool `mapstructure:"reset"`
}

// RedisConfig enables the shared depth cache when Addr is set.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

type ChainConfig struct {
	SlotDuration time.Duration `mapstructure:"slot_duration"`
	DexProgram   string        `mapstructure:"dex_program"`
	TokenProgram string        `mapstructure:"token_program"`
}

type TelemetryConfig struct {
	ServiceName  string  `mapstructure:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Genesis   genesis.Config  `mapstructure:"genesis"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 5*time.Second)
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.migrate", true)
	v.SetDefault("storage.reset", true)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Minute)
	v.SetDefault("redis.key_prefix", "swaprouter")
	v.SetDefault("rate_limit.per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("chain.slot_duration", 400*time.Millisecond)
	v.SetDefault("chain.dex_program", "srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX")
	v.SetDefault("chain.token_program", solana.TokenProgramID.String())
	v.SetDefault("telemetry.service_name", "swaprouter")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.sample_rate", 1.0)
}

// Load reads path when it is non-empty, then applies environment overrides
// such as SWAPROUTER_HTTP_ADDR.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return ErrMissingDSN
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorage, c.Storage.Driver)
	}
	if _, err := c.DexProgramID(); err != nil {
		return err
	}
	if _, err := c.TokenProgramID(); err != nil {
		return err
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate_limit values must not be negative")
	}
	if c.Chain.SlotDuration <= 0 {
		return errors.New("chain.slot_duration must be positive")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate %v outside [0,1]", c.Telemetry.SampleRate)
	}
	return nil
}

func (c *Config) DexProgramID() (solana.PublicKey, error) {
	k, err := solana.PublicKeyFromBase58(c.Chain.DexProgram)
	if err != nil {
		return k, fmt.Errorf("chain.dex_program: %w", err)
	}
	return k, nil
}

func (c *Config) TokenProgramID() (solana.PublicKey, error) {
	k, err := solana.PublicKeyFromBase58(c.Chain.TokenProgram)
	if err != nil {
		return k, fmt.Errorf("chain.token_program: %w", err)
	}
	return k, nil
}
