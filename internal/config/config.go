package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Match     MatchConfig     `mapstructure:"match"`
	AntiCheat AntiCheatConfig `mapstructure:"anticheat"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Session   SessionConfig   `mapstructure:"session"`
	Replay    ReplayConfig    `mapstructure:"replay"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigin   string        `mapstructure:"allowed_origin"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RateWindow      time.Duration `mapstructure:"rate_window"`
}

// MatchConfig configures match rules tunables.
type MatchConfig struct {
	GridWidth     int           `mapstructure:"grid_width"`
	GridHeight    int           `mapstructure:"grid_height"`
	TurnTimeLimit time.Duration `mapstructure:"turn_time_limit"`
	TurnCap       int           `mapstructure:"turn_cap"`
	MaxAura       int           `mapstructure:"max_aura"`
	AuraRegen     int           `mapstructure:"aura_regen"`
	RequirePath   bool          `mapstructure:"require_path"`
}

// AntiCheatConfig configures the detector thresholds.
type AntiCheatConfig struct {
	MinSubmitInterval time.Duration `mapstructure:"min_submit_interval"`
	MaxActionsPerTurn int           `mapstructure:"max_actions_per_turn"`
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig configures the rate-limiter backend. An empty address
// disables Redis and the limiter fails open.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SessionConfig configures player session tokens.
type SessionConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// ReplayConfig configures replay recording.
type ReplayConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given YAML file, with ARBITER_*
// environment variables overriding file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 60)
	v.SetDefault("server.rate_window", time.Minute)

	v.SetDefault("match.grid_width", 10)
	v.SetDefault("match.grid_height", 10)
	v.SetDefault("match.turn_time_limit", 60*time.Second)
	v.SetDefault("match.turn_cap", 30)
	v.SetDefault("match.max_aura", 10)
	v.SetDefault("match.aura_regen", 2)
	v.SetDefault("match.require_path", false)

	v.SetDefault("anticheat.min_submit_interval", 100*time.Millisecond)
	v.SetDefault("anticheat.max_actions_per_turn", 5)

	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.connect_timeout", 10*time.Second)

	v.SetDefault("redis.db", 0)

	v.SetDefault("session.ttl", 4*time.Hour)

	v.SetDefault("replay.enabled", true)
	v.SetDefault("replay.dir", "replays")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetEnvPrefix("ARBITER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Match.GridWidth <= 0 || c.Match.GridHeight <= 0 {
		return fmt.Errorf("match grid dimensions must be positive")
	}
	if c.Match.TurnTimeLimit <= 0 {
		return fmt.Errorf("turn time limit must be positive")
	}
	if c.AntiCheat.MaxActionsPerTurn <= 0 {
		return fmt.Errorf("max actions per turn must be positive")
	}
	return nil
}
