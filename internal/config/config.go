package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"domino/internal/domain"
)

type Config struct {
	Log     LogConf     `mapstructure:"log"`
	Match   MatchConf   `mapstructure:"match"`
	Scoring ScoringConf `mapstructure:"scoring"`
	Mongo   MongoConf   `mapstructure:"mongo"`
	Redis   RedisConf   `mapstructure:"redis"`
	Cache   CacheConf   `mapstructure:"cache"`
}

type LogConf struct {
	Level string `mapstructure:"level"`
}

type MatchConf struct {
	Players     int    `mapstructure:"players"`
	TargetScore int    `mapstructure:"targetScore"`
	MaxRounds   int    `mapstructure:"maxRounds"` // 0 = unlimited
	MaxPip      int    `mapstructure:"maxPip"`
	BotLevel    string `mapstructure:"botLevel"`
	Seed        int64  `mapstructure:"seed"` // 0 = seeded from the clock
	// TurnTimeoutSeconds bounds how long an online player may idle before the
	// server plays for them.
	TurnTimeoutSeconds int `mapstructure:"turnTimeoutSeconds"`
}

type ScoringConf struct {
	BlockedTie string `mapstructure:"blockedTie"`
	Script     string `mapstructure:"script"` // Lua file; overrides the standard rule
}

type MongoConf struct {
	Url            string `mapstructure:"url"` // empty disables the archive
	Db             string `mapstructure:"db"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	MinPoolSize    int    `mapstructure:"minPoolSize"`
	MaxPoolSize    int    `mapstructure:"maxPoolSize"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

type RedisConf struct {
	Addr         string `mapstructure:"addr"` // empty disables the standings mirror
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"poolSize"`
	MinIdleConns int    `mapstructure:"minIdleConns"`
	TTLHours     int    `mapstructure:"ttlHours"`
}

type CacheConf struct {
	MaxCost    int64 `mapstructure:"maxCost"`
	TTLSeconds int   `mapstructure:"ttlSeconds"`
}

var ErrInvalid = errors.New("invalid config")

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("match.players", 4)
	v.SetDefault("match.targetScore", domain.DefaultTargetScore)
	v.SetDefault("match.maxRounds", 0)
	v.SetDefault("match.maxPip", domain.StandardMaxPip)
	v.SetDefault("match.botLevel", "first")
	v.SetDefault("match.seed", 0)
	v.SetDefault("match.turnTimeoutSeconds", 30)

	v.SetDefault("scoring.blockedTie", "none")
	v.SetDefault("scoring.script", "")

	v.SetDefault("mongo.url", "")
	v.SetDefault("mongo.db", "domino")
	v.SetDefault("mongo.username", "")
	v.SetDefault("mongo.password", "")
	v.SetDefault("mongo.minPoolSize", 1)
	v.SetDefault("mongo.maxPoolSize", 10)
	v.SetDefault("mongo.timeoutSeconds", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.minIdleConns", 1)
	v.SetDefault("redis.ttlHours", 24)

	v.SetDefault("cache.maxCost", 1<<20)
	v.SetDefault("cache.ttlSeconds", 300)
}

// Load reads the config file at path (optional) and applies DOMINO_*
// environment overrides, e.g. DOMINO_MATCH_PLAYERS=2.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("DOMINO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return decode(v)
}

// FromEnv builds a config from a flat key/value map such as the Nakama
// runtime env. Only keys carrying prefix are read; the remainder maps to
// a config key with underscores as separators, e.g. domino_match_players.
func FromEnv(env map[string]string, prefix string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, value := range env {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		v.Set(strings.ReplaceAll(strings.TrimPrefix(key, prefix), "_", "."), value)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the table can actually be dealt and scored.
func (c *Config) Validate() error {
	m := c.Match
	if m.Players < domain.MinPlayers || m.Players > domain.MaxPlayers {
		return fmt.Errorf("%w: match.players must be %d..%d, got %d", ErrInvalid, domain.MinPlayers, domain.MaxPlayers, m.Players)
	}
	if m.TargetScore <= 0 {
		return fmt.Errorf("%w: match.targetScore must be positive", ErrInvalid)
	}
	if m.MaxRounds < 0 {
		return fmt.Errorf("%w: match.maxRounds must not be negative", ErrInvalid)
	}
	if m.MaxPip < 0 || domain.CatalogSize(m.MaxPip) < m.Players*domain.HandSize {
		return fmt.Errorf("%w: a double-%d set cannot deal %d hands", ErrInvalid, m.MaxPip, m.Players)
	}
	switch strings.ToLower(c.Scoring.BlockedTie) {
	case "", "none", "split", "lowest-seat":
	default:
		return fmt.Errorf("%w: scoring.blockedTie %q", ErrInvalid, c.Scoring.BlockedTie)
	}
	return nil
}
