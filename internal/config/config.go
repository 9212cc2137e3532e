package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	SendBuffer int           `mapstructure:"send_buffer"`

	MatchRetryInterval time.Duration `mapstructure:"match_retry_interval"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	StaleAfter         time.Duration `mapstructure:"stale_after"`

	MaxMessagesPerSecond float64 `mapstructure:"max_messages_per_second"`
	MessageBurst         int     `mapstructure:"message_burst"`

	ICEServers []string `mapstructure:"ice_servers"`
}

func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName if present and falls back to defaults otherwise.
// Any key can be overridden by ROULETTE_<KEY>.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("roulette")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("match_retry_interval", "3s")
	v.SetDefault("sweep_interval", "30s")
	v.SetDefault("stale_after", "120s")
	v.SetDefault("max_messages_per_second", 20)
	v.SetDefault("message_burst", 40)
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Dur("match_retry", cfg.MatchRetryInterval).
		Dur("stale_after", cfg.StaleAfter).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MatchRetryInterval <= 0 {
		return fmt.Errorf("match_retry_interval must be positive")
	}
	if c.SweepInterval <= 0 || c.StaleAfter <= 0 {
		return fmt.Errorf("sweep_interval and stale_after must be positive")
	}
	if c.StaleAfter <= c.PingPeriod {
		return fmt.Errorf("stale_after (%s) must exceed ping_period (%s)", c.StaleAfter, c.PingPeriod)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive")
	}
	return nil
}
