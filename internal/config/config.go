package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultLocations is the location list offered in the share-location form
var DefaultLocations = []string{
	"Langson Library",
	"Science Library",
	"Gateway Study Center",
	"Student Center",
	"Aldrich Hall",
	"Engineering Tower",
	"Social Science Plaza",
	"Anteater Recreation Center (ARC)",
	"Other",
}

// Config holds the complete application configuration
type Config struct {
	Slack   SlackConfig   `mapstructure:"slack"`
	Study   StudyConfig   `mapstructure:"study"`
	Sweeper SweeperConfig `mapstructure:"sweeper"`
	Dedupe  DedupeConfig  `mapstructure:"dedupe"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SlackConfig defines Slack connection settings
type SlackConfig struct {
	BotToken       string `mapstructure:"bot_token"` // xoxb-...
	AppToken       string `mapstructure:"app_token"` // xapp-..., Socket Mode
	Workers        int    `mapstructure:"workers"`
	RequestTimeout string `mapstructure:"request_timeout"`
	Debug          bool   `mapstructure:"debug"`
}

// StudyConfig defines study announcement settings
type StudyConfig struct {
	ChannelID       string   `mapstructure:"channel_id"` // empty: acknowledge by direct message only
	Timezone        string   `mapstructure:"timezone"`
	Locations       []string `mapstructure:"locations"`
	OtherLocation   string   `mapstructure:"other_location"`
	DefaultLocation string   `mapstructure:"default_location"`
}

// SweeperConfig defines expiry sweeper settings
type SweeperConfig struct {
	Interval       string `mapstructure:"interval"`
	RetractTimeout string `mapstructure:"retract_timeout"`
}

// DedupeConfig defines event de-duplication settings
type DedupeConfig struct {
	Backend string      `mapstructure:"backend"` // "memory" or "redis"
	Size    int         `mapstructure:"size"`
	TTL     string      `mapstructure:"ttl"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	Prefix       string `mapstructure:"prefix"`
}

// ServerConfig defines the metrics listener
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Location resolves the configured time zone
func (c StudyConfig) Location() (*time.Location, error) {
	name := strings.TrimPrefix(strings.TrimSpace(c.Timezone), ":")
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from a .env file, the config file and environment variables
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("STUDYSPOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvAliases(v); err != nil {
		return nil, err
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// KnownKeys returns the set of recognised configuration keys
func KnownKeys() map[string]bool {
	v := viper.New()
	setDefaults(v)

	keys := map[string]bool{
		// Keys without a default
		"slack.bot_token":       true,
		"slack.app_token":       true,
		"study.channel_id":      true,
		"dedupe.redis.password": true,
	}
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	return keys
}

// loadDotEnv exports variables from path into the process environment.
// Variables already set are left alone; a missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// bindEnvAliases binds the plain variable names used by existing deployments
func bindEnvAliases(v *viper.Viper) error {
	aliases := map[string]string{
		"slack.bot_token":  "SLACK_BOT_TOKEN",
		"slack.app_token":  "SLACK_APP_TOKEN",
		"study.channel_id": "STUDY_CHANNEL_ID",
		"study.timezone":   "TZ",
	}
	for key, alias := range aliases {
		prefixed := "STUDYSPOT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return fmt.Errorf("failed to bind %s: %w", alias, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Slack defaults
	v.SetDefault("slack.workers", 4)
	v.SetDefault("slack.request_timeout", "10s")
	v.SetDefault("slack.debug", false)

	// Study defaults
	v.SetDefault("study.timezone", "America/Los_Angeles")
	v.SetDefault("study.locations", DefaultLocations)
	v.SetDefault("study.other_location", "Other")
	v.SetDefault("study.default_location", "Somewhere on campus")

	// Sweeper defaults
	v.SetDefault("sweeper.interval", "60s")
	v.SetDefault("sweeper.retract_timeout", "10s")

	// Dedupe defaults
	v.SetDefault("dedupe.backend", "memory")
	v.SetDefault("dedupe.size", 4096)
	v.SetDefault("dedupe.ttl", "10m")
	v.SetDefault("dedupe.redis.host", "localhost")
	v.SetDefault("dedupe.redis.port", 6379)
	v.SetDefault("dedupe.redis.db", 0)
	v.SetDefault("dedupe.redis.pool_size", 10)
	v.SetDefault("dedupe.redis.min_idle_conns", 2)
	v.SetDefault("dedupe.redis.dial_timeout", "5s")
	v.SetDefault("dedupe.redis.read_timeout", "3s")
	v.SetDefault("dedupe.redis.write_timeout", "3s")
	v.SetDefault("dedupe.redis.prefix", "studyspot:event:")

	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.metrics_port", 9090)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.Slack.Workers <= 0 {
		return fmt.Errorf("slack.workers must be positive, got %d", cfg.Slack.Workers)
	}

	if _, err := cfg.Study.Location(); err != nil {
		return err
	}

	if len(cfg.Study.Locations) == 0 {
		return fmt.Errorf("at least one study location is required")
	}
	if len(cfg.Study.Locations) > 100 {
		return fmt.Errorf("at most 100 study locations are allowed, got %d", len(cfg.Study.Locations))
	}

	durations := map[string]string{
		"slack.request_timeout":      cfg.Slack.RequestTimeout,
		"sweeper.interval":           cfg.Sweeper.Interval,
		"sweeper.retract_timeout":    cfg.Sweeper.RetractTimeout,
		"dedupe.ttl":                 cfg.Dedupe.TTL,
		"dedupe.redis.dial_timeout":  cfg.Dedupe.Redis.DialTimeout,
		"dedupe.redis.read_timeout":  cfg.Dedupe.Redis.ReadTimeout,
		"dedupe.redis.write_timeout": cfg.Dedupe.Redis.WriteTimeout,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, value)
		}
	}

	switch cfg.Dedupe.Backend {
	case "memory":
		if cfg.Dedupe.Size <= 0 {
			return fmt.Errorf("dedupe.size must be positive, got %d", cfg.Dedupe.Size)
		}
	case "redis":
		if cfg.Dedupe.Redis.Host == "" {
			return fmt.Errorf("dedupe.redis.host is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported dedupe backend: %s (expected 'memory' or 'redis')", cfg.Dedupe.Backend)
	}

	return nil
}

// ValidateSlack checks the credentials needed to connect to Slack
func ValidateSlack(cfg SlackConfig) error {
	if cfg.BotToken == "" {
		return fmt.Errorf("slack bot token is required (slack.bot_token or SLACK_BOT_TOKEN)")
	}
	if !strings.HasPrefix(cfg.BotToken, "xoxb-") {
		return fmt.Errorf("slack bot token must start with xoxb-")
	}
	if cfg.AppToken == "" {
		return fmt.Errorf("slack app token is required (slack.app_token or SLACK_APP_TOKEN)")
	}
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return fmt.Errorf("slack app token must start with xapp-")
	}
	return nil
}
