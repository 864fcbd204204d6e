package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the propsheet configuration
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Properties PropertiesConfig `mapstructure:"properties"`
	Columns    ColumnsConfig    `mapstructure:"columns"`
	Commands   CommandsConfig   `mapstructure:"commands"`
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// PropertiesConfig holds descriptor extraction preferences
type PropertiesConfig struct {
	ShowExpensive      bool `mapstructure:"show_expensive"`
	CollapseSingleRoot bool `mapstructure:"collapse_single_root"`
}

// ColumnsConfig selects and configures the column state store
type ColumnsConfig struct {
	Store      string        `mapstructure:"store"`
	Path       string        `mapstructure:"path"`
	DSN        string        `mapstructure:"dsn"`
	Table      string        `mapstructure:"table"`
	RedisAddr  string        `mapstructure:"redis_addr"`
	RedisKey   string        `mapstructure:"redis_key"`
	FlushDelay time.Duration `mapstructure:"flush_delay"`
	Watch      bool          `mapstructure:"watch"`
}

// CommandsConfig configures the command history
type CommandsConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// AuthConfig configures edit authorization
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

// Column store kinds
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Load loads the configuration from propsheet.yml or propsheet.yaml in the working directory
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom loads the configuration, searching dir for propsheet.yml or propsheet.yaml
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("properties.show_expensive", false)
	v.SetDefault("properties.collapse_single_root", true)
	v.SetDefault("columns.store", StoreFile)
	v.SetDefault("columns.path", defaultColumnsPath())
	v.SetDefault("columns.table", "propsheet_columns")
	v.SetDefault("columns.redis_addr", "localhost:6379")
	v.SetDefault("columns.redis_key", "propsheet:columns")
	v.SetDefault("columns.flush_delay", 3*time.Second)
	v.SetDefault("columns.watch", false)
	v.SetDefault("commands.max_depth", 100)
	v.SetDefault("server.port", 4070)
	v.SetDefault("server.host", "localhost")

	v.SetConfigName("propsheet")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("PROPSHEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// defaultColumnsPath returns the per-user location of the column state file
func defaultColumnsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "propsheet-columns.json"
	}
	return filepath.Join(dir, "propsheet", "columns.json")
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Columns.Store {
	case StoreFile:
		if cfg.Columns.Path == "" {
			return fmt.Errorf("columns.path is required for the %q store", StoreFile)
		}
	case StoreSQLite, StorePostgres:
		if cfg.Columns.DSN == "" {
			return fmt.Errorf("columns.dsn is required for the %q store", cfg.Columns.Store)
		}
	case StoreRedis:
		if cfg.Columns.RedisAddr == "" {
			return fmt.Errorf("columns.redis_addr is required for the %q store", StoreRedis)
		}
	default:
		return fmt.Errorf("columns.store must be one of file, sqlite, postgres, redis; got: %s", cfg.Columns.Store)
	}

	if cfg.Columns.FlushDelay < 0 {
		return fmt.Errorf("columns.flush_delay must not be negative, got: %s", cfg.Columns.FlushDelay)
	}
	if cfg.Commands.MaxDepth < 0 {
		return fmt.Errorf("commands.max_depth must not be negative, got: %d", cfg.Commands.MaxDepth)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got: %d", cfg.Server.Port)
	}
	return nil
}
