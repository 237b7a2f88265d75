package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig  `mapstructure:"server"`
	Data      DataConfig    `mapstructure:"data"`
	Libraries []string      `mapstructure:"libraries"`
	Tools     ToolsConfig   `mapstructure:"tools"`
	Logging   LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DataConfig holds paths for durable state.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// ToolsConfig holds external engine settings.
type ToolsConfig struct {
	// YtdlpPath overrides PATH lookup for the yt-dlp binary.
	YtdlpPath string `mapstructure:"ytdlp_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Library is one configured download destination.
type Library struct {
	Path        string `json:"path"`
	DefaultName string `json:"defaultName"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.dromeport")
	}

	v.SetEnvPrefix("DROMEPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("data.dir", "./data")

	v.SetDefault("tools.ytdlp_path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.compress", true)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SyncStorePath returns the path of the sync definitions file.
func (c *DataConfig) SyncStorePath() string {
	return filepath.Join(c.Dir, "sync_playlists.json")
}

// DatabasePath returns the path of the sqlite history database.
func (c *DataConfig) DatabasePath() string {
	return filepath.Join(c.Dir, "dromeport.db")
}

// ParseLibraries expands the configured "path|name" entries. The name part
// is optional and falls back to the last path element.
func (c *Config) ParseLibraries() []Library {
	libraries := make([]Library, 0, len(c.Libraries))
	for _, raw := range c.Libraries {
		path, name, _ := strings.Cut(raw, "|")
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = filepath.Base(strings.TrimRight(path, "/"))
			if name == "." || name == string(filepath.Separator) {
				name = path
			}
		}
		libraries = append(libraries, Library{Path: path, DefaultName: name})
	}
	return libraries
}
