// Package config loads the weatherbar settings. Every value has a built-in
// default, so the program runs with no config file and no environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // city timezones resolve even on hosts without zoneinfo

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"weatherbar/internal/models"
)

const envPrefix = "WEATHERBAR"

// APIConfig holds the upstream provider settings.
type APIConfig struct {
	Key      string        `mapstructure:"key"`
	BaseURL  string        `mapstructure:"base_url"`
	Units    string        `mapstructure:"units"`
	Language string        `mapstructure:"lang"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RetryConfig is the flat retry policy for upstream requests.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

// CacheConfig holds the weather cache freshness window.
type CacheConfig struct {
	Freshness time.Duration `mapstructure:"freshness"`
}

// PathsConfig locates the state files.
type PathsConfig struct {
	IndexFile string `mapstructure:"index_file"`
	CacheFile string `mapstructure:"cache_file"`
	ErrorLog  string `mapstructure:"error_log"`
}

// DisplayConfig controls rendering.
type DisplayConfig struct {
	Uppercase bool `mapstructure:"uppercase"`
}

// LoggingConfig controls the stderr logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig controls the optional node_exporter textfile.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// Config aggregates all configuration sections.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Display DisplayConfig `mapstructure:"display"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Cities  []models.City `mapstructure:"cities"`
}

// DefaultCities is the rotation used when the config file names none.
func DefaultCities() []models.City {
	return []models.City{
		{DisplayName: "La Paz", Query: "La Paz,BO", Timezone: "America/La_Paz"},
		{DisplayName: "Amsterdam", Query: "Amsterdam,NL", Timezone: "Europe/Amsterdam"},
		{DisplayName: "Helsinki", Query: "Helsinki,FI", Timezone: "Europe/Helsinki"},
		{DisplayName: "Tokyo", Query: "Tokyo,JP", Timezone: "Asia/Tokyo"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.key", "02a821687721a64a16cf83990f2ff186")
	v.SetDefault("api.base_url", "http://api.openweathermap.org/data/2.5")
	v.SetDefault("api.units", "metric")
	v.SetDefault("api.lang", "en")
	v.SetDefault("api.timeout", 2*time.Second)
	v.SetDefault("retry.max_attempts", 10)
	v.SetDefault("retry.delay", 5*time.Second)
	v.SetDefault("cache.freshness", 300*time.Second)
	v.SetDefault("paths.index_file", "/tmp/current_city_index.txt")
	v.SetDefault("paths.cache_file", "/tmp/weather_cache.json")
	v.SetDefault("paths.error_log", "/tmp/weather_error.log")
	v.SetDefault("display.uppercase", true)
	v.SetDefault("logging.level", "warn")
	v.SetDefault("metrics.textfile", "")
}

// LoadConfig reads config.yaml from the usual locations on the OS filesystem,
// then applies WEATHERBAR_* environment overrides.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range searchPaths() {
		v.AddConfigPath(dir)
	}
	return Load(v)
}

// LoadFile reads the config file at path on fsys. Tests use it with an
// in-memory filesystem.
func LoadFile(fsys afero.Fs, path string) (*Config, error) {
	v := viper.New()
	v.SetFs(fsys)
	v.SetConfigFile(path)
	return Load(v)
}

// Load applies defaults and environment bindings to v, reads its config file
// if one is found, and unmarshals the result.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Cities) == 0 {
		cfg.Cities = DefaultCities()
	}

	return &cfg, nil
}

// Validate checks the values the pipeline relies on.
func (c *Config) Validate() error {
	if len(c.Cities) == 0 {
		return errors.New("at least one city is required")
	}
	for i, city := range c.Cities {
		if city.DisplayName == "" || city.Query == "" {
			return fmt.Errorf("city %d: display_name and query are required", i)
		}
		if _, err := time.LoadLocation(city.Timezone); err != nil {
			return fmt.Errorf("city %q: invalid timezone %q: %w", city.DisplayName, city.Timezone, err)
		}
	}
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry.delay must not be negative, got %s", c.Retry.Delay)
	}
	if c.Cache.Freshness <= 0 {
		return fmt.Errorf("cache.freshness must be positive, got %s", c.Cache.Freshness)
	}
	if c.Paths.IndexFile == "" || c.Paths.CacheFile == "" || c.Paths.ErrorLog == "" {
		return errors.New("paths.index_file, paths.cache_file and paths.error_log are required")
	}
	return nil
}

func searchPaths() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "weatherbar"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "weatherbar"))
	}
	return append(dirs, ".")
}
