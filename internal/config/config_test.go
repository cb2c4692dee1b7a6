package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherbar/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://api.openweathermap.org/data/2.5", cfg.API.BaseURL)
	assert.Equal(t, "metric", cfg.API.Units)
	assert.Equal(t, "en", cfg.API.Language)
	assert.Equal(t, 2*time.Second, cfg.API.Timeout)
	assert.Equal(t, 10, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Retry.Delay)
	assert.Equal(t, 300*time.Second, cfg.Cache.Freshness)
	assert.Equal(t, "/tmp/current_city_index.txt", cfg.Paths.IndexFile)
	assert.Equal(t, "/tmp/weather_cache.json", cfg.Paths.CacheFile)
	assert.Equal(t, "/tmp/weather_error.log", cfg.Paths.ErrorLog)
	assert.True(t, cfg.Display.Uppercase)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Empty(t, cfg.Metrics.Textfile)
	assert.Equal(t, DefaultCities(), cfg.Cities)
}

func TestLoadFile_Overrides(t *testing.T) {
	fsys := afero.NewMemMapFs()
	content := `
api:
  key: test-key
  timeout: 750ms
retry:
  max_attempts: 3
  delay: 0s
display:
  uppercase: false
cities:
  - display_name: Lisbon
    query: Lisbon,PT
    timezone: Europe/Lisbon
  - display_name: Reykjavik
    query: Reykjavik,IS
    timezone: Atlantic/Reykjavik
`
	require.NoError(t, afero.WriteFile(fsys, "/etc/weatherbar/config.yaml", []byte(content), 0o644))

	cfg, err := LoadFile(fsys, "/etc/weatherbar/config.yaml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "test-key", cfg.API.Key)
	assert.Equal(t, 750*time.Millisecond, cfg.API.Timeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Duration(0), cfg.Retry.Delay)
	assert.False(t, cfg.Display.Uppercase)
	assert.Equal(t, []models.City{
		{DisplayName: "Lisbon", Query: "Lisbon,PT", Timezone: "Europe/Lisbon"},
		{DisplayName: "Reykjavik", Query: "Reykjavik,IS", Timezone: "Atlantic/Reykjavik"},
	}, cfg.Cities)

	// untouched sections keep their defaults
	assert.Equal(t, 300*time.Second, cfg.Cache.Freshness)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(afero.NewMemMapFs(), "/etc/weatherbar/config.yaml")
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("WEATHERBAR_API_KEY", "from-env")
	t.Setenv("WEATHERBAR_DISPLAY_UPPERCASE", "false")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.API.Key)
	assert.False(t, cfg.Display.Uppercase)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no cities", func(c *Config) { c.Cities = nil }},
		{"bad timezone", func(c *Config) { c.Cities[0].Timezone = "Mars/Olympus_Mons" }},
		{"missing query", func(c *Config) { c.Cities[1].Query = "" }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"negative delay", func(c *Config) { c.Retry.Delay = -time.Second }},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }},
		{"zero freshness", func(c *Config) { c.Cache.Freshness = 0 }},
		{"empty base url", func(c *Config) { c.API.BaseURL = "" }},
		{"empty cache path", func(c *Config) { c.Paths.CacheFile = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(viper.New())
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
