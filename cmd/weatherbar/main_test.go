package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherbar/internal/config"
)

const (
	configPath = "/etc/weatherbar/config.yaml"
	indexPath  = "/state/current_city_index.txt"
	payload    = `{"main":{"temp":14.6,"feels_like":13.2,"humidity":81},"weather":[{"description":"broken clouds"}],"sys":{"country":"PT"}}`
)

func TestAdvanceRequested(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want bool
	}{
		{"no arguments", nil, false},
		{"next", []string{"next"}, true},
		{"next with extra argument", []string{"next", "x"}, true},
		{"capitalized", []string{"Next"}, false},
		{"flag style", []string{"--next"}, false},
		{"next not first", []string{"x", "next"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, advanceRequested(tt.args))
		})
	}
}

// loadTestConfig writes a two-city config pointing at baseURL and loads it.
func loadTestConfig(t *testing.T, fsys afero.Fs, baseURL string) *config.Config {
	t.Helper()
	content := fmt.Sprintf(`
api:
  base_url: %s
retry:
  max_attempts: 1
paths:
  index_file: /state/current_city_index.txt
  cache_file: /state/weather_cache.json
  error_log: /state/weather_error.log
cities:
  - display_name: Lisbon
    query: Lisbon,PT
    timezone: Europe/Lisbon
  - display_name: Reykjavik
    query: Reykjavik,IS
    timezone: Atlantic/Reykjavik
`, baseURL)
	require.NoError(t, afero.WriteFile(fsys, configPath, []byte(content), 0o644))

	cfg, err := config.LoadFile(fsys, configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func newProvider(t *testing.T) string {
	t.Helper()
	router := mux.NewRouter()
	router.HandleFunc("/data/2.5/weather", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, payload)
	}).Methods(http.MethodGet)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server.URL + "/data/2.5"
}

func TestRun_Arguments(t *testing.T) {
	baseURL := newProvider(t)

	tests := []struct {
		name      string
		args      []string
		wantIndex string
		wantCity  string
	}{
		{"no arguments", nil, "0", "LISBON"},
		{"next", []string{"next"}, "1", "REYKJAVIK"},
		{"next with extra argument", []string{"next", "x"}, "1", "REYKJAVIK"},
		{"capitalized", []string{"Next"}, "0", "LISBON"},
		{"unknown argument", []string{"x", "next"}, "0", "LISBON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			cfg := loadTestConfig(t, fsys, baseURL)
			require.NoError(t, afero.WriteFile(fsys, indexPath, []byte("0"), 0o644))

			var stdout, stderr bytes.Buffer
			code := run(tt.args, cfg, fsys, &stdout, &stderr)

			require.Equal(t, 0, code, stderr.String())

			index, err := afero.ReadFile(fsys, indexPath)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIndex, string(index))

			require.Equal(t, 1, strings.Count(stdout.String(), "\n"))
			var out map[string]string
			require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
			assert.True(t, strings.HasPrefix(out["text"], tt.wantCity), out["text"])
			assert.Contains(t, out["text"], "15°C  BROKEN CLOUDS")
		})
	}
}

func TestRun_StateWriteFailure(t *testing.T) {
	baseURL := newProvider(t)
	base := afero.NewMemMapFs()
	cfg := loadTestConfig(t, base, baseURL)

	var stdout, stderr bytes.Buffer
	code := run([]string{"next"}, cfg, afero.NewReadOnlyFs(base), &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Zero(t, stdout.Len())
	assert.Contains(t, stderr.String(), "[WEATHERBAR_ERROR]")
}
