package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherbar/internal/models"
	"weatherbar/internal/repository"
	"weatherbar/pkg/filestore"
	"weatherbar/pkg/metrics"
)

const (
	indexFile = "/tmp/current_city_index.txt"
	cacheFile = "/tmp/weather_cache.json"
	errorFile = "/tmp/weather_error.log"
)

var testCities = []models.City{
	{DisplayName: "La Paz", Query: "La Paz,BO", Timezone: "America/La_Paz"},
	{DisplayName: "Amsterdam", Query: "Amsterdam,NL", Timezone: "Europe/Amsterdam"},
	{DisplayName: "Helsinki", Query: "Helsinki,FI", Timezone: "Europe/Helsinki"},
	{DisplayName: "Tokyo", Query: "Tokyo,JP", Timezone: "Asia/Tokyo"},
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type serviceFixture struct {
	fs      afero.Fs
	clock   *fakeClock
	up      *upstream
	timer   *recordingTimer
	metrics *metrics.Collector
	service *StatusService
}

func newServiceFixture(t *testing.T, fsys afero.Fs, respond func(int, http.ResponseWriter, *http.Request)) *serviceFixture {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 3, 14, 8, 26, 0, 0, time.UTC)}
	up := newUpstream(t, respond)
	m := metrics.NewCollector("status_test")
	logger := testLogger()

	store := filestore.New(fsys, logger, m)
	fetcher, timer := newTestFetcher(up.baseURL(), RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Second}, m)

	service := NewStatusService(
		testCities,
		repository.NewIndexStore(store, indexFile, logger, m),
		repository.NewWeatherCache(store, cacheFile, 300*time.Second, clock.Now, logger, m),
		repository.NewErrorLog(store, errorFile, clock.Now),
		fetcher,
		clock.Now,
		logger,
		m,
	)

	return &serviceFixture{fs: fsys, clock: clock, up: up, timer: timer, metrics: m, service: service}
}

func (f *serviceFixture) run(t *testing.T, advance bool) *models.Status {
	t.Helper()
	status, err := f.service.Run(context.Background(), advance)
	require.NoError(t, err)
	return status
}

func TestStatusService_CacheWindow(t *testing.T) {
	f := newServiceFixture(t, afero.NewMemMapFs(), replyJSON(http.StatusOK, okPayload))

	first := f.run(t, false)
	require.NotNil(t, first.Weather)
	assert.Equal(t, int32(1), f.up.hits.Load())

	f.clock.Advance(299 * time.Second)
	second := f.run(t, false)
	require.NotNil(t, second.Weather)
	assert.Equal(t, int32(1), f.up.hits.Load(), "fresh cache must not hit the network")
	assert.JSONEq(t, okPayload, string(second.Weather.Raw))

	f.clock.Advance(time.Second)
	f.run(t, false)
	assert.Equal(t, int32(2), f.up.hits.Load(), "cache at the freshness boundary is stale")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CacheLookupsTotal.WithLabelValues("miss")))

	data, err := afero.ReadFile(f.fs, cacheFile)
	require.NoError(t, err)
	var record models.CacheRecord
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "La Paz,BO", record.Query)
	assert.Equal(t, f.clock.now.Local().Format(repository.TimestampLayout), record.LastUpdate)
}

func TestStatusService_Rotation(t *testing.T) {
	f := newServiceFixture(t, afero.NewMemMapFs(), replyJSON(http.StatusOK, okPayload))
	require.NoError(t, afero.WriteFile(f.fs, indexFile, []byte("1"), 0o644))

	var names []string
	for i := 0; i < len(testCities); i++ {
		status := f.run(t, true)
		names = append(names, status.City.DisplayName)
	}

	assert.Equal(t, []string{"Helsinki", "Tokyo", "La Paz", "Amsterdam"}, names)
	assert.Equal(t, []string{"Helsinki,FI", "Tokyo,JP", "La Paz,BO", "Amsterdam,NL"}, f.up.queries())

	data, err := afero.ReadFile(f.fs, indexFile)
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.RotationsTotal))
}

func TestStatusService_NoAdvanceKeepsIndex(t *testing.T) {
	f := newServiceFixture(t, afero.NewMemMapFs(), replyJSON(http.StatusOK, okPayload))
	require.NoError(t, afero.WriteFile(f.fs, indexFile, []byte("3"), 0o644))

	status := f.run(t, false)

	assert.Equal(t, "Tokyo", status.City.DisplayName)
	assert.Equal(t, "Asia/Tokyo", status.Local.Location().String())
	assert.Equal(t, 17, status.Local.Hour())

	data, err := afero.ReadFile(f.fs, indexFile)
	require.NoError(t, err)
	assert.Equal(t, "3", string(data))
}

func TestStatusService_CorruptIndexRecovers(t *testing.T) {
	f := newServiceFixture(t, afero.NewMemMapFs(), replyJSON(http.StatusOK, okPayload))
	require.NoError(t, afero.WriteFile(f.fs, indexFile, []byte("garbage"), 0o644))

	status := f.run(t, true)

	assert.Equal(t, "Amsterdam", status.City.DisplayName)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StateRecoveriesTotal.WithLabelValues("index")))
}

func TestStatusService_CachedCityChangeRefetches(t *testing.T) {
	f := newServiceFixture(t, afero.NewMemMapFs(), replyJSON(http.StatusOK, okPayload))

	f.run(t, false)
	f.run(t, true)

	assert.Equal(t, []string{"La Paz,BO", "Amsterdam,NL"}, f.up.queries())
}

func TestStatusService_UnusableCachedPayloadRefetches(t *testing.T) {
	f := newServiceFixture(t, afero.NewMemMapFs(), replyJSON(http.StatusOK, okPayload))
	record := models.CacheRecord{
		LastUpdate: f.clock.now.Local().Format(repository.TimestampLayout),
		Query:      "La Paz,BO",
		Weather:    json.RawMessage(`{"main":{"humidity":50}}`),
	}
	data, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(f.fs, cacheFile, data, 0o644))

	status := f.run(t, false)

	require.NotNil(t, status.Weather)
	assert.Equal(t, int32(1), f.up.hits.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StateRecoveriesTotal.WithLabelValues("cache")))
}

func TestStatusService_FetchFailureIsLogged(t *testing.T) {
	f := newServiceFixture(t, afero.NewMemMapFs(), replyJSON(http.StatusInternalServerError, ""))

	status := f.run(t, false)

	require.Error(t, status.Err)
	assert.Nil(t, status.Weather)
	assert.Equal(t, "La Paz", status.City.DisplayName)
	assert.Equal(t, int32(3), f.up.hits.Load())
	assert.Len(t, f.timer.waits, 2)

	exists, err := afero.Exists(f.fs, cacheFile)
	require.NoError(t, err)
	assert.False(t, exists, "failed fetch must not be cached")

	f.clock.Advance(time.Minute)
	f.run(t, false)

	data, err := afero.ReadFile(f.fs, errorFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)

	stamp := f.clock.now.Add(-time.Minute).Local().Format(repository.ErrorLogLayout)
	assert.True(t, strings.HasPrefix(lines[0], stamp+": Request failed after 3 attempts"), lines[0])
	assert.Contains(t, lines[1], "Request failed after 3 attempts")
}

func TestStatusService_InvalidPayloadIsReported(t *testing.T) {
	f := newServiceFixture(t, afero.NewMemMapFs(), replyJSON(http.StatusOK, badPayload))

	status := f.run(t, false)

	require.Error(t, status.Err)
	assert.Contains(t, status.Err.Error(), "invalid weather payload")
	assert.Equal(t, int32(1), f.up.hits.Load())

	exists, err := afero.Exists(f.fs, errorFile)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStatusService_IndexWriteFailureIsFatal(t *testing.T) {
	f := newServiceFixture(t, afero.NewReadOnlyFs(afero.NewMemMapFs()), replyJSON(http.StatusOK, okPayload))

	status, err := f.service.Run(context.Background(), true)

	require.Error(t, err)
	assert.Nil(t, status)
	assert.Contains(t, err.Error(), "failed to persist city index")
	assert.Equal(t, int32(0), f.up.hits.Load())
}

func TestStatusService_CacheWriteFailureIsFatal(t *testing.T) {
	f := newServiceFixture(t, afero.NewReadOnlyFs(afero.NewMemMapFs()), replyJSON(http.StatusOK, okPayload))

	status, err := f.service.Run(context.Background(), false)

	require.Error(t, err)
	assert.Nil(t, status)
	assert.Contains(t, err.Error(), "failed to save weather cache")
	assert.Equal(t, int32(1), f.up.hits.Load())
}

func TestStatusService_ErrorLogFailureIsFatal(t *testing.T) {
	f := newServiceFixture(t, afero.NewReadOnlyFs(afero.NewMemMapFs()), replyJSON(http.StatusInternalServerError, ""))

	status, err := f.service.Run(context.Background(), false)

	require.Error(t, err)
	assert.Nil(t, status)
	assert.Contains(t, err.Error(), "failed to append error log")
}

func TestStatusService_UnknownTimezoneFallsBackToUTC(t *testing.T) {
	f := newServiceFixture(t, afero.NewMemMapFs(), replyJSON(http.StatusOK, okPayload))
	f.service.cities = []models.City{{DisplayName: "Nowhere", Query: "Nowhere", Timezone: "Mars/Olympus"}}

	status := f.run(t, false)

	assert.Equal(t, time.UTC, status.Local.Location())
}
