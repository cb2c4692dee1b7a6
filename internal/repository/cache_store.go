package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"weatherbar/internal/models"
	"weatherbar/pkg/filestore"
	"weatherbar/pkg/logging"
	"weatherbar/pkg/metrics"
)

// TimestampLayout is the ISO-8601 local timestamp written to last_update.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// WeatherCache keeps the last provider payload together with when it was
// fetched. It is best-effort: anything wrong with the file is a miss.
type WeatherCache struct {
	store     *filestore.Store
	path      string
	freshness time.Duration
	now       func() time.Time
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewWeatherCache creates a cache at path. now is the clock; nil means time.Now.
func NewWeatherCache(store *filestore.Store, path string, freshness time.Duration, now func() time.Time, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WeatherCache {
	if now == nil {
		now = time.Now
	}
	return &WeatherCache{
		store:     store,
		path:      path,
		freshness: freshness,
		now:       now,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// ShouldRefresh reports whether query needs an upstream fetch. When it does
// not, the fresh record is returned.
func (c *WeatherCache) ShouldRefresh(ctx context.Context, query string) (bool, *models.CacheRecord) {
	lookup := c.Lookup(ctx, query)
	return !lookup.Fresh, lookup.Record
}

// Lookup checks the cache for query. Source is Recovered when the file exists
// but could not be used; a plain missing file or an expired record is Loaded.
// The record is keyed by city: a fresh record saved for another query, or one
// written without a query, is a miss rather than being shown under the new city.
func (c *WeatherCache) Lookup(ctx context.Context, query string) models.CacheLookup {
	data, err := c.store.ReadFile(ctx, c.path)
	if err != nil {
		if filestore.IsNotExist(err) {
			return c.miss(ctx, models.Loaded, "absent", nil)
		}
		return c.miss(ctx, models.Recovered, "unreadable", err)
	}

	var record models.CacheRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return c.miss(ctx, models.Recovered, "malformed", err)
	}

	lastUpdate, err := ParseTimestamp(record.LastUpdate)
	if err != nil {
		return c.miss(ctx, models.Recovered, "bad_timestamp", err)
	}

	if len(record.Weather) == 0 || string(record.Weather) == "null" {
		return c.miss(ctx, models.Recovered, "empty_payload", nil)
	}

	if record.Query != query {
		return c.miss(ctx, models.Loaded, "other_city", nil)
	}

	age := c.now().Sub(lastUpdate)
	if age >= c.freshness {
		c.logger.Debug(ctx, "[CACHE_EXPIRED] Cached weather is stale", logging.Fields{
			"age_seconds": age.Seconds(),
		})
		return c.miss(ctx, models.Loaded, "expired", nil)
	}

	c.metrics.RecordCacheLookup("hit")
	c.logger.Debug(ctx, "[CACHE_HIT] Using cached weather", logging.Fields{
		"query":       query,
		"age_seconds": age.Seconds(),
	})
	return models.CacheLookup{Record: &record, Source: models.Loaded, Fresh: true}
}

// Save overwrites the cache with raw, stamped with the current time.
func (c *WeatherCache) Save(ctx context.Context, query string, raw json.RawMessage) error {
	record := models.CacheRecord{
		LastUpdate: c.now().Local().Format(TimestampLayout),
		Query:      query,
		Weather:    raw,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode weather cache: %w", err)
	}

	if err := c.store.WriteFile(ctx, c.path, data); err != nil {
		return fmt.Errorf("failed to save weather cache: %w", err)
	}

	return nil
}

func (c *WeatherCache) miss(ctx context.Context, source models.Source, reason string, err error) models.CacheLookup {
	c.metrics.RecordCacheLookup("miss")
	fields := logging.Fields{
		"path":   c.path,
		"reason": reason,
	}
	if err != nil {
		fields["detail"] = err.Error()
	}
	if source == models.Recovered {
		c.metrics.RecordRecovery("cache")
		c.logger.Info(ctx, "[CACHE_RECOVERED] Ignoring unusable weather cache", fields)
	} else {
		c.logger.Debug(ctx, "[CACHE_MISS] Weather cache miss", fields)
	}
	return models.CacheLookup{Source: source}
}

// ParseTimestamp accepts the local layout written by Save as well as RFC 3339.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last_update %q: %w", s, err)
	}
	return t, nil
}
