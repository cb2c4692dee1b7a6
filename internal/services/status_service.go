package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"weatherbar/internal/models"
	"weatherbar/internal/repository"
	"weatherbar/pkg/logging"
	"weatherbar/pkg/metrics"
)

// Fetcher is the upstream weather lookup used by StatusService.
type Fetcher interface {
	Fetch(ctx context.Context, query string) (*models.Weather, error)
}

// StatusService runs one invocation: pick the city, then find its weather in
// the cache or upstream.
type StatusService struct {
	cities   []models.City
	index    *repository.IndexStore
	cache    *repository.WeatherCache
	errorLog *repository.ErrorLog
	fetcher  Fetcher
	now      func() time.Time
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewStatusService creates a new status service. now is the clock; nil means
// time.Now.
func NewStatusService(
	cities []models.City,
	index *repository.IndexStore,
	cache *repository.WeatherCache,
	errorLog *repository.ErrorLog,
	fetcher Fetcher,
	now func() time.Time,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *StatusService {
	if now == nil {
		now = time.Now
	}
	return &StatusService{
		cities:   cities,
		index:    index,
		cache:    cache,
		errorLog: errorLog,
		fetcher:  fetcher,
		now:      now,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// Run resolves the current status. A failed fetch is not an error here: it
// comes back in Status.Err and is appended to the error log. The returned
// error is reserved for state that could not be written.
func (s *StatusService) Run(ctx context.Context, advance bool) (*models.Status, error) {
	current := s.index.Read(ctx, len(s.cities))
	idx := current.Index

	if advance {
		idx = NextIndex(idx, len(s.cities), true)
		if err := s.index.Write(ctx, idx); err != nil {
			return nil, err
		}
		s.metrics.RotationsTotal.Inc()
	}

	city := s.cities[idx]
	status := &models.Status{
		City:  city,
		Local: s.localTime(ctx, city),
	}

	s.logger.Debug(ctx, "[STATUS_CITY] City selected", logging.Fields{
		"index":        idx,
		"index_source": current.Source.String(),
		"advanced":     advance,
		"city":         city.DisplayName,
	})

	weather, err := s.weather(ctx, city)
	var fatal *fatalError
	if errors.As(err, &fatal) {
		return nil, fatal.err
	}
	if err != nil {
		status.Err = err
		if logErr := s.errorLog.Append(ctx, err.Error()); logErr != nil {
			return nil, logErr
		}
		return status, nil
	}

	status.Weather = weather
	return status, nil
}

// weather returns the fresh cached payload for city, or fetches and caches a
// new one. A failed cache write comes back as *fatalError.
func (s *StatusService) weather(ctx context.Context, city models.City) (*models.Weather, error) {
	refresh, record := s.cache.ShouldRefresh(ctx, city.Query)
	if !refresh {
		w, err := models.ParseWeather(record.Weather)
		if err == nil {
			return w, nil
		}
		s.metrics.RecordRecovery("cache")
		s.logger.Info(ctx, "[CACHE_RECOVERED] Cached payload unusable, refetching", logging.Fields{
			"detail": err.Error(),
		})
	}

	w, err := s.fetcher.Fetch(ctx, city.Query)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Save(ctx, city.Query, json.RawMessage(w.Raw)); err != nil {
		return nil, &fatalError{err: err}
	}

	return w, nil
}

func (s *StatusService) localTime(ctx context.Context, city models.City) time.Time {
	loc, err := time.LoadLocation(city.Timezone)
	if err != nil {
		s.logger.Warn(ctx, "[STATUS_TZ] Unknown timezone, using UTC", logging.Fields{
			"timezone": city.Timezone,
			"error":    err.Error(),
		})
		loc = time.UTC
	}
	return s.now().In(loc)
}

// fatalError marks a state write failure that must end the process.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return fmt.Sprintf("fatal: %v", e.err) }
func (e *fatalError) Unwrap() error { return e.err }
