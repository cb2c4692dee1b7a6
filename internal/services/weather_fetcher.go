package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"weatherbar/internal/models"
	"weatherbar/pkg/logging"
	"weatherbar/pkg/metrics"
)

// RetryPolicy is a flat retry: up to MaxAttempts requests with Delay between
// them. No growth, no jitter.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy is ten attempts five seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10, Delay: 5 * time.Second}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.MaxAttempts <= 1 {
		// WithMaxRetries treats 0 as unlimited
		b = &backoff.StopBackOff{}
	} else {
		b = backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// FetcherConfig holds the provider request settings.
type FetcherConfig struct {
	BaseURL  string
	APIKey   string
	Units    string
	Language string
	Timeout  time.Duration
	Retry    RetryPolicy
}

// WeatherFetcher queries the OpenWeatherMap current weather endpoint.
type WeatherFetcher struct {
	cfg     FetcherConfig
	client  *http.Client
	timer   backoff.Timer
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherFetcher creates a fetcher. A nil client gets one with cfg.Timeout.
func NewWeatherFetcher(cfg FetcherConfig, client *http.Client, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WeatherFetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &WeatherFetcher{
		cfg:     cfg,
		client:  client,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// WithTimer replaces the timer used to wait between attempts.
func (f *WeatherFetcher) WithTimer(t backoff.Timer) *WeatherFetcher {
	f.timer = t
	return f
}

// statusError is a non-2xx response.
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status from weather provider: %s", e.status)
}

// IsTransient returns true; the provider may recover before the next attempt.
func (e *statusError) IsTransient() bool {
	return true
}

// transient is implemented by errors that know whether retrying can help.
type transient interface {
	IsTransient() bool
}

// isPermanent reports whether some error in err's chain rules out a retry.
// Errors that say nothing are retried.
func isPermanent(err error) bool {
	var t transient
	return errors.As(err, &t) && !t.IsTransient()
}

// Fetch returns the current weather for query. Transport failures are retried
// per the policy; a payload without temperature or description fails at once.
func (f *WeatherFetcher) Fetch(ctx context.Context, query string) (*models.Weather, error) {
	timer := f.metrics.NewTimer(f.metrics.FetchDuration)
	defer timer.ObserveDuration()

	endpoint, err := f.endpoint(query)
	if err != nil {
		return nil, err
	}

	log := f.logger.WithFields(logging.Fields{"query": query})

	attempts := 0
	var weather *models.Weather

	operation := func() error {
		attempts++
		w, err := f.attempt(ctx, endpoint)
		if err != nil {
			if isPermanent(err) {
				f.metrics.RecordFetchAttempt("invalid_payload")
				return backoff.Permanent(err)
			}
			var serr *statusError
			if errors.As(err, &serr) {
				f.metrics.RecordFetchAttempt("status_error")
			} else {
				f.metrics.RecordFetchAttempt("transport_error")
			}
			return err
		}
		f.metrics.RecordFetchAttempt("success")
		weather = w
		return nil
	}

	notify := func(err error, wait time.Duration) {
		fields := logging.Fields{
			"attempt":      attempts,
			"max_attempts": f.cfg.Retry.MaxAttempts,
			"wait":         wait.String(),
			"error":        err.Error(),
		}
		var serr *statusError
		if errors.As(err, &serr) {
			fields["status_code"] = serr.code
		}
		log.Warn(ctx, "[FETCH_RETRY] Weather request failed, retrying", fields)
	}

	err = backoff.RetryNotifyWithTimer(operation, f.cfg.Retry.backOff(ctx), notify, f.timer)
	if err != nil {
		if isPermanent(err) {
			fields := logging.Fields{}
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				fields["field"] = verr.Field
			}
			log.Error(ctx, "[FETCH_INVALID] Weather payload rejected", fields, err)
			return nil, fmt.Errorf("invalid weather payload: %w", err)
		}

		fetchErr := &models.FetchError{Attempts: attempts, Err: err}
		log.Error(ctx, "[FETCH_FAILED] Weather request failed", logging.Fields{
			"attempts": attempts,
		}, err)
		return nil, fetchErr
	}

	log.Info(ctx, "[FETCH_OK] Weather fetched", logging.Fields{
		"attempts": attempts,
	})
	return weather, nil
}

func (f *WeatherFetcher) attempt(ctx context.Context, endpoint string) (*models.Weather, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, redactKey(err, f.cfg.APIKey)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused by the next attempt
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &statusError{code: resp.StatusCode, status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if !json.Valid(body) {
		return nil, errors.New("weather provider returned a body that is not JSON")
	}

	return models.ParseWeather(body)
}

func (f *WeatherFetcher) endpoint(query string) (string, error) {
	base, err := url.Parse(strings.TrimRight(f.cfg.BaseURL, "/") + "/weather")
	if err != nil {
		return "", fmt.Errorf("invalid weather provider URL: %w", err)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("appid", f.cfg.APIKey)
	params.Set("units", f.cfg.Units)
	params.Set("lang", f.cfg.Language)
	base.RawQuery = params.Encode()

	return base.String(), nil
}

// redactKey keeps the API key out of url.Error messages, which quote the
// full request URL and end up in the tooltip and the error log.
func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "REDACTED"))
}
