package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// City is one entry of the rotation. The list order defines the rotation order.
type City struct {
	DisplayName string `json:"display_name" mapstructure:"display_name"`
	Query       string `json:"query" mapstructure:"query"`
	Timezone    string `json:"timezone" mapstructure:"timezone"`
}

// Source tells whether a persisted value was read from disk or replaced by a
// default because the file was missing or corrupt.
type Source int

const (
	Loaded Source = iota
	Recovered
)

func (s Source) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "recovered"
}

// IndexResult is the outcome of reading the rotation index.
type IndexResult struct {
	Index  int
	Source Source
}

// CacheRecord is the on-disk weather cache. Weather holds the provider payload
// verbatim.
type CacheRecord struct {
	LastUpdate string          `json:"last_update"`
	Query      string          `json:"query,omitempty"`
	Weather    json.RawMessage `json:"weather"`
}

// CacheLookup is the outcome of checking the weather cache. Record is set only
// when Fresh is true.
type CacheLookup struct {
	Record *CacheRecord
	Source Source
	Fresh  bool
}

// Payload mirrors the parts of the OpenWeatherMap current weather response
// that get rendered.
type Payload struct {
	Name string `json:"name"`
	Main struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  float64  `json:"humidity"`
		Pressure  float64  `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Visibility *float64 `json:"visibility"`
	Clouds     struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Rain *Precipitation `json:"rain"`
	Snow *Precipitation `json:"snow"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
}

// Precipitation holds rain or snow volume in millimeters.
type Precipitation struct {
	OneHour *float64 `json:"1h"`
}

// DefaultVisibility is used when the provider omits visibility, in meters.
const DefaultVisibility = 10000.0

// Description returns the first condition description.
func (p *Payload) Description() string {
	if len(p.Weather) == 0 {
		return ""
	}
	return p.Weather[0].Description
}

// FeelsLike falls back to the temperature when the provider omits it.
func (p *Payload) FeelsLike() float64 {
	if p.Main.FeelsLike != nil {
		return *p.Main.FeelsLike
	}
	return *p.Main.Temp
}

// VisibilityMeters returns visibility with the 10 km default applied.
func (p *Payload) VisibilityMeters() float64 {
	if p.Visibility == nil {
		return DefaultVisibility
	}
	return *p.Visibility
}

// RainVolume returns the last hour of rain in mm, 0 when absent.
func (p *Payload) RainVolume() float64 {
	return p.Rain.volume()
}

// SnowVolume returns the last hour of snow in mm, 0 when absent.
func (p *Payload) SnowVolume() float64 {
	return p.Snow.volume()
}

func (pr *Precipitation) volume() float64 {
	if pr == nil || pr.OneHour == nil {
		return 0
	}
	return *pr.OneHour
}

// Validate checks the fields required for a render.
func (p *Payload) Validate() error {
	if p.Main.Temp == nil {
		return &ValidationError{
			Field:   "main.temp",
			Message: "weather payload has no temperature",
		}
	}
	if p.Description() == "" {
		return &ValidationError{
			Field:   "weather[0].description",
			Message: "weather payload has no description",
		}
	}
	return nil
}

// Weather is a parsed payload together with the raw bytes it came from.
type Weather struct {
	Raw     json.RawMessage
	Payload *Payload
}

// ParseWeather decodes and validates a provider payload.
func ParseWeather(raw []byte) (*Weather, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &ValidationError{
			Field:   "body",
			Value:   truncate(string(raw), 64),
			Message: fmt.Sprintf("weather payload is not valid JSON: %v", err),
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Weather{Raw: json.RawMessage(raw), Payload: &p}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Status is what one invocation resolved: the city, its local time, and
// either the weather or the reason it could not be fetched.
type Status struct {
	City    City
	Local   time.Time
	Weather *Weather
	Err     error
}

// RenderResult is the JSON object printed for the status bar.
type RenderResult struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// FetchError is returned once every retry attempt has failed.
type FetchError struct {
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("Request failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient returns true; a later invocation may well succeed.
func (e *FetchError) IsTransient() bool {
	return true
}
