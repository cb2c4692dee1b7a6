package handlers

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"weatherbar/internal/models"
)

// Pango markup understood by Waybar. These strings pass through the
// uppercase mode untouched.
const (
	separator        = "<span foreground='#cdd6f466'>  \uf142  </span>"
	errorCityOpen    = "<span foreground='#cfd9f5'>"
	tooltipCityOpen  = "<span foreground='#CDD6F4' size='14pt'>"
	spanClose        = "</span>"
	degreesCelsius   = "°C"
	errorIndicator   = "Weather Error (!)"
	localTimeLabel   = "Local time"
	couldNotFetchMsg = "Could not fetch weather data:"
)

// Summary is the rounded, defaulted view of a payload, before any case
// transform.
type Summary struct {
	Description string
	Country     string
	Temperature int
	FeelsLike   int
	Humidity    float64
	Pressure    float64
	Cloudiness  float64
	WindSpeed   float64
	Visibility  int
	Rain        float64
	Snow        float64
}

// Summarize applies the rounding and default rules to p.
func Summarize(p *models.Payload) Summary {
	return Summary{
		Description: capitalize(p.Description()),
		Country:     CountryName(p.Sys.Country),
		Temperature: roundInt(*p.Main.Temp),
		FeelsLike:   roundInt(p.FeelsLike()),
		Humidity:    p.Main.Humidity,
		Pressure:    p.Main.Pressure,
		Cloudiness:  p.Clouds.All,
		WindSpeed:   p.Wind.Speed,
		Visibility:  roundInt(p.VisibilityMeters() / 1000),
		Rain:        p.RainVolume(),
		Snow:        p.SnowVolume(),
	}
}

// Presenter turns a resolved status into the Waybar text and tooltip.
type Presenter struct {
	uppercase bool
}

// NewPresenter creates a presenter. With uppercase set, labels, the city
// name, the description and the date parts are upper-cased.
func NewPresenter(uppercase bool) *Presenter {
	return &Presenter{uppercase: uppercase}
}

// Render builds the output for status.
func (p *Presenter) Render(status *models.Status) models.RenderResult {
	if status.Err != nil || status.Weather == nil {
		return p.renderError(status)
	}
	return p.renderWeather(status.City, status.Local, Summarize(status.Weather.Payload))
}

func (p *Presenter) renderWeather(city models.City, local time.Time, s Summary) models.RenderResult {
	name := p.transform(city.DisplayName)
	desc := p.transform(s.Description)
	when := p.dateTime(local)

	text := name + separator + fmt.Sprintf("%d%s  %s", s.Temperature, degreesCelsius, desc) + separator + when

	var b strings.Builder
	b.WriteString(tooltipCityOpen + name + spanClose + "\n\n")
	b.WriteString(when + "\n\n")
	p.line(&b, "Temperature", strconv.Itoa(s.Temperature)+degreesCelsius)
	p.line(&b, "Feels like", strconv.Itoa(s.FeelsLike)+degreesCelsius)
	p.line(&b, "Condition", desc)
	p.line(&b, "Humidity", shortest(s.Humidity)+"%")
	p.line(&b, "Pressure", shortest(s.Pressure)+" hPa")
	p.line(&b, "Cloudiness", shortest(s.Cloudiness)+"%")
	p.line(&b, "Wind", oneDecimal(s.WindSpeed)+" m/s")
	p.line(&b, "Visibility", strconv.Itoa(s.Visibility)+" km")
	p.line(&b, "Rain", shortest(s.Rain)+" mm")
	b.WriteString(p.transform("Snow") + ": " + shortest(s.Snow) + " mm")

	return models.RenderResult{Text: text, Tooltip: b.String()}
}

func (p *Presenter) renderError(status *models.Status) models.RenderResult {
	name := p.transform(status.City.DisplayName)
	when := p.dateTime(status.Local)

	detail := "unknown error"
	if status.Err != nil {
		detail = status.Err.Error()
	}

	text := errorCityOpen + name + spanClose + separator + when + separator + p.transform(errorIndicator)
	tooltip := errorCityOpen + name + spanClose + "\n\n" +
		p.transform(localTimeLabel) + ": " + when + "\n\n" +
		p.transform(couldNotFetchMsg) + "\n" + detail

	return models.RenderResult{Text: text, Tooltip: tooltip}
}

// dateTime formats "Monday, January 2<sep>3:04 PM". Only the parts are
// transformed, never the separator markup.
func (p *Presenter) dateTime(local time.Time) string {
	day := p.transform(local.Format("Monday"))
	date := p.transform(local.Format("January 2"))
	clock := p.transform(local.Format("3:04 PM"))
	return day + ", " + date + separator + clock
}

func (p *Presenter) line(b *strings.Builder, label, value string) {
	b.WriteString(p.transform(label) + ": " + value + "\n")
}

func (p *Presenter) transform(s string) string {
	if p.uppercase {
		return strings.ToUpper(s)
	}
	return s
}

// roundInt rounds half to even: 20.5 -> 20, 21.5 -> 22.
func roundInt(v float64) int {
	return int(math.RoundToEven(v))
}

// oneDecimal rounds the stored binary value, not its decimal literal: 0.15 -> "0.1".
func oneDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func shortest(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
