package handlers

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// CountryName resolves an ISO 3166 alpha-2 code to its English name. The code
// itself is returned when it cannot be resolved.
func CountryName(code string) string {
	if code == "" {
		return ""
	}
	region, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	if name := display.English.Regions().Name(region); name != "" {
		return name
	}
	return code
}
