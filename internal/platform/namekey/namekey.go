// Package namekey derives the comparison key used for case- and
// space-insensitive name uniqueness.
package namekey

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize trims name, removes every space and lower-cases the result, so
// "My Plan", " my plan " and "MYPLAN" share the key "myplan".
func Normalize(name string) string {
	key := strings.ReplaceAll(strings.TrimSpace(name), " ", "")
	// A Caser is stateful; one per call keeps Normalize safe for concurrent use.
	return cases.Lower(language.Und).String(key)
}
