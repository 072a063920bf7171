package cache

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize maps an identifier to its canonical upper-case form.
//
// Full Unicode case mapping is used ("straße" becomes "STRASSE"). Identifiers
// that only differ by case collide, which is wrong for URLs in general; callers
// that need case-sensitive keys must encode them before calling.
func Normalize(identifier string) string {
	// cases.Caser is stateful, so build one per call.
	return cases.Upper(language.Und).String(identifier)
}
