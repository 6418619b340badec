// Package price normalizes storefront price text into numeric prices.
package price

import (
	"strconv"
	"strings"
)

var currencyStripper = strings.NewReplacer("€", "", "$", "", "£", "")

// freeMarkers are price texts that mean "costs nothing". "gratis" shows up on
// the Epic storefront in several locales.
var freeMarkers = map[string]struct{}{
	"":             {},
	"free":         {},
	"gratis":       {},
	"free to play": {},
}

// Parse converts raw price text into a decimal price in the store's display
// currency. The second return is false when the text is unparsable. Parse
// never panics and performs no currency conversion; callers that need one
// apply their own multiplier.
//
// Discount rows render as two space-separated tokens (struck-through original
// followed by the discounted price); the first token is the effective price.
// Epic bundles render ranges like "19.99 - 39.99"; the first value wins.
//
// The store is accepted for per-store overrides; today both storefronts share
// one rule set, with Epic's "gratis" folded into the common free markers.
func Parse(text string, store string) (float64, bool) {
	trimmed := strings.TrimSpace(text)
	if _, ok := freeMarkers[strings.ToLower(trimmed)]; ok {
		return 0, true
	}

	cleaned := strings.TrimSpace(currencyStripper.Replace(trimmed))
	if before, _, found := strings.Cut(cleaned, " - "); found {
		cleaned = before
	}
	if fields := strings.Fields(cleaned); len(fields) > 1 {
		cleaned = fields[0]
	}
	cleaned = strings.TrimSpace(cleaned)

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// FromCents converts a storefront integer cent amount (as returned by the
// Steam appdetails API) to a decimal price.
func FromCents(cents int) float64 {
	return float64(cents) / 100
}
