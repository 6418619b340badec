package catalog

import (
	"strings"
	"unicode"
)

// Normalize derives the cross-store matching key from a raw title: lowercase,
// alphanumeric and whitespace only, runs of whitespace collapsed to a single
// space. It is pure and idempotent; two listings with the same normalized
// title are assumed to denote the same game. Titles that differ by characters
// surviving normalization remain distinct on purpose; there is no typo
// tolerance here.
func Normalize(title string) string {
	lowered := strings.ToLower(title)
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
