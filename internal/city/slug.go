// internal/city/slug.go
//
// Slug helpers.
//
// Rules (NormalizeSlug)
// ---------------------
//  1. Lower-case everything and strip diacritics ("São José" → "sao jose").
//  2. Convert any run of non-[a-z0-9] characters to one "-".
//  3. Trim leading / trailing "-".
//  4. Cap at 100 bytes.
//
// A slug arriving on the wire is only looked up when ValidSlug accepts it,
// so garbage in a path segment or header never reaches the database.
package city

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldAccents decomposes, drops combining marks, and recomposes.  A
// transform.Chain is stateful, so each call builds its own.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeSlug converts a display name or loose slug into canonical form.
// Returns "" when nothing usable remains.
func NormalizeSlug(s string) string {
	s = foldAccents(strings.ToLower(strings.TrimSpace(s)))

	var b strings.Builder
	b.Grow(len(s))
	lastWasDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastWasDash = false
		default:
			if !lastWasDash {
				b.WriteRune('-')
				lastWasDash = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > 100 {
		slug = strings.TrimRight(slug[:100], "-")
	}
	return slug
}

// ValidSlug reports whether s is already canonical.
func ValidSlug(s string) bool {
	return s != "" && NormalizeSlug(s) == s
}
