// internal/slug/slug.go
//
// Slug helpers for form IDs.
//
// • Make(title) ─ converts arbitrary text into a URL-safe slug restricted
//   to ASCII a-z, 0-9 and “-”.
// • Valid(s)    ─ reports whether s is already a slug, i.e. Make(s) == s.
//
// Form IDs appear in API paths (/api/forms/{formID}/instances) and as
// Prometheus label values, so they stay within this alphabet.
//
// Rules (Make)
// ------------
// 1. Lower-case everything.
// 2. Convert any run of non-[a-z0-9] characters to one “-”.  That strips
//    spaces, punctuation, emoji, and non-ASCII.
// 3. Trim leading / trailing “-”.
// 4. If the result is empty, return "form".
// 5. Cap at MaxLen bytes without ending on “-”.

package slug

import "strings"

// MaxLen bounds a slug's length.
const MaxLen = 64

// Make converts title → lower-kebab ASCII.
func Make(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	lastWasDash := false
	for _, r := range strings.ToLower(title) {
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

	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "form"
	}
	if len(s) > MaxLen {
		s = strings.TrimRight(s[:MaxLen], "-")
	}
	return s
}

// Valid reports whether s is non-empty and already in slug form.
func Valid(s string) bool {
	return s != "" && Make(s) == s
}
