// internal/university/slug.go
//
// Slug helpers.
//
// MakeSlug converts arbitrary text into a URL-safe slug restricted to
// ASCII a-z, 0-9, and "-":
//
//  1. Lower-case everything.
//  2. Convert any run of non-[a-z0-9] characters to one "-".
//  3. Trim leading and trailing "-".
//  4. Cap at 100 bytes.
//
// ValidSlug accepts only strings MakeSlug leaves unchanged.  Cache keys
// embed the slug, so nothing else reaches the profile cache.
package university

import "strings"

const maxSlug = 100

// MakeSlug converts name to lower-kebab ASCII.  It returns "" when nothing
// survives.
func MakeSlug(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastWasDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastWasDash = false
		case !lastWasDash:
			b.WriteRune('-')
			lastWasDash = true
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlug {
		slug = strings.TrimRight(slug[:maxSlug], "-")
	}
	return slug
}

// ValidSlug reports whether s is already in canonical slug form.
func ValidSlug(s string) bool {
	return s != "" && MakeSlug(s) == s
}
