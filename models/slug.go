package models

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// SlugMaxLength matches the width of discussions.slug.
const SlugMaxLength = 50

var (
	// ErrInvalidSlug is returned for slugs outside [\w-]{1,50}.
	ErrInvalidSlug = errors.New("slug must be 1-50 letters, digits, underscores or hyphens")

	slugPattern = regexp.MustCompile(`^[\w-]+$`)
)

// ValidSlug reports whether s can be used as a discussion slug.
func ValidSlug(s string) bool {
	return len(s) <= SlugMaxLength && slugPattern.MatchString(s)
}

// Slugify lowercases name, keeps ASCII letters, digits and underscores, and
// collapses everything else into single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > SlugMaxLength {
		slug = strings.TrimRight(slug[:SlugMaxLength], "-")
	}
	return slug
}
