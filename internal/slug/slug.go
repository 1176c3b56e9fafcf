package slug

import (
	"regexp"
	"strings"
)

var reCode = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,39}$`)

// IsCode returns true if s matches ^[a-z0-9][a-z0-9_.-]{0,39}$
func IsCode(s string) bool {
	return reCode.MatchString(s)
}

// Normalize lowercases and trims a user-supplied code without otherwise rewriting it.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Slugify derives a code from a display name: lowercase, runs of other characters
// collapse to a single '_', trimmed to 40 and stripped of leading/trailing '_'.
// Names without any ASCII letter or digit yield "".
func Slugify(s string) string {
	out := make([]rune, 0, len(s))
	prevUnderscore := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			prevUnderscore = false
		} else if !prevUnderscore {
			out = append(out, '_')
			prevUnderscore = true
		}
		if len(out) >= 40 {
			break
		}
	}
	return strings.Trim(string(out), "_")
}
