// Package hostname correlates a page address with stored credential sites.
//
// Matching is a recall-first heuristic, not a public-suffix-list algorithm.
package hostname

import (
	"net/url"
	"strings"
	"unicode"
)

// Matches reports whether current and saved name the same site.
//
// Both inputs are lower-cased. They match when equal, when equal after a
// leading "www." is stripped, when the labels of one are a contiguous run of
// the labels of the other, or when their last two labels are equal. Empty
// inputs never match. "notgoogle.com" does not contain "google.com".
//
// The containment branch also accepts hosts like "google.com.evil.com" for
// "google.com", a known weakness.
func Matches(current, saved string) bool {
	if current == "" || saved == "" {
		return false
	}

	current = strings.ToLower(current)
	saved = strings.ToLower(saved)
	if current == saved {
		return true
	}

	current = strings.TrimPrefix(current, "www.")
	saved = strings.TrimPrefix(saved, "www.")
	if current == saved {
		return true
	}
	if containsLabels(current, saved) || containsLabels(saved, current) {
		return true
	}

	currentParts := strings.Split(current, ".")
	savedParts := strings.Split(saved, ".")
	if len(currentParts) >= 2 && len(savedParts) >= 2 {
		return registrable(currentParts) == registrable(savedParts)
	}
	return false
}

// containsLabels reports whether part occurs in host on label boundaries.
func containsLabels(host, part string) bool {
	return strings.Contains("."+host+".", "."+part+".")
}

func registrable(labels []string) string {
	return strings.Join(labels[len(labels)-2:], ".")
}

// ExtractHostname returns the raw hostname of an absolute http(s) URL,
// including any "www." prefix. Anything else is treated as a free-text site
// label: lower-cased with all whitespace removed. It never fails; malformed
// URLs fall back to the label form.
func ExtractHostname(urlOrLabel string) string {
	if strings.HasPrefix(strings.ToLower(urlOrLabel), "http") {
		if u, err := url.Parse(urlOrLabel); err == nil && u.Hostname() != "" {
			return strings.ToLower(u.Hostname())
		}
	}
	return label(urlOrLabel)
}

func label(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}
