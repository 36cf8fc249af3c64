// Package text provides normalization and layout helpers for chat-visible strings.
package text

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	urlRegex        = regexp.MustCompile(`(?i)(https?://\S+|\bt\.me/\S+)`)
	mentionRegex    = regexp.MustCompile(`@\w{3,}`)
)

// Normalize folds compatibility forms (fullwidth letters, ligatures, styled
// math alphanumerics) with NFKC, lowercases and collapses whitespace.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// IsWide reports whether r occupies two cells in East Asian layouts.
func IsWide(r rune) bool {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return true
	default:
		return false
	}
}

// DisplayWidth approximates the rendered width of s, counting wide runes twice.
func DisplayWidth(s string) int {
	n := 0
	for _, r := range s {
		if IsWide(r) {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// ExtractURLs returns the links found in s.
func ExtractURLs(s string) []string {
	return urlRegex.FindAllString(s, -1)
}

// ExtractMentions returns the @handles found in s.
func ExtractMentions(s string) []string {
	return mentionRegex.FindAllString(s, -1)
}

// DigitRun returns the length of the longest run of consecutive digits in s.
func DigitRun(s string) int {
	longest, current := 0, 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			current++
			longest = max(longest, current)
		} else {
			current = 0
		}
	}
	return longest
}
