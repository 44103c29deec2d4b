package scan

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var percentPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// NormalizeText collapses whitespace runs to single spaces and trims.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	i := 0
	for pos := range s {
		if i == max {
			return s[:pos]
		}
		i++
	}
	return s
}

// PrepareText normalizes raw page text and applies the length rules:
// shorter than minChars is ineligible, longer than maxChars is truncated.
func PrepareText(raw string, minChars, maxChars int) (string, bool) {
	text := NormalizeText(raw)
	if utf8.RuneCountInString(text) < minChars {
		return "", false
	}
	return Truncate(text, maxChars), true
}

// ParseAccuracy reads the first number out of a percentage string such as
// "65%" or "65.5 %".
func ParseAccuracy(s string) (float64, bool) {
	m := percentPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ShouldWarn reports whether accuracy is strictly below threshold.
// Unparseable accuracies never warn.
func ShouldWarn(accuracy string, threshold float64) (float64, bool) {
	v, ok := ParseAccuracy(accuracy)
	if !ok {
		return 0, false
	}
	return v, v < threshold
}
