// Package common holds setup and input helpers shared by the CLI actions.
package common

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	markdownLinkPattern = regexp.MustCompile(`^\[.*?\]\((https?://[^\)]+)\)$`)
	urlPattern          = regexp.MustCompile(`^https?://[a-zA-Z0-9][-a-zA-Z0-9.]*[a-zA-Z0-9](:[0-9]+)?(/[^\s]*)?$`)
)

// SanitizeURL cleans up a pasted URL: surrounding whitespace, markdown
// link syntax and stray punctuation.
func SanitizeURL(rawURL string) string {
	cleaned := strings.TrimSpace(rawURL)

	// [text](url) -> url
	if m := markdownLinkPattern.FindStringSubmatch(cleaned); len(m) > 1 {
		cleaned = m[1]
	}
	cleaned = strings.TrimRight(cleaned, ",.)}]\"'>;")
	cleaned = strings.TrimLeft(cleaned, "([<\"'")
	return strings.TrimSpace(cleaned)
}

// ValidURL reports whether cleaned is an absolute http(s) URL with a sane
// host. Spaces must arrive encoded.
func ValidURL(cleaned string) bool {
	if cleaned == "" || strings.Contains(cleaned, " ") || !urlPattern.MatchString(cleaned) {
		return false
	}
	parsed, err := url.Parse(cleaned)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != "" && !strings.ContainsAny(parsed.Host, "{}[]<>\"'")
}

// SanitizeAndValidateURLs returns the sanitized form of every valid URL and
// the raw form of every URL that stays invalid after sanitizing.
func SanitizeAndValidateURLs(urls []string) (valid []string, invalid []string) {
	valid = make([]string, 0, len(urls))
	for _, raw := range urls {
		cleaned := SanitizeURL(raw)
		if !ValidURL(cleaned) {
			invalid = append(invalid, raw)
			continue
		}
		valid = append(valid, cleaned)
	}
	return valid, invalid
}

// SplitList splits a comma separated flag value, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
