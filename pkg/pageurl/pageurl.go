// Package pageurl classifies tab URLs: pages where no UI can be injected,
// recognized video pages, and registrable domains for history grouping.
package pageurl

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var restrictedSchemes = map[string]bool{
	"about":                true,
	"brave":                true,
	"chrome":               true,
	"chrome-extension":     true,
	"chrome-search":        true,
	"chrome-untrusted":     true,
	"devtools":             true,
	"edge":                 true,
	"moz-extension":        true,
	"opera":                true,
	"view-source":          true,
	"vivaldi":              true,
	"safari-web-extension": true,
}

// Web store pages block content scripts even over https.
var restrictedHosts = map[string]string{
	"chromewebstore.google.com":   "/",
	"chrome.google.com":           "/webstore",
	"microsoftedge.microsoft.com": "/addons",
	"addons.mozilla.org":          "/",
}

// IsRestricted reports whether rawURL is a browser-internal page where a
// content script cannot run. Unparseable and empty URLs are restricted.
func IsRestricted(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	scheme := strings.ToLower(u.Scheme)
	if restrictedSchemes[scheme] {
		return true
	}
	if scheme != "http" && scheme != "https" && scheme != "file" {
		return true
	}
	if prefix, ok := restrictedHosts[strings.ToLower(u.Hostname())]; ok && strings.HasPrefix(u.Path+"/", prefix) {
		return true
	}
	return false
}

// VideoID extracts the YouTube video id from watch, shorts, embed and
// youtu.be URLs. ok is false for any other page.
func VideoID(rawURL string) (id string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())

	if host == "youtu.be" {
		id = strings.Trim(u.Path, "/")
		return id, id != ""
	}

	if host != "youtube.com" && !strings.HasSuffix(host, ".youtube.com") {
		return "", false
	}

	switch {
	case u.Path == "/watch":
		id = u.Query().Get("v")
	case strings.HasPrefix(u.Path, "/embed/"), strings.HasPrefix(u.Path, "/shorts/"):
		parts := strings.Split(u.Path, "/")
		if len(parts) > 2 {
			id = parts[2]
		}
	}
	return id, id != ""
}

// IsMediaPage reports whether the page gets the video fact-check button.
func IsMediaPage(rawURL string) bool {
	_, ok := VideoID(rawURL)
	return ok
}

// RegistrableDomain returns eTLD+1 for rawURL, falling back to the host.
func RegistrableDomain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// ShareLink builds the viewer link for a backend record. It returns ""
// when there is no record id or no share base.
func ShareLink(shareBase, recordID string) string {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" || shareBase == "" {
		return ""
	}
	u, err := url.Parse(shareBase)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("id", recordID)
	u.RawQuery = q.Encode()
	return u.String()
}
