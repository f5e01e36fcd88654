package collection

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL reduces a raw URL to the canonical key used for bookmark
// duplicate detection. It lowercases the scheme and host, assumes https when
// no scheme is given, removes default ports and fragments, sorts query
// parameters, and trims a single trailing slash so "https://a.com" and
// "https://a.com/" compare equal. The result is a comparison key, not a
// fetchable address.
func NormalizeURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// Remove default ports
	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	// Remove fragment
	u.Fragment = ""

	// Sort query parameters
	q := u.Query()
	u.RawQuery = q.Encode()

	// A bare host and a root path are the same page; deeper paths drop one
	// trailing slash only.
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}
