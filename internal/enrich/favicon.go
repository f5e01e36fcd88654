package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultFaviconTimeout = 3 * time.Second

// Common favicon locations, probed in order.
var faviconCandidates = []string{
	"/favicon.ico",
	"/favicon.png",
	"/apple-touch-icon.png",
}

// FaviconFinder checks a site's well-known icon paths.
type FaviconFinder struct {
	client    *http.Client
	perProbe  time.Duration
	userAgent string
}

// NewFaviconFinder builds a finder; perProbe bounds each candidate path.
func NewFaviconFinder(perProbe time.Duration, userAgent string) *FaviconFinder {
	if perProbe <= 0 {
		perProbe = defaultFaviconTimeout
	}
	return &FaviconFinder{
		client:    &http.Client{Timeout: perProbe},
		perProbe:  perProbe,
		userAgent: userAgent,
	}
}

// Find returns the first candidate the site serves, or "" when none do.
// Absence is not an error; only an unusable page URL is.
func (f *FaviconFinder) Find(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("favicon: unusable url %q", pageURL)
	}
	origin := u.Scheme + "://" + u.Host

	for _, path := range faviconCandidates {
		candidate := origin + path
		if f.probe(ctx, candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

func (f *FaviconFinder) probe(ctx context.Context, candidate string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, f.perProbe)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, candidate, nil)
	if err != nil {
		return false
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	ct := resp.Header.Get("Content-Type")
	return ct == "" || strings.HasPrefix(ct, "image/") || strings.Contains(ct, "icon")
}
