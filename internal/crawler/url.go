package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// trackingParams are query parameters that identify campaigns or click
// provenance, not content. They never distinguish two articles, so they are
// stripped before a URL is used as a deduplication key.
var trackingParams = map[string]struct{}{
	"fbclid":      {},
	"gclid":       {},
	"igshid":      {},
	"msclkid":     {},
	"ref":         {},
	"ref_src":     {},
	"spm":         {},
	"twclid":      {},
	"wt_mc":       {},
	"yclid":       {},
	"_hsenc":      {},
	"_hsmi":       {},
	"mc_cid":      {},
	"mc_eid":      {},
	"igsh":        {},
	"sr_share":    {},
	"share_token": {},
}

// CanonicalURL normalizes a URL for use as a dedup key: the scheme and host
// are lowercased, default ports and fragments dropped, tracking parameters
// removed, and the remaining query sorted.
func CanonicalURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if isTrackingParam(key) {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	_, ok := trackingParams[lower]
	return ok
}
