package editor

import (
	"net/url"
	"strings"
)

// linkSchemes are the URL schemes a link may carry. Relative references
// have no scheme and are always allowed.
var linkSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"mailto": true,
}

// SafeHref trims href and reports whether it may be stored as a link.
// Scripts and data URLs are rejected.
func SafeHref(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if u.Scheme != "" && !linkSchemes[strings.ToLower(u.Scheme)] {
		return "", false
	}
	return href, true
}
