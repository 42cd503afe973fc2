package appctx

import (
	"net/http"
	"strings"
	"time"
)

// Theme is the colour scheme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ThemeCookie persists the preference in the browser.
const ThemeCookie = "ocr-theme"

// ParseTheme validates a theme name.
func ParseTheme(s string) (Theme, bool) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(s))); t {
	case ThemeLight, ThemeDark:
		return t, true
	}
	return "", false
}

// Toggle returns the opposite theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// ResolveTheme picks the theme for a request: the persisted cookie, else the
// browser's colour scheme hint, else fallback.
func ResolveTheme(r *http.Request, fallback Theme) Theme {
	if c, err := r.Cookie(ThemeCookie); err == nil {
		if t, ok := ParseTheme(c.Value); ok {
			return t
		}
	}
	if t, ok := ParseTheme(strings.Trim(r.Header.Get("Sec-CH-Prefers-Color-Scheme"), `"`)); ok {
		return t
	}
	if _, ok := ParseTheme(string(fallback)); ok {
		return fallback
	}
	return ThemeLight
}

// SetThemeCookie persists t for a year.
func SetThemeCookie(w http.ResponseWriter, t Theme) {
	http.SetCookie(w, &http.Cookie{
		Name:     ThemeCookie,
		Value:    string(t),
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}
