// Package appctx carries the application-wide theme and authentication state
// as an explicit value resolved per request.
package appctx

import "net/http"

// State is the theme and signed-in user for one request.
type State struct {
	Theme Theme
	User  *User
}

// SignedIn reports whether a user is present.
func (s State) SignedIn() bool {
	return s.User != nil
}

// Resolver builds State from requests.
type Resolver struct {
	Auth         *MemoryAuth
	DefaultTheme Theme
}

// Resolve reads the theme preference and the sign-in cookie.
func (r Resolver) Resolve(req *http.Request) State {
	st := State{Theme: ResolveTheme(req, r.DefaultTheme)}
	if r.Auth != nil {
		if c, err := req.Cookie(AuthCookie); err == nil {
			if u, ok := r.Auth.Lookup(c.Value); ok {
				st.User = u
			}
		}
	}
	return st
}
