package server

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"ocrdesk/internal/appctx"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

type page struct {
	template string
	title    string
	private  bool
}

// pages maps lower-cased paths to their templates.
var pages = map[string]page{
	"/":            {template: "home", title: "Home"},
	"/about":       {template: "about", title: "About"},
	"/contact":     {template: "contact", title: "Contact"},
	"/ocr_convert": {template: "convert", title: "OCR"},
	"/ocr_history": {template: "history", title: "History"},
	"/profile":     {template: "profile", title: "Profile", private: true},
	"/signup":      {template: "signup", title: "Sign up"},
	"/signin":      {template: "signin", title: "Sign in"},
}

const notFoundTemplate = "notfound"

type pageSet struct {
	byName map[string]*template.Template
}

func loadPages() (*pageSet, error) {
	set := &pageSet{byName: make(map[string]*template.Template)}
	names := []string{notFoundTemplate}
	for _, p := range pages {
		names = append(names, p.template)
	}
	for _, name := range names {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		set.byName[name] = t
	}
	return set, nil
}

type pageData struct {
	Title string
	Path  string
	Theme appctx.Theme
	User  *appctx.User
	Error string
	Year  int
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title, errMsg string) {
	st := s.resolver.Resolve(r)
	data := pageData{
		Title: title,
		Path:  r.URL.Path,
		Theme: st.Theme,
		User:  st.User,
		Error: errMsg,
		Year:  time.Now().Year(),
	}

	var buf bytes.Buffer
	if err := s.pages.byName[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		s.log.Error().Err(err).Str("template", name).Msg("Template execution failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Accept-CH", "Sec-CH-Prefers-Color-Scheme")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	p, ok := pages[strings.ToLower(r.URL.Path)]
	if !ok {
		s.render(w, r, http.StatusNotFound, notFoundTemplate, "Not found", "")
		return
	}
	if p.private && !s.resolver.Resolve(r).SignedIn() {
		http.Redirect(w, r, "/signIn", http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, p.template, p.title, "")
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "theme": s.resolver.Resolve(r).Theme})
}

func (s *Server) handleThemeToggle(w http.ResponseWriter, r *http.Request) {
	next := s.resolver.Resolve(r).Theme.Toggle()
	appctx.SetThemeCookie(w, next)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "theme": next})
}

func (s *Server) setAuthCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     appctx.AuthCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		s.render(w, r, http.StatusServiceUnavailable, "signup", "Sign up", "Accounts are disabled.")
		return
	}
	u, err := s.auth.SignUp(r.Context(), r.FormValue("email"), r.FormValue("name"), r.FormValue("password"))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, appctx.ErrEmailTaken) {
			status = http.StatusConflict
		}
		s.render(w, r, status, "signup", "Sign up", err.Error())
		return
	}
	s.setAuthCookie(w, s.auth.Issue(u), 0)
	http.Redirect(w, r, "/Profile", http.StatusSeeOther)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		s.render(w, r, http.StatusServiceUnavailable, "signin", "Sign in", "Accounts are disabled.")
		return
	}
	u, err := s.auth.SignIn(r.Context(), r.FormValue("email"), r.FormValue("password"))
	if err != nil {
		s.render(w, r, http.StatusUnauthorized, "signin", "Sign in", err.Error())
		return
	}
	s.setAuthCookie(w, s.auth.Issue(u), 0)
	http.Redirect(w, r, "/Profile", http.StatusSeeOther)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(appctx.AuthCookie); err == nil && s.auth != nil {
		s.auth.Revoke(c.Value)
	}
	s.setAuthCookie(w, "", -1)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
