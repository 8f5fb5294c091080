// Package gate keeps anonymous visitors away from the shop pages.
//
// The gate only routes navigation. Its session flag is a plain cookie that a
// client can set by hand, so it protects no data: carts and receipts stay
// reachable by anyone who sets mini_session=true.
package gate

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	CookieName    = "mini_session"
	LoginPath     = "/login"
	RedirectParam = "redirect"

	// DefaultRedirect is where a login without a usable redirect lands.
	DefaultRedirect = "/products"

	flagValue = "true"
)

// ProtectedPrefixes are matched as plain string prefixes, so "/products"
// also covers "/productsfoo".
var ProtectedPrefixes = []string{"/products", "/checkout", "/receipt"}

type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

type Gate struct {
	ttl    time.Duration
	secure bool
}

// New returns a gate whose session flag lives for ttl. A ttl of zero makes
// the flag a browser-session cookie.
func New(ttl time.Duration, secure bool) *Gate {
	return &Gate{ttl: ttl, secure: secure}
}

// State reads the session flag from r.
func (g *Gate) State(r *http.Request) State {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value != flagValue {
		return Anonymous
	}
	return Authenticated
}

// SignIn moves the visitor to Authenticated.
func (g *Gate) SignIn(w http.ResponseWriter) {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    flagValue,
		Path:     "/",
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if g.ttl > 0 {
		c.MaxAge = int(g.ttl / time.Second)
	}
	http.SetCookie(w, c)
}

// SignOut moves the visitor back to Anonymous by expiring the flag.
func (g *Gate) SignOut(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Protect redirects anonymous requests for protected paths to the login page.
// Everything else passes through untouched.
func (g *Gate) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsProtected(r.URL.Path) && g.State(r) != Authenticated {
			slog.Debug("Gate: redirecting anonymous visitor to login", "path", r.URL.Path)
			http.Redirect(w, r, LoginURL(r.URL.Path), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IsProtected reports whether path starts with one of ProtectedPrefixes.
func IsProtected(path string) bool {
	for _, prefix := range ProtectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// LoginURL is the login entry point that forwards back to path afterwards.
func LoginURL(path string) string {
	return LoginPath + "?" + url.Values{RedirectParam: {path}}.Encode()
}

// SafeRedirect returns target if it is a local absolute path and
// DefaultRedirect otherwise, so the login form cannot bounce visitors to
// another host.
func SafeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return DefaultRedirect
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return DefaultRedirect
	}
	return target
}
