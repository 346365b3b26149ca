package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// CookieName is the session cookie set after a successful login.
const CookieName = "authenticated"

// Auth guards every route except the login page and static assets with a
// password login. An empty password disables it.
type Auth struct {
	password string
	token    string
}

// NewAuth returns an Auth for password. Sessions are valid until restart.
func NewAuth(password string) *Auth {
	return &Auth{password: password, token: uuid.NewString()}
}

// Enabled reports whether a password is configured.
func (a *Auth) Enabled() bool { return a.password != "" }

// CheckPassword compares candidate against the configured password.
func (a *Auth) CheckPassword(candidate string) bool {
	return a.Enabled() && subtle.ConstantTimeCompare([]byte(candidate), []byte(a.password)) == 1
}

// Cookie returns the session cookie for a logged-in user.
func (a *Auth) Cookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    a.token,
		Path:     "/",
		MaxAge:   2592000, // 30 days
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (a *Auth) public(path string) bool {
	return path == "/login" ||
		path == "/auth/login" ||
		path == "/metrics" ||
		strings.HasPrefix(path, "/static/")
}

// Middleware redirects anonymous page requests to /login and answers API
// requests with 401.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.public(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(CookieName)
		if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(a.token)) != 1 {
			if strings.HasPrefix(r.URL.Path, "/api/") ||
				r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
				r.Header.Get("Content-Type") == "application/json" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
