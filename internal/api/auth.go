package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards the admin routes. An empty token locks them entirely.
func BearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if len(want) == 0 || !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="tweetsweep admin"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", "admin routes need a valid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
