package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/weathermail/weathermail/webutil"
)

// AdminKeyAuth guards the admin surface with a shared-secret header. A
// missing server-side key is a configuration fault (503), never a silent
// bypass; a mismatched key is 401.
func AdminKeyAuth(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				webutil.RespondWithError(w, http.StatusServiceUnavailable, "Admin API key is not configured.")
				return
			}

			provided := r.Header.Get(webutil.HeaderAdminKey)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
				webutil.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
