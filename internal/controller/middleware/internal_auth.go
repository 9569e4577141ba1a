package middleware

import (
	"net/http"

	"shipyard/internal/auth"
)

// RequireInternalAuth guards the routes used by workers and operators. The bearer token must
// equal secret; client API keys are not accepted here, and an empty secret locks the routes.
func RequireInternalAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			switch {
			case r.Header.Get("Authorization") == "":
				writeError(w, "Missing authorization header", http.StatusUnauthorized)
			case !ok:
				writeError(w, "Invalid authorization header", http.StatusUnauthorized)
			case !auth.MatchSecret(token, secret):
				writeError(w, "Invalid authorization token", http.StatusUnauthorized)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
