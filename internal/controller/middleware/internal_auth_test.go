package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireInternalAuth(t *testing.T) {
	const secret = "worker-secret"

	tests := []struct {
		name    string
		secret  string
		header  string
		want    int
		message string
	}{
		{"worker secret", secret, "Bearer " + secret, http.StatusOK, ""},
		{"missing header", secret, "", http.StatusUnauthorized, "Missing authorization header"},
		{"basic scheme", secret, "Basic " + secret, http.StatusUnauthorized, "Invalid authorization header"},
		{"bare secret", secret, secret, http.StatusUnauthorized, "Invalid authorization header"},
		{"bearer without token", secret, "Bearer", http.StatusUnauthorized, "Invalid authorization header"},
		{"double space", secret, "Bearer  " + secret, http.StatusUnauthorized, "Invalid authorization header"},
		{"client api key", secret, "Bearer sy_0123abcd", http.StatusUnauthorized, "Invalid authorization token"},
		{"secret prefix", secret, "Bearer worker", http.StatusUnauthorized, "Invalid authorization token"},
		{"unset secret", "", "Bearer anything", http.StatusUnauthorized, "Invalid authorization token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := RequireInternalAuth(tt.secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPatch, "/api/jobs/8d1f/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Code)
			assert.Equal(t, tt.want == http.StatusOK, called)
			if tt.message != "" {
				assert.Contains(t, rr.Body.String(), `"error":"`+tt.message+`"`)
			}
		})
	}
}
