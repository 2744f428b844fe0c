package middleware

import (
	"net/http"
	"strings"

	"chat-widget-engine/internal/session"
)

// ValidateSession rejects requests without a valid widget bearer token.
func ValidateSession(sessions *session.Manager) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			if _, err := sessions.Parse(tokenString); err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next(w, r)
		}
	}
}
