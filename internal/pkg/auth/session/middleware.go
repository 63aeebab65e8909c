package session

import (
	"context"
	"net/http"

	"dmchat/internal/pkg/logx"
)

// contextKey prevents key collisions with other packages storing request values.
type contextKey string

const (
	// ContextClaimsKey is the key under which parsed session Claims are stored
	// in the request Context.
	ContextClaimsKey contextKey = "session_claims"
)

// IdentityExtractorMiddleware attempts to read and validate the session cookie.
// On success it injects the Claims into the Context. It never interrupts the
// request (no 401); a missing or invalid cookie leaves the user anonymous, and
// the connection authenticator decides later whether that is fatal.
func IdentityExtractorMiddleware(secretKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(CookieName)
			if err != nil {
				// No cookie. Treat as anonymous and continue.
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ParseToken(cookie.Value, secretKey)
			if err != nil {
				// Cookie exists but is invalid (expired, wrong signature).
				logx.Warn("Invalid or expired session cookie, treating as anonymous", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextClaimsKey, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext safely extracts the session Claims from the request Context.
// A nil return means the request is anonymous.
func ClaimsFromContext(r *http.Request) *Claims {
	claims, ok := r.Context().Value(ContextClaimsKey).(*Claims)

	if !ok {
		return nil
	}

	return claims
}
