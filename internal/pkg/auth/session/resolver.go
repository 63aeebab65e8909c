package session

import (
	"net/http"

	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
)

// Resolver is one source of identity for an inbound connection.
// Resolve reports the user id and whether this source yielded one.
type Resolver interface {
	Resolve(r *http.Request) (string, bool)
}

// Authenticator resolves a user identity for a new connection by consulting
// an ordered chain of resolvers. The first resolver that yields an identity
// wins; if none does, the connection must be terminated.
type Authenticator struct {
	resolvers []Resolver
}

// NewAuthenticator builds an Authenticator over the given resolver chain.
func NewAuthenticator(resolvers ...Resolver) *Authenticator {
	return &Authenticator{resolvers: resolvers}
}

// Authenticate walks the resolver chain in order and returns the resolved
// user identity, or ErrUnauthenticated when no source yields one.
func (a *Authenticator) Authenticate(r *http.Request) (string, *errs.CustomError) {
	for _, resolver := range a.resolvers {
		if userID, ok := resolver.Resolve(r); ok && userID != "" {
			return userID, nil
		}
	}

	logx.Warn("Unauthenticated connection attempt", "remote_addr", r.RemoteAddr)
	return "", errs.NewError(errs.ErrUnauthenticated)
}

// ContextResolver yields the identity of a session already validated by
// IdentityExtractorMiddleware and attached to the request context.
type ContextResolver struct{}

// Resolve implements Resolver.
func (ContextResolver) Resolve(r *http.Request) (string, bool) {
	claims := ClaimsFromContext(r)
	if claims == nil {
		return "", false
	}
	return claims.UserID, true
}

// CookieResolver reads the raw session cookie directly. It covers requests
// that bypassed the HTTP middleware chain but still carry a valid cookie.
type CookieResolver struct {
	SecretKey string
}

// Resolve implements Resolver.
func (cr CookieResolver) Resolve(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}

	claims, err := ParseToken(cookie.Value, cr.SecretKey)
	if err != nil {
		return "", false
	}

	return claims.UserID, true
}

// TestHeaderName carries an explicitly injected identity for
// non-interactive testing.
const TestHeaderName = "X-Test-User"

// TestResolver yields the identity from the test header. It resolves nothing
// unless Enabled, so production configurations never honor the bypass.
type TestResolver struct {
	Enabled bool
}

// Resolve implements Resolver.
func (tr TestResolver) Resolve(r *http.Request) (string, bool) {
	if !tr.Enabled {
		return "", false
	}

	userID := r.Header.Get(TestHeaderName)
	if userID == "" {
		return "", false
	}

	return userID, true
}
