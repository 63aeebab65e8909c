package session

import "github.com/golang-jwt/jwt"

// Claims defines the session cookie payload. The cookie is issued by the
// login service; this server only verifies and reads it.
type Claims struct {
	// StandardClaims embeds Exp, Iat and Iss, which drive validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// UserID is the stable identifier of the signed-in user.
	UserID string `json:"user_id"`
}
