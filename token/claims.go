package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresWithin reports whether a JWT access credential expires inside the
// given window. The token is decoded without signature verification; the
// client never trusts the claims for authorization, only as a hint to
// refresh before the backend starts answering 401. Opaque or claimless
// tokens report false so the normal 401-driven refresh path handles them.
func ExpiresWithin(access string, window time.Duration) bool {
	if access == "" {
		return false
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(access, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < window
}
