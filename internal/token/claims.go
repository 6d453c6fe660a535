package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServerDeclaredExpiry decodes the token as a JWT without verifying its
// signature and returns the exp claim. The token is opaque by contract and
// local expiry accounting never depends on this; it is surfaced on the
// status endpoint as a diagnostic when the provider happens to issue JWTs.
func ServerDeclaredExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
