package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry reads the exp claim of a JWT-shaped token without verifying
// its signature. The client cannot verify it and only uses the claim to
// avoid holding a token past the server's own deadline.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// sessionExpiry is now+minutes, cut short by the token's own exp claim.
func sessionExpiry(token string, expiryMinutes int, now time.Time) time.Time {
	if expiryMinutes <= 0 {
		expiryMinutes = DefaultExpiryMinutes
	}
	expiry := now.Add(time.Duration(expiryMinutes) * time.Minute)
	if exp, ok := tokenExpiry(token); ok && exp.Before(expiry) {
		return exp
	}
	return expiry
}
