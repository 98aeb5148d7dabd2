package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var tokenParser = jwt.NewParser()

// TokenExpiry returns the expiry carried in a JWT's exp claim without
// verifying the signature. ok is false for opaque tokens and tokens without exp.
func TokenExpiry(token string) (expiresAt time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := tokenParser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}

// EffectiveTTL caps ttl by the remaining lifetime of token. A non-positive
// result means the token has already expired.
func EffectiveTTL(token string, ttl time.Duration, now time.Time) time.Duration {
	expiresAt, ok := TokenExpiry(token)
	if !ok {
		return ttl
	}

	remaining := expiresAt.Sub(now)
	if remaining < ttl {
		return remaining
	}
	return ttl
}
